// Package tui implements the LayerLens terminal viewer.
//
// It is built on BubbleTea, Lipgloss and Bubbles. A run is picked from
// the run list, then a layer from its layer list; the layer screen
// draws the layer on a character canvas and lets the user open and
// close it with the mouse or keyboard.
//
// Component architecture:
//
//	model.go       root model, message routing, Init/Update/View
//	keys.go        key bindings and per-screen help
//	layerview.go   scene, animator and layers behind the layer screen
//	theme.go       centralized color + style definitions
//	header.go      top bar and footer status line
//	runlist.go     run and layer selectors
//	canvaspanel.go the layer canvas
//	detail.go      layer metadata and per-channel bars
//	timeline.go    per-step mean activation strip
//	diffview.go    per-channel change against the previous step
//	helpers.go     small rendering and math helpers
package tui
