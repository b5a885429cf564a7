// Package layer implements the mode controller for a two-dimensional
// network layer (channels x width) rendered as a scene object.
//
// A layer is shown either aggregated (one element summarising every
// channel) or segregated (one grid line per channel). The controller
// owns that toggle, the lifecycle of the two element sets, and the
// value-to-color dispatch that keeps the live set in sync with the
// last value it was given.
//
// Component layout:
//
//	base.go      shared layer fields, LayerBehavior, config loading
//	mode.go      Closed/Opening/Open/Closing state machine
//	element.go   element tags and the collaborator contracts
//	layer2d.go   Layer2d: lifecycle, toggles, value dispatch, events
//
// Everything here runs on the owner's loop goroutine. Collaborators
// (scene graph, elements, animator, value pipeline) are interfaces;
// the terminal implementations live in internal/scene,
// internal/animation and internal/channel.
package layer
