package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/Mr-Dark-debug/layerlens/internal/database"
	"github.com/Mr-Dark-debug/layerlens/internal/scene"
)

// ────────────────────────────────────────────────────────────
// Run and layer rendering
// ────────────────────────────────────────────────────────────

// statusDot returns a colored marker for a run status.
func statusDot(status string) string {
	switch status {
	case "completed":
		return runStatusOk.Render("●")
	case "failed":
		return runStatusFail.Render("●")
	default:
		return runStatusRunning.Render("○")
	}
}

// swatch draws a small block in the layer's display color.
func swatch(hex string) string {
	c := scene.DefaultPalette().LayerColor(hex)
	return lipgloss.NewStyle().Foreground(lipgloss.Color(c.Hex())).Render("■")
}

// shape formats a layer as width x depth.
func shape(l *database.LayerInfo) string {
	return fmt.Sprintf("%dx%d", l.Width, l.Depth)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// ────────────────────────────────────────────────────────────
// String helpers
// ────────────────────────────────────────────────────────────

// truncate cuts a string to maxLen and appends "..." if truncated.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// shortID returns first n characters of an ID string.
func shortID(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}

// clamp restricts val to [lo, hi].
func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
