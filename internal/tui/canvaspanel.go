package tui

import (
	"fmt"
	"strings"
)

// modeBadge renders the layer mode, highlighted while it moves.
func modeBadge(v *layerView) string {
	mode := v.cur.Mode()
	if mode.Stable() {
		return modeStableStyle.Render(mode.String())
	}
	return modeMovingStyle.Render(mode.String())
}

// renderCanvasPanel draws the layer scene. The first content row is the
// title; the canvas itself starts canvasTop rows below the screen top.
func renderCanvasPanel(m *Model, width, height int) string {
	v := m.view
	title := panelTitleStyle.Render(v.cur.Name) + "  " + modeBadge(v)
	if v.prev != nil {
		title += dimStyle.Render(fmt.Sprintf("  above: %s %s", v.prev.Name, v.prev.Mode()))
	}

	legend := dimStyle.Render("click a row to open, ✕ to close")
	if v.cur.IsOpen() {
		legend = dimStyle.Render(fmt.Sprintf("%d channels  labels %s  relations %s",
			v.cur.Depth(), onOff(v.cur.TextSystem), onOff(v.cur.RelationSystem)))
	}

	lines := []string{title, v.render(), legend}
	return panelActiveStyle.Width(width).Height(maxInt(height-1, 1)).
		Render(strings.Join(lines, "\n"))
}
