package tui

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
)

var sparkGlyphs = []rune("▁▂▃▄▅▆▇█")

// sparkline maps each value onto an eighth-block glyph between the
// series min and max.
func sparkline(values []float64) []rune {
	out := make([]rune, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := floats.Min(values), floats.Max(values)
	for i, v := range values {
		idx := 0
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(sparkGlyphs)-1))
		}
		out[i] = sparkGlyphs[idx]
	}
	return out
}

// renderTimeline draws the per-step mean activation as a strip, with the
// current step highlighted and scrolled into view.
func renderTimeline(m *Model, width int) string {
	v := m.view
	title := panelTitleDimStyle.Render("Steps")
	if v.steps() == 0 {
		return title + "\n" + dimStyle.Render("no steps recorded")
	}
	title += dimStyle.Render(fmt.Sprintf("  %d recorded, mean activation", v.steps()))

	glyphs := sparkline(v.stepMeans)
	start, end := visibleRange(v.step, len(glyphs), maxInt(width, 1))

	var b strings.Builder
	for i := start; i < end; i++ {
		g := string(glyphs[i])
		if i == v.step {
			b.WriteString(stepCurrentStyle.Render(g))
		} else {
			b.WriteString(stepStyle.Render(g))
		}
	}

	first := v.curData.acts[start].Step
	last := v.curData.acts[end-1].Step
	scale := dimStyle.Render(fmt.Sprintf("%d … %d", first, last))
	return title + "\n" + b.String() + "\n" + scale
}

// renderTimelinePanel wraps the step strip in a styled panel.
func renderTimelinePanel(m *Model, width, height int) string {
	if height <= 1 {
		return ""
	}
	content := renderTimeline(m, width-4)
	return panelStyle.Width(width).Height(height - 1).Render(content)
}
