package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Mr-Dark-debug/layerlens/internal/analysis"
)

// diffEpsilon is the smallest mean change shown as up or down.
const diffEpsilon = 1e-9

// renderDiffView compares the per-channel means of the current step
// with the step before it.
func renderDiffView(m *Model, width, height int) string {
	v := m.view
	title := panelTitleDimStyle.Render("Step Diff")

	prev, ok := v.previousValues()
	act, _ := v.currentStep()
	if !ok || act == nil {
		return title + "\n" + diffSameStyle.Render("No previous step to compare.")
	}

	depth := v.curData.info.Depth
	before, err := analysis.StepStats(prev, depth)
	if err != nil {
		return title + "\n" + statusErrStyle.Render(err.Error())
	}
	after, err := analysis.StepStats(act.Values, depth)
	if err != nil {
		return title + "\n" + statusErrStyle.Render(err.Error())
	}
	title += dimStyle.Render(fmt.Sprintf("  step %d → %d", v.curData.acts[v.step-1].Step, act.Step))

	var cells []string
	for c := range after {
		d := after[c].Mean - before[c].Mean
		switch {
		case d > diffEpsilon:
			cells = append(cells, diffUpStyle.Render(fmt.Sprintf("+ ch%-3d %+.3f", c, d)))
		case d < -diffEpsilon:
			cells = append(cells, diffDownStyle.Render(fmt.Sprintf("- ch%-3d %+.3f", c, d)))
		default:
			cells = append(cells, diffSameStyle.Render(fmt.Sprintf("  ch%-3d  0", c)))
		}
	}

	// Lay the channels out in columns.
	const cellWidth = 18
	cols := maxInt(width/cellWidth, 1)
	var lines []string
	for i := 0; i < len(cells); i += cols {
		row := cells[i:minInt(i+cols, len(cells))]
		for j, c := range row {
			row[j] = c + strings.Repeat(" ", maxInt(cellWidth-lipgloss.Width(c), 0))
		}
		lines = append(lines, strings.Join(row, ""))
	}

	contentHeight := height - 1
	if len(lines) > contentHeight {
		lines = lines[:maxInt(contentHeight, 0)]
	}
	return title + "\n" + strings.Join(lines, "\n")
}

// renderDiffPanel wraps the diff view in a styled panel.
func renderDiffPanel(m *Model, width, height int) string {
	if height <= 1 {
		return ""
	}
	content := renderDiffView(m, width-4, height-1)
	return panelStyle.Width(width).Height(height - 1).Render(content)
}
