package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Mr-Dark-debug/layerlens/pkg/timeutil"
)

// visibleRange returns the window of a list of n items that keeps
// selected on screen.
func visibleRange(selected, n, maxVisible int) (int, int) {
	maxVisible = maxInt(maxVisible, 5)
	start := 0
	if selected >= maxVisible {
		start = selected - maxVisible + 1
	}
	return start, minInt(start+maxVisible, n)
}

func renderEmpty(m *Model, height int, text string) string {
	return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center,
		emptyStateStyle.Render(text))
}

func listLine(m *Model, content string, selected bool) string {
	if selected {
		return listSelectedStyle.Width(m.width - 4).Render(content)
	}
	return listItemStyle.Width(m.width - 4).Render(content)
}

// renderRunList renders the run selection screen.
func renderRunList(m *Model, height int) string {
	if len(m.runs) == 0 {
		return renderEmpty(m, height,
			"No runs found.\n\n"+
				"Record activations with the layerlens daemon or\n"+
				"`layerlens import`, then runs will appear here.")
	}

	lines := []string{
		panelTitleStyle.Render("Runs") + dimStyle.Render(fmt.Sprintf("  %d total", len(m.runs))),
		"",
	}

	start, end := visibleRange(m.selectedRun, len(m.runs), height-3)
	for i := start; i < end; i++ {
		r := m.runs[i]
		content := fmt.Sprintf("%s  %s  %s  %s",
			statusDot(r.Status),
			r.ModelName,
			dimStyle.Render(shortID(r.RunID, 10)),
			dimStyle.Render(timeutil.FormatTimestampFull(r.StartedAt)+"  "+timeutil.RelativeTime(r.StartedAt)))
		lines = append(lines, listLine(m, content, i == m.selectedRun))
	}

	return strings.Join(lines, "\n")
}

// renderLayerList renders the layers of the selected run.
func renderLayerList(m *Model, height int) string {
	if len(m.layers) == 0 {
		return renderEmpty(m, height, "This run has no layers.")
	}

	lines := []string{
		panelTitleStyle.Render("Layers") + dimStyle.Render(fmt.Sprintf("  %d total", len(m.layers))),
		"",
	}

	nameWidth := minInt(maxInt(m.width/3, 12), 40)
	start, end := visibleRange(m.selectedLayer, len(m.layers), height-3)
	for i := start; i < end; i++ {
		l := m.layers[i]
		name := fmt.Sprintf("%-*s", nameWidth, truncate(l.Name, nameWidth))
		content := fmt.Sprintf("%s %3d  %s  %-8s %s",
			swatch(l.Color), l.LayerIndex, name, l.Kind, dimStyle.Render(shape(l)))
		lines = append(lines, listLine(m, content, i == m.selectedLayer))
	}

	return strings.Join(lines, "\n")
}
