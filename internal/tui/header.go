package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderHeader produces the top bar:
//
//	LAYERLENS  |  Run: a1b2c3  |  conv-net  |  conv1d_1 4x128
func renderHeader(m *Model) string {
	brand := headerBrandStyle.Render("LAYERLENS")
	sep := headerSepStyle.Render(" │ ")

	parts := []string{brand}

	if m.currentRun != nil {
		parts = append(parts, sep,
			headerMetaStyle.Render(fmt.Sprintf("Run %s", shortID(m.currentRun.RunID, 10))),
			sep,
			headerMetaStyle.Render(m.currentRun.ModelName))

		if m.screen == screenLayer && m.view != nil {
			info := m.view.curData.info
			parts = append(parts, sep,
				headerMetaStyle.Render(fmt.Sprintf("%s %s", info.Name, shape(info))))
		} else if m.stats != nil {
			parts = append(parts, sep,
				headerMetaStyle.Render(fmt.Sprintf("%d layers", m.stats.LayerCount)))
		}
	} else {
		parts = append(parts, sep, headerMetaStyle.Render("Run Explorer"))
	}

	return headerBarStyle.Width(m.width).Render(strings.Join(parts, ""))
}

// renderFooter produces the bottom status bar with keyboard hints.
func renderFooter(m *Model) string {
	var left string
	if m.statusMsg != "" {
		style := statusStyle
		if m.err != nil {
			style = statusErrStyle
		}
		left = style.Render(m.statusMsg)
	}

	right := m.help.View(screenKeys{keyMap: m.keys, screen: m.screen})

	// Full help spans several lines; put it under the status line.
	if strings.Contains(right, "\n") {
		return lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.NewStyle().Background(colorBgSurface).Width(m.width).Render(left),
			right)
	}

	gap := maxInt(m.width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	bar := left + strings.Repeat(" ", gap) + right
	return lipgloss.NewStyle().
		Background(colorBgSurface).
		Width(m.width).
		Render(bar)
}
