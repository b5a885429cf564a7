package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Mr-Dark-debug/layerlens/internal/analysis"
	"github.com/Mr-Dark-debug/layerlens/pkg/timeutil"
)

// renderDetail lists the layer metadata and per-channel statistics of
// the current step.
func renderDetail(m *Model, width, height int) string {
	v := m.view
	info := v.curData.info

	lines := []string{panelTitleDimStyle.Render("Detail"), ""}

	// ── Metadata ──

	lines = append(lines,
		detailRow("Layer", fmt.Sprintf("#%d %s", info.LayerIndex, info.Name)),
		detailRow("Kind", info.Kind),
		detailRow("Shape", shape(info)),
		detailRow("Mode", v.cur.Mode().String()),
	)

	act, ok := v.currentStep()
	if !ok {
		lines = append(lines, "", emptyStateStyle.Render("No activations recorded."))
		return clipLines(lines, height)
	}
	lines = append(lines,
		detailRow("Step", fmt.Sprintf("%d (%d/%d)", act.Step, v.step+1, v.steps())),
		detailRow("Recorded", timeutil.FormatTimestamp(act.RecordedAt)),
	)

	// ── Channels ──

	stats, err := analysis.StepStats(act.Values, info.Depth)
	if err != nil {
		lines = append(lines, "", statusErrStyle.Render(err.Error()))
		return clipLines(lines, height)
	}

	lines = append(lines, "", detailSectionStyle.Render("Channels"))

	peak := 0.0
	for _, s := range stats {
		peak = max(peak, absf(s.Mean))
	}
	barWidth := minInt(maxInt(width-24, 4), 30)
	for _, s := range stats {
		lines = append(lines, renderChannelBar(s, peak, barWidth))
	}

	if dead := analysis.DeadChannels(stats); len(dead) > 0 {
		lines = append(lines, "", statusErrStyle.Render(fmt.Sprintf("inactive: %v", dead)))
	}

	return clipLines(lines, height)
}

// renderDetailPanel wraps detail in a styled panel.
func renderDetailPanel(m *Model, width, height int) string {
	content := renderDetail(m, width-4, height-1)
	return panelStyle.Width(width).Height(maxInt(height-1, 1)).Render(content)
}

// ── helpers ──

func detailRow(label, value string) string {
	return detailLabelStyle.Render(fmt.Sprintf("%-9s", label)) + " " + detailValueStyle.Render(value)
}

// renderChannelBar draws |mean| of one channel relative to the peak.
func renderChannelBar(s analysis.ChannelStats, peak float64, barWidth int) string {
	filled := 0
	if peak > 0 {
		filled = int(absf(s.Mean) / peak * float64(barWidth))
	}
	if filled < 1 && s.ActiveFraction > 0 {
		filled = 1
	}
	bar := barFillStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", barWidth-filled))
	return fmt.Sprintf("ch %-3d %s %8.3f", s.Channel, bar, s.Mean)
}

func clipLines(lines []string, height int) string {
	if height > 0 && len(lines) > height {
		lines = lines[:height]
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
