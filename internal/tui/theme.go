package tui

import "github.com/charmbracelet/lipgloss"

// ────────────────────────────────────────────────────────────
// Color Palette: GitHub Dark aesthetic
// ────────────────────────────────────────────────────────────
//
// All chrome colors are defined here. Layer colors come from the
// scene palette so the canvas and the panels agree.

var (
	// Base
	colorBg        = lipgloss.Color("#0d1117")
	colorBgSurface = lipgloss.Color("#1c2128")

	// Text
	colorText      = lipgloss.Color("#e6edf3")
	colorTextDim   = lipgloss.Color("#8b949e")
	colorTextMuted = lipgloss.Color("#484f58")

	// Accents
	colorBlue   = lipgloss.Color("#58a6ff")
	colorGreen  = lipgloss.Color("#3fb950")
	colorRed    = lipgloss.Color("#f85149")
	colorYellow = lipgloss.Color("#d29922")
	colorPurple = lipgloss.Color("#bc8cff")

	// Structural
	colorDivider   = lipgloss.Color("#30363d")
	colorHighlight = lipgloss.Color("#1f6feb")
)

// ────────────────────────────────────────────────────────────
// Component Styles
// ────────────────────────────────────────────────────────────

// Header bar
var (
	headerBarStyle = lipgloss.NewStyle().
			Background(colorBgSurface).
			Foreground(colorText).
			Padding(0, 1)

	headerBrandStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorBlue)

	headerSepStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	headerMetaStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)
)

// Panel chrome
var (
	panelStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.Border{Top: "─"}, true, false, false, false).
			BorderForeground(colorDivider)

	panelActiveStyle = panelStyle.
				BorderForeground(colorBlue)

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true)

	panelTitleDimStyle = lipgloss.NewStyle().
				Foreground(colorTextMuted).
				Bold(true)
)

// Detail pane
var (
	detailLabelStyle = lipgloss.NewStyle().
				Foreground(colorBlue)

	detailValueStyle = lipgloss.NewStyle().
				Foreground(colorText)

	detailSectionStyle = lipgloss.NewStyle().
				Foreground(colorDivider)

	barFillStyle = lipgloss.NewStyle().
			Foreground(colorPurple)

	barEmptyStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)
)

// Step timeline and step diff
var (
	stepCurrentStyle = lipgloss.NewStyle().
				Foreground(colorBg).
				Background(colorBlue)

	stepStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	diffUpStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	diffDownStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	diffSameStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)
)

// Mode badge
var (
	modeStableStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	modeMovingStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)
)

// Footer / status bar
var (
	statusStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorBgSurface).
			Padding(0, 1)

	statusErrStyle = statusStyle.
			Foreground(colorRed)
)

// Run and layer lists
var (
	listItemStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Padding(0, 1)

	listSelectedStyle = lipgloss.NewStyle().
				Background(colorHighlight).
				Foreground(colorText).
				Bold(true).
				Padding(0, 1)

	runStatusOk = lipgloss.NewStyle().
			Foreground(colorGreen)

	runStatusFail = lipgloss.NewStyle().
			Foreground(colorRed)

	runStatusRunning = lipgloss.NewStyle().
				Foreground(colorYellow)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	emptyStateStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Padding(2, 4)
)
