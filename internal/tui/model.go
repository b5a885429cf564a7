package tui

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Mr-Dark-debug/layerlens/internal/config"
	"github.com/Mr-Dark-debug/layerlens/internal/database"
	"github.com/Mr-Dark-debug/layerlens/internal/layer"
)

// ────────────────────────────────────────────────────────────
// Screens
// ────────────────────────────────────────────────────────────

// screen is the page currently shown.
type screen int

const (
	screenRuns screen = iota
	screenLayers
	screenLayer
)

// Canvas placement inside the layer screen: header line, panel border
// and panel title above it, one column of panel padding to its left.
const (
	canvasTop  = 3
	canvasLeft = 1
)

// ────────────────────────────────────────────────────────────
// Model
// ────────────────────────────────────────────────────────────

// Model is the root BubbleTea model for the LayerLens viewer.
// State is organized by concern; rendering is delegated
// to component functions in separate files.
type Model struct {
	store database.Store
	cfg   *config.Config
	keys  keyMap
	help  help.Model

	// Data
	runs       []*database.Run
	currentRun *database.Run
	stats      *database.RunStats
	layers     []*database.LayerInfo
	view       *layerView

	// UI state
	screen        screen
	selectedRun   int
	selectedLayer int
	width         int
	height        int
	ticking       bool
	lastTick      time.Time

	// Status
	statusMsg string
	err       error
}

// NewModel creates a new viewer model backed by the given store.
func NewModel(store database.Store, cfg *config.Config) Model {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return Model{
		store:     store,
		cfg:       cfg,
		keys:      defaultKeyMap(),
		help:      help.New(),
		statusMsg: "Loading runs...",
	}
}

// ────────────────────────────────────────────────────────────
// Messages
// ────────────────────────────────────────────────────────────

type runsLoadedMsg []*database.Run
type layersLoadedMsg struct {
	layers []*database.LayerInfo
	stats  *database.RunStats
}
type layerLoadedMsg struct {
	cur  layerData
	prev *layerData
}
type tickMsg time.Time
type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

// ────────────────────────────────────────────────────────────
// Init
// ────────────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return m.loadRuns()
}

func (m Model) loadRuns() tea.Cmd {
	return func() tea.Msg {
		runs, err := m.store.QueryRuns(database.RunFilter{Limit: 100})
		if err != nil {
			return errMsg{err}
		}
		return runsLoadedMsg(runs)
	}
}

func (m Model) loadLayers(runID string) tea.Cmd {
	return func() tea.Msg {
		layers, err := m.store.ListLayers(runID)
		if err != nil {
			return errMsg{err}
		}
		stats, err := m.store.GetRunStats(runID)
		if err != nil {
			return errMsg{err}
		}
		return layersLoadedMsg{layers: layers, stats: stats}
	}
}

// loadLayer fetches the activations of layers[i] and, when there is
// one, of the layer before it.
func (m Model) loadLayer(i int) tea.Cmd {
	layers := m.layers
	return func() tea.Msg {
		info := layers[i]
		acts, err := m.store.QueryActivations(info.LayerID)
		if err != nil {
			return errMsg{err}
		}
		msg := layerLoadedMsg{cur: layerData{info: info, acts: acts}}
		if i > 0 {
			p := layers[i-1]
			pacts, err := m.store.QueryActivations(p.LayerID)
			if err != nil {
				return errMsg{err}
			}
			msg.prev = &layerData{info: p, acts: pacts}
		}
		return msg
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// animate starts the frame ticker if a transition is running.
func (m *Model) animate() tea.Cmd {
	if m.view == nil || !m.view.busy() || m.ticking {
		return nil
	}
	m.ticking = true
	m.lastTick = time.Now()
	return tick(m.cfg.TickInterval())
}

// ────────────────────────────────────────────────────────────
// Update
// ────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		if m.view != nil {
			w, h := m.canvasSize()
			m.view.resize(w, h)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tickMsg:
		if m.view == nil {
			m.ticking = false
			return m, nil
		}
		now := time.Time(msg)
		dt := now.Sub(m.lastTick)
		m.lastTick = now
		if m.view.advance(dt) {
			return m, tick(m.cfg.TickInterval())
		}
		m.ticking = false
		m.statusMsg = m.modeStatus()
		return m, nil

	case runsLoadedMsg:
		m.runs = []*database.Run(msg)
		if len(m.runs) > 0 {
			m.statusMsg = fmt.Sprintf("%d runs", len(m.runs))
		} else {
			m.statusMsg = "No runs"
		}
		return m, nil

	case layersLoadedMsg:
		m.layers = msg.layers
		m.stats = msg.stats
		m.selectedLayer = 0
		m.screen = screenLayers
		m.statusMsg = fmt.Sprintf("%d layers  %d activations  %d steps",
			msg.stats.LayerCount, msg.stats.ActivationCount, msg.stats.StepCount)
		return m, nil

	case layerLoadedMsg:
		if m.view != nil {
			m.view.dispose()
		}
		w, h := m.canvasSize()
		v, err := newLayerView(m.cfg, msg.cur, msg.prev, w, h)
		if v == nil {
			m.err = err
			m.statusMsg = fmt.Sprintf("Error: %v", err)
			return m, nil
		}
		m.view = v
		m.screen = screenLayer
		m.err = err
		m.statusMsg = m.modeStatus()
		if err != nil {
			m.statusMsg = fmt.Sprintf("Error: %v", err)
		}
		return m, nil

	case errMsg:
		m.err = msg.err
		m.statusMsg = fmt.Sprintf("Error: %v", msg.err)
		return m, nil
	}

	return m, nil
}

// handleKey routes keyboard input based on the current screen.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// ── Global ──

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Back):
		switch m.screen {
		case screenLayer:
			if m.view != nil {
				m.view.dispose()
				m.view = nil
			}
			m.ticking = false
			m.screen = screenLayers
		case screenLayers:
			m.screen = screenRuns
			m.currentRun = nil
		}
		m.err = nil
		return m, nil
	}

	switch m.screen {

	// ── Run list ──

	case screenRuns:
		switch {
		case key.Matches(msg, m.keys.Down):
			m.selectedRun = clamp(m.selectedRun+1, 0, maxInt(len(m.runs)-1, 0))
		case key.Matches(msg, m.keys.Up):
			m.selectedRun = clamp(m.selectedRun-1, 0, maxInt(len(m.runs)-1, 0))
		case key.Matches(msg, m.keys.Enter):
			if m.selectedRun < len(m.runs) {
				m.currentRun = m.runs[m.selectedRun]
				return m, m.loadLayers(m.currentRun.RunID)
			}
		}
		return m, nil

	// ── Layer list ──

	case screenLayers:
		switch {
		case key.Matches(msg, m.keys.Down):
			m.selectedLayer = clamp(m.selectedLayer+1, 0, maxInt(len(m.layers)-1, 0))
		case key.Matches(msg, m.keys.Up):
			m.selectedLayer = clamp(m.selectedLayer-1, 0, maxInt(len(m.layers)-1, 0))
		case key.Matches(msg, m.keys.Enter):
			if m.selectedLayer < len(m.layers) {
				return m, m.loadLayer(m.selectedLayer)
			}
		}
		return m, nil
	}

	// ── Layer view ──

	if m.view == nil {
		return m, nil
	}

	var err error
	switch {
	case key.Matches(msg, m.keys.Open):
		err = m.view.open()
	case key.Matches(msg, m.keys.Close):
		err = m.view.close()
	case key.Matches(msg, m.keys.Next):
		err = m.view.nextStep()
	case key.Matches(msg, m.keys.Prev):
		err = m.view.prevStep()
	case key.Matches(msg, m.keys.Clear):
		m.view.clear()
	case key.Matches(msg, m.keys.Text):
		m.statusMsg = fmt.Sprintf("labels %s", onOff(m.view.toggleText()))
		return m, nil
	case key.Matches(msg, m.keys.Relation):
		m.statusMsg = fmt.Sprintf("relations %s", onOff(m.view.toggleRelation()))
		return m, nil
	default:
		return m, nil
	}

	m.setResult(err)
	return m, m.animate()
}

// handleMouse hit tests pointer events against the layer canvas.
func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.screen != screenLayer || m.view == nil {
		return m, nil
	}
	col, row := msg.X-canvasLeft, msg.Y-canvasTop

	var err error
	switch {
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		err = m.view.click(col, row)
	case msg.Action == tea.MouseActionMotion:
		err = m.view.move(col, row)
	default:
		return m, nil
	}

	m.setResult(err)
	return m, m.animate()
}

func (m *Model) setResult(err error) {
	m.err = err
	switch {
	case err == nil:
		m.statusMsg = m.modeStatus()
	case errors.Is(err, layer.ErrTransitionInProgress):
		m.err = nil
		m.statusMsg = "transition in progress"
	default:
		m.statusMsg = fmt.Sprintf("Error: %v", err)
	}
}

func (m Model) modeStatus() string {
	if m.view == nil {
		return ""
	}
	s := fmt.Sprintf("%s  %s", m.view.cur.Name, m.view.cur.Mode())
	if act, ok := m.view.currentStep(); ok {
		s += fmt.Sprintf("  step %d (%d/%d)", act.Step, m.view.step+1, m.view.steps())
	}
	return s
}

// ────────────────────────────────────────────────────────────
// View
// ────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	header := renderHeader(&m)
	footer := renderFooter(&m)

	bodyHeight := m.height - lipgloss.Height(header) - lipgloss.Height(footer)

	var body string
	switch m.screen {
	case screenRuns:
		body = renderRunList(&m, bodyHeight)
	case screenLayers:
		body = renderLayerList(&m, bodyHeight)
	default:
		body = m.renderLayerScreen()
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

// layout splits the layer screen. The canvas panel takes the top left,
// channel details the top right, the step strip and step diff the bottom.
func (m Model) layout() (leftWidth, rightWidth, topHeight, bottomHeight int) {
	total := m.height - 1 - lipgloss.Height(renderFooter(&m))
	if m.width < 60 {
		return m.width, 0, total, 0
	}
	leftWidth = m.width * 62 / 100
	rightWidth = m.width - leftWidth
	topHeight = total * 70 / 100
	bottomHeight = total - topHeight
	return
}

// canvasSize is the cell grid available to the canvas panel.
func (m Model) canvasSize() (int, int) {
	left, _, top, _ := m.layout()
	return maxInt(left-2*canvasLeft, 1), maxInt(top-canvasTop, 1)
}

// renderLayerScreen assembles the layer view panels.
func (m Model) renderLayerScreen() string {
	if m.view == nil {
		return ""
	}
	left, right, top, bottom := m.layout()

	canvas := renderCanvasPanel(&m, left, top)
	if right == 0 {
		// Narrow terminal: canvas only.
		return canvas
	}

	detail := renderDetailPanel(&m, right, top)
	topRow := lipgloss.JoinHorizontal(lipgloss.Top, canvas, detail)

	stripHeight := minInt(4, bottom)
	strip := renderTimelinePanel(&m, m.width, stripHeight)
	diff := renderDiffPanel(&m, m.width, bottom-stripHeight)
	return lipgloss.JoinVertical(lipgloss.Left, topRow, strip, diff)
}
