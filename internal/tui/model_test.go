package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mr-Dark-debug/layerlens/internal/config"
	"github.com/Mr-Dark-debug/layerlens/internal/database"
	"github.com/Mr-Dark-debug/layerlens/internal/layer"
)

// seedStore holds one run with two width-2 depth-3 layers and three
// recorded steps each.
func seedStore(t *testing.T) *database.DBService {
	t.Helper()
	svc, err := database.NewDBService(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	require.NoError(t, svc.InsertRun(&database.Run{RunID: "run-1", ModelName: "conv-net", Status: "completed", StartedAt: 1}))
	for i, id := range []string{"l0", "l1"} {
		require.NoError(t, svc.InsertLayer(&database.LayerInfo{
			LayerID: id, RunID: "run-1", LayerIndex: i, Name: "conv1d_" + id, Kind: "conv1d", Width: 2, Depth: 3,
		}))
		for s := 0; s < 3; s++ {
			v := float64(s + 1)
			vals := []float64{v, 0, 2 * v, v, 0, 2 * v}
			require.NoError(t, svc.InsertActivation(&database.Activation{LayerID: id, Step: s, Values: vals}))
		}
	}
	return svc
}

func press(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// step feeds msg to the model and, when the model answers with a
// loader command, feeds the loaded result back in as well.
func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func load(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	m, _ = step(t, m, cmd())
	require.NoError(t, m.err)
	return m
}

// openLayerScreen walks from the run list to the second layer.
func openLayerScreen(t *testing.T) Model {
	t.Helper()
	m := NewModel(seedStore(t), nil)
	m, _ = step(t, m, tea.WindowSizeMsg{Width: 140, Height: 48})
	m = load(t, m, m.Init())
	require.Len(t, m.runs, 1)

	m, cmd := step(t, m, press("enter"))
	m = load(t, m, cmd)
	require.Equal(t, screenLayers, m.screen)
	require.Len(t, m.layers, 2)

	m, _ = step(t, m, press("down"))
	assert.Equal(t, 1, m.selectedLayer)
	m, cmd = step(t, m, press("enter"))
	m = load(t, m, cmd)
	require.Equal(t, screenLayer, m.screen)
	require.NotNil(t, m.view)
	return m
}

func TestNavigation(t *testing.T) {
	m := openLayerScreen(t)

	assert.NotNil(t, m.view.prev, "the layer before the selected one is shown above it")
	assert.Equal(t, layer.Closed, m.view.cur.Mode())
	assert.Contains(t, m.View(), "LAYERLENS")
	assert.Contains(t, m.View(), "conv1d_l1")

	m, _ = step(t, m, press("esc"))
	assert.Equal(t, screenLayers, m.screen)
	assert.Nil(t, m.view)

	m, _ = step(t, m, press("esc"))
	assert.Equal(t, screenRuns, m.screen)
	assert.Nil(t, m.currentRun)
}

func TestOpenAnimatesToOpen(t *testing.T) {
	m := openLayerScreen(t)

	m, cmd := step(t, m, press("o"))
	require.NotNil(t, cmd, "opening starts the frame ticker")
	assert.True(t, m.ticking)
	assert.Equal(t, layer.Opening, m.view.cur.Mode())

	m, _ = step(t, m, press("c"))
	assert.Equal(t, "transition in progress", m.statusMsg)
	assert.NoError(t, m.err)

	m, cmd = step(t, m, tickMsg(m.lastTick.Add(time.Second)))
	assert.Nil(t, cmd)
	assert.False(t, m.ticking)
	assert.True(t, m.view.cur.IsOpen())
	assert.Len(t, m.view.cur.GridElements(), 3)
	assert.True(t, strings.HasPrefix(m.statusMsg, "conv1d_l1  open"))
}

func TestStepping(t *testing.T) {
	m := openLayerScreen(t)
	assert.Equal(t, []float64{1, 0, 2, 1, 0, 2}, m.view.cur.Value())

	_, ok := m.view.previousValues()
	assert.False(t, ok)

	m, _ = step(t, m, press("n"))
	assert.Equal(t, 1, m.view.step)
	assert.Equal(t, []float64{2, 0, 4, 2, 0, 4}, m.view.cur.Value())
	assert.Equal(t, []float64{2, 0, 4, 2, 0, 4}, m.view.prev.Value(), "the layer above follows the step")
	prev, ok := m.view.previousValues()
	require.True(t, ok)
	assert.Equal(t, []float64{1, 0, 2, 1, 0, 2}, prev)
	assert.Contains(t, m.View(), "Step Diff")

	m, _ = step(t, m, press("n"))
	m, _ = step(t, m, press("n"))
	assert.Equal(t, 2, m.view.step, "stepping stops at the last step")

	m, _ = step(t, m, press("p"))
	assert.Equal(t, 1, m.view.step)

	m, _ = step(t, m, press("x"))
	assert.Nil(t, m.view.cur.Value())
}

func TestToggles(t *testing.T) {
	m := openLayerScreen(t)
	text := m.view.cur.TextSystem

	m, _ = step(t, m, press("t"))
	assert.Equal(t, !text, m.view.cur.TextSystem)
	assert.Equal(t, "labels "+onOff(!text), m.statusMsg)

	rel := m.view.cur.RelationSystem
	m, _ = step(t, m, press("r"))
	assert.Equal(t, !rel, m.view.cur.RelationSystem)
}

// findCell scans the canvas for the first cell drawing an element of kind.
func findCell(v *layerView, kind layer.ElementKind, layerIndex int) (int, int, bool) {
	v.canvas.Draw(v.scene)
	w, h := v.canvas.Width, v.canvas.Height
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			if el, ok := v.canvas.HitTest(col, row); ok && el.Kind == kind && el.LayerIndex == layerIndex {
				return col, row, true
			}
		}
	}
	return 0, 0, false
}

// findEmpty returns a canvas cell that no element paints.
func findEmpty(t *testing.T, v *layerView) (int, int) {
	t.Helper()
	v.canvas.Draw(v.scene)
	for row := 0; row < v.canvas.Height; row++ {
		for col := 0; col < v.canvas.Width; col++ {
			if _, ok := v.canvas.HitTest(col, row); !ok {
				return col, row
			}
		}
	}
	t.Fatal("canvas has no empty cell")
	return 0, 0
}

func testData() layerData {
	info := &database.LayerInfo{LayerID: "l", Name: "dense", LayerIndex: 0, Width: 4, Depth: 3}
	return layerData{info: info, acts: []*database.Activation{
		{Step: 0, Values: make([]float64, 12)},
	}}
}

func TestLayerViewClickOpenClose(t *testing.T) {
	v, err := newLayerView(config.DefaultConfig(), testData(), nil, 90, 24)
	require.NoError(t, err)
	defer v.dispose()

	col, row, ok := findCell(v, layer.KindAggregation, 0)
	require.True(t, ok, "closed layer draws its aggregation row")
	require.NoError(t, v.click(col, row))
	assert.Equal(t, layer.Opening, v.cur.Mode())
	assert.ErrorIs(t, v.click(col, row), layer.ErrTransitionInProgress)

	assert.False(t, v.advance(time.Second))
	require.True(t, v.cur.IsOpen())

	col, row, ok = findCell(v, layer.KindCloseButton, 0)
	require.True(t, ok, "open layer draws a close button")
	require.NoError(t, v.click(col, row))
	assert.Equal(t, layer.Closing, v.cur.Mode())
	v.advance(time.Second)
	assert.Equal(t, layer.Closed, v.cur.Mode())

	// Empty space is ignored.
	require.NoError(t, v.click(findEmpty(t, v)))
	assert.Equal(t, layer.Closed, v.cur.Mode())
}

func TestLayerViewHover(t *testing.T) {
	v, err := newLayerView(config.DefaultConfig(), testData(), nil, 90, 24)
	require.NoError(t, err)
	defer v.dispose()
	v.cur.TextSystem = true
	v.cur.RelationSystem = false

	require.NoError(t, v.open())
	v.advance(time.Second)

	col, row, ok := findCell(v, layer.KindGridLine, 0)
	require.True(t, ok)
	require.NoError(t, v.move(col, row))
	assert.True(t, v.hovered)
	_, shown := v.cur.ActiveLabel()
	assert.True(t, shown, "hovering a grid line shows its label")

	require.NoError(t, v.move(findEmpty(t, v)))
	assert.False(t, v.hovered)
	_, shown = v.cur.ActiveLabel()
	assert.False(t, shown)
}

func TestLayerViewShapeMismatch(t *testing.T) {
	data := testData()
	data.acts[0].Values = []float64{1, 2, 3}
	v, err := newLayerView(config.DefaultConfig(), data, nil, 90, 24)
	require.NotNil(t, v, "the view is still usable")
	assert.ErrorIs(t, err, layer.ErrShapeMismatch)
	assert.Nil(t, v.cur.Value())
}
