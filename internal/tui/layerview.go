package tui

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/Mr-Dark-debug/layerlens/internal/animation"
	"github.com/Mr-Dark-debug/layerlens/internal/channel"
	"github.com/Mr-Dark-debug/layerlens/internal/config"
	"github.com/Mr-Dark-debug/layerlens/internal/database"
	"github.com/Mr-Dark-debug/layerlens/internal/layer"
	"github.com/Mr-Dark-debug/layerlens/internal/scene"
)

// minDisplayWidth keeps narrow layers from collapsing to a few columns
// next to the close button.
const minDisplayWidth = 64

// layerData is everything loaded from the store for one layer.
type layerData struct {
	info *database.LayerInfo
	acts []*database.Activation
}

// layerView owns the scene for the layer screen: the selected layer,
// optionally its predecessor drawn above it, and the animator that
// moves both.
type layerView struct {
	cfg *config.Config

	scene    *scene.Scene
	canvas   *scene.Canvas
	anim     *animation.QueueTween
	relation *scene.RelationLines

	cur, prev         *layer.Layer2d
	curData, prevData layerData
	prevByStep        map[int][]float64

	step      int // index into curData.acts
	stepMeans []float64

	hover   layer.Element
	hovered bool
}

func newLayerView(cfg *config.Config, cur layerData, prev *layerData, width, height int) (*layerView, error) {
	palette := scene.DefaultPalette()
	v := &layerView{
		cfg:      cfg,
		scene:    scene.NewScene(),
		canvas:   scene.NewCanvas(width, height, palette),
		anim:     animation.NewQueueTween(cfg.TransitionDuration()),
		relation: scene.NewRelationLines(),
		curData:  cur,
	}
	factory := scene.NewFactory(palette)

	var err error
	v.cur, err = v.buildLayer(factory, cur.info)
	if err != nil {
		return nil, err
	}

	if prev != nil {
		v.prevData = *prev
		v.prev, err = v.buildLayer(factory, prev.info)
		if err != nil {
			return nil, err
		}
		v.prevByStep = make(map[int][]float64, len(prev.acts))
		for _, a := range prev.acts {
			v.prevByStep[a.Step] = a.Values
		}
		v.cur.Prev = v.prev
	}

	// The current layer sits at the origin; the previous one above it.
	if v.prev != nil {
		gap := v.cur.UnitLength * v.cur.OpenGapFactor
		top := minZ(v.cur.OpenCenters()) - 2*gap
		prevCenter := layer.Vec3{Z: top - maxZ(v.prev.OpenCenters())}
		if err := v.prev.Init(prevCenter, 1, prevCenter); err != nil {
			return nil, err
		}
	}
	if err := v.cur.Init(layer.Vec3{}, 1, layer.Vec3{}); err != nil {
		return nil, err
	}

	v.stepMeans = make([]float64, len(cur.acts))
	for i, a := range cur.acts {
		if len(a.Values) > 0 {
			v.stepMeans[i] = floats.Sum(a.Values) / float64(len(a.Values))
		}
	}

	v.fitBounds()
	if len(cur.acts) > 0 {
		if err := v.setStep(0); err != nil {
			return v, err
		}
	}
	return v, nil
}

// buildLayer configures a Layer2d from its stored shape, the model
// defaults and any per-layer override.
func (v *layerView) buildLayer(f *scene.Factory, info *database.LayerInfo) (*layer.Layer2d, error) {
	l := layer.NewLayer2d(layer.Deps{
		Scene:    v.scene,
		Factory:  f,
		Animator: v.anim,
		Pipeline: channel.Pipeline{},
		Overlay:  v.relation,
	})

	lc := layer.LayerConfig{
		Name:  info.Name,
		Width: info.Width,
		Depth: info.Depth,
		Color: info.Color,
	}
	if info.Width > 0 && v.cfg.Model.UnitLength*float64(info.Width) < minDisplayWidth {
		lc.UnitLength = minDisplayWidth / float64(info.Width)
	}
	lc = v.cfg.LayerOverride(info.Name, lc)

	l.LoadLayerConfig(lc)
	l.LoadModelConfig(v.cfg.Model)
	if err := l.Assemble(info.LayerIndex); err != nil {
		return nil, err
	}
	return l, nil
}

// fitBounds fixes the canvas window to the open extents so elements
// move across a stable grid while animating.
func (v *layerView) fitBounds() {
	var b scene.Bounds
	include := func(l *layer.Layer2d, open bool) {
		half := l.DisplayWidth() / 2
		zs := []layer.Vec3{{}}
		if open {
			zs = l.OpenCenters()
		}
		for _, z := range zs {
			b = b.Include(l.Center.Add(layer.Vec3{X: -half, Z: z.Z}))
			b = b.Include(l.Center.Add(layer.Vec3{X: half, Z: z.Z}))
		}
		if l.Depth() > 1 {
			b = b.Include(l.Center.Add(l.CloseButtonPosition()))
		}
	}
	include(v.cur, true)
	if v.prev != nil {
		include(v.prev, v.prev.IsOpen())
	}
	v.canvas.Bounds = b
}

func minZ(vs []layer.Vec3) float64 {
	m := math.Inf(1)
	for _, p := range vs {
		m = math.Min(m, p.Z)
	}
	if math.IsInf(m, 1) {
		return 0
	}
	return m
}

func maxZ(vs []layer.Vec3) float64 {
	m := math.Inf(-1)
	for _, p := range vs {
		m = math.Max(m, p.Z)
	}
	if math.IsInf(m, -1) {
		return 0
	}
	return m
}

// ────────────────────────────────────────────────────────────
// Steps
// ────────────────────────────────────────────────────────────

func (v *layerView) steps() int { return len(v.curData.acts) }

func (v *layerView) currentStep() (*database.Activation, bool) {
	if v.step < 0 || v.step >= v.steps() {
		return nil, false
	}
	return v.curData.acts[v.step], true
}

// setStep pushes the activation at index i to the current layer and
// the same recorded step, if any, to the previous layer.
func (v *layerView) setStep(i int) error {
	if i < 0 || i >= v.steps() {
		return nil
	}
	v.step = i
	act := v.curData.acts[i]

	var errs []error
	if err := v.cur.UpdateValue(act.Values); err != nil {
		errs = append(errs, fmt.Errorf("step %d: %w", act.Step, err))
	}
	if v.prev != nil {
		if vals, ok := v.prevByStep[act.Step]; ok {
			if err := v.prev.UpdateValue(vals); err != nil {
				errs = append(errs, fmt.Errorf("previous layer step %d: %w", act.Step, err))
			}
		} else {
			v.prev.Clear()
		}
	}
	return errors.Join(errs...)
}

func (v *layerView) nextStep() error { return v.setStep(v.step + 1) }
func (v *layerView) prevStep() error { return v.setStep(v.step - 1) }

// previousValues returns the activation one step before the current one.
func (v *layerView) previousValues() ([]float64, bool) {
	if v.step <= 0 || v.step >= v.steps() {
		return nil, false
	}
	return v.curData.acts[v.step-1].Values, true
}

// ────────────────────────────────────────────────────────────
// Actions
// ────────────────────────────────────────────────────────────

func (v *layerView) open() error {
	_, err := v.cur.OpenLayer()
	return err
}

func (v *layerView) close() error {
	_, err := v.cur.CloseLayer()
	return err
}

func (v *layerView) clear() {
	v.cur.Clear()
	if v.prev != nil {
		v.prev.Clear()
	}
}

// toggleText flips label display on the current layer.
func (v *layerView) toggleText() bool {
	v.cur.TextSystem = !v.cur.TextSystem
	if !v.cur.TextSystem {
		v.cur.HideText()
	}
	return v.cur.TextSystem
}

// toggleRelation flips the relation overlay on the current layer.
func (v *layerView) toggleRelation() bool {
	v.cur.RelationSystem = !v.cur.RelationSystem
	if !v.cur.RelationSystem {
		v.relation.Hide()
	}
	return v.cur.RelationSystem
}

func (v *layerView) layerFor(el layer.Element) *layer.Layer2d {
	if el.LayerIndex == v.cur.LayerIndex {
		return v.cur
	}
	if v.prev != nil && el.LayerIndex == v.prev.LayerIndex {
		return v.prev
	}
	return nil
}

// click routes a click at canvas cell (col,row) to the layer that owns
// the element drawn there. Clicking empty space does nothing.
func (v *layerView) click(col, row int) error {
	v.canvas.Draw(v.scene)
	el, ok := v.canvas.HitTest(col, row)
	if !ok {
		return nil
	}
	l := v.layerFor(el)
	if l == nil {
		return nil
	}
	return l.HandleClick(el)
}

// move updates the hover state for the cell under the pointer.
func (v *layerView) move(col, row int) error {
	v.canvas.Draw(v.scene)
	el, ok := v.canvas.HitTest(col, row)
	if ok && v.hovered && el == v.hover {
		return nil
	}
	if v.hovered {
		if l := v.layerFor(v.hover); l != nil {
			l.HandleHoverOut()
		}
		v.hovered = false
	}
	if !ok {
		return nil
	}
	l := v.layerFor(el)
	if l == nil {
		return nil
	}
	v.hover, v.hovered = el, true
	return l.HandleHoverIn(el)
}

// advance moves running transitions forward and reports whether more
// frames are needed.
func (v *layerView) advance(dt time.Duration) bool {
	v.anim.Advance(dt)
	return v.anim.Busy()
}

func (v *layerView) busy() bool { return v.anim.Busy() }

func (v *layerView) resize(width, height int) {
	v.canvas.Resize(width, height)
}

func (v *layerView) render() string {
	v.canvas.Draw(v.scene)
	return v.canvas.Render()
}

func (v *layerView) dispose() {
	v.anim.Flush()
	v.cur.Dispose()
	if v.prev != nil {
		v.prev.Dispose()
	}
}
