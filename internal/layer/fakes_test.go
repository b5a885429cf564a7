package layer

import (
	"github.com/Mr-Dark-debug/layerlens/internal/channel"
)

// In-memory collaborators. Every node records whether it is attached
// so tests can assert what the scene graph holds.

type fakeNode struct {
	tag      Element
	attached bool
	disposed bool
}

func (n *fakeNode) Tag() Element { return n.tag }

type fakeScene struct {
	nodes map[Node]bool
}

func newFakeScene() *fakeScene { return &fakeScene{nodes: map[Node]bool{}} }

func (s *fakeScene) Add(n Node)    { s.nodes[n] = true }
func (s *fakeScene) Remove(n Node) { delete(s.nodes, n) }

type fakeGroup struct {
	fakeNode
	pos      Vec3
	children []Node
}

func (g *fakeGroup) Add(n Node) {
	g.children = append(g.children, n)
	if fn, ok := n.(*fakeNode); ok {
		fn.attached = true
	}
}

func (g *fakeGroup) Remove(n Node) {
	for i, c := range g.children {
		if c == n {
			g.children = append(g.children[:i], g.children[i+1:]...)
			break
		}
	}
	if fn, ok := n.(*fakeNode); ok {
		fn.attached = false
	}
}

func (g *fakeGroup) Position() Vec3 { return g.pos }

func (g *fakeGroup) count(kind ElementKind) int {
	n := 0
	for _, c := range g.children {
		if c.Tag().Kind == kind {
			n++
		}
	}
	return n
}

type fakeGrid struct {
	node     *fakeNode
	spec     GridSpec
	pos      Vec3
	colors   []float64
	text     bool
	cleared  int
	disposed bool
}

func (g *fakeGrid) Node() Node                 { return g.node }
func (g *fakeGrid) SetLayerIndex(i int)        { g.node.tag.LayerIndex = i }
func (g *fakeGrid) SetGridIndex(i int)         { g.node.tag.GridIndex = i }
func (g *fakeGrid) UpdateVis(colors []float64) { g.colors = append([]float64(nil), colors...) }
func (g *fakeGrid) ShowText()                  { g.text = true }
func (g *fakeGrid) HideText()                  { g.text = false }
func (g *fakeGrid) Clear()                     { g.colors = nil; g.cleared++ }
func (g *fakeGrid) Position() Vec3             { return g.pos }
func (g *fakeGrid) SetPosition(p Vec3)         { g.pos = p }
func (g *fakeGrid) Dispose()                   { g.disposed = true; g.node.disposed = true }

type fakeAgg struct {
	node     *fakeNode
	spec     AggregationSpec
	colors   []float64
	cleared  int
	disposed bool
}

func (a *fakeAgg) Node() Node                 { return a.node }
func (a *fakeAgg) SetLayerIndex(i int)        { a.node.tag.LayerIndex = i }
func (a *fakeAgg) UpdateVis(colors []float64) { a.colors = append([]float64(nil), colors...) }
func (a *fakeAgg) Clear()                     { a.colors = nil; a.cleared++ }
func (a *fakeAgg) Dispose()                   { a.disposed = true; a.node.disposed = true }

type fakeButton struct {
	node     *fakeNode
	size     float64
	pos      Vec3
	disposed bool
}

func (b *fakeButton) Node() Node          { return b.node }
func (b *fakeButton) SetLayerIndex(i int) { b.node.tag.LayerIndex = i }
func (b *fakeButton) Dispose()            { b.disposed = true; b.node.disposed = true }

type fakeFactory struct {
	groups  []*fakeGroup
	grids   []*fakeGrid
	aggs    []*fakeAgg
	buttons []*fakeButton
}

func (f *fakeFactory) NewGroup(p Vec3) Group {
	g := &fakeGroup{pos: p}
	f.groups = append(f.groups, g)
	return g
}

func (f *fakeFactory) NewGridLine(spec GridSpec) GridElement {
	g := &fakeGrid{node: &fakeNode{tag: Element{Kind: KindGridLine}}, spec: spec, pos: spec.Center}
	f.grids = append(f.grids, g)
	return g
}

func (f *fakeFactory) NewAggregation(spec AggregationSpec) AggregationElement {
	a := &fakeAgg{node: &fakeNode{tag: Element{Kind: KindAggregation}}, spec: spec}
	f.aggs = append(f.aggs, a)
	return a
}

func (f *fakeFactory) NewCloseButton(size float64, p Vec3) CloseButton {
	b := &fakeButton{node: &fakeNode{tag: Element{Kind: KindCloseButton}}, size: size, pos: p}
	f.buttons = append(f.buttons, b)
	return b
}

// immediateAnimator snaps elements to their targets and finishes
// synchronously.
type immediateAnimator struct {
	opens, closes int
}

func (a *immediateAnimator) OpenLayer(t Transition)  { a.opens++; finish(t) }
func (a *immediateAnimator) CloseLayer(t Transition) { a.closes++; finish(t) }

func finish(t Transition) {
	for i, e := range t.Elements {
		e.SetPosition(t.To[i])
	}
	t.Done()
}

// heldAnimator keeps the transition pending until the test releases it.
type heldAnimator struct {
	pending *Transition
}

func (a *heldAnimator) OpenLayer(t Transition)  { a.pending = &t }
func (a *heldAnimator) CloseLayer(t Transition) { a.pending = &t }

func (a *heldAnimator) release() {
	t := a.pending
	a.pending = nil
	finish(*t)
}

// rawPipeline reorders and reduces like the real pipeline but passes
// values through as colors, which keeps expected slices readable.
type rawPipeline struct {
	channel.Pipeline
}

func (rawPipeline) ValuesToColors(v []float64) []float64 {
	return append([]float64(nil), v...)
}

type fakeOverlay struct {
	source  Element
	targets []Node
	shown   bool
}

func (o *fakeOverlay) Show(src Element, targets []Node) {
	o.source, o.targets, o.shown = src, targets, true
}

func (o *fakeOverlay) Hide() { o.shown = false; o.targets = nil }

type fixture struct {
	scene    *fakeScene
	factory  *fakeFactory
	animator Animator
	overlay  *fakeOverlay
	layer    *Layer2d
}

func boolPtr(b bool) *bool { return &b }

// newFixture returns an initialized layer of depth x width.
func newFixture(width, depth int, open bool, anim Animator) *fixture {
	if anim == nil {
		anim = &immediateAnimator{}
	}
	f := &fixture{
		scene:    newFakeScene(),
		factory:  &fakeFactory{},
		animator: anim,
		overlay:  &fakeOverlay{},
	}
	f.layer = NewLayer2d(Deps{
		Scene:    f.scene,
		Factory:  f.factory,
		Animator: anim,
		Pipeline: rawPipeline{},
		Overlay:  f.overlay,
	})
	f.layer.LoadLayerConfig(LayerConfig{Name: "conv1d", Width: width, Depth: depth, Open: boolPtr(open)})
	if err := f.layer.Assemble(1); err != nil {
		panic(err)
	}
	if err := f.layer.Init(Vec3{}, 10, Vec3{}); err != nil {
		panic(err)
	}
	return f
}

func (f *fixture) group() *fakeGroup { return f.factory.groups[0] }
