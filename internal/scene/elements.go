package scene

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/Mr-Dark-debug/layerlens/internal/layer"
)

const (
	glyphGrid        = '█'
	glyphAggregation = '▓'
	glyphButton      = '✕'
)

// ────────────────────────────────────────────────────────────
// GridLine
// ────────────────────────────────────────────────────────────

// GridLine draws one channel as a row of width cells.
type GridLine struct {
	obj      *Object
	spec     layer.GridSpec
	palette  Palette
	color    colorful.Color
	colors   []float64
	text     bool
	disposed bool
}

var _ layer.GridElement = (*GridLine)(nil)

func (g *GridLine) Node() layer.Node           { return g.obj }
func (g *GridLine) SetLayerIndex(i int)        { g.obj.tag.LayerIndex = i }
func (g *GridLine) SetGridIndex(i int)         { g.obj.tag.GridIndex = i }
func (g *GridLine) ShowText()                  { g.text = true }
func (g *GridLine) HideText()                  { g.text = false }
func (g *GridLine) Clear()                     { g.colors = nil }
func (g *GridLine) Position() layer.Vec3       { return g.obj.pos }
func (g *GridLine) SetPosition(p layer.Vec3)   { g.obj.pos = p }
func (g *GridLine) UpdateVis(colors []float64) { g.colors = append([]float64(nil), colors...) }

// Colors returns the color stops last pushed to the line.
func (g *GridLine) Colors() []float64 { return append([]float64(nil), g.colors...) }

func (g *GridLine) TextVisible() bool { return g.text }
func (g *GridLine) Disposed() bool    { return g.disposed }

// Dispose detaches the line. A disposed line never paints again.
func (g *GridLine) Dispose() {
	if g.obj.parent != nil {
		g.obj.parent.remove(g.obj)
	}
	g.disposed = true
}

func (g *GridLine) label() string {
	return fmt.Sprintf("ch %d", g.obj.tag.GridIndex)
}

func (g *GridLine) paint(p *pen, at layer.Vec3, o *Object) {
	if g.disposed {
		return
	}
	half := g.spec.DisplayWidth / 2
	p.add(stroke{
		x0:        at.X - half,
		x1:        at.X + half,
		z:         at.Z,
		glyph:     glyphGrid,
		colors:    g.palette.row(g.spec.Width, g.colors, g.color),
		tag:       o.tag,
		tagged:    true,
		highlight: o.highlight,
	})
	if g.text {
		p.add(stroke{
			x0:    at.X + half,
			x1:    at.X + half,
			z:     at.Z,
			label: g.label(),
			fg:    g.palette.Label,
			tag:   o.tag,
		})
	}
}

// ────────────────────────────────────────────────────────────
// GridAggregation
// ────────────────────────────────────────────────────────────

// GridAggregation draws the reduced row that stands in for every
// channel while a layer is closed.
type GridAggregation struct {
	obj      *Object
	spec     layer.AggregationSpec
	palette  Palette
	color    colorful.Color
	colors   []float64
	disposed bool
}

var _ layer.AggregationElement = (*GridAggregation)(nil)

func (a *GridAggregation) Node() layer.Node           { return a.obj }
func (a *GridAggregation) SetLayerIndex(i int)        { a.obj.tag.LayerIndex = i }
func (a *GridAggregation) Clear()                     { a.colors = nil }
func (a *GridAggregation) UpdateVis(colors []float64) { a.colors = append([]float64(nil), colors...) }
func (a *GridAggregation) Colors() []float64          { return append([]float64(nil), a.colors...) }
func (a *GridAggregation) Disposed() bool             { return a.disposed }

func (a *GridAggregation) Dispose() {
	if a.obj.parent != nil {
		a.obj.parent.remove(a.obj)
	}
	a.disposed = true
}

func (a *GridAggregation) paint(p *pen, at layer.Vec3, o *Object) {
	if a.disposed {
		return
	}
	half := a.spec.DisplayWidth / 2
	p.add(stroke{
		x0:        at.X - half,
		x1:        at.X + half,
		z:         at.Z,
		glyph:     glyphAggregation,
		colors:    a.palette.row(a.spec.Width, a.colors, a.color),
		tag:       o.tag,
		tagged:    true,
		highlight: o.highlight,
	})
}

// ────────────────────────────────────────────────────────────
// CloseButton
// ────────────────────────────────────────────────────────────

type CloseButton struct {
	obj      *Object
	size     float64
	palette  Palette
	disposed bool
}

var _ layer.CloseButton = (*CloseButton)(nil)

func (b *CloseButton) Node() layer.Node    { return b.obj }
func (b *CloseButton) SetLayerIndex(i int) { b.obj.tag.LayerIndex = i }
func (b *CloseButton) Size() float64       { return b.size }
func (b *CloseButton) Disposed() bool      { return b.disposed }

func (b *CloseButton) Dispose() {
	if b.obj.parent != nil {
		b.obj.parent.remove(b.obj)
	}
	b.disposed = true
}

func (b *CloseButton) paint(p *pen, at layer.Vec3, o *Object) {
	if b.disposed {
		return
	}
	p.add(stroke{
		x0:     at.X,
		x1:     at.X,
		z:      at.Z,
		glyph:  glyphButton,
		fg:     b.palette.Button,
		tag:    o.tag,
		tagged: true,
	})
}

// ────────────────────────────────────────────────────────────
// Factory
// ────────────────────────────────────────────────────────────

// Factory builds scene-backed layer elements.
type Factory struct {
	Palette Palette
}

var _ layer.Factory = (*Factory)(nil)

func NewFactory(p Palette) *Factory {
	return &Factory{Palette: p}
}

func (f *Factory) NewGroup(pos layer.Vec3) layer.Group {
	return NewGroup(pos)
}

func (f *Factory) NewGridLine(spec layer.GridSpec) layer.GridElement {
	g := &GridLine{
		obj:     newObject(layer.Element{Kind: layer.KindGridLine}, spec.Center),
		spec:    spec,
		palette: f.Palette,
		color:   f.Palette.LayerColor(spec.Color),
	}
	g.obj.painter = g
	return g
}

func (f *Factory) NewAggregation(spec layer.AggregationSpec) layer.AggregationElement {
	a := &GridAggregation{
		obj:     newObject(layer.Element{Kind: layer.KindAggregation}, layer.Vec3{}),
		spec:    spec,
		palette: f.Palette,
		color:   f.Palette.LayerColor(spec.Color),
	}
	a.obj.painter = a
	return a
}

func (f *Factory) NewCloseButton(size float64, pos layer.Vec3) layer.CloseButton {
	b := &CloseButton{
		obj:     newObject(layer.Element{Kind: layer.KindCloseButton}, pos),
		size:    size,
		palette: f.Palette,
	}
	b.obj.painter = b
	return b
}
