package scene

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/Mr-Dark-debug/layerlens/internal/layer"
)

// stroke is one painted primitive in world space. Strokes with colors
// spread them evenly over [x0,x1]; strokes with a label write text
// starting one column right of x1; anything else draws glyph at x0.
type stroke struct {
	x0, x1    float64
	z         float64
	glyph     rune
	colors    []colorful.Color
	fg        colorful.Color
	label     string
	tag       layer.Element
	tagged    bool
	highlight bool
}

type pen struct {
	strokes []stroke
}

func (p *pen) add(s stroke) { p.strokes = append(p.strokes, s) }

type cell struct {
	ch        rune
	fg        colorful.Color
	highlight bool
	tag       layer.Element
	tagged    bool
}

// Bounds is the world-space window mapped onto the canvas. X runs
// along columns and Z along rows.
type Bounds struct {
	MinX, MaxX float64
	MinZ, MaxZ float64

	// set marks a window grown by Include, which may be the origin alone.
	set bool
}

// IsZero reports whether b is unset.
func (b Bounds) IsZero() bool { return !b.set && b == Bounds{} }

// Include grows b to cover p.
func (b Bounds) Include(p layer.Vec3) Bounds {
	if b.IsZero() {
		return Bounds{MinX: p.X, MaxX: p.X, MinZ: p.Z, MaxZ: p.Z, set: true}
	}
	b.MinX = math.Min(b.MinX, p.X)
	b.MaxX = math.Max(b.MaxX, p.X)
	b.MinZ = math.Min(b.MinZ, p.Z)
	b.MaxZ = math.Max(b.MaxZ, p.Z)
	return b
}

// Canvas rasterises a Scene into a Width x Height cell grid. Each cell
// remembers the element that painted it so mouse events can be mapped
// back to layer elements.
type Canvas struct {
	Width, Height int
	// Bounds fixes the world window. Left zero, Draw fits the content.
	Bounds Bounds
	// LabelMargin columns on the right are kept free for labels.
	LabelMargin int
	Palette     Palette

	cells  [][]cell
	fitted Bounds
}

func NewCanvas(width, height int, p Palette) *Canvas {
	c := &Canvas{LabelMargin: 8, Palette: p}
	c.Resize(width, height)
	return c
}

// Resize changes the cell grid. The next Draw repaints it.
func (c *Canvas) Resize(width, height int) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	c.Width, c.Height = width, height
	c.cells = make([][]cell, height)
	for r := range c.cells {
		c.cells[r] = make([]cell, width)
	}
}

func (c *Canvas) reset() {
	for r := range c.cells {
		for k := range c.cells[r] {
			c.cells[r][k] = cell{}
		}
	}
}

// Draw repaints the canvas from every object reachable from the scene
// root. Later siblings paint over earlier ones.
func (c *Canvas) Draw(s *Scene) {
	c.reset()

	var p pen
	var walk func(o *Object, origin layer.Vec3)
	walk = func(o *Object, origin layer.Vec3) {
		at := origin.Add(o.pos)
		if o.painter != nil {
			o.painter.paint(&p, at, o)
		}
		for _, ch := range o.children {
			walk(ch, at)
		}
	}
	walk(s.root, layer.Vec3{})

	b := c.Bounds
	if b.IsZero() {
		for _, st := range p.strokes {
			b = b.Include(layer.Vec3{X: st.x0, Z: st.z})
			b = b.Include(layer.Vec3{X: st.x1, Z: st.z})
		}
	}
	c.fitted = b

	for _, st := range p.strokes {
		c.rasterise(st, b)
	}
}

func (c *Canvas) usableWidth() int {
	w := c.Width - c.LabelMargin
	if w < 1 {
		w = 1
	}
	return w
}

func scale(v, lo, hi float64, n int) int {
	if n <= 1 {
		return 0
	}
	if hi <= lo {
		return n / 2
	}
	return int(math.Round((v - lo) / (hi - lo) * float64(n-1)))
}

// Column maps a world X onto a canvas column, unclamped.
func (c *Canvas) Column(x float64) int {
	return scale(x, c.fitted.MinX, c.fitted.MaxX, c.usableWidth())
}

// Row maps a world Z onto a canvas row, unclamped.
func (c *Canvas) Row(z float64) int {
	return scale(z, c.fitted.MinZ, c.fitted.MaxZ, c.Height)
}

func (c *Canvas) set(col, row int, cl cell) {
	if row < 0 || row >= c.Height || col < 0 || col >= c.Width {
		return
	}
	c.cells[row][col] = cl
}

func (c *Canvas) rasterise(st stroke, b Bounds) {
	uw := c.usableWidth()
	row := scale(st.z, b.MinZ, b.MaxZ, c.Height)
	c0 := scale(st.x0, b.MinX, b.MaxX, uw)
	c1 := scale(st.x1, b.MinX, b.MaxX, uw)

	switch {
	case st.label != "":
		col := c1 + 1
		for _, r := range st.label {
			c.set(col, row, cell{ch: r, fg: st.fg, tag: st.tag, tagged: st.tagged})
			col++
		}
	case len(st.colors) > 0:
		span := c1 - c0 + 1
		for k := c0; k <= c1; k++ {
			idx := (k - c0) * len(st.colors) / span
			c.set(k, row, cell{
				ch:        st.glyph,
				fg:        st.colors[idx],
				highlight: st.highlight,
				tag:       st.tag,
				tagged:    st.tagged,
			})
		}
	default:
		c.set(c0, row, cell{ch: st.glyph, fg: st.fg, highlight: st.highlight, tag: st.tag, tagged: st.tagged})
	}
}

// HitTest returns the element painted at (col,row).
func (c *Canvas) HitTest(col, row int) (layer.Element, bool) {
	if row < 0 || row >= c.Height || col < 0 || col >= c.Width {
		return layer.Element{}, false
	}
	cl := c.cells[row][col]
	return cl.tag, cl.tagged
}

// Render returns the canvas as Height lines of styled text.
func (c *Canvas) Render() string {
	lines := make([]string, c.Height)
	for r, row := range c.cells {
		lines[r] = c.renderRow(row)
	}
	return strings.Join(lines, "\n")
}

func (c *Canvas) renderRow(row []cell) string {
	var b strings.Builder
	var run strings.Builder
	var cur cell

	flush := func() {
		if run.Len() == 0 {
			return
		}
		b.WriteString(c.style(cur).Render(run.String()))
		run.Reset()
	}

	for i, cl := range row {
		if cl.ch == 0 {
			cl.ch = ' '
		}
		if i > 0 && (cl.fg != cur.fg || cl.highlight != cur.highlight) {
			flush()
		}
		cur = cl
		run.WriteRune(cl.ch)
	}
	flush()
	return b.String()
}

func (c *Canvas) style(cl cell) lipgloss.Style {
	st := lipgloss.NewStyle()
	if cl.fg != (colorful.Color{}) {
		st = st.Foreground(lipgloss.Color(cl.fg.Hex()))
	}
	if cl.highlight {
		st = st.Background(lipgloss.Color(c.Palette.Highlight.Hex())).Bold(true)
	}
	return st
}
