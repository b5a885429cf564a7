package scene

import (
	"github.com/lucasb-eyer/go-colorful"
)

// Palette holds the colors the canvas paints with. Cell colors ramp
// from Background to the layer color in Lab space.
type Palette struct {
	Background colorful.Color
	Empty      colorful.Color
	Button     colorful.Color
	Label      colorful.Color
	Highlight  colorful.Color
	Layer      colorful.Color // used when a layer color does not parse
}

// DefaultPalette matches the viewer's dark theme.
func DefaultPalette() Palette {
	return Palette{
		Background: mustHex("#161b22"),
		Empty:      mustHex("#30363d"),
		Button:     mustHex("#f85149"),
		Label:      mustHex("#e6edf3"),
		Highlight:  mustHex("#1f6feb"),
		Layer:      mustHex("#58a6ff"),
	}
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// LayerColor parses a "#rrggbb" layer color, falling back to p.Layer.
func (p Palette) LayerColor(hex string) colorful.Color {
	if c, err := colorful.Hex(hex); err == nil {
		return c
	}
	return p.Layer
}

// Ramp maps a normalised value onto the background-to-target ramp.
func (p Palette) Ramp(target colorful.Color, v float64) colorful.Color {
	switch {
	case v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	return p.Background.BlendLab(target, v).Clamped()
}

// row returns one color per cell. Missing values paint as Empty.
func (p Palette) row(n int, values []float64, target colorful.Color) []colorful.Color {
	out := make([]colorful.Color, n)
	for i := range out {
		if i < len(values) {
			out[i] = p.Ramp(target, values[i])
		} else {
			out[i] = p.Empty
		}
	}
	return out
}
