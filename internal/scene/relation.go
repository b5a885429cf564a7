package scene

import (
	"github.com/Mr-Dark-debug/layerlens/internal/layer"
)

// RelationLines highlights the previous layer's elements while an
// element of the following layer is hovered.
type RelationLines struct {
	source  layer.Element
	targets []*Object
	active  bool
}

var _ layer.RelationOverlay = (*RelationLines)(nil)

func NewRelationLines() *RelationLines { return &RelationLines{} }

// Show replaces any current highlight. Targets that are not scene
// objects are skipped.
func (r *RelationLines) Show(source layer.Element, targets []layer.Node) {
	r.Hide()
	for _, n := range targets {
		if o, ok := objectOf(n); ok {
			o.highlight = true
			r.targets = append(r.targets, o)
		}
	}
	r.source = source
	r.active = true
}

func (r *RelationLines) Hide() {
	for _, o := range r.targets {
		o.highlight = false
	}
	r.targets = nil
	r.active = false
}

// Active returns the hovered source and how many targets are lit.
func (r *RelationLines) Active() (layer.Element, int, bool) {
	return r.source, len(r.targets), r.active
}
