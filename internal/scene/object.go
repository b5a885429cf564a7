// Package scene is a small retained-mode scene graph that rasterises
// layer elements onto a terminal cell grid.
package scene

import (
	"github.com/Mr-Dark-debug/layerlens/internal/layer"
)

// painter is implemented by elements that put strokes on a canvas.
type painter interface {
	paint(p *pen, at layer.Vec3, o *Object)
}

// node is any layer.Node backed by an Object of this package.
type node interface {
	layer.Node
	object() *Object
}

// Object is a scene graph node. Positions are relative to the parent.
type Object struct {
	tag       layer.Element
	pos       layer.Vec3
	parent    *Object
	children  []*Object
	painter   painter
	highlight bool
}

func newObject(tag layer.Element, pos layer.Vec3) *Object {
	return &Object{tag: tag, pos: pos}
}

func (o *Object) Tag() layer.Element       { return o.tag }
func (o *Object) object() *Object          { return o }
func (o *Object) Position() layer.Vec3     { return o.pos }
func (o *Object) SetPosition(p layer.Vec3) { o.pos = p }
func (o *Object) Highlighted() bool        { return o.highlight }
func (o *Object) Attached() bool           { return o.parent != nil }

// WorldPosition sums the positions of o and all of its ancestors.
func (o *Object) WorldPosition() layer.Vec3 {
	var p layer.Vec3
	for n := o; n != nil; n = n.parent {
		p = p.Add(n.pos)
	}
	return p
}

// Children returns a copy of the child list.
func (o *Object) Children() []*Object {
	return append([]*Object(nil), o.children...)
}

func (o *Object) add(c *Object) {
	if c.parent == o {
		return
	}
	if c.parent != nil {
		c.parent.remove(c)
	}
	c.parent = o
	o.children = append(o.children, c)
}

func (o *Object) remove(c *Object) {
	for i, ch := range o.children {
		if ch == c {
			o.children = append(o.children[:i], o.children[i+1:]...)
			c.parent = nil
			return
		}
	}
}

func objectOf(n layer.Node) (*Object, bool) {
	sn, ok := n.(node)
	if !ok {
		return nil, false
	}
	return sn.object(), true
}

// ────────────────────────────────────────────────────────────
// Scene + Group
// ────────────────────────────────────────────────────────────

// Scene is the root of the graph. Nodes from other packages are ignored.
type Scene struct {
	root *Object
}

var _ layer.Scene = (*Scene)(nil)

func NewScene() *Scene {
	return &Scene{root: newObject(layer.Element{}, layer.Vec3{})}
}

func (s *Scene) Add(n layer.Node) {
	if o, ok := objectOf(n); ok {
		s.root.add(o)
	}
}

func (s *Scene) Remove(n layer.Node) {
	if o, ok := objectOf(n); ok {
		s.root.remove(o)
	}
}

// Root is the scene's root object.
func (s *Scene) Root() *Object { return s.root }

// Len is the number of top-level nodes.
func (s *Scene) Len() int { return len(s.root.children) }

// Group holds the elements of one layer.
type Group struct {
	*Object
}

var _ layer.Group = (*Group)(nil)

func NewGroup(pos layer.Vec3) *Group {
	return &Group{Object: newObject(layer.Element{}, pos)}
}

func (g *Group) Add(n layer.Node) {
	if o, ok := objectOf(n); ok {
		g.Object.add(o)
	}
}

func (g *Group) Remove(n layer.Node) {
	if o, ok := objectOf(n); ok {
		g.Object.remove(o)
	}
}
