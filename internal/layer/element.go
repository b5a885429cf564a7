package layer

import (
	"fmt"

	"github.com/Mr-Dark-debug/layerlens/internal/channel"
)

// Vec3 is a position in scene space.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Lerp interpolates between v and o; t=0 is v, t=1 is o.
func (v Vec3) Lerp(o Vec3, t float64) Vec3 {
	return Vec3{
		X: v.X + (o.X-v.X)*t,
		Y: v.Y + (o.Y-v.Y)*t,
		Z: v.Z + (o.Z-v.Z)*t,
	}
}

// ────────────────────────────────────────────────────────────
// Element tags
// ────────────────────────────────────────────────────────────

// ElementKind identifies which kind of element an event refers to.
type ElementKind int

const (
	KindAggregation ElementKind = iota + 1
	KindCloseButton
	KindGridLine
)

func (k ElementKind) String() string {
	switch k {
	case KindAggregation:
		return "aggregationElement"
	case KindCloseButton:
		return "closeButton"
	case KindGridLine:
		return "gridLine"
	default:
		return fmt.Sprintf("ElementKind(%d)", int(k))
	}
}

// Element is the tag carried by every scene node a layer creates.
// Click and hover events arrive as Elements.
type Element struct {
	Kind       ElementKind
	LayerIndex int
	// GridIndex is meaningful only for KindGridLine.
	GridIndex int
}

// RelativeRequest selects elements for ProvideRelativeElements.
// All wins over Index; with neither set the result is empty.
type RelativeRequest struct {
	All   bool
	Index *int
}

// ────────────────────────────────────────────────────────────
// Collaborator contracts
// ────────────────────────────────────────────────────────────

// Node is an opaque handle to something attached to the scene graph.
type Node interface {
	Tag() Element
}

// Scene is the external graph a layer attaches its group to.
type Scene interface {
	Add(n Node)
	Remove(n Node)
}

// Group is a scene node that owns child nodes.
type Group interface {
	Node
	Add(n Node)
	Remove(n Node)
	Position() Vec3
}

// GridElement renders one channel as a line of colored cells.
type GridElement interface {
	Node() Node
	SetLayerIndex(i int)
	SetGridIndex(i int)
	UpdateVis(colors []float64)
	ShowText()
	HideText()
	Clear()
	Position() Vec3
	SetPosition(p Vec3)
	Dispose()
}

// AggregationElement renders the reduced summary of all channels.
type AggregationElement interface {
	Node() Node
	SetLayerIndex(i int)
	UpdateVis(colors []float64)
	Clear()
	Dispose()
}

// CloseButton collapses an open layer when clicked.
type CloseButton interface {
	Node() Node
	SetLayerIndex(i int)
	Dispose()
}

// GridSpec parameterises a new grid line.
type GridSpec struct {
	Width        int
	DisplayWidth float64
	UnitLength   float64
	Center       Vec3
	Color        string
}

// AggregationSpec parameterises a new aggregation element.
type AggregationSpec struct {
	Width        int
	DisplayWidth float64
	UnitLength   float64
	Color        string
}

// Factory builds the visual pieces a layer is made of.
type Factory interface {
	NewGroup(position Vec3) Group
	NewGridLine(spec GridSpec) GridElement
	NewAggregation(spec AggregationSpec) AggregationElement
	NewCloseButton(size float64, position Vec3) CloseButton
}

// Transition describes one open or close animation. The animator moves
// Elements[i] from From[i] to To[i] and then calls Done exactly once,
// on the goroutine that drives the layer.
type Transition struct {
	LayerIndex int
	Elements   []GridElement
	From       []Vec3
	To         []Vec3
	Done       func()
}

// Animator schedules open/close transitions without blocking.
type Animator interface {
	OpenLayer(t Transition)
	CloseLayer(t Transition)
}

// ValuePipeline turns a raw layer output into color stops.
type ValuePipeline interface {
	AggregationData(value []float64, depth int, strategy channel.Strategy) ([]float64, error)
	ChannelData(value []float64, depth int) ([]float64, error)
	ValuesToColors(values []float64) []float64
}

// RelationOverlay draws the links between a hovered element and the
// elements of the previous layer.
type RelationOverlay interface {
	Show(source Element, targets []Node)
	Hide()
}

// RelativeProvider is implemented by anything that can hand out its
// visual elements to a following layer.
type RelativeProvider interface {
	ProvideRelativeElements(req RelativeRequest) ([]Node, error)
}
