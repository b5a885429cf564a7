package layer

import (
	"errors"
	"fmt"
)

// closeButtonGap is the distance between the left edge of an open
// layer and its close button.
const closeButtonGap = 30

// Deps bundles the collaborators a Layer2d talks to.
type Deps struct {
	Scene    Scene
	Factory  Factory
	Animator Animator
	Pipeline ValuePipeline
	// Overlay is optional; without it relation hovers are no-ops.
	Overlay RelationOverlay
}

// visualization is either segregated or aggregated. A layer holds
// exactly one of them once Init has returned.
type visualization interface {
	isVisualization()
}

type segregated struct {
	grids []GridElement
}

type aggregated struct {
	agg AggregationElement
}

func (segregated) isVisualization() {}
func (aggregated) isVisualization() {}

// Layer2d is a layer whose output is depth channels of width values
// each, stored channels-last.
type Layer2d struct {
	Base

	width       int
	depth       int
	actualWidth float64

	openCenters  []Vec3
	closeCenters []Vec3

	factory  Factory
	animator Animator
	pipeline ValuePipeline

	group       Group
	mode        Mode
	vis         visualization
	closeButton CloseButton
	value       []float64
	label       GridElement
	initialized bool
}

var _ LayerBehavior = (*Layer2d)(nil)

// NewLayer2d creates an unassembled layer. Call LoadLayerConfig,
// optionally LoadModelConfig, then Assemble and Init.
func NewLayer2d(deps Deps) *Layer2d {
	l := &Layer2d{
		factory:  deps.Factory,
		animator: deps.Animator,
		pipeline: deps.Pipeline,
	}
	l.Attach(deps.Scene, deps.Overlay)
	l.loadBaseModelConfig(DefaultModelConfig())
	return l
}

// ────────────────────────────────────────────────────────────
// Configuration
// ────────────────────────────────────────────────────────────

// LoadLayerConfig applies the layer's own configuration.
func (l *Layer2d) LoadLayerConfig(cfg LayerConfig) {
	l.loadBaseConfig(cfg)
	l.width = cfg.Width
	l.depth = cfg.Depth
}

// LoadModelConfig applies model-wide defaults to fields the layer
// config left unset.
func (l *Layer2d) LoadModelConfig(cfg ModelConfig) {
	l.loadBaseModelConfig(cfg)
}

// Assemble fixes the layer index and derives display geometry.
func (l *Layer2d) Assemble(layerIndex int) error {
	l.LayerIndex = layerIndex
	if l.width <= 0 || l.depth <= 0 {
		return fmt.Errorf("layer %d (%s) is %dx%d: %w", layerIndex, l.Name, l.depth, l.width, ErrInvalidShape)
	}

	l.actualWidth = float64(l.width) * l.UnitLength

	gap := l.UnitLength * l.OpenGapFactor
	mid := float64(l.depth-1) / 2
	l.closeCenters = make([]Vec3, l.depth)
	l.openCenters = make([]Vec3, l.depth)
	for i := range l.openCenters {
		l.openCenters[i] = Vec3{Z: (float64(i) - mid) * gap}
	}
	return nil
}

// ────────────────────────────────────────────────────────────
// Lifecycle
// ────────────────────────────────────────────────────────────

// Init builds the scene group at center and the element set for the
// initial mode, then attaches the group to the scene.
func (l *Layer2d) Init(center Vec3, actualDepth float64, nextHook Vec3) error {
	if l.initialized {
		return fmt.Errorf("layer %d: %w", l.LayerIndex, ErrAlreadyInitialized)
	}
	if len(l.openCenters) != l.depth || l.depth == 0 {
		if err := l.Assemble(l.LayerIndex); err != nil {
			return err
		}
	}

	l.Center = center
	l.ActualDepth = actualDepth
	l.NextHook = nextHook
	if hp, ok := l.Prev.(interface{ NextHookPosition() Vec3 }); ok {
		l.LastHook = hp.NextHookPosition()
	}

	l.group = l.factory.NewGroup(center)

	if l.depth == 1 || l.InitialOpen {
		l.mode = Open
		l.initSegregationElements(l.openCenters)
		if l.hasCloseButton() {
			l.initCloseButton()
		}
	} else {
		l.mode = Closed
		l.initAggregationElement()
	}

	l.scene.Add(l.group)
	l.initialized = true

	Logf("[DEBUG] layer %d (%s) initialized %s, %dx%d", l.LayerIndex, l.Name, l.mode, l.depth, l.width)
	return nil
}

// Dispose detaches every element and the group from the scene.
func (l *Layer2d) Dispose() {
	if !l.initialized {
		return
	}
	l.disposeLineGroup()
	l.disposeCloseButton()
	l.disposeSegregationElements()
	l.disposeAggregationElement()
	l.scene.Remove(l.group)
	l.group = nil
	l.mode = Closed
	l.initialized = false
}

// ────────────────────────────────────────────────────────────
// Toggle
// ────────────────────────────────────────────────────────────

// OpenLayer expands an aggregated layer into one grid line per channel.
// The returned channel closes when the transition has finished. It is
// a no-op on an open layer and fails with ErrTransitionInProgress while
// a transition is running.
func (l *Layer2d) OpenLayer() (<-chan struct{}, error) {
	if !l.initialized {
		return nil, ErrNotInitialized
	}
	if l.mode == Open {
		return doneChan(), nil
	}
	next, err := l.mode.next(evOpen)
	if err != nil {
		return nil, fmt.Errorf("layer %d: %w", l.LayerIndex, err)
	}
	l.mode = next

	l.disposeAggregationElement()
	l.initSegregationElements(l.closeCenters)

	grids := l.gridElements()
	from := make([]Vec3, len(grids))
	for i, g := range grids {
		from[i] = g.Position()
	}

	done := make(chan struct{})
	l.animator.OpenLayer(Transition{
		LayerIndex: l.LayerIndex,
		Elements:   grids,
		From:       from,
		To:         append([]Vec3(nil), l.openCenters...),
		Done:       func() { l.finishOpen(done) },
	})
	Logf("[DEBUG] layer %d %s", l.LayerIndex, l.mode)
	return done, nil
}

func (l *Layer2d) finishOpen(done chan struct{}) {
	if !l.initialized {
		// Disposed mid-transition; there is no group left to build into.
		close(done)
		return
	}
	next, err := l.mode.next(evOpened)
	if err != nil {
		Logf("[WARN] layer %d: %v", l.LayerIndex, err)
		return
	}
	l.mode = next
	if l.hasCloseButton() {
		l.initCloseButton()
	}
	close(done)
	Logf("[DEBUG] layer %d %s", l.LayerIndex, l.mode)
}

// CloseLayer collapses an open layer into its aggregation element.
// Semantics mirror OpenLayer.
func (l *Layer2d) CloseLayer() (<-chan struct{}, error) {
	if !l.initialized {
		return nil, ErrNotInitialized
	}
	if l.mode == Closed {
		return doneChan(), nil
	}
	next, err := l.mode.next(evClose)
	if err != nil {
		return nil, fmt.Errorf("layer %d: %w", l.LayerIndex, err)
	}
	l.mode = next

	l.disposeCloseButton()

	grids := l.gridElements()
	from := make([]Vec3, len(grids))
	for i, g := range grids {
		from[i] = g.Position()
	}

	done := make(chan struct{})
	l.animator.CloseLayer(Transition{
		LayerIndex: l.LayerIndex,
		Elements:   grids,
		From:       from,
		To:         append([]Vec3(nil), l.closeCenters...),
		Done:       func() { l.finishClose(done) },
	})
	Logf("[DEBUG] layer %d %s", l.LayerIndex, l.mode)
	return done, nil
}

func (l *Layer2d) finishClose(done chan struct{}) {
	if !l.initialized {
		close(done)
		return
	}
	next, err := l.mode.next(evClosed)
	if err != nil {
		Logf("[WARN] layer %d: %v", l.LayerIndex, err)
		return
	}
	l.disposeSegregationElements()
	l.initAggregationElement()
	l.mode = next
	close(done)
	Logf("[DEBUG] layer %d %s", l.LayerIndex, l.mode)
}

func doneChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// ────────────────────────────────────────────────────────────
// Element sets
// ────────────────────────────────────────────────────────────

func (l *Layer2d) initSegregationElements(centers []Vec3) {
	grids := make([]GridElement, 0, l.depth)
	for i := 0; i < l.depth; i++ {
		g := l.factory.NewGridLine(GridSpec{
			Width:        l.width,
			DisplayWidth: l.actualWidth,
			UnitLength:   l.UnitLength,
			Center:       centers[i],
			Color:        l.Color,
		})
		g.SetLayerIndex(l.LayerIndex)
		g.SetGridIndex(i)
		l.group.Add(g.Node())
		grids = append(grids, g)
	}
	l.vis = segregated{grids: grids}

	if l.value != nil {
		if err := l.updateSegregationVis(grids); err != nil {
			Logf("[WARN] %v", err)
		}
	}
}

func (l *Layer2d) disposeSegregationElements() {
	seg, ok := l.vis.(segregated)
	if !ok {
		return
	}
	l.HideText()
	for _, g := range seg.grids {
		l.group.Remove(g.Node())
		g.Dispose()
	}
	l.vis = nil
}

func (l *Layer2d) initAggregationElement() {
	agg := l.factory.NewAggregation(AggregationSpec{
		Width:        l.width,
		DisplayWidth: l.actualWidth,
		UnitLength:   l.UnitLength,
		Color:        l.Color,
	})
	agg.SetLayerIndex(l.LayerIndex)
	l.group.Add(agg.Node())
	l.vis = aggregated{agg: agg}

	if l.value != nil {
		if err := l.updateAggregationVis(agg); err != nil {
			Logf("[WARN] %v", err)
		}
	}
}

func (l *Layer2d) disposeAggregationElement() {
	a, ok := l.vis.(aggregated)
	if !ok {
		return
	}
	l.group.Remove(a.agg.Node())
	a.agg.Dispose()
	l.vis = nil
}

func (l *Layer2d) hasCloseButton() bool {
	return l.depth > 1
}

func (l *Layer2d) initCloseButton() {
	btn := l.factory.NewCloseButton(l.CloseButtonSize(), l.CloseButtonPosition())
	btn.SetLayerIndex(l.LayerIndex)
	l.group.Add(btn.Node())
	l.closeButton = btn
}

func (l *Layer2d) disposeCloseButton() {
	if l.closeButton == nil {
		return
	}
	l.group.Remove(l.closeButton.Node())
	l.closeButton.Dispose()
	l.closeButton = nil
}

// CloseButtonSize is the edge length of the close button.
func (l *Layer2d) CloseButtonSize() float64 {
	return 2 * l.UnitLength
}

// CloseButtonPosition is the close button's offset from the layer center.
func (l *Layer2d) CloseButtonPosition() Vec3 {
	return Vec3{X: -l.actualWidth/2 - closeButtonGap}
}

// ────────────────────────────────────────────────────────────
// Values
// ────────────────────────────────────────────────────────────

// UpdateValue stores value and pushes its colors to the live elements.
// value must hold depth*width numbers, channels-last; anything else
// fails with ErrShapeMismatch and leaves the layer untouched.
func (l *Layer2d) UpdateValue(value []float64) error {
	if !l.initialized {
		return ErrNotInitialized
	}
	if want := l.depth * l.width; len(value) != want {
		return fmt.Errorf("layer %d: got %d values, want %d (%d x %d): %w",
			l.LayerIndex, len(value), want, l.depth, l.width, ErrShapeMismatch)
	}

	prev := l.value
	l.value = append([]float64(nil), value...)

	var err error
	switch v := l.vis.(type) {
	case segregated:
		err = l.updateSegregationVis(v.grids)
	case aggregated:
		err = l.updateAggregationVis(v.agg)
	}
	if err != nil {
		l.value = prev
		return err
	}
	return nil
}

func (l *Layer2d) updateAggregationVis(agg AggregationElement) error {
	data, err := l.pipeline.AggregationData(l.value, l.depth, l.Strategy)
	if err != nil {
		return fmt.Errorf("aggregating layer %d: %w", l.LayerIndex, err)
	}
	agg.UpdateVis(l.pipeline.ValuesToColors(data))
	return nil
}

func (l *Layer2d) updateSegregationVis(grids []GridElement) error {
	data, err := l.pipeline.ChannelData(l.value, l.depth)
	if err != nil {
		return fmt.Errorf("splitting channels of layer %d: %w", l.LayerIndex, err)
	}
	colors := l.pipeline.ValuesToColors(data)
	if len(colors) < len(grids)*l.width {
		return fmt.Errorf("layer %d: %d colors for %d cells: %w",
			l.LayerIndex, len(colors), len(grids)*l.width, ErrShapeMismatch)
	}

	fm := l.width
	for i, g := range grids {
		g.UpdateVis(colors[i*fm : (i+1)*fm])
	}
	return nil
}

// Clear blanks the live elements and drops the held value. It does
// nothing when no value is held.
func (l *Layer2d) Clear() {
	if l.value == nil {
		return
	}
	switch v := l.vis.(type) {
	case segregated:
		for _, g := range v.grids {
			g.Clear()
		}
	case aggregated:
		v.agg.Clear()
	}
	l.value = nil
}

// ────────────────────────────────────────────────────────────
// Events
// ────────────────────────────────────────────────────────────

// HandleClick opens on an aggregation click and closes on a close
// button click. Grid line clicks are ignored.
func (l *Layer2d) HandleClick(el Element) error {
	switch el.Kind {
	case KindAggregation:
		_, err := l.OpenLayer()
		return err
	case KindCloseButton:
		_, err := l.CloseLayer()
		return err
	case KindGridLine:
		return nil
	default:
		return fmt.Errorf("click on %s: %w", el.Kind, ErrUnknownElement)
	}
}

// HandleHoverIn shows the relation overlay and the text label, each
// only when its feature flag is on.
func (l *Layer2d) HandleHoverIn(el Element) error {
	var errs []error
	if l.RelationSystem {
		if err := l.initLineGroup(el); err != nil {
			errs = append(errs, fmt.Errorf("relation lines for layer %d: %w", l.LayerIndex, err))
		}
	}
	if l.TextSystem {
		if err := l.ShowText(el); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleHoverOut undoes HandleHoverIn.
func (l *Layer2d) HandleHoverOut() {
	if l.RelationSystem {
		l.disposeLineGroup()
	}
	if l.TextSystem {
		l.HideText()
	}
}

// ShowText shows the label of the hovered grid line. Other element
// kinds, and grid lines that are no longer live, are ignored.
func (l *Layer2d) ShowText(el Element) error {
	if el.Kind != KindGridLine {
		return nil
	}
	seg, ok := l.vis.(segregated)
	if !ok {
		return nil
	}
	if el.GridIndex < 0 || el.GridIndex >= len(seg.grids) {
		return fmt.Errorf("layer %d: show text for grid %d of %d: %w",
			l.LayerIndex, el.GridIndex, len(seg.grids), ErrIndexOutOfRange)
	}

	g := seg.grids[el.GridIndex]
	if l.label != nil && l.label != g {
		l.label.HideText()
	}
	g.ShowText()
	l.label = g
	return nil
}

// HideText hides the active label, if any.
func (l *Layer2d) HideText() {
	if l.label == nil {
		return
	}
	l.label.HideText()
	l.label = nil
}

// ────────────────────────────────────────────────────────────
// Queries
// ────────────────────────────────────────────────────────────

// ProvideRelativeElements returns the live nodes a following layer
// links to. While aggregated, the aggregation element stands in for
// every index.
func (l *Layer2d) ProvideRelativeElements(req RelativeRequest) ([]Node, error) {
	if !l.initialized {
		return nil, ErrNotInitialized
	}

	switch v := l.vis.(type) {
	case segregated:
		if req.All {
			nodes := make([]Node, len(v.grids))
			for i, g := range v.grids {
				nodes[i] = g.Node()
			}
			return nodes, nil
		}
		if req.Index != nil {
			k := *req.Index
			if k < 0 || k >= len(v.grids) {
				return nil, fmt.Errorf("layer %d: element %d of %d: %w",
					l.LayerIndex, k, len(v.grids), ErrIndexOutOfRange)
			}
			return []Node{v.grids[k].Node()}, nil
		}
	case aggregated:
		if req.All || req.Index != nil {
			return []Node{v.agg.Node()}, nil
		}
	}
	return nil, nil
}

// NextHookPosition is where the following layer's relation lines start.
func (l *Layer2d) NextHookPosition() Vec3 { return l.NextHook }

func (l *Layer2d) Mode() Mode            { return l.mode }
func (l *Layer2d) IsOpen() bool          { return l.mode == Open }
func (l *Layer2d) Depth() int            { return l.depth }
func (l *Layer2d) Width() int            { return l.width }
func (l *Layer2d) DisplayWidth() float64 { return l.actualWidth }
func (l *Layer2d) Group() Group          { return l.group }

// Value returns a copy of the held value, or nil.
func (l *Layer2d) Value() []float64 {
	if l.value == nil {
		return nil
	}
	return append([]float64(nil), l.value...)
}

// GridElements returns the live grid lines, or nil while aggregated.
func (l *Layer2d) GridElements() []GridElement {
	return l.gridElements()
}

func (l *Layer2d) gridElements() []GridElement {
	seg, ok := l.vis.(segregated)
	if !ok {
		return nil
	}
	return append([]GridElement(nil), seg.grids...)
}

// Aggregation returns the live aggregation element, or nil while
// segregated.
func (l *Layer2d) Aggregation() AggregationElement {
	if a, ok := l.vis.(aggregated); ok {
		return a.agg
	}
	return nil
}

// ActiveLabel returns the grid line currently showing its label.
func (l *Layer2d) ActiveLabel() (GridElement, bool) {
	return l.label, l.label != nil
}

// OpenCenters returns the per-channel centers used while open.
func (l *Layer2d) OpenCenters() []Vec3 {
	return append([]Vec3(nil), l.openCenters...)
}
