package layer

import (
	"errors"
	"log"

	"github.com/Mr-Dark-debug/layerlens/internal/channel"
)

var (
	ErrShapeMismatch      = errors.New("value shape does not match layer")
	ErrIndexOutOfRange    = errors.New("grid index out of range")
	ErrInvalidShape       = errors.New("layer width and depth must be positive")
	ErrUnknownElement     = errors.New("unknown element kind")
	ErrNotInitialized     = errors.New("layer not initialized")
	ErrAlreadyInitialized = errors.New("layer already initialized")
)

// Logf is the package diagnostic logger. Replace it with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// LayerBehavior is the capability set every renderable layer offers
// to the model that hosts it.
type LayerBehavior interface {
	RelativeProvider

	LoadLayerConfig(cfg LayerConfig)
	LoadModelConfig(cfg ModelConfig)
	Assemble(layerIndex int) error
	Init(center Vec3, actualDepth float64, nextHook Vec3) error

	OpenLayer() (<-chan struct{}, error)
	CloseLayer() (<-chan struct{}, error)
	Mode() Mode

	UpdateValue(value []float64) error
	Clear()

	HandleClick(el Element) error
	HandleHoverIn(el Element) error
	HandleHoverOut()
}

// LayerConfig is the per-layer configuration. Pointer fields left nil
// fall back to the model configuration.
type LayerConfig struct {
	Name           string  `json:"name"`
	Width          int     `json:"width"`
	Depth          int     `json:"depth"`
	Color          string  `json:"color,omitempty"`
	UnitLength     float64 `json:"unit_length,omitempty"`
	Open           *bool   `json:"open,omitempty"`
	Strategy       string  `json:"aggregation_strategy,omitempty"`
	TextSystem     *bool   `json:"text_system,omitempty"`
	RelationSystem *bool   `json:"relation_system,omitempty"`
}

// ModelConfig holds the defaults shared by every layer of a model.
type ModelConfig struct {
	Color           string  `json:"color"`
	UnitLength      float64 `json:"unit_length"`
	LayerInitOpen   bool    `json:"layer_init_open"`
	Strategy        string  `json:"aggregation_strategy"`
	TextSystem      bool    `json:"text_system"`
	RelationSystem  bool    `json:"relation_system"`
	OpenGapFactor   float64 `json:"open_gap_factor"`
	TransitionNanos int64   `json:"transition_nanos"`
}

// DefaultModelConfig returns the defaults used when no model config is loaded.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Color:          "#58a6ff",
		UnitLength:     1,
		LayerInitOpen:  false,
		Strategy:       channel.Average.String(),
		TextSystem:     true,
		RelationSystem: true,
		OpenGapFactor:  2,
	}
}

// Base carries the fields every layer kind shares. Concrete layers
// embed it.
type Base struct {
	LayerIndex int
	Name       string
	Color      string
	UnitLength float64
	Center     Vec3

	// ActualDepth is the scene-space depth handed to Init.
	ActualDepth float64
	// LastHook and NextHook anchor relation lines between layers.
	LastHook Vec3
	NextHook Vec3

	InitialOpen    bool
	Strategy       channel.Strategy
	TextSystem     bool
	RelationSystem bool
	OpenGapFactor  float64

	// Prev is the preceding layer, if any.
	Prev RelativeProvider

	scene   Scene
	overlay RelationOverlay

	// set by LoadLayerConfig so model defaults do not overwrite them
	colorSet, unitSet, openSet, strategySet, textSet, relationSet bool
}

// Attach wires the scene the layer draws into and the optional
// relation overlay.
func (b *Base) Attach(scene Scene, overlay RelationOverlay) {
	b.scene = scene
	b.overlay = overlay
}

func (b *Base) loadBaseConfig(cfg LayerConfig) {
	b.Name = cfg.Name
	if cfg.Color != "" {
		b.Color = cfg.Color
		b.colorSet = true
	}
	if cfg.UnitLength > 0 {
		b.UnitLength = cfg.UnitLength
		b.unitSet = true
	}
	if cfg.Open != nil {
		b.InitialOpen = *cfg.Open
		b.openSet = true
	}
	if cfg.Strategy != "" {
		if s, err := channel.ParseStrategy(cfg.Strategy); err == nil {
			b.Strategy = s
			b.strategySet = true
		} else {
			Logf("[WARN] layer %q: %v, keeping %s", cfg.Name, err, b.Strategy)
		}
	}
	if cfg.TextSystem != nil {
		b.TextSystem = *cfg.TextSystem
		b.textSet = true
	}
	if cfg.RelationSystem != nil {
		b.RelationSystem = *cfg.RelationSystem
		b.relationSet = true
	}
}

func (b *Base) loadBaseModelConfig(cfg ModelConfig) {
	if !b.colorSet && cfg.Color != "" {
		b.Color = cfg.Color
	}
	if !b.unitSet && cfg.UnitLength > 0 {
		b.UnitLength = cfg.UnitLength
	}
	if !b.openSet {
		b.InitialOpen = cfg.LayerInitOpen
	}
	if !b.strategySet && cfg.Strategy != "" {
		if s, err := channel.ParseStrategy(cfg.Strategy); err == nil {
			b.Strategy = s
		}
	}
	if !b.textSet {
		b.TextSystem = cfg.TextSystem
	}
	if !b.relationSet {
		b.RelationSystem = cfg.RelationSystem
	}
	if cfg.OpenGapFactor > 0 {
		b.OpenGapFactor = cfg.OpenGapFactor
	}
}

// initLineGroup shows the relation overlay from el to the previous
// layer's elements.
func (b *Base) initLineGroup(el Element) error {
	if b.overlay == nil || b.Prev == nil {
		return nil
	}
	targets, err := b.Prev.ProvideRelativeElements(RelativeRequest{All: true})
	if err != nil {
		return err
	}
	b.overlay.Show(el, targets)
	return nil
}

func (b *Base) disposeLineGroup() {
	if b.overlay != nil {
		b.overlay.Hide()
	}
}
