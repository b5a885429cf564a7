// Package channel turns raw layer outputs into per-element color stops.
//
// Layer outputs arrive channels-last: the value at spatial position p
// of channel c sits at index p*depth+c. The pipeline either reorders
// that into one contiguous run per channel or reduces across channels
// to a single summary row, then normalises the numbers into [0,1].
package channel

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrShapeMismatch   = errors.New("value length is not a multiple of depth")
	ErrBadDepth        = errors.New("depth must be positive")
	ErrUnknownStrategy = errors.New("unknown aggregation strategy")
)

// Strategy selects how channels are reduced for the aggregated view.
type Strategy int

const (
	Average Strategy = iota
	Max
)

func (s Strategy) String() string {
	switch s {
	case Average:
		return "average"
	case Max:
		return "max"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy accepts "average"/"avg"/"mean" and "max".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "average", "avg", "mean":
		return Average, nil
	case "max":
		return Max, nil
	default:
		return Average, fmt.Errorf("%q: %w", s, ErrUnknownStrategy)
	}
}

// Pipeline is the default value pipeline. The zero value is ready to use.
type Pipeline struct{}

func checkShape(n, depth int) (int, error) {
	if depth <= 0 {
		return 0, ErrBadDepth
	}
	if n%depth != 0 {
		return 0, fmt.Errorf("%d values over %d channels: %w", n, depth, ErrShapeMismatch)
	}
	return n / depth, nil
}

// ChannelData reorders a channels-last value into channel-major order:
// all of channel 0, then all of channel 1, and so on.
func (Pipeline) ChannelData(value []float64, depth int) ([]float64, error) {
	fm, err := checkShape(len(value), depth)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(value))
	for c := 0; c < depth; c++ {
		for p := 0; p < fm; p++ {
			out[c*fm+p] = value[p*depth+c]
		}
	}
	return out, nil
}

// AggregationData reduces across channels at every spatial position.
// The result has len(value)/depth entries.
func (Pipeline) AggregationData(value []float64, depth int, strategy Strategy) ([]float64, error) {
	fm, err := checkShape(len(value), depth)
	if err != nil {
		return nil, err
	}
	out := make([]float64, fm)
	for p := 0; p < fm; p++ {
		column := value[p*depth : (p+1)*depth]
		switch strategy {
		case Max:
			out[p] = floats.Max(column)
		case Average:
			out[p] = floats.Sum(column) / float64(depth)
		default:
			return nil, fmt.Errorf("%v: %w", strategy, ErrUnknownStrategy)
		}
	}
	return out, nil
}

// ValuesToColors maps values linearly onto [0,1] between their own
// minimum and maximum. A constant (or empty) input maps to all zeros.
func (Pipeline) ValuesToColors(values []float64) []float64 {
	colors := make([]float64, len(values))
	if len(values) == 0 {
		return colors
	}
	lo, hi := floats.Min(values), floats.Max(values)
	span := hi - lo
	if span == 0 {
		return colors
	}
	copy(colors, values)
	floats.AddConst(-lo, colors)
	floats.Scale(1/span, colors)
	return colors
}
