// Package jsonutil provides JSON parsing and formatting utilities for
// LayerLens.
//
// These helpers are used by the CLI for reading recorded tensors and
// printing query results, and by the viewer for display strings.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrRagged = errors.New("tensor is ragged")

// PrettyJSON formats a JSON string with indentation for display.
// Returns the original string if it's not valid JSON.
func PrettyJSON(s string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(s), "", "  "); err != nil {
		return s
	}
	return buf.String()
}

// CompactJSON minifies a JSON string by removing whitespace.
func CompactJSON(s string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}

// FlattenTensor decodes a nested JSON number array, for example
// [[1,2,3],[4,5,6]], into its row-major values and shape. Every
// sub-array at the same depth must have the same length. A bare
// number is a scalar with an empty shape.
func FlattenTensor(raw json.RawMessage) ([]float64, []int, error) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, nil, fmt.Errorf("decoding tensor: %w", err)
	}

	var shape []int
	var out []float64
	if err := flatten(v, 0, &shape, &out); err != nil {
		return nil, nil, err
	}
	return out, shape, nil
}

func flatten(v interface{}, depth int, shape *[]int, out *[]float64) error {
	switch x := v.(type) {
	case json.Number:
		if depth != len(*shape) {
			return fmt.Errorf("number at depth %d, expected %d: %w", depth, len(*shape), ErrRagged)
		}
		f, err := x.Float64()
		if err != nil {
			return fmt.Errorf("value %s: %w", x, err)
		}
		*out = append(*out, f)
		return nil

	case []interface{}:
		switch {
		case depth == len(*shape) && len(*out) == 0:
			// First visit at this depth fixes its length.
			*shape = append(*shape, len(x))
		case depth >= len(*shape):
			return fmt.Errorf("array at depth %d: %w", depth, ErrRagged)
		case (*shape)[depth] != len(x):
			return fmt.Errorf("length %d at depth %d, expected %d: %w", len(x), depth, (*shape)[depth], ErrRagged)
		}
		for _, e := range x {
			if err := flatten(e, depth+1, shape, out); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unexpected %T in tensor", v)
	}
}

// TruncateString truncates a string to maxLen runes, adding "..."
// if truncation occurred. Used for display in the TUI.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
