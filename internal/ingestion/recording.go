package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/Mr-Dark-debug/layerlens/internal/database"
	"github.com/Mr-Dark-debug/layerlens/pkg/jsonutil"
)

// ErrBadTensor is returned for a recorded step that is not a
// [width][depth] or [width] array, or whose shape differs from the layer.
var ErrBadTensor = errors.New("bad tensor")

// Recording is the JSON document accepted by `layerlens import`:
//
//	{"model_name": "conv-net", "layers": [
//	  {"name": "conv1d_1", "steps": [[[0.1, 0.2], [0.3, 0.4]], ...]}
//	]}
//
// Each step is the layer output for one input, indexed [position][channel].
type Recording struct {
	RunID     string            `json:"run_id,omitempty"`
	ModelName string            `json:"model_name"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Layers    []RecordedLayer   `json:"layers"`
}

// RecordedLayer is one layer of a Recording. Width and Depth may be
// omitted when the layer has at least one step.
type RecordedLayer struct {
	Name  string            `json:"name"`
	Kind  string            `json:"kind,omitempty"`
	Color string            `json:"color,omitempty"`
	Width int               `json:"width,omitempty"`
	Depth int               `json:"depth,omitempty"`
	Steps []json.RawMessage `json:"steps"`
}

// ParseRecording decodes a recording document.
func ParseRecording(r io.Reader) (*Recording, error) {
	var rec Recording
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decoding recording: %w", err)
	}
	if rec.ModelName == "" {
		return nil, errors.New("recording has no model_name")
	}
	return &rec, nil
}

// tensorShape maps a flattened tensor shape to width and depth.
func tensorShape(shape []int) (width, depth int, err error) {
	switch len(shape) {
	case 1:
		return shape[0], 1, nil
	case 2:
		return shape[0], shape[1], nil
	default:
		return 0, 0, fmt.Errorf("rank %d tensor: %w", len(shape), ErrBadTensor)
	}
}

// Batch converts the recording into records ready for storage. Missing
// IDs are generated; startedAt and endedAt are Unix nanoseconds.
func (rec *Recording) Batch(startedAt, endedAt int64) (*BatchMessage, error) {
	runID := rec.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	end := endedAt
	batch := &BatchMessage{
		Runs: []*database.Run{{
			RunID:     runID,
			ModelName: rec.ModelName,
			StartedAt: startedAt,
			EndedAt:   &end,
			Status:    "completed",
			Metadata:  rec.Metadata,
		}},
	}

	for i, rl := range rec.Layers {
		info := &database.LayerInfo{
			LayerID:    uuid.NewString(),
			RunID:      runID,
			LayerIndex: i,
			Name:       rl.Name,
			Kind:       rl.Kind,
			Width:      rl.Width,
			Depth:      rl.Depth,
			Color:      rl.Color,
		}
		if info.Name == "" {
			info.Name = fmt.Sprintf("layer_%d", i)
		}

		for step, raw := range rl.Steps {
			values, shape, err := jsonutil.FlattenTensor(raw)
			if err != nil {
				return nil, fmt.Errorf("layer %q step %d: %w", info.Name, step, err)
			}
			w, d, err := tensorShape(shape)
			if err != nil {
				return nil, fmt.Errorf("layer %q step %d: %w", info.Name, step, err)
			}
			if info.Width == 0 && info.Depth == 0 {
				info.Width, info.Depth = w, d
			}
			if w != info.Width || d != info.Depth {
				return nil, fmt.Errorf("layer %q step %d: shape %dx%d, want %dx%d: %w",
					info.Name, step, w, d, info.Width, info.Depth, ErrBadTensor)
			}
			batch.Activations = append(batch.Activations, &database.Activation{
				LayerID:    info.LayerID,
				Step:       step,
				RecordedAt: endedAt,
				Values:     values,
			})
		}

		if info.Width <= 0 || info.Depth <= 0 {
			return nil, fmt.Errorf("layer %q: no steps and no width/depth", info.Name)
		}
		batch.Layers = append(batch.Layers, info)
	}
	return batch, nil
}

// ApplyBatch writes a batch to the store in foreign-key order.
func ApplyBatch(store database.Store, batch *BatchMessage) error {
	for _, r := range batch.Runs {
		if err := store.InsertRun(r); err != nil {
			return fmt.Errorf("batch run insert: %w", err)
		}
	}
	for _, l := range batch.Layers {
		if err := store.InsertLayer(l); err != nil {
			return fmt.Errorf("batch layer insert: %w", err)
		}
	}
	if len(batch.Activations) > 0 {
		if err := store.BatchInsertActivations(batch.Activations); err != nil {
			return fmt.Errorf("batch activation insert: %w", err)
		}
	}
	return nil
}
