package database

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestService(t *testing.T) *DBService {
	t.Helper()
	svc, err := NewDBService(":memory:")
	if err != nil {
		t.Fatalf("NewDBService(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

// seedRun inserts a run with one 3x4 layer and returns both.
func seedRun(t *testing.T, svc *DBService, runID string) (*Run, *LayerInfo) {
	t.Helper()
	run := &Run{RunID: runID, ModelName: "conv-net", StartedAt: time.Now().UnixNano(), Status: "completed"}
	if err := svc.InsertRun(run); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}
	layer := &LayerInfo{RunID: runID, LayerIndex: 0, Name: "conv1d_1", Width: 4, Depth: 3}
	if err := svc.InsertLayer(layer); err != nil {
		t.Fatalf("InsertLayer failed: %v", err)
	}
	return run, layer
}

// TestNewDBService verifies that the database initializes correctly
// with the embedded migrations using an in-memory SQLite instance.
func TestNewDBService(t *testing.T) {
	svc := newTestService(t)

	version, dirty, err := svc.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("expected version 2 clean, got %d dirty=%v", version, dirty)
	}
}

func TestMigrateDownAndUp(t *testing.T) {
	svc := newTestService(t)

	if err := svc.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	if v, _, _ := svc.MigrateVersion(); v != 1 {
		t.Errorf("expected version 1 after down, got %d", v)
	}
	if err := svc.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if v, _, _ := svc.MigrateVersion(); v != 2 {
		t.Errorf("expected version 2 after up, got %d", v)
	}
}

// TestInsertAndQueryRun verifies the run lifecycle:
// insert → update on conflict → query.
func TestInsertAndQueryRun(t *testing.T) {
	svc := newTestService(t)

	now := time.Now().UnixNano()
	run := &Run{
		RunID:     "run-001",
		ModelName: "mnist-conv",
		StartedAt: now,
		Metadata:  map[string]string{"dataset": "mnist"},
	}
	if err := svc.InsertRun(run); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}
	if run.Status != "running" {
		t.Errorf("expected default status running, got %s", run.Status)
	}

	end := now + int64(time.Second)
	notes := "converged"
	run.EndedAt = &end
	run.Status = "completed"
	run.Notes = &notes
	if err := svc.InsertRun(run); err != nil {
		t.Fatalf("InsertRun update failed: %v", err)
	}

	runs, err := svc.QueryRuns(RunFilter{Limit: 10})
	if err != nil {
		t.Fatalf("QueryRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.Status != "completed" || got.EndedAt == nil || *got.EndedAt != end {
		t.Errorf("run not updated: %+v", got)
	}
	if got.Notes == nil || *got.Notes != "converged" {
		t.Errorf("expected notes=converged, got %v", got.Notes)
	}
	if got.Metadata["dataset"] != "mnist" {
		t.Errorf("expected metadata dataset=mnist, got %v", got.Metadata)
	}
}

func TestInsertGeneratesIDs(t *testing.T) {
	svc := newTestService(t)

	run := &Run{ModelName: "auto", StartedAt: 1}
	if err := svc.InsertRun(run); err != nil {
		t.Fatal(err)
	}
	layer := &LayerInfo{RunID: run.RunID, Name: "dense", Width: 2, Depth: 2}
	if err := svc.InsertLayer(layer); err != nil {
		t.Fatal(err)
	}
	act := &Activation{LayerID: layer.LayerID, Values: []float64{1, 2, 3, 4}}
	if err := svc.InsertActivation(act); err != nil {
		t.Fatal(err)
	}

	if run.RunID == "" || layer.LayerID == "" || act.ActivationID == "" {
		t.Errorf("ids not generated: run=%q layer=%q act=%q", run.RunID, layer.LayerID, act.ActivationID)
	}
	if layer.Kind != "layer2d" {
		t.Errorf("expected default kind layer2d, got %s", layer.Kind)
	}
	if act.RecordedAt == 0 {
		t.Error("recorded_at not defaulted")
	}
}

// TestActivationRoundTrip verifies values survive storage bit for bit
// and come back ordered by step.
func TestActivationRoundTrip(t *testing.T) {
	svc := newTestService(t)
	_, layer := seedRun(t, svc, "run-act")

	values := []float64{0, -1.5, math.Pi, 1e-300, math.MaxFloat64, 7, 8, 9, 10, 11, 12, 13}
	for _, step := range []int{2, 0, 1} {
		act := &Activation{LayerID: layer.LayerID, Step: step, Values: values}
		if err := svc.InsertActivation(act); err != nil {
			t.Fatalf("InsertActivation step %d failed: %v", step, err)
		}
	}

	acts, err := svc.QueryActivations(layer.LayerID)
	if err != nil {
		t.Fatalf("QueryActivations failed: %v", err)
	}
	if len(acts) != 3 {
		t.Fatalf("expected 3 activations, got %d", len(acts))
	}
	for i, a := range acts {
		if a.Step != i {
			t.Errorf("activation %d has step %d", i, a.Step)
		}
		if diff := cmp.Diff(values, a.Values); diff != "" {
			t.Errorf("values mismatch (-want +got):\n%s", diff)
		}
	}

	one, err := svc.GetActivation(layer.LayerID, 1)
	if err != nil {
		t.Fatalf("GetActivation failed: %v", err)
	}
	if one.Step != 1 {
		t.Errorf("expected step 1, got %d", one.Step)
	}

	if _, err := svc.GetActivation(layer.LayerID, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestActivationReplaceSameStep(t *testing.T) {
	svc := newTestService(t)
	_, layer := seedRun(t, svc, "run-replace")

	svc.InsertActivation(&Activation{LayerID: layer.LayerID, Step: 0, Values: []float64{1}})
	svc.InsertActivation(&Activation{LayerID: layer.LayerID, Step: 0, Values: []float64{2, 3}})

	acts, err := svc.QueryActivations(layer.LayerID)
	if err != nil {
		t.Fatal(err)
	}
	if len(acts) != 1 {
		t.Fatalf("expected 1 activation, got %d", len(acts))
	}
	if diff := cmp.Diff([]float64{2, 3}, acts[0].Values); diff != "" {
		t.Errorf("values not replaced (-want +got):\n%s", diff)
	}
}

func TestListAndGetLayers(t *testing.T) {
	svc := newTestService(t)
	_, first := seedRun(t, svc, "run-layers")

	second := &LayerInfo{RunID: "run-layers", LayerIndex: 1, Name: "conv1d_2", Width: 8, Depth: 16, Color: "#ff8800"}
	if err := svc.InsertLayer(second); err != nil {
		t.Fatal(err)
	}

	layers, err := svc.ListLayers("run-layers")
	if err != nil {
		t.Fatalf("ListLayers failed: %v", err)
	}
	if len(layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(layers))
	}
	if layers[0].LayerID != first.LayerID || layers[1].Name != "conv1d_2" {
		t.Errorf("layers out of order: %s, %s", layers[0].Name, layers[1].Name)
	}

	got, err := svc.GetLayer(second.LayerID)
	if err != nil {
		t.Fatalf("GetLayer failed: %v", err)
	}
	if diff := cmp.Diff(second, got); diff != "" {
		t.Errorf("layer mismatch (-want +got):\n%s", diff)
	}

	if _, err := svc.GetLayer("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLayerRejectsEmptyShape(t *testing.T) {
	svc := newTestService(t)
	seedRun(t, svc, "run-bad")

	err := svc.InsertLayer(&LayerInfo{RunID: "run-bad", LayerIndex: 5, Name: "empty", Width: 0, Depth: 3})
	if err == nil {
		t.Fatal("expected CHECK constraint failure for width 0")
	}
}

// TestBatchInsertActivations verifies that batch insertion works correctly.
func TestBatchInsertActivations(t *testing.T) {
	svc := newTestService(t)
	_, layer := seedRun(t, svc, "run-batch")

	acts := make([]*Activation, 100)
	for i := 0; i < 100; i++ {
		acts[i] = &Activation{
			ActivationID: fmt.Sprintf("batch-act-%03d", i),
			LayerID:      layer.LayerID,
			Step:         i,
			Values:       make([]float64, 12),
		}
	}

	if err := svc.BatchInsertActivations(acts); err != nil {
		t.Fatalf("BatchInsertActivations failed: %v", err)
	}

	got, err := svc.QueryActivations(layer.LayerID)
	if err != nil {
		t.Fatalf("QueryActivations after batch failed: %v", err)
	}
	if len(got) != 100 {
		t.Errorf("expected 100 activations, got %d", len(got))
	}
}

func TestBatchInsertRollsBack(t *testing.T) {
	svc := newTestService(t)
	_, layer := seedRun(t, svc, "run-rollback")

	acts := []*Activation{
		{LayerID: layer.LayerID, Step: 0, Values: []float64{1}},
		{LayerID: "no-such-layer", Step: 1, Values: []float64{1}},
	}
	if err := svc.BatchInsertActivations(acts); err == nil {
		t.Fatal("expected foreign key failure")
	}

	got, _ := svc.QueryActivations(layer.LayerID)
	if len(got) != 0 {
		t.Errorf("expected rollback, found %d activations", len(got))
	}
}

// TestGetRunStats verifies aggregated statistics computation.
func TestGetRunStats(t *testing.T) {
	svc := newTestService(t)
	_, l0 := seedRun(t, svc, "run-stats")
	l1 := &LayerInfo{RunID: "run-stats", LayerIndex: 1, Name: "pool", Width: 2, Depth: 3}
	svc.InsertLayer(l1)

	for step := 0; step < 3; step++ {
		svc.InsertActivation(&Activation{LayerID: l0.LayerID, Step: step, Values: make([]float64, 12)})
	}
	svc.InsertActivation(&Activation{LayerID: l1.LayerID, Step: 4, Values: make([]float64, 6)})

	stats, err := svc.GetRunStats("run-stats")
	if err != nil {
		t.Fatalf("GetRunStats failed: %v", err)
	}

	want := &RunStats{
		RunID:           "run-stats",
		LayerCount:      2,
		ActivationCount: 4,
		StepCount:       4,
		MaxStep:         4,
		TotalValues:     42,
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

// TestPendingWrites verifies the crash recovery mechanism.
func TestPendingWrites(t *testing.T) {
	svc := newTestService(t)

	payload := []byte(`{"test": "data"}`)

	writeID, err := svc.WritePendingPayload(payload)
	if err != nil {
		t.Fatalf("WritePendingPayload failed: %v", err)
	}

	pending, err := svc.GetPendingPayloads()
	if err != nil {
		t.Fatalf("GetPendingPayloads failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending write, got %d", len(pending))
	}
	if string(pending[0].Payload) != string(payload) || pending[0].CreatedAt == 0 {
		t.Errorf("unexpected pending write %+v", pending[0])
	}

	if err := svc.CommitPendingPayload(writeID); err != nil {
		t.Fatalf("CommitPendingPayload failed: %v", err)
	}

	pending, err = svc.GetPendingPayloads()
	if err != nil {
		t.Fatalf("GetPendingPayloads after commit failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending writes after commit, got %d", len(pending))
	}
}

// TestRunFilter verifies filtering runs by model, status and time.
func TestRunFilter(t *testing.T) {
	svc := newTestService(t)

	now := time.Now().UnixNano()
	svc.InsertRun(&Run{RunID: "r1", ModelName: "alpha", StartedAt: now, Status: "completed"})
	svc.InsertRun(&Run{RunID: "r2", ModelName: "beta", StartedAt: now + 1000, Status: "running"})
	svc.InsertRun(&Run{RunID: "r3", ModelName: "alpha", StartedAt: now + 2000, Status: "failed"})

	model := "alpha"
	runs, err := svc.QueryRuns(RunFilter{ModelName: &model})
	if err != nil {
		t.Fatalf("QueryRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 alpha runs, got %d", len(runs))
	}
	if runs[0].RunID != "r3" {
		t.Errorf("expected newest first, got %s", runs[0].RunID)
	}

	status := "running"
	runs, _ = svc.QueryRuns(RunFilter{Status: &status})
	if len(runs) != 1 || runs[0].RunID != "r2" {
		t.Errorf("status filter returned %v", runs)
	}

	since := now + 500
	runs, _ = svc.QueryRuns(RunFilter{Since: &since, Limit: 1})
	if len(runs) != 1 || runs[0].RunID != "r3" {
		t.Errorf("since+limit returned %v", runs)
	}

	runs, _ = svc.QueryRuns(RunFilter{Limit: 1, Offset: 1})
	if len(runs) != 1 || runs[0].RunID != "r2" {
		t.Errorf("offset returned %v", runs)
	}
}

func TestDecodeValuesRejectsTruncatedBlob(t *testing.T) {
	if _, err := decodeValues(make([]byte, 9)); err == nil {
		t.Error("expected error for 9-byte blob")
	}
	got, err := decodeValues(encodeValues([]float64{1.25, -3}))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{1.25, -3}, got); diff != "" {
		t.Errorf("decode mismatch (-want +got):\n%s", diff)
	}
}
