package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mr-Dark-debug/layerlens/internal/database"
)

func newTestStore(t *testing.T) *database.DBService {
	t.Helper()
	svc, err := database.NewDBService(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.MetricsAddr = ""
	cfg.BatchSize = 4
	cfg.FlushInterval = 10 * time.Millisecond
	if runtime.GOOS == "windows" {
		cfg.ListenAddr = "127.0.0.1:0"
	} else {
		cfg.ListenAddr = filepath.Join(t.TempDir(), "ll.sock")
	}
	return cfg
}

func testRecords() (*database.Run, *database.LayerInfo) {
	run := &database.Run{RunID: "run-1", ModelName: "conv-net", StartedAt: 1, Status: "running"}
	layer := &database.LayerInfo{LayerID: "layer-1", RunID: "run-1", Name: "conv1d_1", Width: 2, Depth: 3}
	return run, layer
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, MsgLayer, []byte(`{"a":1}`)))

	typ, payload, err := readFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, MsgLayer, typ)
	assert.Equal(t, `{"a":1}`, string(payload))

	_, _, err = readFrame(&buf, 0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, MsgActivation, make([]byte, 64)))

	_, _, err := readFrame(&buf, 16)
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestProcessMessage(t *testing.T) {
	store := newTestStore(t)
	d := NewDaemonIngester(testConfig(t), store)
	run, layer := testRecords()

	require.NoError(t, d.processMessage(MsgRun, mustJSON(t, run)))
	require.NoError(t, d.processMessage(MsgLayer, mustJSON(t, layer)))

	act := &database.Activation{LayerID: layer.LayerID, Step: 0, Values: []float64{1, 2, 3, 4, 5, 6}}
	require.NoError(t, d.processMessage(MsgActivation, mustJSON(t, act)))

	// Activations are buffered, not yet written.
	assert.Len(t, d.actChan, 1)

	err := d.processMessage(MessageType(0x7f), nil)
	assert.ErrorIs(t, err, ErrUnknownMessage)

	err = d.processMessage(MsgRun, []byte("{"))
	assert.Error(t, err)

	m := d.Metrics()
	assert.EqualValues(t, 1, m.RunsIngested)
	assert.EqualValues(t, 1, m.LayersIngested)
	assert.EqualValues(t, 1, m.ActivationsIngested)
}

func TestProcessMessageBufferFullInsertsDirectly(t *testing.T) {
	store := newTestStore(t)
	cfg := testConfig(t)
	cfg.BatchSize = 1
	d := NewDaemonIngester(cfg, store)
	run, layer := testRecords()
	require.NoError(t, store.InsertRun(run))
	require.NoError(t, store.InsertLayer(layer))

	for step := 0; step < 3; step++ {
		act := &database.Activation{LayerID: layer.LayerID, Step: step, Values: make([]float64, 6)}
		require.NoError(t, d.processMessage(MsgActivation, mustJSON(t, act)))
	}

	// Capacity is 2; the third goes straight to the store.
	acts, err := store.QueryActivations(layer.LayerID)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, 2, acts[0].Step)
}

func TestProcessBatchJournals(t *testing.T) {
	store := newTestStore(t)
	d := NewDaemonIngester(testConfig(t), store)
	run, layer := testRecords()

	batch := BatchMessage{
		Runs:   []*database.Run{run},
		Layers: []*database.LayerInfo{layer},
		Activations: []*database.Activation{
			{LayerID: layer.LayerID, Step: 0, Values: []float64{1, 2, 3, 4, 5, 6}},
			{LayerID: layer.LayerID, Step: 1, Values: []float64{6, 5, 4, 3, 2, 1}},
		},
	}
	require.NoError(t, d.processMessage(MsgBatch, mustJSON(t, batch)))

	acts, err := store.QueryActivations(layer.LayerID)
	require.NoError(t, err)
	assert.Len(t, acts, 2)

	pending, err := store.GetPendingPayloads()
	require.NoError(t, err)
	assert.Empty(t, pending, "journal entry should be committed")
	assert.EqualValues(t, 1, d.Metrics().BatchesCommitted)
}

func TestProcessBatchFailureLeavesJournal(t *testing.T) {
	store := newTestStore(t)
	d := NewDaemonIngester(testConfig(t), store)

	// Layer references a run that does not exist.
	_, layer := testRecords()
	err := d.processMessage(MsgBatch, mustJSON(t, BatchMessage{Layers: []*database.LayerInfo{layer}}))
	require.Error(t, err)

	pending, err := store.GetPendingPayloads()
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestReplayPending(t *testing.T) {
	store := newTestStore(t)
	run, layer := testRecords()
	batch := BatchMessage{
		Runs:        []*database.Run{run},
		Layers:      []*database.LayerInfo{layer},
		Activations: []*database.Activation{{LayerID: layer.LayerID, Step: 3, Values: make([]float64, 6)}},
	}
	_, err := store.WritePendingPayload(mustJSON(t, batch))
	require.NoError(t, err)
	_, err = store.WritePendingPayload([]byte("not json"))
	require.NoError(t, err)

	d := NewDaemonIngester(testConfig(t), store)
	require.NoError(t, d.replayPending())

	got, err := store.GetActivation(layer.LayerID, 3)
	require.NoError(t, err)
	assert.Len(t, got.Values, 6)

	// The corrupt entry is skipped and stays pending.
	pending, err := store.GetPendingPayloads()
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestDaemonEndToEnd(t *testing.T) {
	store := newTestStore(t)
	d := NewDaemonIngester(testConfig(t), store)
	require.NoError(t, d.Start(context.Background()))

	client, err := Dial(d.Addr(), time.Second)
	require.NoError(t, err)

	run, layer := testRecords()
	require.NoError(t, client.SendRun(run))
	require.NoError(t, client.SendLayer(layer))
	for step := 0; step < 10; step++ {
		act := &database.Activation{LayerID: layer.LayerID, Step: step, Values: []float64{float64(step), 0, 0, 0, 0, 0}}
		require.NoError(t, client.SendActivation(act))
	}

	// A layer for an unknown run is rejected but the connection survives.
	bad := &database.LayerInfo{LayerID: "orphan", RunID: "missing", Width: 1, Depth: 1}
	assert.True(t, errors.Is(client.SendLayer(bad), ErrRejected))
	require.NoError(t, client.SendRun(&database.Run{RunID: "run-2", ModelName: "m", StartedAt: 2}))

	require.NoError(t, client.Close())
	require.NoError(t, d.Stop())

	stats, err := store.GetRunStats(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.LayerCount)
	assert.Equal(t, 10, stats.ActivationCount)
	assert.Equal(t, 9, stats.MaxStep)

	m := d.Metrics()
	assert.EqualValues(t, 2, m.RunsIngested)
	assert.EqualValues(t, 10, m.ActivationsIngested)
	assert.EqualValues(t, 1, m.ErrorCount)
}

func TestMetricsHandler(t *testing.T) {
	d := NewDaemonIngester(testConfig(t), newTestStore(t))
	d.started = time.Now()
	h := d.metricsHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "layerlens_activations_ingested_total 0"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	var m IngestionMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Zero(t, m.ErrorCount)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Contains(t, rec.Body.String(), `"ok"`)
}
