// Package database provides the storage layer for LayerLens.
//
// It implements the Store interface using SQLite with WAL mode. The
// schema lives in embedded golang-migrate migrations that are applied
// when the service opens. Recorded runs hold one row per layer and one
// row per (layer, step) activation; activations keep their raw values
// channels-last, exactly as the layer controller consumes them.
package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Store defines the interface for activation data persistence.
type Store interface {
	// InsertRun persists a run, updating status and end time on conflict.
	InsertRun(run *Run) error
	// InsertLayer persists the shape of one layer within a run.
	InsertLayer(layer *LayerInfo) error
	// InsertActivation persists one recorded layer output.
	InsertActivation(act *Activation) error

	// BatchInsertActivations inserts many activations in one transaction.
	BatchInsertActivations(acts []*Activation) error

	// QueryRuns returns runs matching the filter, newest first.
	QueryRuns(filter RunFilter) ([]*Run, error)
	// ListLayers returns a run's layers ordered by index.
	ListLayers(runID string) ([]*LayerInfo, error)
	// GetLayer returns a single layer or ErrNotFound.
	GetLayer(layerID string) (*LayerInfo, error)
	// QueryActivations returns a layer's activations ordered by step.
	QueryActivations(layerID string) ([]*Activation, error)
	// GetActivation returns the activation at one step or ErrNotFound.
	GetActivation(layerID string, step int) (*Activation, error)
	// GetRunStats returns aggregated counts for a run.
	GetRunStats(runID string) (*RunStats, error)

	// WritePendingPayload stores a raw payload for crash recovery.
	WritePendingPayload(payload []byte) (int64, error)
	// CommitPendingPayload marks a pending write as committed.
	CommitPendingPayload(writeID int64) error
	// GetPendingPayloads returns all payloads that haven't been committed.
	GetPendingPayloads() ([]PendingWrite, error)

	Close() error
}

// ============================================================
// Domain Models
// ============================================================

// Run is one recorded pass over a model.
type Run struct {
	RunID     string            `json:"run_id"`
	ModelName string            `json:"model_name"`
	StartedAt int64             `json:"started_at"`
	EndedAt   *int64            `json:"ended_at,omitempty"`
	Status    string            `json:"status"`
	Notes     *string           `json:"notes,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// LayerInfo is the static shape of one layer in a run.
type LayerInfo struct {
	LayerID    string `json:"layer_id"`
	RunID      string `json:"run_id"`
	LayerIndex int    `json:"layer_index"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Width      int    `json:"width"`
	Depth      int    `json:"depth"`
	Color      string `json:"color,omitempty"`
}

// Activation is one layer output, width*depth values channels-last.
type Activation struct {
	ActivationID string    `json:"activation_id"`
	LayerID      string    `json:"layer_id"`
	Step         int       `json:"step"`
	RecordedAt   int64     `json:"recorded_at"`
	Values       []float64 `json:"values"`
}

// RunFilter defines query parameters for run listing.
type RunFilter struct {
	ModelName *string `json:"model_name,omitempty"`
	Status    *string `json:"status,omitempty"`
	Since     *int64  `json:"since,omitempty"` // Unix nanoseconds
	Until     *int64  `json:"until,omitempty"` // Unix nanoseconds
	Limit     int     `json:"limit"`
	Offset    int     `json:"offset"`
}

// RunStats holds aggregated counts for a single run.
type RunStats struct {
	RunID           string `json:"run_id"`
	LayerCount      int    `json:"layer_count"`
	ActivationCount int    `json:"activation_count"`
	StepCount       int    `json:"step_count"`
	MaxStep         int    `json:"max_step"`
	TotalValues     int64  `json:"total_values"`
}

// PendingWrite represents an uncommitted ingestion payload.
type PendingWrite struct {
	WriteID   int64  `json:"write_id"`
	Payload   []byte `json:"payload"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// ============================================================
// DBService Implementation
// ============================================================

// DBService implements the Store interface using SQLite.
// It serialises writers through a read-write mutex.
type DBService struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string

	// Prepared statements for hot-path operations
	stmtInsertRun        *sql.Stmt
	stmtInsertLayer      *sql.Stmt
	stmtInsertActivation *sql.Stmt
	stmtInsertPending    *sql.Stmt
	stmtCommitPending    *sql.Stmt
}

var _ Store = (*DBService)(nil)

// NewDBService opens the database, migrates it to the latest schema
// and prepares frequently-used statements.
//
// Use ":memory:" for in-memory databases (useful for testing).
func NewDBService(path string) (*DBService, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON&_cache_size=-64000", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database at %s: %w", path, err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	svc := &DBService{
		db:   db,
		path: path,
	}

	if err := svc.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	if err := svc.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing statements: %w", err)
	}

	return svc, nil
}

// Path is the location the service was opened with.
func (s *DBService) Path() string { return s.path }

func (s *DBService) prepareStatements() error {
	var err error

	s.stmtInsertRun, err = s.db.Prepare(`
		INSERT INTO runs (run_id, model_name, started_at, ended_at, status, notes, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			ended_at = COALESCE(excluded.ended_at, runs.ended_at),
			status = excluded.status,
			notes = COALESCE(excluded.notes, runs.notes),
			metadata = COALESCE(excluded.metadata, runs.metadata)
	`)
	if err != nil {
		return fmt.Errorf("preparing InsertRun: %w", err)
	}

	s.stmtInsertLayer, err = s.db.Prepare(`
		INSERT INTO layers (layer_id, run_id, layer_index, name, kind, width, depth, color)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(layer_id) DO UPDATE SET
			name = excluded.name,
			color = COALESCE(excluded.color, layers.color)
	`)
	if err != nil {
		return fmt.Errorf("preparing InsertLayer: %w", err)
	}

	s.stmtInsertActivation, err = s.db.Prepare(`
		INSERT INTO activations (activation_id, layer_id, step, recorded_at, value_count, vals)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(layer_id, step) DO UPDATE SET
			recorded_at = excluded.recorded_at,
			value_count = excluded.value_count,
			vals = excluded.vals
	`)
	if err != nil {
		return fmt.Errorf("preparing InsertActivation: %w", err)
	}

	s.stmtInsertPending, err = s.db.Prepare(`
		INSERT INTO pending_writes (payload, status) VALUES (?, 'pending')
	`)
	if err != nil {
		return fmt.Errorf("preparing InsertPending: %w", err)
	}

	s.stmtCommitPending, err = s.db.Prepare(`
		UPDATE pending_writes SET status = 'committed', committed_at = ? WHERE write_id = ?
	`)
	if err != nil {
		return fmt.Errorf("preparing CommitPending: %w", err)
	}

	return nil
}

// InsertRun persists a run. An empty RunID is filled with a new UUID.
func (s *DBService) InsertRun(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = "running"
	}

	var metadataJSON *string
	if run.Metadata != nil {
		b, err := json.Marshal(run.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling run metadata: %w", err)
		}
		str := string(b)
		metadataJSON = &str
	}

	_, err := s.stmtInsertRun.Exec(
		run.RunID, run.ModelName, run.StartedAt, run.EndedAt,
		run.Status, run.Notes, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.RunID, err)
	}
	return nil
}

// InsertLayer persists a layer shape. An empty LayerID is filled with
// a new UUID.
func (s *DBService) InsertLayer(layer *LayerInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if layer.LayerID == "" {
		layer.LayerID = uuid.NewString()
	}
	if layer.Kind == "" {
		layer.Kind = "layer2d"
	}

	var color *string
	if layer.Color != "" {
		color = &layer.Color
	}

	_, err := s.stmtInsertLayer.Exec(
		layer.LayerID, layer.RunID, layer.LayerIndex, layer.Name,
		layer.Kind, layer.Width, layer.Depth, color,
	)
	if err != nil {
		return fmt.Errorf("inserting layer %s: %w", layer.LayerID, err)
	}
	return nil
}

// InsertActivation persists one activation. Re-recording the same
// (layer, step) replaces the stored values.
func (s *DBService) InsertActivation(act *Activation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := execActivation(s.stmtInsertActivation, act); err != nil {
		return fmt.Errorf("inserting activation %s: %w", act.ActivationID, err)
	}
	return nil
}

func execActivation(stmt *sql.Stmt, act *Activation) error {
	if act.ActivationID == "" {
		act.ActivationID = uuid.NewString()
	}
	if act.RecordedAt == 0 {
		act.RecordedAt = time.Now().UnixNano()
	}
	_, err := stmt.Exec(
		act.ActivationID, act.LayerID, act.Step, act.RecordedAt,
		len(act.Values), encodeValues(act.Values),
	)
	return err
}

// BatchInsertActivations inserts multiple activations within a single
// transaction for improved throughput during batch ingestion.
func (s *DBService) BatchInsertActivations(acts []*Activation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning batch activation transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt := tx.Stmt(s.stmtInsertActivation)
	for _, act := range acts {
		if err := execActivation(stmt, act); err != nil {
			return fmt.Errorf("batch inserting activation for layer %s step %d: %w", act.LayerID, act.Step, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch activation transaction: %w", err)
	}
	return nil
}

// QueryRuns returns runs matching the given filter criteria.
// Results are ordered by started_at descending (most recent first).
func (s *DBService) QueryRuns(filter RunFilter) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT run_id, model_name, started_at, ended_at, status, notes, metadata FROM runs WHERE 1=1`
	args := make([]interface{}, 0)

	if filter.ModelName != nil {
		query += ` AND model_name = ?`
		args = append(args, *filter.ModelName)
	}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, *filter.Status)
	}
	if filter.Since != nil {
		query += ` AND started_at >= ?`
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		query += ` AND started_at <= ?`
		args = append(args, *filter.Until)
	}

	query += ` ORDER BY started_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else {
		query += ` LIMIT 100`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r := &Run{}
		var metadataStr *string
		if err := rows.Scan(&r.RunID, &r.ModelName, &r.StartedAt, &r.EndedAt, &r.Status, &r.Notes, &metadataStr); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		if metadataStr != nil {
			r.Metadata = make(map[string]string)
			if err := json.Unmarshal([]byte(*metadataStr), &r.Metadata); err != nil {
				// Non-fatal: metadata is supplementary
				r.Metadata = map[string]string{"_raw": *metadataStr}
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListLayers returns every layer recorded for a run, in index order.
func (s *DBService) ListLayers(runID string) ([]*LayerInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT layer_id, run_id, layer_index, name, kind, width, depth, COALESCE(color, '')
		FROM layers
		WHERE run_id = ?
		ORDER BY layer_index ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying layers for run %s: %w", runID, err)
	}
	defer rows.Close()

	var layers []*LayerInfo
	for rows.Next() {
		l := &LayerInfo{}
		if err := scanLayer(rows, l); err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, rows.Err()
}

// GetLayer returns one layer by ID.
func (s *DBService) GetLayer(layerID string) (*LayerInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT layer_id, run_id, layer_index, name, kind, width, depth, COALESCE(color, '')
		FROM layers
		WHERE layer_id = ?
	`, layerID)

	l := &LayerInfo{}
	if err := scanLayer(row, l); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("layer %s: %w", layerID, ErrNotFound)
		}
		return nil, err
	}
	return l, nil
}

// QueryActivations returns all activations of a layer, ordered by step.
// This is the primary query for stepping through a layer in the TUI.
func (s *DBService) QueryActivations(layerID string) ([]*Activation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT activation_id, layer_id, step, recorded_at, value_count, vals
		FROM activations
		WHERE layer_id = ?
		ORDER BY step ASC
	`, layerID)
	if err != nil {
		return nil, fmt.Errorf("querying activations for layer %s: %w", layerID, err)
	}
	defer rows.Close()

	var acts []*Activation
	for rows.Next() {
		a := &Activation{}
		if err := scanActivation(rows, a); err != nil {
			return nil, err
		}
		acts = append(acts, a)
	}
	return acts, rows.Err()
}

// GetActivation returns the activation of a layer at one step.
func (s *DBService) GetActivation(layerID string, step int) (*Activation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT activation_id, layer_id, step, recorded_at, value_count, vals
		FROM activations
		WHERE layer_id = ? AND step = ?
	`, layerID, step)

	a := &Activation{}
	if err := scanActivation(row, a); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("activation %s@%d: %w", layerID, step, ErrNotFound)
		}
		return nil, err
	}
	return a, nil
}

// GetRunStats returns aggregated counts for a run.
func (s *DBService) GetRunStats(runID string) (*RunStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &RunStats{RunID: runID}

	err := s.db.QueryRow(`SELECT COUNT(*) FROM layers WHERE run_id = ?`, runID).Scan(&stats.LayerCount)
	if err != nil {
		return nil, fmt.Errorf("counting layers for run %s: %w", runID, err)
	}

	err = s.db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(DISTINCT a.step),
			COALESCE(MAX(a.step), 0),
			COALESCE(SUM(a.value_count), 0)
		FROM activations a
		INNER JOIN layers l ON a.layer_id = l.layer_id
		WHERE l.run_id = ?
	`, runID).Scan(&stats.ActivationCount, &stats.StepCount, &stats.MaxStep, &stats.TotalValues)
	if err != nil {
		return nil, fmt.Errorf("querying activation stats for run %s: %w", runID, err)
	}

	return stats, nil
}

// WritePendingPayload stores a raw payload in the pending_writes table
// for crash recovery. Returns the write ID for later commitment.
func (s *DBService) WritePendingPayload(payload []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.stmtInsertPending.Exec(payload)
	if err != nil {
		return 0, fmt.Errorf("writing pending payload: %w", err)
	}
	return result.LastInsertId()
}

// CommitPendingPayload marks a pending write as committed.
func (s *DBService) CommitPendingPayload(writeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixNano()
	_, err := s.stmtCommitPending.Exec(now, writeID)
	if err != nil {
		return fmt.Errorf("committing pending payload %d: %w", writeID, err)
	}
	return nil
}

// GetPendingPayloads returns all uncommitted payloads for crash recovery.
func (s *DBService) GetPendingPayloads() ([]PendingWrite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT write_id, payload, status, created_at
		FROM pending_writes
		WHERE status = 'pending'
		ORDER BY write_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying pending payloads: %w", err)
	}
	defer rows.Close()

	var writes []PendingWrite
	for rows.Next() {
		var w PendingWrite
		if err := rows.Scan(&w.WriteID, &w.Payload, &w.Status, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning pending write: %w", err)
		}
		writes = append(writes, w)
	}
	return writes, rows.Err()
}

// Close closes all prepared statements and the underlying connection pool.
func (s *DBService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmts := []*sql.Stmt{
		s.stmtInsertRun, s.stmtInsertLayer, s.stmtInsertActivation,
		s.stmtInsertPending, s.stmtCommitPending,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}

	return s.db.Close()
}

// ============================================================
// Scan Helpers
// ============================================================

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLayer(sc scanner, l *LayerInfo) error {
	err := sc.Scan(&l.LayerID, &l.RunID, &l.LayerIndex, &l.Name, &l.Kind, &l.Width, &l.Depth, &l.Color)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("scanning layer row: %w", err)
	}
	return err
}

func scanActivation(sc scanner, a *Activation) error {
	var count int
	var blob []byte
	err := sc.Scan(&a.ActivationID, &a.LayerID, &a.Step, &a.RecordedAt, &count, &blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("scanning activation row: %w", err)
	}
	vals, err := decodeValues(blob)
	if err != nil {
		return fmt.Errorf("activation %s: %w", a.ActivationID, err)
	}
	if len(vals) != count {
		return fmt.Errorf("activation %s: stored %d values, decoded %d", a.ActivationID, count, len(vals))
	}
	a.Values = vals
	return nil
}
