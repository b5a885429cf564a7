// Package ingestion implements the crash-safe ingestion service for
// LayerLens. It receives recorded layer activations over a local
// socket, buffers them, and batches writes to the SQLite database.
//
// Architecture:
//
//	Recorder → Unix socket / TCP → Ingester → Batch Buffer → DBService
//
// Runs and layers are written as they arrive so that activations never
// reference a missing layer. Activations are buffered and committed
// every FlushInterval or BatchSize records, whichever comes first.
// Batch messages are journaled to pending_writes before processing
// and replayed on the next start if the daemon died mid-batch.
package ingestion

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mr-Dark-debug/layerlens/internal/database"
)

// Ingester defines the interface for the ingestion service.
type Ingester interface {
	// Start begins listening for incoming activation data.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the ingester, flushing remaining data.
	Stop() error
	// Metrics returns the current ingestion metrics.
	Metrics() IngestionMetrics
}

// IngestionMetrics tracks throughput and error rates.
type IngestionMetrics struct {
	RunsIngested        int64 `json:"runs_ingested"`
	LayersIngested      int64 `json:"layers_ingested"`
	ActivationsIngested int64 `json:"activations_ingested"`
	ErrorCount          int64 `json:"error_count"`
	BatchesCommitted    int64 `json:"batches_committed"`
	Uptime              int64 `json:"uptime_seconds"`
}

// Config holds configuration for the ingestion daemon.
type Config struct {
	// ListenAddr is a socket path on Unix and a TCP address on Windows.
	ListenAddr string `json:"listen_addr"`

	// DBPath is the path to the SQLite database file.
	DBPath string `json:"db_path"`

	// MetricsAddr is the HTTP address for metrics. Empty disables it.
	MetricsAddr string `json:"metrics_addr"`

	// BatchSize is the maximum number of activations buffered before a flush.
	BatchSize int `json:"batch_size"`

	// FlushInterval is the maximum time between batch flushes.
	FlushInterval time.Duration `json:"flush_interval"`

	// MaxMessageBytes rejects larger payloads.
	MaxMessageBytes uint32 `json:"max_message_bytes"`
}

// DefaultConfig returns sensible defaults for the ingestion daemon.
func DefaultConfig() Config {
	listenAddr := "127.0.0.1:9886"
	if runtime.GOOS != "windows" {
		listenAddr = "/tmp/layerlens.sock"
	}

	homeDir, _ := os.UserHomeDir()
	dbPath := filepath.Join(homeDir, ".layerlens", "layerlens.db")

	return Config{
		ListenAddr:      listenAddr,
		DBPath:          dbPath,
		MetricsAddr:     "127.0.0.1:9887",
		BatchSize:       500,
		FlushInterval:   500 * time.Millisecond,
		MaxMessageBytes: 64 * 1024 * 1024,
	}
}

// Network returns the listener network for the current platform.
func Network() string {
	if runtime.GOOS == "windows" {
		return "tcp"
	}
	return "unix"
}

// ============================================================
// Wire Protocol
// ============================================================

// MessageType discriminates the kind of payload in the wire protocol.
type MessageType byte

const (
	MsgRun        MessageType = 0x01
	MsgLayer      MessageType = 0x02
	MsgActivation MessageType = 0x03
	MsgBatch      MessageType = 0x04
)

// Acknowledgement bytes written back after every message.
const (
	AckOK    byte = 0x00
	AckError byte = 0x01
)

var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrUnknownMessage  = errors.New("unknown message type")
)

// BatchMessage carries any mix of records. They are applied runs
// first, then layers, then activations.
type BatchMessage struct {
	Runs        []*database.Run        `json:"runs,omitempty"`
	Layers      []*database.LayerInfo  `json:"layers,omitempty"`
	Activations []*database.Activation `json:"activations,omitempty"`
}

// writeFrame encodes one message as [type][4-byte BE length][payload].
func writeFrame(w io.Writer, t MessageType, payload []byte) error {
	hdr := make([]byte, 5)
	hdr[0] = byte(t)
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(payload)))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one message. io.EOF is returned unwrapped when the
// peer closed cleanly between frames.
func readFrame(r io.Reader, max uint32) (MessageType, []byte, error) {
	hdr := make([]byte, 5)
	if _, err := io.ReadFull(r, hdr); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, fmt.Errorf("reading header: %w", err)
		}
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(hdr[1:])
	if max > 0 && n > max {
		return 0, nil, fmt.Errorf("%d bytes: %w", n, ErrMessageTooLarge)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("reading payload: %w", err)
	}
	return MessageType(hdr[0]), payload, nil
}

// ============================================================
// DaemonIngester Implementation
// ============================================================

// DaemonIngester is the production implementation of the Ingester interface.
type DaemonIngester struct {
	config  Config
	store   database.Store
	metrics IngestionMetrics

	actChan chan *database.Activation

	listener net.Listener
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	connWG   sync.WaitGroup
	wg       sync.WaitGroup
	started  time.Time

	cancel context.CancelFunc
}

var _ Ingester = (*DaemonIngester)(nil)

// NewDaemonIngester creates a new ingestion daemon with the given configuration.
func NewDaemonIngester(config Config, store database.Store) *DaemonIngester {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultConfig().FlushInterval
	}
	return &DaemonIngester{
		config:  config,
		store:   store,
		actChan: make(chan *database.Activation, config.BatchSize*2),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Addr is the bound listener address, valid after Start.
func (d *DaemonIngester) Addr() string {
	if d.listener == nil {
		return d.config.ListenAddr
	}
	return d.listener.Addr().String()
}

// Start replays pending writes from a previous crash, then begins
// accepting connections and flushing batches.
func (d *DaemonIngester) Start(ctx context.Context) error {
	d.started = time.Now()

	if err := d.replayPending(); err != nil {
		log.Printf("[WARN] Failed to replay pending writes: %v", err)
	}

	network := Network()
	if network == "unix" {
		// Remove stale socket file
		os.Remove(d.config.ListenAddr)
	}

	listener, err := net.Listen(network, d.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", d.config.ListenAddr, err)
	}
	d.listener = listener

	ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go d.flushLoop()

	if d.config.MetricsAddr != "" {
		d.wg.Add(1)
		go d.serveMetrics(ctx)
	}

	d.wg.Add(1)
	go d.acceptLoop(ctx)

	log.Printf("[INFO] LayerLens daemon listening on %s (network: %s)", d.config.ListenAddr, network)
	return nil
}

// Stop closes the listener and every open connection, then flushes
// whatever is still buffered.
func (d *DaemonIngester) Stop() error {
	log.Println("[INFO] Shutting down LayerLens daemon...")

	if d.cancel != nil {
		d.cancel()
	}
	if d.listener != nil {
		d.listener.Close()
	}

	d.mu.Lock()
	for c := range d.conns {
		c.Close()
	}
	d.mu.Unlock()

	// No handler can send on actChan once connWG drains.
	d.connWG.Wait()
	close(d.actChan)

	d.wg.Wait()

	log.Println("[INFO] LayerLens daemon stopped.")
	return nil
}

// Metrics returns a snapshot of the current ingestion metrics.
func (d *DaemonIngester) Metrics() IngestionMetrics {
	return IngestionMetrics{
		RunsIngested:        atomic.LoadInt64(&d.metrics.RunsIngested),
		LayersIngested:      atomic.LoadInt64(&d.metrics.LayersIngested),
		ActivationsIngested: atomic.LoadInt64(&d.metrics.ActivationsIngested),
		ErrorCount:          atomic.LoadInt64(&d.metrics.ErrorCount),
		BatchesCommitted:    atomic.LoadInt64(&d.metrics.BatchesCommitted),
		Uptime:              int64(time.Since(d.started).Seconds()),
	}
}

func (d *DaemonIngester) acceptLoop(ctx context.Context) {
	defer d.wg.Done()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				log.Printf("[ERROR] Accept failed: %v", err)
				continue
			}
		}

		d.mu.Lock()
		d.conns[conn] = struct{}{}
		d.mu.Unlock()

		d.connWG.Add(1)
		go d.handleConnection(ctx, conn)
	}
}

// handleConnection reads frames from one client and acknowledges each
// with AckOK or AckError.
func (d *DaemonIngester) handleConnection(ctx context.Context, conn net.Conn) {
	defer d.connWG.Done()
	defer func() {
		d.mu.Lock()
		delete(d.conns, conn)
		d.mu.Unlock()
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgType, payload, err := readFrame(conn, d.config.MaxMessageBytes)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Printf("[ERROR] Reading frame: %v", err)
				atomic.AddInt64(&d.metrics.ErrorCount, 1)
			}
			return
		}

		ack := AckOK
		if err := d.processMessage(msgType, payload); err != nil {
			log.Printf("[ERROR] Processing message: %v", err)
			atomic.AddInt64(&d.metrics.ErrorCount, 1)
			ack = AckError
		}
		if _, err := conn.Write([]byte{ack}); err != nil {
			return
		}
	}
}

// processMessage decodes a frame and routes it.
func (d *DaemonIngester) processMessage(msgType MessageType, payload []byte) error {
	switch msgType {
	case MsgRun:
		var run database.Run
		if err := json.Unmarshal(payload, &run); err != nil {
			return fmt.Errorf("unmarshaling run: %w", err)
		}
		if err := d.store.InsertRun(&run); err != nil {
			return err
		}
		atomic.AddInt64(&d.metrics.RunsIngested, 1)

	case MsgLayer:
		var layer database.LayerInfo
		if err := json.Unmarshal(payload, &layer); err != nil {
			return fmt.Errorf("unmarshaling layer: %w", err)
		}
		if err := d.store.InsertLayer(&layer); err != nil {
			return err
		}
		atomic.AddInt64(&d.metrics.LayersIngested, 1)

	case MsgActivation:
		var act database.Activation
		if err := json.Unmarshal(payload, &act); err != nil {
			return fmt.Errorf("unmarshaling activation: %w", err)
		}
		select {
		case d.actChan <- &act:
		default:
			// Buffer full: insert directly to avoid data loss
			if err := d.store.InsertActivation(&act); err != nil {
				return fmt.Errorf("direct activation insert: %w", err)
			}
		}
		atomic.AddInt64(&d.metrics.ActivationsIngested, 1)

	case MsgBatch:
		var batch BatchMessage
		if err := json.Unmarshal(payload, &batch); err != nil {
			return fmt.Errorf("unmarshaling batch: %w", err)
		}
		writeID, err := d.store.WritePendingPayload(payload)
		if err != nil {
			return fmt.Errorf("journaling batch: %w", err)
		}
		if err := d.processBatch(&batch); err != nil {
			return err
		}
		if err := d.store.CommitPendingPayload(writeID); err != nil {
			return fmt.Errorf("committing batch journal %d: %w", writeID, err)
		}

	default:
		return fmt.Errorf("0x%02x: %w", byte(msgType), ErrUnknownMessage)
	}

	return nil
}

// processBatch applies a batch message synchronously.
func (d *DaemonIngester) processBatch(batch *BatchMessage) error {
	if err := ApplyBatch(d.store, batch); err != nil {
		return err
	}
	atomic.AddInt64(&d.metrics.RunsIngested, int64(len(batch.Runs)))
	atomic.AddInt64(&d.metrics.LayersIngested, int64(len(batch.Layers)))
	atomic.AddInt64(&d.metrics.ActivationsIngested, int64(len(batch.Activations)))
	atomic.AddInt64(&d.metrics.BatchesCommitted, 1)
	return nil
}

// flushLoop commits buffered activations when BatchSize accumulate or
// FlushInterval elapses. It drains the channel before returning.
func (d *DaemonIngester) flushLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.FlushInterval)
	defer ticker.Stop()

	buf := make([]*database.Activation, 0, d.config.BatchSize)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		if err := d.store.BatchInsertActivations(buf); err != nil {
			log.Printf("[ERROR] Flushing activation batch: %v", err)
			atomic.AddInt64(&d.metrics.ErrorCount, 1)
		} else {
			atomic.AddInt64(&d.metrics.BatchesCommitted, 1)
		}
		buf = buf[:0]
	}

	for {
		select {
		case act, ok := <-d.actChan:
			if !ok {
				flush()
				return
			}
			buf = append(buf, act)
			if len(buf) >= d.config.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// replayPending replays any pending writes from a previous crash.
func (d *DaemonIngester) replayPending() error {
	pending, err := d.store.GetPendingPayloads()
	if err != nil {
		return fmt.Errorf("getting pending payloads: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	log.Printf("[INFO] Replaying %d pending writes from crash recovery", len(pending))

	for _, pw := range pending {
		var batch BatchMessage
		if err := json.Unmarshal(pw.Payload, &batch); err != nil {
			log.Printf("[WARN] Skipping corrupt pending write %d: %v", pw.WriteID, err)
			continue
		}

		if err := d.processBatch(&batch); err != nil {
			log.Printf("[ERROR] Failed to replay pending write %d: %v", pw.WriteID, err)
			continue
		}

		if err := d.store.CommitPendingPayload(pw.WriteID); err != nil {
			log.Printf("[ERROR] Failed to commit pending write %d: %v", pw.WriteID, err)
		}
	}

	return nil
}

// metricsHandler serves /health, /metrics and /api/metrics.
func (d *DaemonIngester) metricsHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// Prometheus text exposition format
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		m := d.Metrics()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		counters := []struct {
			name, help string
			v          int64
		}{
			{"layerlens_runs_ingested_total", "Total runs ingested", m.RunsIngested},
			{"layerlens_layers_ingested_total", "Total layers ingested", m.LayersIngested},
			{"layerlens_activations_ingested_total", "Total activations ingested", m.ActivationsIngested},
			{"layerlens_errors_total", "Total errors", m.ErrorCount},
			{"layerlens_batches_committed_total", "Total batches committed", m.BatchesCommitted},
		}
		for _, c := range counters {
			fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help)
			fmt.Fprintf(w, "# TYPE %s counter\n", c.name)
			fmt.Fprintf(w, "%s %d\n", c.name, c.v)
		}
		fmt.Fprintf(w, "# HELP layerlens_uptime_seconds Uptime in seconds\n")
		fmt.Fprintf(w, "# TYPE layerlens_uptime_seconds gauge\n")
		fmt.Fprintf(w, "layerlens_uptime_seconds %d\n", m.Uptime)
	})

	mux.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(d.Metrics())
	})

	return mux
}

func (d *DaemonIngester) serveMetrics(ctx context.Context) {
	defer d.wg.Done()

	server := &http.Server{
		Addr:    d.config.MetricsAddr,
		Handler: d.metricsHandler(),
	}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	log.Printf("[INFO] Metrics server listening on http://%s/metrics", d.config.MetricsAddr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Printf("[ERROR] Metrics server: %v", err)
	}
}
