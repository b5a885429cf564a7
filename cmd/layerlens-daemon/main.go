// LayerLens Daemon: the ingestion service for recorded layer activations.
//
// Usage:
//
//	layerlens-daemon [flags]
//
// Flags:
//
//	--listen    UDS path, or TCP address on Windows (default: /tmp/layerlens.sock)
//	--db        Path to SQLite database file (default: ~/.layerlens/layerlens.db)
//	--metrics   HTTP address for metrics, empty to disable (default: 127.0.0.1:9887)
//	--batch     Batch size for flush (default: 500)
//	--flush     Flush interval (default: 500ms)
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Mr-Dark-debug/layerlens/internal/database"
	"github.com/Mr-Dark-debug/layerlens/internal/ingestion"
)

func main() {
	cfg := ingestion.DefaultConfig()

	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "UDS path or TCP listen address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite database file")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Metrics HTTP address")
	flag.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "Batch size before flush")
	flag.DurationVar(&cfg.FlushInterval, "flush", cfg.FlushInterval, "Maximum time between flushes")
	flag.Parse()

	// Ensure the database directory exists
	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		log.Fatalf("Failed to create database directory %s: %v", dbDir, err)
	}

	store, err := database.NewDBService(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	daemon := ingestion.NewDaemonIngester(cfg, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := daemon.Start(ctx); err != nil {
		log.Fatalf("Failed to start daemon: %v", err)
	}

	fmt.Println()
	fmt.Println("  LAYERLENS DAEMON")
	fmt.Println()
	fmt.Printf("  Listen:  %s (%s)\n", daemon.Addr(), ingestion.Network())
	fmt.Printf("  DB:      %s\n", cfg.DBPath)
	if cfg.MetricsAddr != "" {
		fmt.Printf("  Metrics: http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop.")
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\n  Shutting down gracefully...")
	cancel()
	if err := daemon.Stop(); err != nil {
		log.Printf("[ERROR] shutdown: %v", err)
	}

	fmt.Println("  Done.")
}
