// LayerLens TUI: the interactive layer viewer.
//
// Usage:
//
//	layerlens-tui [flags]
//
// Flags:
//
//	--config  JSON viewer configuration (optional)
//	--db      Path to SQLite database file (default: ~/.layerlens/layerlens.db)
//	--log     Debug log file (default: none)
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Mr-Dark-debug/layerlens/internal/config"
	"github.com/Mr-Dark-debug/layerlens/internal/database"
	"github.com/Mr-Dark-debug/layerlens/internal/layer"
	"github.com/Mr-Dark-debug/layerlens/internal/tui"
)

func main() {
	configPath := flag.String("config", "", "JSON viewer configuration file")
	dbPath := flag.String("db", "", "Path to SQLite database file (overrides config)")
	logPath := flag.String("log", "", "Write debug logs to this file")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	// The terminal belongs to the UI; logs go to a file or nowhere.
	if *logPath != "" {
		f, err := tea.LogToFile(*logPath, "layerlens")
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
	} else {
		log.SetOutput(io.Discard)
		layer.SetLogger(nil)
	}

	store, err := database.NewDBService(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database at %s: %v\n"+
			"Record a run first: layerlens import --file run.json\n", cfg.DBPath, err)
		os.Exit(1)
	}
	defer store.Close()

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.Mouse {
		opts = append(opts, tea.WithMouseAllMotion())
	}
	p := tea.NewProgram(tui.NewModel(store, cfg), opts...)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
