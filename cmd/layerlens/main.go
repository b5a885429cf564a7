// LayerLens CLI: record, query and analyze layer activations.
//
// Usage:
//
//	layerlens <command> [flags]
//
// Commands:
//
//	import    Load a JSON recording into the database or a running daemon
//	query     List runs, layers or activations
//	analyze   Run channel analysis on a run
//	status    Show daemon and database status
//	version   Print version information
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Mr-Dark-debug/layerlens/internal/analysis"
	"github.com/Mr-Dark-debug/layerlens/internal/database"
	"github.com/Mr-Dark-debug/layerlens/internal/ingestion"
	"github.com/Mr-Dark-debug/layerlens/pkg/jsonutil"
	"github.com/Mr-Dark-debug/layerlens/pkg/timeutil"
)

var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	homeDir, _ := os.UserHomeDir()
	defaultDB := filepath.Join(homeDir, ".layerlens", "layerlens.db")

	switch os.Args[1] {
	case "import":
		cmdImport(defaultDB)
	case "query":
		cmdQuery(defaultDB)
	case "analyze":
		cmdAnalyze(defaultDB)
	case "status":
		cmdStatus(defaultDB)
	case "version":
		fmt.Printf("LayerLens v%s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`LayerLens: look inside your network's layers

Usage:
  layerlens <command> [flags]

Commands:
  import     Load a JSON recording into the database or a running daemon
  query      List runs, layers or activations
  analyze    Run channel analysis on a run
  status     Show daemon and database status
  version    Print version information

Run 'layerlens <command> --help' for details on each command.`)
}

func openStore(path string) *database.DBService {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}
	store, err := database.NewDBService(path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	return store
}

func printJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
	fmt.Println(jsonutil.PrettyJSON(string(b)))
}

// cmdImport reads a recording and stores it, either directly or by
// sending it to the daemon as one batch.
func cmdImport(defaultDB string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	file := fs.String("file", "", "Recording JSON file (required, - for stdin)")
	dbPath := fs.String("db", defaultDB, "Path to SQLite database")
	daemon := fs.Bool("daemon", false, "Send to the running daemon instead of writing the database")
	addr := fs.String("addr", ingestion.DefaultConfig().ListenAddr, "Daemon address")
	fs.Parse(os.Args[2:])

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: --file is required")
		fs.Usage()
		os.Exit(1)
	}

	in := os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			log.Fatalf("Failed to open recording: %v", err)
		}
		defer f.Close()
		in = f
	}

	start := timeutil.NowNano()
	rec, err := ingestion.ParseRecording(in)
	if err != nil {
		log.Fatalf("Invalid recording: %v", err)
	}
	batch, err := rec.Batch(start, timeutil.NowNano())
	if err != nil {
		log.Fatalf("Invalid recording: %v", err)
	}

	if *daemon {
		client, err := ingestion.Dial(*addr, 5*time.Second)
		if err != nil {
			log.Fatalf("Daemon unreachable: %v", err)
		}
		defer client.Close()
		if err := client.SendBatch(batch); err != nil {
			if errors.Is(err, ingestion.ErrRejected) {
				log.Fatalf("Daemon rejected the recording; see the daemon log")
			}
			log.Fatalf("Send failed: %v", err)
		}
	} else {
		store := openStore(*dbPath)
		defer store.Close()
		if err := ingestion.ApplyBatch(store, batch); err != nil {
			log.Fatalf("Import failed: %v", err)
		}
	}

	fmt.Printf("Imported run %s: %d layers, %d activations\n",
		batch.Runs[0].RunID, len(batch.Layers), len(batch.Activations))
}

// cmdQuery lists runs, the layers of one run, or the activations of one layer.
func cmdQuery(defaultDB string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	dbPath := fs.String("db", defaultDB, "Path to SQLite database")
	modelName := fs.String("model", "", "Filter runs by model name")
	status := fs.String("status", "", "Filter runs by status")
	runID := fs.String("run", "", "Show layers for a run")
	layerID := fs.String("layer", "", "Show activations for a layer")
	asJSON := fs.Bool("json", false, "Print JSON")
	limit := fs.Int("limit", 20, "Maximum runs")
	fs.Parse(os.Args[2:])

	store := openStore(*dbPath)
	defer store.Close()

	switch {
	case *layerID != "":
		acts, err := store.QueryActivations(*layerID)
		if err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		if *asJSON {
			printJSON(acts)
			return
		}
		for _, a := range acts {
			b, _ := json.Marshal(a.Values)
			fmt.Printf("step %-5d %s  %s\n", a.Step,
				timeutil.FormatTimestamp(a.RecordedAt),
				jsonutil.TruncateString(jsonutil.CompactJSON(string(b)), 80))
		}

	case *runID != "":
		layers, err := store.ListLayers(*runID)
		if err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		if *asJSON {
			printJSON(layers)
			return
		}
		for _, l := range layers {
			fmt.Printf("%3d  %-24s %-10s %4d x %-4d %s\n",
				l.LayerIndex, l.Name, l.Kind, l.Width, l.Depth, l.LayerID)
		}

	default:
		filter := database.RunFilter{Limit: *limit}
		if *modelName != "" {
			filter.ModelName = modelName
		}
		if *status != "" {
			filter.Status = status
		}
		runs, err := store.QueryRuns(filter)
		if err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		if *asJSON {
			printJSON(runs)
			return
		}
		for _, r := range runs {
			fmt.Println(analysis.FormatRunLine(r))
		}
	}
}

// cmdAnalyze runs the full analysis suite on a run and outputs a report.
func cmdAnalyze(defaultDB string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	runID := fs.String("run", "", "Run ID to analyze (required)")
	dbPath := fs.String("db", defaultDB, "Path to SQLite database")
	outputFormat := fs.String("format", "markdown", "Output format: markdown, json")
	fs.Parse(os.Args[2:])

	if *runID == "" {
		fmt.Fprintln(os.Stderr, "Error: --run is required")
		fs.Usage()
		os.Exit(1)
	}

	store := openStore(*dbPath)
	defer store.Close()

	analyzer := analysis.NewAnalyzer(store)
	report, err := analyzer.FullAnalysis(*runID)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	switch *outputFormat {
	case "json":
		printJSON(report)
	case "markdown":
		fmt.Print(analyzer.FormatReport(report))
	default:
		fmt.Fprintf(os.Stderr, "Unknown format: %s\n", *outputFormat)
		os.Exit(1)
	}
}

// cmdStatus reports the schema version and queries the daemon's
// metrics endpoint.
func cmdStatus(defaultDB string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	dbPath := fs.String("db", defaultDB, "Path to SQLite database")
	metricsAddr := fs.String("metrics", ingestion.DefaultConfig().MetricsAddr, "Daemon metrics address")
	fs.Parse(os.Args[2:])

	if _, err := os.Stat(*dbPath); err == nil {
		store := openStore(*dbPath)
		version, dirty, err := store.MigrateVersion()
		store.Close()
		if err != nil {
			fmt.Printf("Database: %s (version unknown: %v)\n", *dbPath, err)
		} else {
			fmt.Printf("Database: %s (schema v%d, dirty=%v)\n", *dbPath, version, dirty)
		}
	} else {
		fmt.Printf("Database: %s (not created yet)\n", *dbPath)
	}
	fmt.Println()

	url := fmt.Sprintf("http://%s/api/metrics", *metricsAddr)
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Println("⚠ LayerLens daemon is not running.")
		fmt.Printf("  Start it with: layerlens-daemon\n")
		fmt.Printf("  (tried: %s)\n", url)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var metrics ingestion.IngestionMetrics
	if err := json.NewDecoder(resp.Body).Decode(&metrics); err != nil {
		log.Fatalf("Failed to decode metrics: %v", err)
	}

	fmt.Println("✅ LayerLens daemon is running.")
	fmt.Println()
	fmt.Printf("  Runs ingested:        %d\n", metrics.RunsIngested)
	fmt.Printf("  Layers ingested:      %d\n", metrics.LayersIngested)
	fmt.Printf("  Activations ingested: %d\n", metrics.ActivationsIngested)
	fmt.Printf("  Batches committed:    %d\n", metrics.BatchesCommitted)
	fmt.Printf("  Errors:               %d\n", metrics.ErrorCount)
	fmt.Printf("  Uptime:               %s\n", timeutil.FormatDuration(metrics.Uptime*1000))
}
