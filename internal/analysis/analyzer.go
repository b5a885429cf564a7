// Package analysis provides lightweight, deterministic statistics over
// recorded layer activations. All analysis is plain numerics; nothing
// is learned or sampled.
//
// Key capabilities:
//   - Per-channel summary statistics (mean, spread, range, activity)
//   - Dead channel detection
//   - Hot channel detection via Z-score of channel means
//   - Activation drift across steps via linear regression
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Mr-Dark-debug/layerlens/internal/channel"
	"github.com/Mr-Dark-debug/layerlens/internal/database"
	"github.com/Mr-Dark-debug/layerlens/pkg/timeutil"
)

// ActiveThreshold is the magnitude above which a value counts as active.
const ActiveThreshold = 1e-6

// Analyzer computes activation statistics from a store.
type Analyzer struct {
	store    database.Store
	pipeline channel.Pipeline
}

// NewAnalyzer creates a new analysis engine backed by the given store.
func NewAnalyzer(store database.Store) *Analyzer {
	return &Analyzer{store: store}
}

// ============================================================
// Channel Statistics
// ============================================================

// ChannelStats summarises one channel across every position and step.
type ChannelStats struct {
	Channel        int     `json:"channel"`
	Mean           float64 `json:"mean"`
	Std            float64 `json:"std"`
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	ActiveFraction float64 `json:"active_fraction"`
}

// channelSamples gathers every value of each channel over all activations.
func (a *Analyzer) channelSamples(layer *database.LayerInfo, acts []*database.Activation) ([][]float64, error) {
	if layer.Depth <= 0 {
		return nil, channel.ErrBadDepth
	}
	samples := make([][]float64, layer.Depth)
	for _, act := range acts {
		ordered, err := a.pipeline.ChannelData(act.Values, layer.Depth)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", act.Step, err)
		}
		fm := len(ordered) / layer.Depth
		for c := 0; c < layer.Depth; c++ {
			samples[c] = append(samples[c], ordered[c*fm:(c+1)*fm]...)
		}
	}
	return samples, nil
}

func summarise(c int, xs []float64) ChannelStats {
	s := ChannelStats{Channel: c}
	if len(xs) == 0 {
		return s
	}
	s.Mean, s.Std = stat.PopMeanStdDev(xs, nil)
	s.Min = floats.Min(xs)
	s.Max = floats.Max(xs)

	active := 0
	for _, x := range xs {
		if math.Abs(x) > ActiveThreshold {
			active++
		}
	}
	s.ActiveFraction = float64(active) / float64(len(xs))
	return s
}

// ComputeChannelStats returns one entry per channel of the layer.
// A layer with no activations yields zeroed entries.
func (a *Analyzer) ComputeChannelStats(layerID string) ([]ChannelStats, error) {
	layer, err := a.store.GetLayer(layerID)
	if err != nil {
		return nil, fmt.Errorf("loading layer %s: %w", layerID, err)
	}
	acts, err := a.store.QueryActivations(layerID)
	if err != nil {
		return nil, fmt.Errorf("querying activations for %s: %w", layerID, err)
	}
	return a.channelStats(layer, acts)
}

func (a *Analyzer) channelStats(layer *database.LayerInfo, acts []*database.Activation) ([]ChannelStats, error) {
	samples, err := a.channelSamples(layer, acts)
	if err != nil {
		return nil, err
	}
	out := make([]ChannelStats, layer.Depth)
	for c, xs := range samples {
		out[c] = summarise(c, xs)
	}
	return out, nil
}

// StepStats summarises each channel of a single channels-last value.
func StepStats(values []float64, depth int) ([]ChannelStats, error) {
	var a Analyzer
	return a.channelStats(&database.LayerInfo{Depth: depth}, []*database.Activation{{Values: values}})
}

// DeadChannels lists channels that never rose above ActiveThreshold.
func DeadChannels(stats []ChannelStats) []int {
	var dead []int
	for _, s := range stats {
		if s.ActiveFraction == 0 {
			dead = append(dead, s.Channel)
		}
	}
	return dead
}

// ============================================================
// Hot Channel Detection
// ============================================================

// HotChannel is a channel whose mean activation is an outlier.
type HotChannel struct {
	Channel  int     `json:"channel"`
	Mean     float64 `json:"mean"`
	ZScore   float64 `json:"z_score"`
	Severity string  `json:"severity"` // "low", "medium", "high"
}

// DetectHotChannels computes the Z-score of each channel mean against
// the other channels of the same layer.
//
// A Z-score > 1.5 is reported as "low", > 2.0 as "medium" and
// > 3.0 as "high" severity.
func DetectHotChannels(stats []ChannelStats) []HotChannel {
	if len(stats) < 2 {
		return nil
	}

	means := make([]float64, len(stats))
	for i, s := range stats {
		means[i] = s.Mean
	}
	mean, std := stat.PopMeanStdDev(means, nil)
	if std == 0 {
		// Every channel behaves the same
		return nil
	}

	var hot []HotChannel
	for i, s := range stats {
		z := stat.StdScore(means[i], mean, std)
		if z <= 1.5 {
			continue
		}
		severity := "low"
		if z > 3.0 {
			severity = "high"
		} else if z > 2.0 {
			severity = "medium"
		}
		hot = append(hot, HotChannel{
			Channel:  s.Channel,
			Mean:     s.Mean,
			ZScore:   math.Round(z*100) / 100,
			Severity: severity,
		})
	}

	sort.Slice(hot, func(i, j int) bool {
		return hot[i].ZScore > hot[j].ZScore
	})
	return hot
}

// ============================================================
// Drift Analysis
// ============================================================

// DriftReport describes how the mean activation of a layer moves
// across recorded steps.
type DriftReport struct {
	LayerID   string  `json:"layer_id"`
	Steps     int     `json:"steps"`
	Slope     float64 `json:"slope"`     // Mean change per step
	Intercept float64 `json:"intercept"` // Fitted mean at step 0
	RSquared  float64 `json:"r_squared"` // Goodness of fit
	Drifting  bool    `json:"drifting"`
}

// dataPoint is one (step, mean activation) observation.
type dataPoint struct {
	x float64
	y float64
}

// linearRegression computes ordinary least squares regression.
// Returns slope (m), intercept (b), and R-squared goodness of fit.
func linearRegression(points []dataPoint) (slope, intercept, rSquared float64) {
	if len(points) < 2 {
		return 0, 0, 0
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i] = p.x, p.y
	}

	if stat.Variance(xs, nil) == 0 {
		return 0, stat.Mean(ys, nil), 0
	}

	intercept, slope = stat.LinearRegression(xs, ys, nil, false)
	if stat.Variance(ys, nil) == 0 {
		// A flat series is fitted exactly.
		return slope, intercept, 1.0
	}
	rSquared = stat.RSquared(xs, ys, nil, intercept, slope)
	return slope, intercept, rSquared
}

// AnalyzeDrift regresses the per-step mean activation of a layer
// against the step number.
//
// A layer is drifting when the fit is good (R² > 0.7) and the fitted
// change over the recorded steps exceeds 10% of the overall mean
// magnitude.
func (a *Analyzer) AnalyzeDrift(layerID string) (*DriftReport, error) {
	acts, err := a.store.QueryActivations(layerID)
	if err != nil {
		return nil, fmt.Errorf("querying activations for drift analysis: %w", err)
	}
	return drift(layerID, acts), nil
}

func drift(layerID string, acts []*database.Activation) *DriftReport {
	report := &DriftReport{LayerID: layerID, Steps: len(acts)}

	points := make([]dataPoint, 0, len(acts))
	for _, act := range acts {
		if len(act.Values) == 0 {
			continue
		}
		points = append(points, dataPoint{x: float64(act.Step), y: stat.Mean(act.Values, nil)})
	}
	if len(points) < 2 {
		return report
	}

	slope, intercept, r2 := linearRegression(points)

	ys := make([]float64, len(points))
	for i, p := range points {
		ys[i] = math.Abs(p.y)
	}
	scale := stat.Mean(ys, nil)
	span := points[len(points)-1].x - points[0].x
	change := math.Abs(slope * span)

	report.Slope = math.Round(slope*1e4) / 1e4
	report.Intercept = math.Round(intercept*1e4) / 1e4
	report.RSquared = math.Round(r2*1000) / 1000
	report.Drifting = r2 > 0.7 && change > 0.1*math.Max(scale, ActiveThreshold)
	return report
}

// ============================================================
// Full Analysis Report
// ============================================================

// LayerReport is the analysis of one layer.
type LayerReport struct {
	Layer       *database.LayerInfo `json:"layer"`
	Activations int                 `json:"activations"`
	Channels    []ChannelStats      `json:"channels"`
	Dead        []int               `json:"dead_channels"`
	Hot         []HotChannel        `json:"hot_channels"`
	Drift       *DriftReport        `json:"drift"`
}

// AnalysisReport is the complete output of `layerlens analyze`.
type AnalysisReport struct {
	RunID       string             `json:"run_id"`
	GeneratedAt string             `json:"generated_at"`
	Stats       *database.RunStats `json:"stats"`
	Layers      []LayerReport      `json:"layers"`
	Warnings    []string           `json:"warnings"`
}

// AnalyzeLayer runs every per-layer pass over one layer.
func (a *Analyzer) AnalyzeLayer(layer *database.LayerInfo) (*LayerReport, error) {
	acts, err := a.store.QueryActivations(layer.LayerID)
	if err != nil {
		return nil, fmt.Errorf("querying activations for %s: %w", layer.Name, err)
	}
	stats, err := a.channelStats(layer, acts)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", layer.Name, err)
	}
	lr := &LayerReport{
		Layer:       layer,
		Activations: len(acts),
		Channels:    stats,
		Drift:       drift(layer.LayerID, acts),
	}
	if len(acts) > 0 {
		lr.Dead = DeadChannels(stats)
		lr.Hot = DetectHotChannels(stats)
	}
	return lr, nil
}

// FullAnalysis runs all analysis passes over every layer of a run.
// A layer that fails to analyse becomes a warning, not an error.
func (a *Analyzer) FullAnalysis(runID string) (*AnalysisReport, error) {
	report := &AnalysisReport{
		RunID:       runID,
		GeneratedAt: time.Now().Format(time.RFC3339),
	}

	stats, err := a.store.GetRunStats(runID)
	if err != nil {
		return nil, fmt.Errorf("gathering run stats: %w", err)
	}
	report.Stats = stats

	layers, err := a.store.ListLayers(runID)
	if err != nil {
		return nil, fmt.Errorf("listing layers: %w", err)
	}

	for _, l := range layers {
		lr, err := a.AnalyzeLayer(l)
		if err != nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("Layer analysis failed: %v", err))
			continue
		}
		report.Layers = append(report.Layers, *lr)

		if len(lr.Dead) > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("⚠ DEAD CHANNELS in %s: %d of %d never activate.",
					l.Name, len(lr.Dead), l.Depth))
		}
		for _, h := range lr.Hot {
			if h.Severity == "high" {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("⚠ HOT CHANNEL: %s channel %d (Z-score: %.2f).",
						l.Name, h.Channel, h.ZScore))
			}
		}
		if lr.Drift != nil && lr.Drift.Drifting {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("⚠ DRIFT in %s: mean moves %.4f per step (R²=%.3f).",
					l.Name, lr.Drift.Slope, lr.Drift.RSquared))
		}
	}

	return report, nil
}

// FormatReport generates a human-readable markdown report.
func (a *Analyzer) FormatReport(report *AnalysisReport) string {
	var b strings.Builder

	b.WriteString("# LayerLens Analysis Report\n\n")
	fmt.Fprintf(&b, "**Run ID:** `%s`\n", report.RunID)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", report.GeneratedAt)

	if report.Stats != nil {
		b.WriteString("## Run Summary\n\n")
		b.WriteString("| Metric | Value |\n")
		b.WriteString("|--------|-------|\n")
		fmt.Fprintf(&b, "| Layers | %d |\n", report.Stats.LayerCount)
		fmt.Fprintf(&b, "| Activations | %d |\n", report.Stats.ActivationCount)
		fmt.Fprintf(&b, "| Steps | %d |\n", report.Stats.StepCount)
		fmt.Fprintf(&b, "| Last Step | %d |\n", report.Stats.MaxStep)
		fmt.Fprintf(&b, "| Total Values | %d |\n\n", report.Stats.TotalValues)
	}

	for _, lr := range report.Layers {
		fmt.Fprintf(&b, "## Layer %d: %s (%d x %d)\n\n",
			lr.Layer.LayerIndex, lr.Layer.Name, lr.Layer.Width, lr.Layer.Depth)

		if lr.Activations == 0 {
			b.WriteString("_No activations recorded._\n\n")
			continue
		}

		b.WriteString("| Channel | Mean | Std | Min | Max | Active |\n")
		b.WriteString("|---------|------|-----|-----|-----|--------|\n")
		for _, c := range lr.Channels {
			fmt.Fprintf(&b, "| %d | %.4f | %.4f | %.4f | %.4f | %.0f%% |\n",
				c.Channel, c.Mean, c.Std, c.Min, c.Max, c.ActiveFraction*100)
		}
		b.WriteString("\n")

		if len(lr.Hot) > 0 {
			b.WriteString("**Hot channels:**\n\n")
			for _, h := range lr.Hot {
				fmt.Fprintf(&b, "- channel %d: mean %.4f, Z %.2f (%s)\n", h.Channel, h.Mean, h.ZScore, h.Severity)
			}
			b.WriteString("\n")
		}
		if len(lr.Dead) > 0 {
			fmt.Fprintf(&b, "**Dead channels:** %v\n\n", lr.Dead)
		}
		if d := lr.Drift; d != nil && d.Steps > 1 {
			fmt.Fprintf(&b, "- **Drift:** %.4f per step over %d steps (R² %.3f)\n\n", d.Slope, d.Steps, d.RSquared)
		}
	}

	if len(report.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	return b.String()
}

// FormatRunLine renders a one-line run summary for CLI listings.
func FormatRunLine(r *database.Run) string {
	line := fmt.Sprintf("%s  %-20s  %-9s  %s (%s)",
		r.RunID, r.ModelName, r.Status,
		timeutil.FormatTimestampFull(r.StartedAt), timeutil.RelativeTime(r.StartedAt))
	if r.EndedAt != nil {
		line += "  took " + timeutil.Elapsed(r.StartedAt, *r.EndedAt)
	}
	return line
}
