// Package timeutil provides time formatting utilities for LayerLens.
//
// All timestamps in LayerLens are stored as Unix nanoseconds (int64).
// This package handles conversion to human-readable formats
// for the viewer, CLI listings and report generation.
package timeutil

import (
	"fmt"
	"time"
)

// FromNano converts a Unix nanosecond timestamp to time.Time.
func FromNano(ns int64) time.Time {
	return time.Unix(0, ns)
}

// ToNano converts a time.Time to Unix nanoseconds.
func ToNano(t time.Time) int64 {
	return t.UnixNano()
}

// NowNano returns the current time as Unix nanoseconds.
func NowNano() int64 {
	return time.Now().UnixNano()
}

// FormatTimestamp renders "HH:MM:SS.mmm".
func FormatTimestamp(ns int64) string {
	return FromNano(ns).Format("15:04:05.000")
}

// FormatTimestampFull renders "2006-01-02 15:04:05.000".
func FormatTimestampFull(ns int64) string {
	return FromNano(ns).Format("2006-01-02 15:04:05.000")
}

// FormatDuration formats a duration in milliseconds to a human-readable string.
// Examples: "1.2s", "450ms", "2m 15.3s"
func FormatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	seconds := float64(ms) / 1000.0
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	minutes := int(seconds / 60)
	remaining := seconds - float64(minutes*60)
	return fmt.Sprintf("%dm %.1fs", minutes, remaining)
}

// Elapsed formats the time between two nanosecond timestamps. An
// unfinished run (end == 0) is measured against now.
func Elapsed(start, end int64) string {
	if end == 0 {
		end = NowNano()
	}
	if end < start {
		return "0ms"
	}
	return FormatDuration(time.Duration(end - start).Milliseconds())
}

// relativeUnits are checked in order; the first bound above the age wins.
var relativeUnits = []struct {
	bound time.Duration
	unit  time.Duration
	label string
}{
	{time.Minute, time.Second, "s"},
	{time.Hour, time.Minute, "m"},
	{24 * time.Hour, time.Hour, "h"},
}

// RelativeTime returns a human-readable relative time string.
// Examples: "just now", "5s ago", "2m ago", "1h ago", "3d ago"
func RelativeTime(ns int64) string {
	diff := time.Since(FromNano(ns))
	if diff < time.Second {
		return "just now"
	}
	for _, u := range relativeUnits {
		if diff < u.bound {
			return fmt.Sprintf("%d%s ago", int(diff/u.unit), u.label)
		}
	}
	return fmt.Sprintf("%dd ago", int(diff/(24*time.Hour)))
}
