// Package epoch converts the epoch-like numeric columns the Pear API returns
// into UTC timestamps. The vendor is not consistent about units: some columns
// carry seconds, others milliseconds, and a handful of rows carry garbage.
package epoch

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Unit is the inferred epoch unit of a column.
type Unit int

const (
	Seconds Unit = iota
	Milliseconds
)

// Representable epoch range. Values outside are clipped before conversion
// rather than overflowing time.Unix.
const (
	minSeconds = -2208988800 // 1900-01-01
	maxSeconds = 1e11
)

// IsTemporal reports whether a column name denotes an epoch-like value.
func IsTemporal(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "date") || strings.Contains(lower, "timestamp")
}

// InferUnit decides the epoch unit for a whole column from the median of its
// numeric values. The decision is per-column: mixed units within one column
// are not supported.
func InferUnit(values []float64) Unit {
	if len(values) == 0 {
		return Seconds
	}
	if median(values) >= 1e12 {
		return Milliseconds
	}
	return Seconds
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// ConvertColumn converts a column of raw string values to UTC timestamps.
// Non-numeric values become nil. Values already in RFC 3339 form pass
// through unchanged, which makes the conversion idempotent.
func ConvertColumn(raw []string) []*time.Time {
	numeric := make([]float64, 0, len(raw))
	for _, v := range raw {
		if f, ok := parseNumeric(v); ok {
			numeric = append(numeric, f)
		}
	}
	unit := InferUnit(numeric)

	out := make([]*time.Time, len(raw))
	for i, v := range raw {
		out[i] = ConvertValue(v, unit)
	}
	return out
}

// ConvertValue converts a single raw value under an already-inferred unit.
func ConvertValue(raw string, unit Unit) *time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	// Already-converted columns round-trip as-is.
	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		utc := ts.UTC()
		return &utc
	}
	f, ok := parseNumeric(trimmed)
	if !ok {
		return nil
	}

	lo, hi := float64(minSeconds), float64(maxSeconds)
	if unit == Milliseconds {
		lo, hi = minSeconds*1000, 1e14
	}
	if f < lo {
		f = lo
	}
	if f > hi {
		f = hi
	}

	var ts time.Time
	switch unit {
	case Milliseconds:
		ts = time.UnixMilli(int64(f)).UTC()
	default:
		sec, frac := math.Modf(f)
		ts = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return &ts
}

func parseNumeric(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
