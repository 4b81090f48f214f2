// Package models defines data structures and domain types.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Lookback bounds, in hours, accepted by count queries.
const (
	MinLookbackHours = 1
	MaxLookbackHours = 24
)

// SeriesWindow is the trailing window covered by hourly series.
const SeriesWindow = 24 * time.Hour

// ErrInvalidLookback is returned when a lookback falls outside the accepted range.
var ErrInvalidLookback = errors.New("lookback hours out of range")

// BucketedCount is the number of records observed in one hour.
type BucketedCount struct {
	Hour  time.Time
	Count int64
}

// HourKey normalizes t to the UTC hour that contains it.
func HourKey(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// SourceQuery identifies a target and the lookback used for counting it.
type SourceQuery struct {
	Target        string
	LookbackHours int
}

// Validate checks the target and lookback.
func (q SourceQuery) Validate() error {
	if q.Target == "" {
		return errors.New("target is required")
	}
	return ValidateLookback(q.LookbackHours)
}

// ValidateLookback reports whether hours is within [MinLookbackHours, MaxLookbackHours].
func ValidateLookback(hours int) error {
	if hours < MinLookbackHours || hours > MaxLookbackHours {
		return fmt.Errorf("%w: %d (want %d-%d)", ErrInvalidLookback, hours, MinLookbackHours, MaxLookbackHours)
	}
	return nil
}

// ClampLookback forces hours into the accepted range.
func ClampLookback(hours int) int {
	switch {
	case hours < MinLookbackHours:
		return MinLookbackHours
	case hours > MaxLookbackHours:
		return MaxLookbackHours
	default:
		return hours
	}
}

// ReconciledRow holds every source's count for one hour.
// Present records whether a source reported a bucket for the hour at all,
// which distinguishes a genuine zero from missing data.
type ReconciledRow struct {
	Hour    time.Time
	Counts  map[string]int64
	Present map[string]bool
}

// Count returns the count for source, zero when absent.
func (r ReconciledRow) Count(source string) int64 {
	return r.Counts[source]
}

// IsPresent reports whether source had a bucket for this hour.
func (r ReconciledRow) IsPresent(source string) bool {
	return r.Present[source]
}

// Delta returns Count(a) - Count(b).
func (r ReconciledRow) Delta(a, b string) int64 {
	return r.Counts[a] - r.Counts[b]
}

// Reconciliation is the merged hourly series of several sources.
// Rows are ordered by hour, newest first.
type Reconciliation struct {
	Sources     []string
	Rows        []ReconciledRow
	Degraded    bool
	Unavailable map[string]error
}

// IsUnavailable reports whether source failed while building the reconciliation.
func (r *Reconciliation) IsUnavailable(source string) bool {
	if r == nil {
		return false
	}
	_, ok := r.Unavailable[source]
	return ok
}

// Total sums source's counts over all rows.
func (r *Reconciliation) Total(source string) int64 {
	if r == nil {
		return 0
	}
	var total int64
	for _, row := range r.Rows {
		total += row.Counts[source]
	}
	return total
}

// Chronological returns source's counts ordered oldest first, for charting.
func (r *Reconciliation) Chronological(source string) []float64 {
	if r == nil {
		return nil
	}
	out := make([]float64, len(r.Rows))
	for i, row := range r.Rows {
		out[len(r.Rows)-1-i] = float64(row.Counts[source])
	}
	return out
}
