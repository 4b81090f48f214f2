// Package reconcile merges hourly record counts from several sources onto a
// common UTC hour grid so they can be compared row by row.
package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/j-veylop/pipeline-monitor-tui/internal/metrics"
	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
)

var (
	// ErrTooFewSeries is returned when fewer than two series are supplied.
	ErrTooFewSeries = errors.New("reconcile needs at least two series")
	// ErrDuplicateSource is returned when two series share a source name.
	ErrDuplicateSource = errors.New("duplicate source")
	// ErrNegativeCount is returned when a bucket holds a negative count.
	ErrNegativeCount = errors.New("negative count")
)

// Series is one source's hourly counts, or the error that prevented fetching them.
type Series struct {
	Source  string
	Buckets []models.BucketedCount
	Err     error
}

// Reconcile full-outer-joins the series on their UTC hour keys.
//
// Every hour seen in any available series produces one row. Sources without
// a bucket for that hour get a zero count and Present=false. Duplicate hours
// within a series are summed. A series carrying an error keeps its column
// (all zero, never present) and marks the result degraded. Rows are sorted
// newest first.
func Reconcile(series ...Series) (*models.Reconciliation, error) {
	if len(series) < 2 {
		return nil, ErrTooFewSeries
	}

	result := &models.Reconciliation{
		Sources:     make([]string, 0, len(series)),
		Unavailable: make(map[string]error),
	}

	seen := make(map[string]bool, len(series))
	perSource := make(map[string]map[time.Time]int64, len(series))
	hours := make(map[time.Time]struct{})

	for _, s := range series {
		if seen[s.Source] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateSource, s.Source)
		}
		seen[s.Source] = true
		result.Sources = append(result.Sources, s.Source)

		if s.Err != nil {
			result.Degraded = true
			result.Unavailable[s.Source] = s.Err
			continue
		}

		buckets := make(map[time.Time]int64, len(s.Buckets))
		for _, b := range s.Buckets {
			if b.Count < 0 {
				return nil, fmt.Errorf("%w: %s at %s: %d", ErrNegativeCount, s.Source, b.Hour.Format(time.RFC3339), b.Count)
			}
			key := models.HourKey(b.Hour)
			buckets[key] += b.Count
			hours[key] = struct{}{}
		}
		perSource[s.Source] = buckets
	}

	result.Rows = make([]models.ReconciledRow, 0, len(hours))
	for hour := range hours {
		row := models.ReconciledRow{
			Hour:    hour,
			Counts:  make(map[string]int64, len(result.Sources)),
			Present: make(map[string]bool, len(result.Sources)),
		}
		for _, source := range result.Sources {
			count, ok := perSource[source][hour]
			row.Counts[source] = count
			row.Present[source] = ok
		}
		result.Rows = append(result.Rows, row)
	}

	sort.Slice(result.Rows, func(i, j int) bool {
		return result.Rows[i].Hour.After(result.Rows[j].Hour)
	})

	metrics.ObserveReconciliation(result.Degraded)
	return result, nil
}
