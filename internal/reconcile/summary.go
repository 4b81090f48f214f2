package reconcile

import (
	"time"

	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
)

// Summary compares two columns of a reconciliation.
type Summary struct {
	A, B           string
	TotalA, TotalB int64
	// MissingInA lists hours where B had data and A did not.
	MissingInA []time.Time
	// MissingInB lists hours where A had data and B did not.
	MissingInB []time.Time
	// LargestGap is the biggest absolute per-hour difference and where it occurred.
	LargestGap     int64
	LargestGapHour time.Time
}

// Delta returns TotalA - TotalB.
func (s Summary) Delta() int64 {
	return s.TotalA - s.TotalB
}

// DiscrepancyPercent returns |TotalA-TotalB| relative to the larger total.
func (s Summary) DiscrepancyPercent() float64 {
	return Discrepancy(s.TotalA, s.TotalB)
}

// Discrepancy returns |a-b| as a percentage of the larger of a and b.
func Discrepancy(a, b int64) float64 {
	larger := max(a, b)
	if larger <= 0 {
		return 0
	}
	delta := a - b
	if delta < 0 {
		delta = -delta
	}
	return float64(delta) * 100 / float64(larger)
}

// OverThreshold reports whether a discrepancy percentage reaches threshold.
// A non-positive threshold disables the check.
func OverThreshold(percent, threshold float64) bool {
	return threshold > 0 && percent >= threshold
}

// Summarize compares columns a and b of rec.
func Summarize(rec *models.Reconciliation, a, b string) Summary {
	s := Summary{A: a, B: b}
	if rec == nil {
		return s
	}

	for _, row := range rec.Rows {
		s.TotalA += row.Counts[a]
		s.TotalB += row.Counts[b]

		presentA, presentB := row.Present[a], row.Present[b]
		if presentB && !presentA && !rec.IsUnavailable(a) {
			s.MissingInA = append(s.MissingInA, row.Hour)
		}
		if presentA && !presentB && !rec.IsUnavailable(b) {
			s.MissingInB = append(s.MissingInB, row.Hour)
		}

		gap := row.Delta(a, b)
		if gap < 0 {
			gap = -gap
		}
		if gap > s.LargestGap {
			s.LargestGap = gap
			s.LargestGapHour = row.Hour
		}
	}
	return s
}
