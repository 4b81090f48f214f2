package reconcile

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
)

func hour(h int) time.Time {
	return time.Date(2024, 5, 1, h, 0, 0, 0, time.UTC)
}

func bc(h int, count int64) models.BucketedCount {
	return models.BucketedCount{Hour: hour(h), Count: count}
}

func TestReconcileUnion(t *testing.T) {
	warehouse := Series{Source: "warehouse", Buckets: []models.BucketedCount{bc(10, 5), bc(11, 8), bc(12, 2)}}
	relational := Series{Source: "relational", Buckets: []models.BucketedCount{bc(11, 8), bc(13, 1)}}

	rec, err := Reconcile(warehouse, relational)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if len(rec.Rows) != 4 {
		t.Fatalf("expected 4 rows (union of hours), got %d", len(rec.Rows))
	}
	if rec.Degraded {
		t.Error("result should not be degraded")
	}

	wantHours := []int{13, 12, 11, 10}
	for i, h := range wantHours {
		if !rec.Rows[i].Hour.Equal(hour(h)) {
			t.Errorf("row %d hour = %v, want %v", i, rec.Rows[i].Hour, hour(h))
		}
	}

	row13 := rec.Rows[0]
	if row13.Count("warehouse") != 0 || row13.IsPresent("warehouse") {
		t.Errorf("warehouse absent at 13:00 should be 0/false, got %d/%v", row13.Count("warehouse"), row13.IsPresent("warehouse"))
	}
	if row13.Count("relational") != 1 || !row13.IsPresent("relational") {
		t.Error("relational at 13:00 should be 1/true")
	}

	row11 := rec.Rows[2]
	if row11.Count("warehouse") != 8 || row11.Count("relational") != 8 {
		t.Errorf("unexpected 11:00 row %+v", row11)
	}
}

func TestReconcileAbsentVersusZero(t *testing.T) {
	rec, err := Reconcile(
		Series{Source: "a", Buckets: []models.BucketedCount{bc(9, 0)}},
		Series{Source: "b", Buckets: []models.BucketedCount{bc(8, 3)}},
	)
	if err != nil {
		t.Fatal(err)
	}

	row9 := rec.Rows[0]
	if row9.Count("a") != 0 || !row9.IsPresent("a") {
		t.Error("explicit zero bucket should be present")
	}
	if row9.IsPresent("b") {
		t.Error("b has no bucket at 09:00")
	}
}

func TestReconcileSingleHour(t *testing.T) {
	rec, err := Reconcile(
		Series{Source: "warehouse", Buckets: []models.BucketedCount{bc(10, 5)}},
		Series{Source: "search", Buckets: nil},
	)
	if err != nil {
		t.Fatal(err)
	}

	if len(rec.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rec.Rows))
	}
	row := rec.Rows[0]
	if !row.Hour.Equal(hour(10)) || row.Count("warehouse") != 5 || row.Count("search") != 0 {
		t.Errorf("unexpected row %+v", row)
	}
	if !row.IsPresent("warehouse") || row.IsPresent("search") {
		t.Errorf("unexpected presence %+v", row.Present)
	}
}

func TestReconcileCommutative(t *testing.T) {
	a := Series{Source: "a", Buckets: []models.BucketedCount{bc(1, 1), bc(3, 3)}}
	b := Series{Source: "b", Buckets: []models.BucketedCount{bc(2, 2), bc(3, 4)}}
	c := Series{Source: "c", Buckets: []models.BucketedCount{bc(4, 9)}}

	first, err := Reconcile(a, b, c)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Reconcile(c, a, b)
	if err != nil {
		t.Fatal(err)
	}

	if len(first.Rows) != len(second.Rows) {
		t.Fatalf("row counts differ: %d vs %d", len(first.Rows), len(second.Rows))
	}
	for i := range first.Rows {
		r1, r2 := first.Rows[i], second.Rows[i]
		if !r1.Hour.Equal(r2.Hour) {
			t.Fatalf("row %d hour differs", i)
		}
		for _, src := range []string{"a", "b", "c"} {
			if r1.Count(src) != r2.Count(src) || r1.IsPresent(src) != r2.IsPresent(src) {
				t.Errorf("row %d source %s differs", i, src)
			}
		}
	}
}

func TestReconcileNormalizesTimezones(t *testing.T) {
	chicago := time.FixedZone("CST", -6*3600)
	rec, err := Reconcile(
		Series{Source: "warehouse", Buckets: []models.BucketedCount{{Hour: hour(16), Count: 4}}},
		Series{Source: "relational", Buckets: []models.BucketedCount{
			{Hour: time.Date(2024, 5, 1, 10, 0, 0, 0, chicago), Count: 3},
			{Hour: time.Date(2024, 5, 1, 10, 59, 0, 0, chicago), Count: 1},
		}},
	)
	if err != nil {
		t.Fatal(err)
	}

	if len(rec.Rows) != 1 {
		t.Fatalf("expected both series on one UTC hour, got %d rows", len(rec.Rows))
	}
	row := rec.Rows[0]
	if row.Hour.Location() != time.UTC {
		t.Error("row hour should be UTC")
	}
	if row.Count("relational") != 4 {
		t.Errorf("duplicate hours should be summed, got %d", row.Count("relational"))
	}
}

func TestReconcileDegraded(t *testing.T) {
	down := errors.New("connection refused")
	rec, err := Reconcile(
		Series{Source: "warehouse", Buckets: []models.BucketedCount{bc(10, 5), bc(11, 6)}},
		Series{Source: "relational", Err: down},
		Series{Source: "search", Buckets: []models.BucketedCount{bc(11, 6)}},
	)
	if err != nil {
		t.Fatalf("unavailable source must not abort: %v", err)
	}

	if !rec.Degraded {
		t.Error("expected degraded result")
	}
	if !errors.Is(rec.Unavailable["relational"], down) {
		t.Errorf("unexpected unavailable map %v", rec.Unavailable)
	}
	if len(rec.Sources) != 3 {
		t.Errorf("column for failed source should remain, got %v", rec.Sources)
	}
	if len(rec.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rec.Rows))
	}
	for _, row := range rec.Rows {
		if row.Count("relational") != 0 || row.IsPresent("relational") {
			t.Errorf("failed source should be zero/absent, got %+v", row)
		}
	}
}

func TestReconcileErrors(t *testing.T) {
	tests := []struct {
		name   string
		series []Series
		want   error
	}{
		{"none", nil, ErrTooFewSeries},
		{"one", []Series{{Source: "a"}}, ErrTooFewSeries},
		{"duplicate", []Series{{Source: "a"}, {Source: "a"}}, ErrDuplicateSource},
		{"negative", []Series{{Source: "a", Buckets: []models.BucketedCount{bc(1, -1)}}, {Source: "b"}}, ErrNegativeCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reconcile(tt.series...)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestReconcileEmpty(t *testing.T) {
	rec, err := Reconcile(Series{Source: "a"}, Series{Source: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Rows) != 0 || rec.Degraded {
		t.Errorf("expected empty healthy result, got %+v", rec)
	}
}

func TestSummarize(t *testing.T) {
	rec, err := Reconcile(
		Series{Source: "warehouse", Buckets: []models.BucketedCount{bc(10, 5), bc(11, 20)}},
		Series{Source: "relational", Buckets: []models.BucketedCount{bc(11, 10), bc(12, 4)}},
	)
	if err != nil {
		t.Fatal(err)
	}

	s := Summarize(rec, "warehouse", "relational")
	if s.TotalA != 25 || s.TotalB != 14 || s.Delta() != 11 {
		t.Errorf("unexpected totals %+v", s)
	}
	if len(s.MissingInA) != 1 || !s.MissingInA[0].Equal(hour(12)) {
		t.Errorf("MissingInA = %v", s.MissingInA)
	}
	if len(s.MissingInB) != 1 || !s.MissingInB[0].Equal(hour(10)) {
		t.Errorf("MissingInB = %v", s.MissingInB)
	}
	if s.LargestGap != 10 || !s.LargestGapHour.Equal(hour(11)) {
		t.Errorf("LargestGap = %d at %v", s.LargestGap, s.LargestGapHour)
	}
	if got := s.DiscrepancyPercent(); got != 44 {
		t.Errorf("DiscrepancyPercent = %v, want 44", got)
	}
}

func TestSummarizeIgnoresUnavailableForMissing(t *testing.T) {
	rec, err := Reconcile(
		Series{Source: "warehouse", Buckets: []models.BucketedCount{bc(10, 5)}},
		Series{Source: "search", Err: errors.New("timeout")},
	)
	if err != nil {
		t.Fatal(err)
	}

	s := Summarize(rec, "warehouse", "search")
	if len(s.MissingInB) != 0 {
		t.Errorf("unavailable source should not report missing hours: %v", s.MissingInB)
	}
	if (Summary{}).DiscrepancyPercent() != 0 {
		t.Error("empty summary should have zero discrepancy")
	}
}

func TestWriteCSV(t *testing.T) {
	rec, err := Reconcile(
		Series{Source: "warehouse", Buckets: []models.BucketedCount{bc(10, 5)}},
		Series{Source: "relational", Err: errors.New("down")},
	)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rec); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and 1 row, got %d lines", len(lines))
	}
	if lines[0] != "hour_of_day_utc,warehouse_count,warehouse_present,relational_count,relational_present" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != "2024-05-01 10:00,5,true,0,unavailable" {
		t.Errorf("unexpected row %q", lines[1])
	}

	if err := WriteCSV(&buf, nil); err == nil {
		t.Error("expected error for nil reconciliation")
	}
}

func TestDiscrepancy(t *testing.T) {
	tests := []struct {
		a, b int64
		want float64
	}{
		{100, 90, 10},
		{90, 100, 10},
		{0, 0, 0},
		{0, 8, 100},
		{50, 50, 0},
	}
	for _, tt := range tests {
		if got := Discrepancy(tt.a, tt.b); got != tt.want {
			t.Errorf("Discrepancy(%d, %d) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestOverThreshold(t *testing.T) {
	tests := []struct {
		name      string
		percent   float64
		threshold float64
		want      bool
	}{
		{"below", 9.9, 10, false},
		{"at threshold", 10, 10, true},
		{"above", 25, 10, true},
		{"disabled", 50, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OverThreshold(tt.percent, tt.threshold); got != tt.want {
				t.Errorf("OverThreshold(%v, %v) = %v, want %v", tt.percent, tt.threshold, got, tt.want)
			}
		})
	}
}
