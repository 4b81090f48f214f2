package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
)

type fakeAdapter struct {
	mu      sync.Mutex
	name    string
	count   int64
	series  []models.BucketedCount
	targets []string
	err     error
	calls   map[string]int
}

func newFakeAdapter(name string) *fakeAdapter {
	return &fakeAdapter{name: name, calls: make(map[string]int)}
}

func (f *fakeAdapter) record(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakeAdapter) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Count(_ context.Context, _ string, _ int) (int64, error) {
	f.record(OpCount)
	return f.count, f.err
}

func (f *fakeAdapter) HourlySeries(_ context.Context, _ string) ([]models.BucketedCount, error) {
	f.record(OpHourlySeries)
	if f.err != nil {
		return nil, f.err
	}
	return f.series, nil
}

func (f *fakeAdapter) ListTargets(_ context.Context, _ string) ([]string, error) {
	f.record(OpListTargets)
	return f.targets, f.err
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"S_DVM_ORDERS", false},
		{"orders", false},
		{"_x1", false},
		{"H$KEY", false},
		{"", true},
		{"1abc", true},
		{"orders; DROP TABLE x", true},
		{"a.b", true},
		{"name'--", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.name)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentifier(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		})
	}
}

func TestValidateQualified(t *testing.T) {
	valid := []string{"VLT", "PROD_GPM_DW.METADATA.KAFKA_SINK_SOURCE_TARGET_V", "dvm.orders"}
	for _, name := range valid {
		if err := ValidateQualified(name); err != nil {
			t.Errorf("ValidateQualified(%q) unexpected error: %v", name, err)
		}
	}

	invalid := []string{"", "a..b", ".a", "a.", "a.b c"}
	for _, name := range invalid {
		if err := ValidateQualified(name); err == nil {
			t.Errorf("ValidateQualified(%q) expected error", name)
		}
	}
}

func TestErrorClassification(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Unavailable(Relational, OpCount, "orders", cause)

	if !errors.Is(err, ErrSourceUnavailable) {
		t.Error("expected ErrSourceUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
	if errors.Is(err, ErrSchemaMismatch) {
		t.Error("unexpected ErrSchemaMismatch")
	}
	if KindOf(err) != ErrSourceUnavailable {
		t.Errorf("KindOf = %v", KindOf(err))
	}
	if !strings.Contains(err.Error(), `relational count "orders"`) {
		t.Errorf("unexpected message %q", err.Error())
	}

	// Already classified errors keep their original kind.
	mismatch := NewError(Warehouse, OpCount, "X", ErrSchemaMismatch, nil)
	rewrapped := Unavailable(Warehouse, OpCount, "X", fmt.Errorf("plan: %w", mismatch))
	if !errors.Is(rewrapped, ErrSchemaMismatch) {
		t.Error("classified error should not be reclassified")
	}

	if KindOf(cause) != nil {
		t.Error("plain errors have no kind")
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{NewError(Search, OpCount, "", ErrSubmission, nil), "submission"},
		{NewError(Search, OpCount, "", ErrTimeoutExceeded, nil), "timeout"},
		{NewError(Search, OpCount, "", ErrJobFailed, nil), "job_failed"},
		{NewError(Warehouse, OpCount, "", ErrSchemaMismatch, nil), "schema_mismatch"},
		{Unavailable(Warehouse, OpCount, "", nil), "unavailable"},
		{errors.New("boom"), "error"},
	}

	for _, tt := range tests {
		if got := Label(tt.err); got != tt.want {
			t.Errorf("Label(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestCachedCount(t *testing.T) {
	fake := newFakeAdapter(Warehouse)
	fake.count = 42
	cache := WithCache(fake, time.Minute)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := cache.Count(ctx, "ORDERS", 1)
		if err != nil || got != 42 {
			t.Fatalf("Count = %d, %v", got, err)
		}
	}
	if calls := fake.callCount(OpCount); calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", calls)
	}

	// Different parameters use a different key.
	if _, err := cache.Count(ctx, "ORDERS", 2); err != nil {
		t.Fatal(err)
	}
	if calls := fake.callCount(OpCount); calls != 2 {
		t.Errorf("expected 2 upstream calls, got %d", calls)
	}

	// Expiry forces a requery.
	now = now.Add(2 * time.Minute)
	if _, err := cache.Count(ctx, "ORDERS", 1); err != nil {
		t.Fatal(err)
	}
	if calls := fake.callCount(OpCount); calls != 3 {
		t.Errorf("expected 3 upstream calls after expiry, got %d", calls)
	}

	stats := cache.Stats()
	if stats.Hits != 2 || stats.Misses != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	fake := newFakeAdapter(Relational)
	fake.err = Unavailable(Relational, OpCount, "orders", errors.New("down"))
	cache := WithCache(fake, time.Minute)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := cache.Count(ctx, "orders", 1); err == nil {
			t.Fatal("expected error")
		}
	}
	if calls := fake.callCount(OpCount); calls != 2 {
		t.Errorf("errors must not be cached, got %d calls", calls)
	}

	fake.err = nil
	fake.count = 7
	if got, err := cache.Count(ctx, "orders", 1); err != nil || got != 7 {
		t.Errorf("Count after recovery = %d, %v", got, err)
	}
}

func TestCachedSeriesIsCopied(t *testing.T) {
	hour := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	fake := newFakeAdapter(Search)
	fake.series = []models.BucketedCount{{Hour: hour, Count: 5}}
	cache := WithCache(fake, 0)

	ctx := context.Background()
	first, err := cache.HourlySeries(ctx, "S_DVM_ORDERS")
	if err != nil {
		t.Fatal(err)
	}
	first[0].Count = 999

	second, err := cache.HourlySeries(ctx, "S_DVM_ORDERS")
	if err != nil {
		t.Fatal(err)
	}
	if second[0].Count != 5 {
		t.Errorf("cached series was mutated: %d", second[0].Count)
	}
	if cache.ttl != DefaultCacheTTL {
		t.Errorf("expected default ttl, got %v", cache.ttl)
	}
}

func TestCachedPurge(t *testing.T) {
	fake := newFakeAdapter(Warehouse)
	fake.targets = []string{"S_DVM_ORDERS"}
	cache := WithCache(fake, time.Hour)

	ctx := context.Background()
	_, _ = cache.ListTargets(ctx, "DVM")
	_, _ = cache.ListTargets(ctx, "DVM")
	cache.Purge()
	_, _ = cache.ListTargets(ctx, "DVM")

	if calls := fake.callCount(OpListTargets); calls != 2 {
		t.Errorf("expected 2 upstream calls, got %d", calls)
	}
	if cache.Stats().Entries != 1 {
		t.Errorf("expected 1 entry, got %d", cache.Stats().Entries)
	}
	if cache.Name() != Warehouse || cache.Unwrap() != fake {
		t.Error("cache should expose wrapped adapter")
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	fake := newFakeAdapter(Relational)
	fake.err = Unavailable(Relational, OpCount, "orders", errors.New("refused"))
	breaker := WithBreaker(fake, BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Hour})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := breaker.Count(ctx, "orders", 1); err == nil {
			t.Fatal("expected error")
		}
	}

	_, err := breaker.Count(ctx, "orders", 1)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("open circuit should report unavailable, got %v", err)
	}
	if calls := fake.callCount(OpCount); calls != 2 {
		t.Errorf("open circuit should not call upstream, got %d calls", calls)
	}
	if breaker.State() != "open" {
		t.Errorf("State = %q, want open", breaker.State())
	}
}

func TestBreakerIgnoresSchemaMismatch(t *testing.T) {
	fake := newFakeAdapter(Warehouse)
	fake.err = NewError(Warehouse, OpHourlySeries, "X", ErrSchemaMismatch, nil)
	breaker := WithBreaker(fake, BreakerSettings{ConsecutiveFailures: 1, OpenTimeout: time.Hour})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := breaker.HourlySeries(ctx, "X"); !errors.Is(err, ErrSchemaMismatch) {
			t.Fatalf("expected schema mismatch, got %v", err)
		}
	}
	if breaker.State() != "closed" {
		t.Errorf("schema mismatches must not open the circuit, state %q", breaker.State())
	}
}

func TestBreakerPassesResults(t *testing.T) {
	fake := newFakeAdapter(Search)
	fake.count = 9
	fake.targets = []string{"a", "b"}
	breaker := WithBreaker(fake, DefaultBreakerSettings())

	ctx := context.Background()
	if got, err := breaker.Count(ctx, "a", 3); err != nil || got != 9 {
		t.Errorf("Count = %d, %v", got, err)
	}
	got, err := breaker.ListTargets(ctx, "")
	if err != nil || len(got) != 2 {
		t.Errorf("ListTargets = %v, %v", got, err)
	}
	series, err := breaker.HourlySeries(ctx, "a")
	if err != nil || series != nil {
		t.Errorf("HourlySeries = %v, %v", series, err)
	}
}
