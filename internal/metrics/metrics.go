// Package metrics exposes Prometheus instrumentation for source queries,
// search jobs, the query cache and reconciliation runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/j-veylop/pipeline-monitor-tui/internal/logger"
)

var (
	SourceQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmt_source_queries_total",
			Help: "Source adapter operations by outcome",
		},
		[]string{"source", "operation", "result"}, // result: ok, unavailable, schema_mismatch, error
	)

	SourceQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pmt_source_query_duration_seconds",
			Help:    "Duration of source adapter operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "operation"},
	)

	SchemaFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmt_schema_fallbacks_total",
			Help: "Query plans skipped because a column was missing",
		},
		[]string{"source"},
	)

	SearchJobPolls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pmt_search_job_polls_total",
			Help: "Status polls issued against search jobs",
		},
	)

	SearchJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmt_search_jobs_total",
			Help: "Search jobs by terminal outcome",
		},
		[]string{"outcome"}, // done, failed, timeout, cancelled
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmt_cache_requests_total",
			Help: "Query cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	Reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmt_reconciliations_total",
			Help: "Reconciliation runs by degradation",
		},
		[]string{"degraded"},
	)

	// 0 = closed, 1 = half-open, 2 = open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pmt_circuit_breaker_state",
			Help: "Circuit breaker state per source",
		},
		[]string{"source"},
	)
)

// ObserveQuery records one adapter operation.
func ObserveQuery(source, operation, result string, started time.Time) {
	SourceQueries.WithLabelValues(source, operation, result).Inc()
	SourceQueryDuration.WithLabelValues(source, operation).Observe(time.Since(started).Seconds())
}

// ObserveReconciliation records one reconciliation run.
func ObserveReconciliation(degraded bool) {
	label := "false"
	if degraded {
		label = "true"
	}
	Reconciliations.WithLabelValues(label).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr disables it.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
