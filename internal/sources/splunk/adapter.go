package splunk

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/j-veylop/pipeline-monitor-tui/internal/metrics"
	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/sources"
)

// seriesEarliest snaps the series window to the top of the hour 24 hours ago.
const seriesEarliest = "-24h@h"

// Adapter counts events by running each target's saved search.
type Adapter struct {
	client       *Client
	poller       *Poller
	pollInterval time.Duration
	timeout      time.Duration
}

// NewAdapter creates the search adapter.
func NewAdapter(client *Client, poller *Poller, pollInterval, timeout time.Duration) *Adapter {
	return &Adapter{
		client:       client,
		poller:       poller,
		pollInterval: pollInterval,
		timeout:      timeout,
	}
}

// Name returns the source name.
func (a *Adapter) Name() string { return sources.Search }

// run submits the saved search for target and waits for it to finish.
func (a *Adapter) run(ctx context.Context, target, earliest string) (*Job, error) {
	if err := sources.ValidateIdentifier(target); err != nil {
		return nil, err
	}

	job, err := a.poller.Submit(ctx, SearchRequest{
		Name:     target,
		Query:    "| savedsearch " + target,
		Earliest: earliest,
		Latest:   "now",
	})
	if err != nil {
		return nil, err
	}
	if err := job.AwaitCompletion(ctx, a.pollInterval, a.timeout); err != nil {
		return nil, err
	}
	return job, nil
}

// Count returns the events the target's saved search finds in the lookback window.
func (a *Adapter) Count(ctx context.Context, target string, lookbackHours int) (count int64, err error) {
	started := time.Now()
	defer func() { metrics.ObserveQuery(sources.Search, sources.OpCount, sources.Label(err), started) }()

	if err := models.ValidateLookback(lookbackHours); err != nil {
		return 0, err
	}

	job, err := a.run(ctx, target, fmt.Sprintf("-%dh", lookbackHours))
	if err != nil {
		return 0, err
	}
	return job.SummaryCount(ctx)
}

// HourlySeries returns the saved search's event timeline for the last 24 hours.
func (a *Adapter) HourlySeries(ctx context.Context, target string) (series []models.BucketedCount, err error) {
	started := time.Now()
	defer func() { metrics.ObserveQuery(sources.Search, sources.OpHourlySeries, sources.Label(err), started) }()

	job, err := a.run(ctx, target, seriesEarliest)
	if err != nil {
		return nil, err
	}
	return job.HourlyBuckets(ctx)
}

// ListTargets returns saved searches whose name contains filter.
func (a *Adapter) ListTargets(ctx context.Context, filter string) (names []string, err error) {
	started := time.Now()
	defer func() { metrics.ObserveQuery(sources.Search, sources.OpListTargets, sources.Label(err), started) }()

	names, err = a.client.SavedSearches(ctx, filter)
	if err != nil {
		return nil, sources.Unavailable(sources.Search, sources.OpListTargets, filter, err)
	}
	sort.Strings(names)
	return names, nil
}
