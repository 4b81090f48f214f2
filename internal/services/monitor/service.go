// Package monitor turns a dashboard selection into a snapshot by querying
// every source concurrently and reconciling their hourly series.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/j-veylop/pipeline-monitor-tui/internal/logger"
	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/naming"
	"github.com/j-veylop/pipeline-monitor-tui/internal/reconcile"
	"github.com/j-veylop/pipeline-monitor-tui/internal/sources"
)

var (
	// ErrNoSelection is returned when the selection names no table or topic.
	ErrNoSelection = errors.New("nothing selected")
	// ErrUnknownSourceSystem is returned for a source system with no mapping.
	ErrUnknownSourceSystem = errors.New("unknown source system")
	// ErrSourceNotConfigured marks a source whose connection settings are missing.
	ErrSourceNotConfigured = errors.New("source not configured")
)

const defaultMaxConcurrent = 6

// Catalog answers pipeline metadata questions about the warehouse.
type Catalog interface {
	Topics(ctx context.Context, sourceSystem string) ([]string, error)
	TopicsForTable(ctx context.Context, table string) ([]string, error)
	TablesForTopic(ctx context.Context, topic string) ([]string, error)
	Identity(ctx context.Context) (models.Identity, error)
}

// TargetLister enumerates the warehouse target tables of a source system.
type TargetLister interface {
	ListTargets(ctx context.Context, sourceSystem string) ([]string, error)
}

// Options configures a Service.
type Options struct {
	Warehouse sources.Adapter
	Catalog   Catalog
	// Targets lists target tables; it defaults to Warehouse. Pass an uncached
	// lister so new tables show up before the count cache expires.
	Targets TargetLister
	// Sources are the adapters compared against the warehouse, in display order.
	Sources []sources.Adapter
	// Systems maps a source system name (e.g. DVM) to the adapter observing it.
	Systems       map[string]string
	Mapper        *naming.Mapper
	MaxConcurrent int
	Now           func() time.Time
}

// Service builds snapshots.
type Service struct {
	warehouse sources.Adapter
	catalog   Catalog
	targets   TargetLister
	order     []string
	byName    map[string]sources.Adapter
	systems   map[string]string
	mapper    *naming.Mapper
	limit     int
	now       func() time.Time
}

// New creates a monitor service.
func New(opts Options) (*Service, error) {
	if opts.Warehouse == nil {
		return nil, fmt.Errorf("warehouse adapter is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}

	s := &Service{
		warehouse: opts.Warehouse,
		catalog:   opts.Catalog,
		targets:   opts.Targets,
		byName:    make(map[string]sources.Adapter, len(opts.Sources)),
		systems:   make(map[string]string, len(opts.Systems)),
		mapper:    opts.Mapper,
		limit:     opts.MaxConcurrent,
		now:       opts.Now,
	}
	if s.targets == nil {
		s.targets = opts.Warehouse
	}
	if s.mapper == nil {
		s.mapper = naming.Default()
	}
	if s.limit <= 0 {
		s.limit = defaultMaxConcurrent
	}
	if s.now == nil {
		s.now = time.Now
	}

	for _, a := range opts.Sources {
		name := a.Name()
		if name == opts.Warehouse.Name() {
			return nil, fmt.Errorf("source %q collides with the warehouse", name)
		}
		if _, dup := s.byName[name]; dup {
			return nil, fmt.Errorf("source %q registered twice", name)
		}
		s.byName[name] = a
		s.order = append(s.order, name)
	}
	for system, name := range opts.Systems {
		s.systems[system] = name
	}
	return s, nil
}

// Catalog returns the metadata catalog.
func (s *Service) Catalog() Catalog {
	return s.catalog
}

// Targets lists the warehouse target tables fed by sourceSystem.
func (s *Service) Targets(ctx context.Context, sourceSystem string) ([]string, error) {
	return s.targets.ListTargets(ctx, sourceSystem)
}

// Topics lists the topics belonging to sourceSystem.
func (s *Service) Topics(ctx context.Context, sourceSystem string) ([]string, error) {
	return s.catalog.Topics(ctx, sourceSystem)
}

// Identity returns the warehouse connection identity.
func (s *Service) Identity(ctx context.Context) (models.Identity, error) {
	return s.catalog.Identity(ctx)
}

// Snapshot queries every source relevant to sel. Source failures never fail
// the snapshot; they are recorded on the affected counts and series.
func (s *Service) Snapshot(ctx context.Context, sel models.Selection) (*models.Snapshot, error) {
	if err := models.ValidateLookback(sel.LookbackHours); err != nil {
		return nil, err
	}
	if !sel.Ready() {
		return nil, ErrNoSelection
	}

	snap := &models.Snapshot{Selection: sel, TakenAt: s.now()}

	if sel.Mode == models.ByTopic {
		s.topicSnapshot(ctx, snap)
		return snap, nil
	}

	compared, err := s.compared(sel)
	if err != nil {
		return nil, err
	}
	s.tableSnapshot(ctx, snap, compared)
	return snap, nil
}

// compared returns the source names to compare against the warehouse,
// the selected system's source first.
func (s *Service) compared(sel models.Selection) ([]string, error) {
	primary, ok := s.systems[sel.SourceSystem]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSourceSystem, sel.SourceSystem)
	}
	names := []string{primary}
	if sel.CompareAll {
		for _, name := range s.order {
			if name != primary {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// sourceTarget resolves the adapter and the source-side name for target.
func (s *Service) sourceTarget(ctx context.Context, name string, sel models.Selection) (sources.Adapter, string, error) {
	adapter, ok := s.byName[name]
	if !ok {
		return nil, "", sources.Unavailable(name, sources.OpCount, sel.Target, ErrSourceNotConfigured)
	}

	known, err := s.targets.ListTargets(ctx, sel.SourceSystem)
	if err != nil {
		logger.Warn("target list unavailable, mapping without collision check",
			"source", name, "error", err)
		known = nil
	}
	mapped, err := s.mapper.MapChecked(name, sel.Target, known)
	if err != nil {
		return nil, "", err
	}
	return adapter, mapped, nil
}

func (s *Service) tableSnapshot(ctx context.Context, snap *models.Snapshot, compared []string) {
	sel := snap.Selection

	var (
		warehouseRows []models.BucketedCount
		warehouseErr  error
	)
	counts := make([]models.CountResult, len(compared))
	series := make([]reconcile.Series, len(compared))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)

	// Goroutines record failures instead of returning them so that one
	// source going down does not cancel the others.
	g.Go(func() error {
		n, err := s.warehouse.Count(gctx, sel.Target, sel.LookbackHours)
		snap.TargetCount = models.CountResult{Source: s.warehouse.Name(), Target: sel.Target, Count: n, Err: err}
		return nil
	})
	g.Go(func() error {
		topics, err := s.catalog.TopicsForTable(gctx, sel.Target)
		snap.Topics, snap.TopicsErr = topics, err
		return nil
	})
	g.Go(func() error {
		warehouseRows, warehouseErr = s.warehouse.HourlySeries(gctx, sel.Target)
		return nil
	})

	for i, name := range compared {
		g.Go(func() error {
			adapter, target, err := s.sourceTarget(gctx, name, sel)
			if err != nil {
				counts[i] = models.CountResult{Source: name, Target: sel.Target, Err: err}
				series[i] = reconcile.Series{Source: name, Err: err}
				return nil
			}

			n, err := adapter.Count(gctx, target, sel.LookbackHours)
			counts[i] = models.CountResult{Source: name, Target: target, Count: n, Err: err}

			rows, err := adapter.HourlySeries(gctx, target)
			series[i] = reconcile.Series{Source: name, Buckets: rows, Err: err}
			return nil
		})
	}

	_ = g.Wait()

	snap.SourceCounts = counts
	all := append([]reconcile.Series{{Source: s.warehouse.Name(), Buckets: warehouseRows, Err: warehouseErr}}, series...)
	snap.Timeline, snap.TimelineErr = reconcile.Reconcile(all...)

	if snap.Degraded() {
		logger.Warn("degraded snapshot", "target", sel.Target, "system", sel.SourceSystem)
	}
}

func (s *Service) topicSnapshot(ctx context.Context, snap *models.Snapshot) {
	sel := snap.Selection

	tables, err := s.catalog.TablesForTopic(ctx, sel.Topic)
	if err != nil {
		snap.TopicsErr = err
		return
	}

	results := make([]models.TopicTableCount, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for i, table := range tables {
		g.Go(func() error {
			n, err := s.warehouse.Count(gctx, table, sel.LookbackHours)
			results[i] = models.TopicTableCount{
				Table:       table,
				CountResult: models.CountResult{Source: s.warehouse.Name(), Target: table, Count: n, Err: err},
			}
			return nil
		})
	}
	_ = g.Wait()

	snap.Topics = []string{sel.Topic}
	snap.TopicTables = results
}
