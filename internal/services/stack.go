package services

import (
	"errors"
	"fmt"
	"io"

	"github.com/j-veylop/pipeline-monitor-tui/internal/config"
	"github.com/j-veylop/pipeline-monitor-tui/internal/db"
	"github.com/j-veylop/pipeline-monitor-tui/internal/naming"
	"github.com/j-veylop/pipeline-monitor-tui/internal/services/monitor"
	"github.com/j-veylop/pipeline-monitor-tui/internal/sources"
	"github.com/j-veylop/pipeline-monitor-tui/internal/sources/splunk"
	"github.com/j-veylop/pipeline-monitor-tui/internal/sources/sqlsource"
)

const searchBurst = 5

// Sources is the set of adapters built from one configuration.
type Sources struct {
	Monitor  *monitor.Service
	Caches   []*sources.Cached
	Breakers []*sources.Breaker
	Closers  []io.Closer
}

// Builder constructs Sources from a configuration.
type Builder func(cfg *config.Config) (*Sources, error)

// BuildSources connects every configured source. Each adapter is wrapped in a
// circuit breaker and then a TTL cache.
func BuildSources(cfg *config.Config) (*Sources, error) {
	s := &Sources{}

	wh, err := s.warehouse(cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	var compared []sources.Adapter
	if cfg.Relational.Configured() {
		rel, err := s.relational(cfg)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		compared = append(compared, rel)
	}
	if cfg.Search.Configured() {
		compared = append(compared, s.search(cfg))
	}

	systems := make(map[string]string, len(cfg.SourceSystems))
	for _, sys := range cfg.SourceSystems {
		systems[sys.Name] = sys.Source
	}

	s.Monitor, err = monitor.New(monitor.Options{
		Warehouse: s.wrap(wh, cfg),
		Catalog:   wh,
		Targets:   wh,
		Sources:   compared,
		Systems:   systems,
		Mapper:    naming.Default(),
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sources) wrap(a sources.Adapter, cfg *config.Config) sources.Adapter {
	breaker := sources.WithBreaker(a, sources.DefaultBreakerSettings())
	cached := sources.WithCache(breaker, cfg.CacheTTL)
	s.Breakers = append(s.Breakers, breaker)
	s.Caches = append(s.Caches, cached)
	return cached
}

func openDatabase(d config.DatabaseConfig) (*db.DB, sqlsource.Dialect, error) {
	dialect, err := sqlsource.DialectFor(d.Driver)
	if err != nil {
		return nil, nil, err
	}
	provider, err := db.New(d.Driver, d.DSN, db.Options{ReuseTTL: d.ReuseTTL})
	if err != nil {
		return nil, nil, err
	}
	return provider, dialect, nil
}

func (s *Sources) warehouse(cfg *config.Config) (*sqlsource.Warehouse, error) {
	provider, dialect, err := openDatabase(cfg.Warehouse)
	if err != nil {
		return nil, fmt.Errorf("warehouse: %w", err)
	}
	s.Closers = append(s.Closers, provider)

	wh, err := sqlsource.NewWarehouse(provider, dialect,
		sqlsource.WarehouseConfig(cfg.Warehouse.Schema, cfg.Warehouse.Location), cfg.MetadataView)
	if err != nil {
		return nil, fmt.Errorf("warehouse: %w", err)
	}
	return wh, nil
}

func (s *Sources) relational(cfg *config.Config) (sources.Adapter, error) {
	provider, dialect, err := openDatabase(cfg.Relational)
	if err != nil {
		return nil, fmt.Errorf("relational: %w", err)
	}
	s.Closers = append(s.Closers, provider)

	rel, err := sqlsource.New(provider, dialect,
		sqlsource.RelationalConfig(cfg.Relational.Schema, cfg.Relational.Location))
	if err != nil {
		return nil, fmt.Errorf("relational: %w", err)
	}
	return s.wrap(rel, cfg), nil
}

func (s *Sources) search(cfg *config.Config) sources.Adapter {
	client := splunk.NewClient(cfg.Search.BaseURL, cfg.Search.Token,
		splunk.WithTimeout(cfg.Search.RequestTimeout),
		splunk.WithRateLimit(cfg.Search.RateLimit, searchBurst),
	)
	poller := splunk.NewPoller(client, cfg.Search.StatusBuckets)
	return s.wrap(splunk.NewAdapter(client, poller, cfg.Search.PollInterval, cfg.Search.Timeout), cfg)
}

// Purge drops every cached result.
func (s *Sources) Purge() {
	for _, c := range s.Caches {
		c.Purge()
	}
}

// CacheStats sums the statistics of every cache.
func (s *Sources) CacheStats() sources.CacheStats {
	var total sources.CacheStats
	for _, c := range s.Caches {
		st := c.Stats()
		total.Entries += st.Entries
		total.Hits += st.Hits
		total.Misses += st.Misses
	}
	return total
}

// BreakerStates returns each source's circuit breaker state.
func (s *Sources) BreakerStates() map[string]string {
	states := make(map[string]string, len(s.Breakers))
	for _, b := range s.Breakers {
		states[b.Name()] = b.State()
	}
	return states
}

// Close releases every connection.
func (s *Sources) Close() error {
	var errs []error
	for _, c := range s.Closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
