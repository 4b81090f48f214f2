// Package sqlsource implements source adapters over SQL databases: the
// relational store the pipeline reads from and the warehouse it writes to.
package sqlsource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/j-veylop/pipeline-monitor-tui/internal/db"
	"github.com/j-veylop/pipeline-monitor-tui/internal/logger"
	"github.com/j-veylop/pipeline-monitor-tui/internal/metrics"
	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/naming"
	"github.com/j-veylop/pipeline-monitor-tui/internal/sources"
)

const hourLayout = "2006-01-02 15:04:05"

var errNoPlan = errors.New("every query plan referenced a missing column")

// Config describes one SQL source.
type Config struct {
	Name   string
	Schema string
	// TimestampColumns are tried in order; later entries are fallbacks.
	TimestampColumns []string
	// CountExpressions returns the count expressions for a table, tried in order.
	CountExpressions func(table string) []string
	// Location interprets timestamps that carry no zone.
	Location *time.Location
}

// RelationalConfig is the layout of the relational store.
func RelationalConfig(schema string, loc *time.Location) Config {
	return Config{
		Name:             sources.Relational,
		Schema:           schema,
		TimestampColumns: []string{"lastupd_ts", "created_date"},
		CountExpressions: func(string) []string { return []string{"COUNT(id)"} },
		Location:         loc,
	}
}

// WarehouseConfig is the layout of the warehouse vault tables.
func WarehouseConfig(schema string, loc *time.Location) Config {
	return Config{
		Name:             sources.Warehouse,
		Schema:           schema,
		TimestampColumns: []string{"DV_LOAD_TIMESTAMP", "LASTUPD_TS"},
		CountExpressions: func(table string) []string {
			return []string{fmt.Sprintf("COUNT(DISTINCT %s)", naming.HubKeyColumn(table)), "COUNT(*)"}
		},
		Location: loc,
	}
}

type plan struct {
	column string
	count  string
}

// Adapter counts records in SQL tables.
type Adapter struct {
	provider db.Provider
	dialect  Dialect
	cfg      Config
}

// New validates cfg and builds an adapter.
func New(provider db.Provider, dialect Dialect, cfg Config) (*Adapter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("source name is required")
	}
	if len(cfg.TimestampColumns) == 0 {
		return nil, fmt.Errorf("%s: at least one timestamp column is required", cfg.Name)
	}
	for _, col := range cfg.TimestampColumns {
		if err := sources.ValidateIdentifier(col); err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.Name, err)
		}
	}
	if cfg.Schema != "" {
		if err := sources.ValidateQualified(cfg.Schema); err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.Name, err)
		}
	}
	if cfg.CountExpressions == nil {
		cfg.CountExpressions = func(string) []string { return []string{"COUNT(*)"} }
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Adapter{provider: provider, dialect: dialect, cfg: cfg}, nil
}

// Name returns the source name.
func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) plans(table string) []plan {
	counts := a.cfg.CountExpressions(table)
	plans := make([]plan, 0, len(a.cfg.TimestampColumns)*len(counts))
	for _, col := range a.cfg.TimestampColumns {
		for _, count := range counts {
			plans = append(plans, plan{column: col, count: count})
		}
	}
	return plans
}

// runPlans tries each plan in one session until one succeeds. Missing columns
// move on to the next plan; anything else makes the source unavailable.
func (a *Adapter) runPlans(ctx context.Context, op, table string, fn func(q db.Querier, p plan) error) error {
	var mismatch error
	err := a.provider.Session(ctx, func(q db.Querier) error {
		for i, p := range a.plans(table) {
			err := fn(q, p)
			if err == nil {
				if i > 0 {
					logger.Debug("fallback query plan used", "source", a.cfg.Name, "table", table, "column", p.column, "count", p.count)
				}
				return nil
			}
			if !a.dialect.IsSchemaMismatch(err) {
				return err
			}
			mismatch = err
			metrics.SchemaFallbacks.WithLabelValues(a.cfg.Name).Inc()
			logger.Debug("query plan skipped", "source", a.cfg.Name, "table", table, "column", p.column, "error", err)
		}
		return errNoPlan
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errNoPlan):
		return sources.NewError(a.cfg.Name, op, table, sources.ErrSchemaMismatch, mismatch)
	default:
		return sources.Unavailable(a.cfg.Name, op, table, err)
	}
}

// Count returns the records in table within the lookback window.
func (a *Adapter) Count(ctx context.Context, table string, lookbackHours int) (count int64, err error) {
	started := time.Now()
	defer func() { metrics.ObserveQuery(a.cfg.Name, sources.OpCount, sources.Label(err), started) }()

	if err := models.ValidateLookback(lookbackHours); err != nil {
		return 0, err
	}
	if err := sources.ValidateIdentifier(table); err != nil {
		return 0, err
	}

	err = a.runPlans(ctx, sources.OpCount, table, func(q db.Querier, p plan) error {
		where, args := a.dialect.Window(p.column, lookbackHours)
		query := fmt.Sprintf("SELECT %s AS record_count FROM %s WHERE %s",
			p.count, a.dialect.Table(a.cfg.Schema, table), where)
		return sqlx.GetContext(ctx, q, &count, query, args...)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

type hourRow struct {
	Hour  string `db:"hour_of_day"`
	Count int64  `db:"record_count"`
}

// HourlySeries returns per-hour counts from the start of the hour 24 hours ago
// until now, newest first.
func (a *Adapter) HourlySeries(ctx context.Context, table string) (series []models.BucketedCount, err error) {
	started := time.Now()
	defer func() { metrics.ObserveQuery(a.cfg.Name, sources.OpHourlySeries, sources.Label(err), started) }()

	if err := sources.ValidateIdentifier(table); err != nil {
		return nil, err
	}

	var rows []hourRow
	err = a.runPlans(ctx, sources.OpHourlySeries, table, func(q db.Querier, p plan) error {
		rows = rows[:0]
		where, args := a.dialect.HourWindow(p.column, int(models.SeriesWindow/time.Hour))
		bucket := a.dialect.HourBucket(p.column)
		query := fmt.Sprintf(`SELECT %[1]s AS hour_of_day, %[2]s AS record_count
			FROM %[3]s WHERE %[4]s GROUP BY %[1]s ORDER BY hour_of_day DESC`,
			bucket, p.count, a.dialect.Table(a.cfg.Schema, table), where)
		return sqlx.SelectContext(ctx, q, &rows, query, args...)
	})
	if err != nil {
		return nil, err
	}

	series = make([]models.BucketedCount, 0, len(rows))
	for _, row := range rows {
		hour, err := time.ParseInLocation(hourLayout, row.Hour, a.cfg.Location)
		if err != nil {
			return nil, sources.NewError(a.cfg.Name, sources.OpHourlySeries, table, sources.ErrSchemaMismatch,
				fmt.Errorf("unexpected hour value %q: %w", row.Hour, err))
		}
		series = append(series, models.BucketedCount{Hour: models.HourKey(hour), Count: row.Count})
	}
	sort.SliceStable(series, func(i, j int) bool { return series[i].Hour.After(series[j].Hour) })
	return series, nil
}

// ListTargets returns tables in the configured schema whose name contains filter.
func (a *Adapter) ListTargets(ctx context.Context, filter string) (tables []string, err error) {
	started := time.Now()
	defer func() { metrics.ObserveQuery(a.cfg.Name, sources.OpListTargets, sources.Label(err), started) }()

	query, args := a.dialect.ListTables(a.cfg.Schema, "%"+filter+"%")
	err = a.provider.Session(ctx, func(q db.Querier) error {
		return sqlx.SelectContext(ctx, q, &tables, query, args...)
	})
	if err != nil {
		return nil, sources.Unavailable(a.cfg.Name, sources.OpListTargets, filter, err)
	}
	if tables == nil {
		tables = []string{}
	}
	return tables, nil
}
