package sqlsource

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/j-veylop/pipeline-monitor-tui/internal/db"
	"github.com/j-veylop/pipeline-monitor-tui/internal/metrics"
	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/naming"
	"github.com/j-veylop/pipeline-monitor-tui/internal/sources"
)

// DefaultMetadataView lists which topics feed which vault tables.
const DefaultMetadataView = "PROD_GPM_DW.METADATA.KAFKA_SINK_SOURCE_TARGET_V"

// sinkType is the metadata row type describing a sink into a vault table.
const sinkType = 2

const (
	opTopics         = "topics"
	opTopicsForTable = "topics_for_table"
	opTablesForTopic = "tables_for_topic"
	opIdentity       = "identity"
)

// Warehouse is the warehouse adapter. On top of counting it answers questions
// about pipeline metadata: which topics exist and which tables they feed.
type Warehouse struct {
	*Adapter
	metadataView string
}

// NewWarehouse builds the warehouse adapter.
func NewWarehouse(provider db.Provider, dialect Dialect, cfg Config, metadataView string) (*Warehouse, error) {
	if metadataView == "" {
		metadataView = DefaultMetadataView
	}
	if err := sources.ValidateQualified(metadataView); err != nil {
		return nil, fmt.Errorf("metadata view: %w", err)
	}
	adapter, err := New(provider, dialect, cfg)
	if err != nil {
		return nil, err
	}
	return &Warehouse{Adapter: adapter, metadataView: metadataView}, nil
}

func (w *Warehouse) selectStrings(ctx context.Context, op, subject, query string, args ...any) (out []string, err error) {
	started := time.Now()
	defer func() { metrics.ObserveQuery(w.cfg.Name, op, sources.Label(err), started) }()

	err = w.provider.Session(ctx, func(q db.Querier) error {
		return sqlx.SelectContext(ctx, q, &out, query, args...)
	})
	if err != nil {
		return nil, sources.Unavailable(w.cfg.Name, op, subject, err)
	}
	return out, nil
}

// unqualified strips the vault schema and removes duplicates, keeping order.
func (w *Warehouse) unqualified(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		bare := naming.StripSchema(w.cfg.Schema, n)
		if !seen[bare] {
			seen[bare] = true
			out = append(out, bare)
		}
	}
	return out
}

// ListTargets returns the vault tables fed from sourceSystem. An empty
// sourceSystem lists every sink target.
func (w *Warehouse) ListTargets(ctx context.Context, sourceSystem string) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT target_table FROM %s WHERE type = ?", w.metadataView)
	args := []any{sinkType}
	if sourceSystem != "" {
		query += " AND source_system = ?"
		args = append(args, sourceSystem)
	}
	query += " ORDER BY target_table"

	tables, err := w.selectStrings(ctx, sources.OpListTargets, sourceSystem, query, args...)
	if err != nil {
		return nil, err
	}
	return w.unqualified(tables), nil
}

// Topics returns the topics sunk from sourceSystem.
func (w *Warehouse) Topics(ctx context.Context, sourceSystem string) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT topic_name FROM %s WHERE type = ?", w.metadataView)
	args := []any{sinkType}
	if sourceSystem != "" {
		query += " AND source_system = ?"
		args = append(args, sourceSystem)
	}
	query += " ORDER BY topic_name"

	topics, err := w.selectStrings(ctx, opTopics, sourceSystem, query, args...)
	if err != nil {
		return nil, err
	}
	if topics == nil {
		topics = []string{}
	}
	return topics, nil
}

// TopicsForTable returns the topics feeding table.
func (w *Warehouse) TopicsForTable(ctx context.Context, table string) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT topic_name FROM %s
		WHERE target_table IN (?, ?) ORDER BY topic_name`, w.metadataView)

	topics, err := w.selectStrings(ctx, opTopicsForTable, table, query, naming.Qualify(w.cfg.Schema, table), table)
	if err != nil {
		return nil, err
	}
	if topics == nil {
		topics = []string{}
	}
	return topics, nil
}

// TablesForTopic returns the vault tables topic feeds.
func (w *Warehouse) TablesForTopic(ctx context.Context, topic string) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT target_table FROM %s
		WHERE topic_name = ? ORDER BY target_table`, w.metadataView)

	tables, err := w.selectStrings(ctx, opTablesForTopic, topic, query, topic)
	if err != nil {
		return nil, err
	}
	return w.unqualified(tables), nil
}

// Identity returns who the warehouse connection runs as.
func (w *Warehouse) Identity(ctx context.Context) (id models.Identity, err error) {
	started := time.Now()
	defer func() { metrics.ObserveQuery(w.cfg.Name, opIdentity, sources.Label(err), started) }()

	err = w.provider.Session(ctx, func(q db.Querier) error {
		return sqlx.GetContext(ctx, q, &id, w.dialect.Identity())
	})
	if err != nil {
		return models.Identity{}, sources.Unavailable(w.cfg.Name, opIdentity, "", err)
	}
	return id, nil
}
