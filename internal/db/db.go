// Package db manages connections to the monitored databases.
package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	// Drivers for the relational store, the warehouse and local sqlite sources.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/snowflakedb/gosnowflake"
	_ "modernc.org/sqlite"

	"github.com/j-veylop/pipeline-monitor-tui/internal/logger"
)

// Querier is what a session hands to callers.
type Querier interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// Provider hands out connections scoped to a single operation.
type Provider interface {
	Session(ctx context.Context, fn func(q Querier) error) error
	Close() error
}

// ErrClosed is returned by Session after Close.
var ErrClosed = errors.New("connection provider closed")

// Options controls how connections are acquired.
type Options struct {
	// ReuseTTL keeps a shared pool whose connections expire after this long.
	// Zero opens and closes a connection for every session.
	ReuseTTL time.Duration
	// MaxOpen caps pooled connections. Zero leaves the driver default.
	MaxOpen int
	// ConnectTimeout bounds opening and pinging a connection.
	ConnectTimeout time.Duration
}

// DB is a Provider for one driver and DSN.
type DB struct {
	driver string
	dsn    string
	opts   Options

	mu     sync.Mutex
	shared *sqlx.DB
	closed bool
}

// New creates a provider. No connection is made until the first session.
func New(driver, dsn string, opts Options) (*DB, error) {
	if driver == "" {
		return nil, fmt.Errorf("database driver is required")
	}
	if dsn == "" {
		return nil, fmt.Errorf("%s: dsn is required", driver)
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 15 * time.Second
	}
	if driver == "sqlite" {
		if err := ensureDir(sqlitePath(dsn)); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return &DB{driver: driver, dsn: dsn, opts: opts}, nil
}

// Driver returns the driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Session acquires a connection, runs fn against it and releases it.
func (db *DB) Session(ctx context.Context, fn func(q Querier) error) error {
	pool, release, err := db.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	conn, err := pool.Connx(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Debug("failed to release connection", "driver", db.driver, "error", err)
		}
	}()

	if err := db.configure(ctx, conn); err != nil {
		return err
	}
	return fn(conn)
}

func (db *DB) acquire(ctx context.Context) (*sqlx.DB, func(), error) {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil, nil, ErrClosed
	}

	if db.opts.ReuseTTL <= 0 {
		db.mu.Unlock()
		pool, err := db.open(ctx)
		if err != nil {
			return nil, nil, err
		}
		return pool, func() {
			if err := pool.Close(); err != nil {
				logger.Debug("failed to close connection", "driver", db.driver, "error", err)
			}
		}, nil
	}
	defer db.mu.Unlock()

	if db.shared == nil {
		pool, err := db.open(ctx)
		if err != nil {
			return nil, nil, err
		}
		pool.SetConnMaxLifetime(db.opts.ReuseTTL)
		pool.SetConnMaxIdleTime(db.opts.ReuseTTL)
		if db.opts.MaxOpen > 0 {
			pool.SetMaxOpenConns(db.opts.MaxOpen)
		}
		db.shared = pool
	}
	return db.shared, func() {}, nil
}

func (db *DB) open(ctx context.Context) (*sqlx.DB, error) {
	pool, err := sqlx.Open(db.driver, db.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", db.driver, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, db.opts.ConnectTimeout)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", db.driver, err)
	}
	return pool, nil
}

// configure applies per-connection settings for drivers that need them.
func (db *DB) configure(ctx context.Context, conn *sqlx.Conn) error {
	if db.driver != "sqlite" {
		return nil
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// Close releases the shared pool, if any. Sessions fail afterwards.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.closed = true
	if db.shared == nil {
		return nil
	}
	err := db.shared.Close()
	db.shared = nil
	return err
}

func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == ":memory:" || path == "" {
		return ""
	}
	return filepath.Dir(path)
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
