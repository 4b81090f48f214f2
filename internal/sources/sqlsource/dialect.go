package sqlsource

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/snowflakedb/gosnowflake"
)

// Dialect supplies the SQL that differs between database engines.
type Dialect interface {
	Name() string
	// Window restricts column to [now-hours, now) and returns the bind arguments.
	Window(column string, hours int) (string, []any)
	// HourWindow restricts column to [start of the current hour - hours, now).
	HourWindow(column string, hours int) (string, []any)
	// HourBucket renders column as 'YYYY-MM-DD HH:00:00' text.
	HourBucket(column string) string
	// Table qualifies table with schema where the engine supports schemas.
	Table(schema, table string) string
	// ListTables returns a query enumerating tables in schema whose name matches a LIKE pattern.
	ListTables(schema, pattern string) (string, []any)
	// Identity returns a query yielding user_name, account_name and region_name.
	Identity() string
	// IsSchemaMismatch reports whether err means a referenced column does not exist.
	IsSchemaMismatch(err error) bool
}

// DialectFor returns the dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "mysql":
		return MySQL{}, nil
	case "snowflake":
		return Snowflake{}, nil
	case "sqlite":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// MySQL is the relational store dialect.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) Window(column string, hours int) (string, []any) {
	return fmt.Sprintf("%[1]s >= DATE_SUB(NOW(), INTERVAL ? HOUR) AND %[1]s < NOW()", column), []any{hours}
}

func (MySQL) HourWindow(column string, hours int) (string, []any) {
	return fmt.Sprintf("%[1]s >= DATE_SUB(DATE_FORMAT(NOW(), '%%Y-%%m-%%d %%H:00:00'), INTERVAL ? HOUR) AND %[1]s < NOW()", column),
		[]any{hours}
}

func (MySQL) HourBucket(column string) string {
	return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d %%H:00:00')", column)
}

func (MySQL) Table(schema, table string) string {
	if schema == "" {
		return table
	}
	return schema + "." + table
}

func (MySQL) ListTables(schema, pattern string) (string, []any) {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = ? AND table_name LIKE ? ORDER BY table_name`, []any{schema, pattern}
}

func (MySQL) Identity() string {
	return `SELECT CURRENT_USER() AS user_name, COALESCE(DATABASE(), '') AS account_name, @@hostname AS region_name`
}

// ER_BAD_FIELD_ERROR
const mysqlUnknownColumn = 1054

func (MySQL) IsSchemaMismatch(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlUnknownColumn
}

// Snowflake is the warehouse dialect.
type Snowflake struct{}

func (Snowflake) Name() string { return "snowflake" }

func (Snowflake) Window(column string, hours int) (string, []any) {
	return fmt.Sprintf("%[1]s >= DATEADD(hour, ?, CURRENT_TIMESTAMP()) AND %[1]s < CURRENT_TIMESTAMP()", column), []any{-hours}
}

func (Snowflake) HourWindow(column string, hours int) (string, []any) {
	return fmt.Sprintf("%[1]s >= DATEADD(hour, ?, DATE_TRUNC('HOUR', CURRENT_TIMESTAMP())) AND %[1]s < CURRENT_TIMESTAMP()", column),
		[]any{-hours}
}

func (Snowflake) HourBucket(column string) string {
	return fmt.Sprintf("TO_VARCHAR(DATE_TRUNC('HOUR', %s), 'YYYY-MM-DD HH24:00:00')", column)
}

func (Snowflake) Table(schema, table string) string {
	if schema == "" {
		return table
	}
	return schema + "." + table
}

func (Snowflake) ListTables(schema, pattern string) (string, []any) {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = ? AND table_name ILIKE ? ORDER BY table_name`, []any{schema, pattern}
}

func (Snowflake) Identity() string {
	return `SELECT CURRENT_USER() AS user_name, CURRENT_ACCOUNT() AS account_name, CURRENT_REGION() AS region_name`
}

// SQL compilation error: invalid identifier
const snowflakeInvalidIdentifier = 904

func (Snowflake) IsSchemaMismatch(err error) bool {
	var sfErr *gosnowflake.SnowflakeError
	return errors.As(err, &sfErr) && sfErr.Number == snowflakeInvalidIdentifier
}

// SQLite serves local sources. Timestamps are stored as UTC text.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Window(column string, hours int) (string, []any) {
	return fmt.Sprintf("%[1]s >= datetime('now', ?) AND %[1]s < datetime('now')", column),
		[]any{fmt.Sprintf("-%d hours", hours)}
}

func (SQLite) HourWindow(column string, hours int) (string, []any) {
	return fmt.Sprintf("%[1]s >= datetime(strftime('%%Y-%%m-%%d %%H:00:00', 'now'), ?) AND %[1]s < datetime('now')", column),
		[]any{fmt.Sprintf("-%d hours", hours)}
}

func (SQLite) HourBucket(column string) string {
	return fmt.Sprintf("strftime('%%Y-%%m-%%d %%H:00:00', %s)", column)
}

// Table ignores schema; a sqlite file has a single namespace.
func (SQLite) Table(_, table string) string { return table }

func (SQLite) ListTables(_, pattern string) (string, []any) {
	return `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name LIKE ? AND name NOT LIKE 'sqlite_%' ORDER BY name`, []any{pattern}
}

func (SQLite) Identity() string {
	return `SELECT 'local' AS user_name, 'sqlite' AS account_name, sqlite_version() AS region_name`
}

func (SQLite) IsSchemaMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such column")
}
