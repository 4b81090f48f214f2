// Package config contains everything related to configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
)

// Source kinds a source system can be compared through.
const (
	SourceRelational = "relational"
	SourceSearch     = "search"
)

// DatabaseConfig describes one SQL source.
type DatabaseConfig struct {
	Driver   string
	DSN      string
	Schema   string
	Timezone string
	Location *time.Location
	// ReuseTTL keeps pooled connections this long; zero connects per query.
	ReuseTTL time.Duration
}

// Configured reports whether a DSN was supplied.
func (d DatabaseConfig) Configured() bool {
	return d.DSN != ""
}

// SearchConfig describes the search platform.
type SearchConfig struct {
	BaseURL        string
	Token          string
	PollInterval   time.Duration
	Timeout        time.Duration
	RequestTimeout time.Duration
	RateLimit      float64
	StatusBuckets  int
}

// Configured reports whether a base URL was supplied.
func (s SearchConfig) Configured() bool {
	return s.BaseURL != ""
}

// SourceSystem names an upstream system and the source that observes it.
type SourceSystem struct {
	Name   string
	Source string
}

// Config holds the application configuration.
type Config struct {
	EnvFile string

	Warehouse    DatabaseConfig
	MetadataView string
	Relational   DatabaseConfig
	Search       SearchConfig

	SourceSystems        []SourceSystem
	DefaultLookbackHours int
	CacheTTL             time.Duration
	RefreshInterval      time.Duration
	QueryTimeout         time.Duration

	NotificationsEnabled bool
	DiscrepancyThreshold float64

	MetricsAddr string
	LogLevel    string
	LogPath     string
}

// Default values
const (
	defaultCacheTTL             = 20 * time.Minute
	defaultRefreshInterval      = 20 * time.Minute
	defaultQueryTimeout         = 3 * time.Minute
	defaultPollInterval         = time.Second
	defaultSearchTimeout        = 2 * time.Minute
	defaultRequestTimeout       = 30 * time.Second
	defaultRateLimit            = 10.0
	defaultStatusBuckets        = 300
	defaultLookbackHours        = 1
	defaultDiscrepancyThreshold = 10.0
	defaultSourceSystems        = "DVM=relational,RXMGT=search"
	defaultMetadataView         = "PROD_GPM_DW.METADATA.KAFKA_SINK_SOURCE_TARGET_V"
)

// Load reads configuration from the first .env file found and the environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	envFile := ""
	for _, path := range getEnvPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			envFile = path
			break
		}
	}
	return build(envFile)
}

// Reload re-reads path, letting its values replace the current environment.
func Reload(path string) (*Config, error) {
	if err := godotenv.Overload(path); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return build(path)
}

func build(envFile string) (*Config, error) {
	systems, err := parseSourceSystems(getEnvString("SOURCE_SYSTEMS", defaultSourceSystems))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		EnvFile: envFile,
		Warehouse: DatabaseConfig{
			Driver:   getEnvString("WAREHOUSE_DRIVER", "snowflake"),
			DSN:      getEnvString("WAREHOUSE_DSN", ""),
			Schema:   getEnvString("WAREHOUSE_SCHEMA", "VLT"),
			Timezone: getEnvString("WAREHOUSE_TIMEZONE", "UTC"),
			ReuseTTL: getEnvDuration("WAREHOUSE_REUSE_TTL", 0),
		},
		MetadataView: getEnvString("WAREHOUSE_METADATA_VIEW", defaultMetadataView),
		Relational: DatabaseConfig{
			Driver:   getEnvString("RELATIONAL_DRIVER", "mysql"),
			DSN:      getEnvString("RELATIONAL_DSN", ""),
			Schema:   getEnvString("RELATIONAL_SCHEMA", "dvm"),
			Timezone: getEnvString("RELATIONAL_TIMEZONE", "UTC"),
			ReuseTTL: getEnvDuration("RELATIONAL_REUSE_TTL", 0),
		},
		Search: SearchConfig{
			BaseURL:        getEnvString("SEARCH_BASE_URL", ""),
			Token:          getEnvString("SEARCH_TOKEN", ""),
			PollInterval:   getEnvDuration("SEARCH_POLL_INTERVAL", defaultPollInterval),
			Timeout:        getEnvDuration("SEARCH_TIMEOUT", defaultSearchTimeout),
			RequestTimeout: getEnvDuration("SEARCH_REQUEST_TIMEOUT", defaultRequestTimeout),
			RateLimit:      getEnvFloat("SEARCH_RATE_LIMIT", defaultRateLimit),
			StatusBuckets:  getEnvInt("SEARCH_STATUS_BUCKETS", defaultStatusBuckets),
		},
		SourceSystems:        systems,
		DefaultLookbackHours: getEnvInt("DEFAULT_LOOKBACK_HOURS", defaultLookbackHours),
		CacheTTL:             getEnvDuration("CACHE_TTL", defaultCacheTTL),
		RefreshInterval:      getEnvDuration("REFRESH_INTERVAL", defaultRefreshInterval),
		QueryTimeout:         getEnvDuration("QUERY_TIMEOUT", defaultQueryTimeout),
		NotificationsEnabled: getEnvBool("NOTIFICATIONS_ENABLED", true),
		DiscrepancyThreshold: getEnvFloat("DISCREPANCY_THRESHOLD", defaultDiscrepancyThreshold),
		MetricsAddr:          getEnvString("METRICS_ADDR", ""),
		LogLevel:             getEnvString("LOG_LEVEL", "info"),
		LogPath:              getEnvString("LOG_PATH", getDefaultLogPath()),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := ensureDir(filepath.Dir(cfg.LogPath)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required settings and resolves timezones.
func (c *Config) Validate() error {
	if !c.Warehouse.Configured() {
		return fmt.Errorf("WAREHOUSE_DSN is required")
	}

	for _, d := range []*DatabaseConfig{&c.Warehouse, &c.Relational} {
		switch d.Driver {
		case "mysql", "snowflake", "sqlite":
		default:
			return fmt.Errorf("unsupported database driver %q", d.Driver)
		}
		loc, err := time.LoadLocation(d.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone %q: %w", d.Timezone, err)
		}
		d.Location = loc
	}

	if err := models.ValidateLookback(c.DefaultLookbackHours); err != nil {
		return fmt.Errorf("DEFAULT_LOOKBACK_HOURS: %w", err)
	}
	if c.Search.Configured() && c.Search.Token == "" {
		return fmt.Errorf("SEARCH_TOKEN is required when SEARCH_BASE_URL is set")
	}
	if len(c.SourceSystems) == 0 {
		return fmt.Errorf("at least one source system is required")
	}
	return nil
}

// SourceFor returns the source kind observing system.
func (c *Config) SourceFor(system string) (string, bool) {
	for _, s := range c.SourceSystems {
		if s.Name == system {
			return s.Source, true
		}
	}
	return "", false
}

// parseSourceSystems parses "DVM=relational,RXMGT=search".
func parseSourceSystems(value string) ([]SourceSystem, error) {
	var systems []SourceSystem
	seen := make(map[string]bool)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, source, ok := strings.Cut(part, "=")
		name, source = strings.TrimSpace(name), strings.ToLower(strings.TrimSpace(source))
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid SOURCE_SYSTEMS entry %q", part)
		}
		if source != SourceRelational && source != SourceSearch {
			return nil, fmt.Errorf("source system %s: unknown source %q", name, source)
		}
		if seen[name] {
			return nil, fmt.Errorf("source system %s listed twice", name)
		}
		seen[name] = true
		systems = append(systems, SourceSystem{Name: name, Source: source})
	}
	return systems, nil
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	// Current directory
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "pipeline-monitor", ".env"))
	}

	// Parent directories (useful for development)
	if cwd, err := os.Getwd(); err == nil {
		parent := filepath.Dir(cwd)
		paths = append(paths, filepath.Join(parent, ".env"))
	}

	return paths
}

// getDefaultLogPath returns the default log file location.
func getDefaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "pmt.log"
	}
	return filepath.Join(home, ".config", "pipeline-monitor", "pmt.log")
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds if no unit specified
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
