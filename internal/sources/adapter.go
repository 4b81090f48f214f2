// Package sources defines the contract every data system adapter implements,
// the error kinds they report and the decorators layered over them.
package sources

import (
	"context"
	"fmt"
	"regexp"

	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
)

// Source names used across the application.
const (
	Warehouse  = "warehouse"
	Relational = "relational"
	Search     = "search"
)

// Operation names used for errors, metrics and cache keys.
const (
	OpCount        = "count"
	OpHourlySeries = "hourly_series"
	OpListTargets  = "list_targets"
)

// Adapter queries one data system for record counts.
type Adapter interface {
	// Name identifies the source in results and errors.
	Name() string
	// Count returns the records in target within [now-lookbackHours, now).
	Count(ctx context.Context, target string, lookbackHours int) (int64, error)
	// HourlySeries returns per-hour counts for the trailing 24 hours, newest first.
	HourlySeries(ctx context.Context, target string) ([]models.BucketedCount, error)
	// ListTargets enumerates target identifiers matching filter.
	ListTargets(ctx context.Context, filter string) ([]string, error)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// ValidateIdentifier rejects names that cannot be safely interpolated as a
// table, column or saved search name.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// ValidateQualified checks each dot-separated part of a qualified name.
func ValidateQualified(name string) error {
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '.' {
			if err := ValidateIdentifier(name[start:i]); err != nil {
				return fmt.Errorf("invalid qualified name %q: %w", name, err)
			}
			start = i + 1
		}
	}
	return nil
}
