package reconcile

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
)

// HourLayout is the hour format used in exports and tables.
const HourLayout = "2006-01-02 15:00"

// WriteCSV writes one row per hour with a count and a presence column per source.
func WriteCSV(w io.Writer, rec *models.Reconciliation) error {
	if rec == nil {
		return fmt.Errorf("nothing to export")
	}

	cw := csv.NewWriter(w)

	header := []string{"hour_of_day_utc"}
	for _, source := range rec.Sources {
		header = append(header, source+"_count", source+"_present")
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, row := range rec.Rows {
		record := []string{row.Hour.UTC().Format(HourLayout)}
		for _, source := range rec.Sources {
			present := strconv.FormatBool(row.Present[source])
			if rec.IsUnavailable(source) {
				present = "unavailable"
			}
			record = append(record, strconv.FormatInt(row.Counts[source], 10), present)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
