package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/reconcile"
	"github.com/j-veylop/pipeline-monitor-tui/internal/sources"
)

// writeReport prints a plain-text summary of snap.
func writeReport(w io.Writer, snap *models.Snapshot, threshold float64) error {
	sel := snap.Selection

	fmt.Fprintf(w, "%s (%s), last %dh, taken %s UTC\n\n",
		sel.Target, sel.SourceSystem, sel.LookbackHours, snap.TakenAt.UTC().Format("2006-01-02 15:04:05"))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tTABLE\tCOUNT\tGAP")
	fmt.Fprintf(tw, "%s\t%s\t%s\t\n", snap.TargetCount.Source, snap.TargetCount.Target, countText(snap.TargetCount))
	for _, c := range snap.SourceCounts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Source, c.Target, countText(c), gapText(snap.TargetCount, c, threshold))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	switch {
	case snap.TopicsErr != nil:
		fmt.Fprintf(w, "\ntopics: unavailable (%v)\n", snap.TopicsErr)
	case len(snap.Topics) > 0:
		fmt.Fprintf(w, "\ntopics: %s\n", strings.Join(snap.Topics, ", "))
	}

	if rec := snap.Timeline; rec != nil && len(rec.Sources) > 1 {
		fmt.Fprintf(w, "\nlast %.0fh:\n", models.SeriesWindow.Hours())
		first := rec.Sources[0]
		for _, source := range rec.Sources[1:] {
			if rec.IsUnavailable(first) || rec.IsUnavailable(source) {
				fmt.Fprintf(w, "  %s vs %s: unavailable\n", first, source)
				continue
			}
			s := reconcile.Summarize(rec, first, source)
			fmt.Fprintf(w, "  %s %s, %s %s, delta %+d (%.1f%%), %d hours missing in %s\n",
				first, humanize.Comma(s.TotalA), source, humanize.Comma(s.TotalB),
				s.Delta(), s.DiscrepancyPercent(), len(s.MissingInB), source)
		}
	} else if snap.TimelineErr != nil {
		fmt.Fprintf(w, "\ntimeline: %v\n", snap.TimelineErr)
	}

	if snap.Degraded() {
		fmt.Fprintln(w, "\nDEGRADED: at least one source was unavailable")
	}
	return nil
}

func countText(c models.CountResult) string {
	if !c.Available() {
		return "Unavailable (" + sources.Label(c.Err) + ")"
	}
	return humanize.Comma(c.Count)
}

func gapText(target, c models.CountResult, threshold float64) string {
	if !target.Available() || !c.Available() {
		return ""
	}
	pct := reconcile.Discrepancy(target.Count, c.Count)
	text := fmt.Sprintf("%+d (%.1f%%)", target.Count-c.Count, pct)
	if reconcile.OverThreshold(pct, threshold) {
		text += " !"
	}
	return text
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
