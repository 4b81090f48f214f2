package timeline

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/reconcile"
	"github.com/j-veylop/pipeline-monitor-tui/internal/ui/components"
	"github.com/j-veylop/pipeline-monitor-tui/internal/ui/styles"
)

// View renders the timeline tab.
func (m *Model) View() string {
	snap := m.state.Snapshot()

	switch {
	case snap == nil && m.state.AnyLoading():
		return m.renderMessage(styles.HelpStyle.Render("Loading timeline..."))
	case snap == nil:
		return m.renderMessage(styles.HelpStyle.Render("No timeline yet. Select a target table on the Overview tab."))
	case snap.Selection.Mode == models.ByTopic:
		return m.renderMessage(styles.HelpStyle.Render("The hourly timeline is only available when filtering by target table."))
	case snap.Timeline == nil:
		msg := "No timeline available"
		if snap.TimelineErr != nil {
			msg = "Timeline failed: " + snap.TimelineErr.Error()
		}
		return m.renderMessage(styles.ErrorTextStyle.Render(msg))
	}

	rec := snap.Timeline
	var sections []string

	sections = append(sections, m.renderHeader(snap))
	if banner := components.RenderDegradedBanner(rec); banner != "" {
		sections = append(sections, banner, "")
	}
	sections = append(sections,
		components.RenderComparisonChart(rec, max(m.width-20, 20), chartHeight),
		"",
		m.renderSummary(rec),
		"",
		components.RenderReconciledTable(rec, 0, 0),
	)

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)
	m.viewport.SetContent(content)

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(m.viewport.View())
}

func (m *Model) renderMessage(content string) string {
	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(lipgloss.JoinVertical(lipgloss.Left, styles.TitleStyle.Render("Timeline"), content))
}

func (m *Model) renderHeader(snap *models.Snapshot) string {
	title := styles.TitleStyle.Render("Timeline · " + snap.Selection.Target)
	subtitle := styles.HelpStyle.Render(fmt.Sprintf("Hourly counts for the last %.0f hours (UTC), newest first. Press e to export.",
		models.SeriesWindow.Hours()))
	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

// renderSummary compares every other source to the first one.
func (m *Model) renderSummary(rec *models.Reconciliation) string {
	if len(rec.Sources) < 2 {
		return ""
	}

	threshold := 0.0
	if cfg := m.state.Config(); cfg != nil {
		threshold = cfg.DiscrepancyThreshold
	}

	first := rec.Sources[0]
	rows := []string{styles.CardTitleStyle.Render("Summary")}
	for _, source := range rec.Sources[1:] {
		if rec.IsUnavailable(first) || rec.IsUnavailable(source) {
			rows = append(rows, fmt.Sprintf("%s vs %s: %s", first, source, styles.UnavailableStyle.Render(components.UnavailableText)))
			continue
		}

		s := reconcile.Summarize(rec, first, source)
		pct := s.DiscrepancyPercent()
		rows = append(rows, fmt.Sprintf("%s %s · %s %s · %s",
			first, humanize.Comma(s.TotalA),
			source, humanize.Comma(s.TotalB),
			styles.GetDiscrepancyStyle(pct, threshold).Render(fmt.Sprintf("Δ %+d (%.1f%%)", s.Delta(), pct)),
		))

		details := fmt.Sprintf("  missing in %s: %d h · missing in %s: %d h", first, len(s.MissingInA), source, len(s.MissingInB))
		if s.LargestGap > 0 {
			details += fmt.Sprintf(" · largest gap %s at %s UTC", humanize.Comma(s.LargestGap), s.LargestGapHour.UTC().Format("01-02 15:00"))
		}
		rows = append(rows, styles.HelpStyle.Render(details))
	}

	return styles.CardStyle.Width(max(min(m.width-6, 110), 50)).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
