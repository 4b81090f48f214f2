package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/sources"
	"github.com/j-veylop/pipeline-monitor-tui/internal/ui/styles"
)

// Cell texts for missing values.
const (
	UnavailableText = "Unavailable"
	AbsentText      = "absent"
)

// FormatCount renders a count, or UnavailableText when it failed.
func FormatCount(c models.CountResult) string {
	if !c.Available() {
		return UnavailableText
	}
	return humanize.Comma(c.Count)
}

// RenderCountCard renders one source's count as a card.
func RenderCountCard(title string, c models.CountResult, width int) string {
	var b strings.Builder
	b.WriteString(styles.CardTitleStyle.Render(title))
	b.WriteString("\n")

	if c.Available() {
		b.WriteString(styles.MetricStyle.Render(FormatCount(c)))
	} else {
		b.WriteString(styles.UnavailableStyle.Render(UnavailableText))
		b.WriteString("\n")
		b.WriteString(styles.HelpStyle.Render(strings.ReplaceAll(sources.Label(c.Err), "_", " ")))
	}
	if c.Target != "" {
		b.WriteString("\n")
		b.WriteString(styles.HelpStyle.Render(c.Target))
	}

	return styles.CardStyle.Width(max(width, 16)).Render(b.String())
}

// RenderDegradedBanner lists the sources missing from rec, or returns "" when
// every source answered.
func RenderDegradedBanner(rec *models.Reconciliation) string {
	if rec == nil || !rec.Degraded {
		return ""
	}
	var missing []string
	for _, source := range rec.Sources {
		if rec.IsUnavailable(source) {
			missing = append(missing, source)
		}
	}
	return styles.BannerStyle.Render("Degraded: " + strings.Join(missing, ", ") + " unavailable")
}

// ReconciledHeaders returns the column titles of a reconciled table: the hour,
// every source, and the difference of every other source to the first one.
func ReconciledHeaders(rec *models.Reconciliation) []string {
	headers := []string{"Hour (UTC)"}
	headers = append(headers, rec.Sources...)
	for _, source := range rec.Sources[min(1, len(rec.Sources)):] {
		headers = append(headers, fmt.Sprintf("Δ %s", source))
	}
	return headers
}

// ReconciledCells returns the plain cell texts of one row.
func ReconciledCells(rec *models.Reconciliation, row models.ReconciledRow) []string {
	cells := []string{row.Hour.UTC().Format("01-02 15:00")}
	for _, source := range rec.Sources {
		switch {
		case rec.IsUnavailable(source):
			cells = append(cells, UnavailableText)
		case !row.IsPresent(source):
			cells = append(cells, AbsentText)
		default:
			cells = append(cells, humanize.Comma(row.Count(source)))
		}
	}
	if len(rec.Sources) > 1 {
		first := rec.Sources[0]
		for _, source := range rec.Sources[1:] {
			if rec.IsUnavailable(source) || rec.IsUnavailable(first) {
				cells = append(cells, "")
				continue
			}
			cells = append(cells, fmt.Sprintf("%+d", row.Delta(first, source)))
		}
	}
	return cells
}

// RenderReconciledTable renders up to limit rows of rec starting at offset.
func RenderReconciledTable(rec *models.Reconciliation, offset, limit int) string {
	if rec == nil || len(rec.Rows) == 0 {
		return styles.HelpStyle.Render(noData)
	}

	offset = min(max(offset, 0), len(rec.Rows)-1)
	end := len(rec.Rows)
	if limit > 0 {
		end = min(offset+limit, end)
	}

	rows := make([][]string, 0, end-offset)
	for _, row := range rec.Rows[offset:end] {
		rows = append(rows, ReconciledCells(rec, row))
	}

	nSources := len(rec.Sources)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.Subtle)).
		Headers(ReconciledHeaders(rec)...).
		Rows(rows...).
		StyleFunc(func(r, c int) lipgloss.Style {
			base := lipgloss.NewStyle().Padding(0, 1)
			if r == table.HeaderRow {
				return styles.TableHeaderStyle.Padding(0, 1)
			}
			if c == 0 || r < 0 || r >= len(rows) {
				return base
			}
			cell := rows[r][c]
			switch {
			case cell == UnavailableText:
				return styles.UnavailableStyle.Padding(0, 1)
			case cell == AbsentText:
				return styles.AbsentStyle.Padding(0, 1)
			case c > nSources && cell != "+0" && cell != "":
				return styles.WarningTextStyle.Padding(0, 1).Align(lipgloss.Right)
			default:
				return base.Align(lipgloss.Right)
			}
		})

	return t.Render()
}
