package overview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/pipeline-monitor-tui/internal/app"
	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/reconcile"
	"github.com/j-veylop/pipeline-monitor-tui/internal/sources"
	"github.com/j-veylop/pipeline-monitor-tui/internal/ui/components"
	"github.com/j-veylop/pipeline-monitor-tui/internal/ui/styles"
)

// View renders the overview tab.
func (m *Model) View() string {
	if m.state.IsLoading(app.ResourceInitial) {
		return components.RenderSpinnerCentered(m.spinner, m.width, m.height)
	}

	listWidth := min(max(m.width/3, 24), 44)
	detailWidth := max(m.width-listWidth-8, 40)

	content := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderList(listWidth),
		"  ",
		m.renderDetail(detailWidth),
	)

	m.viewport.SetContent(content)

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(m.viewport.View())
}

// renderList renders the targets or topics of the selected source system.
func (m *Model) renderList(width int) string {
	sel := m.state.Selection()

	heading := "Target Tables"
	if sel.Mode == models.ByTopic {
		heading = "Topics"
	}

	var rows []string
	rows = append(rows, styles.CardTitleStyle.Render(fmt.Sprintf("%s · %s", heading, sel.SourceSystem)))

	items := m.state.Items()
	switch {
	case m.state.CatalogError() != nil:
		rows = append(rows, styles.ErrorTextStyle.Render("Failed to list: "+m.state.CatalogError().Error()))
	case m.state.IsLoading(app.ResourceCatalog) && len(items) == 0:
		rows = append(rows, m.spinner.ViewWith("Listing "+strings.ToLower(heading)+"..."))
	case len(items) == 0:
		rows = append(rows, styles.HelpStyle.Render("Nothing found for "+sel.SourceSystem))
	default:
		rows = append(rows, m.renderItems(items, sel, width-6)...)
	}

	return styles.CardStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderItems(items []string, sel models.Selection, width int) []string {
	selected := sel.Target
	if sel.Mode == models.ByTopic {
		selected = sel.Topic
	}

	cursor := m.state.Cursor()
	visible := max(m.height-8, 5)
	start := 0
	if cursor >= visible {
		start = cursor - visible + 1
	}
	end := min(start+visible, len(items))

	rows := make([]string, 0, end-start+2)
	if start > 0 {
		rows = append(rows, styles.HelpStyle.Render(fmt.Sprintf("  ↑ %d more", start)))
	}
	for i := start; i < end; i++ {
		name := truncate(items[i], width-2)
		marker := "  "
		if items[i] == selected {
			marker = "● "
		}
		if i == cursor {
			rows = append(rows, styles.SelectedListItemStyle.Render("▸ "+name))
			continue
		}
		rows = append(rows, styles.HelpStyle.Render(marker)+name)
	}
	if end < len(items) {
		rows = append(rows, styles.HelpStyle.Render(fmt.Sprintf("  ↓ %d more", len(items)-end)))
	}
	return rows
}

// renderDetail renders the counts of the current snapshot.
func (m *Model) renderDetail(width int) string {
	sel := m.state.Selection()
	snap := m.state.Snapshot()

	var sections []string
	sections = append(sections, styles.TitleStyle.Render(app.SelectionLabel(sel)))

	if m.state.IsLoading(app.ResourceSnapshot) {
		sections = append(sections, m.spinner.ViewWithLabel())
	}
	if err := m.state.LastError(); err != nil {
		sections = append(sections, styles.ErrorTextStyle.Render("Last refresh failed: "+err.Error()))
	}

	if snap == nil {
		if !sel.Ready() {
			sections = append(sections, styles.HelpStyle.Render("Pick an item on the left and press enter"))
		}
		return lipgloss.JoinVertical(lipgloss.Left, sections...)
	}

	sections = append(sections, styles.SubTitleStyle.Render(
		fmt.Sprintf("Records inserted in the past %dh", snap.Selection.LookbackHours)))

	if snap.Selection.Mode == models.ByTopic {
		sections = append(sections, m.renderTopicTables(snap, width))
	} else {
		sections = append(sections, m.renderCounts(snap, width))
		sections = append(sections, m.renderTopics(snap))
		if spark := m.renderSparkline(snap, width); spark != "" {
			sections = append(sections, spark)
		}
	}

	sections = append(sections, styles.HelpStyle.Render(
		fmt.Sprintf("Taken %s UTC", snap.TakenAt.UTC().Format("2006-01-02 15:04:05"))))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderCounts renders one card per source plus the gap of each source to
// the warehouse.
func (m *Model) renderCounts(snap *models.Snapshot, width int) string {
	cardWidth := max(width/(len(snap.SourceCounts)+1)-4, 20)

	cards := []string{components.RenderCountCard("Target Count", snap.TargetCount, cardWidth)}
	for _, c := range snap.SourceCounts {
		cards = append(cards, " ", components.RenderCountCard(fmt.Sprintf("Source Count (%s)", c.Source), c, cardWidth))
	}

	rows := []string{lipgloss.JoinHorizontal(lipgloss.Top, cards...)}

	threshold := 0.0
	if cfg := m.state.Config(); cfg != nil {
		threshold = cfg.DiscrepancyThreshold
	}
	for _, c := range snap.SourceCounts {
		if !c.Available() || !snap.TargetCount.Available() {
			continue
		}
		pct := reconcile.Discrepancy(snap.TargetCount.Count, c.Count)
		line := fmt.Sprintf("%s vs %s: %+d (%.1f%%)", sources.Warehouse, c.Source, snap.TargetCount.Count-c.Count, pct)
		rows = append(rows, styles.GetDiscrepancyStyle(pct, threshold).Render(line))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// renderTopics lists the topics feeding the selected target table.
func (m *Model) renderTopics(snap *models.Snapshot) string {
	rows := []string{"", styles.CardTitleStyle.Render("Topics feeding " + snap.Selection.Target)}
	switch {
	case snap.TopicsErr != nil:
		rows = append(rows, styles.UnavailableStyle.Render(components.UnavailableText))
	case len(snap.Topics) == 0:
		rows = append(rows, styles.HelpStyle.Render("No topics recorded"))
	default:
		for _, topic := range snap.Topics {
			rows = append(rows, styles.ListItemStyle.Render("• "+topic))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// renderTopicTables charts the warehouse count of every table a topic feeds.
func (m *Model) renderTopicTables(snap *models.Snapshot, width int) string {
	rows := []string{styles.CardTitleStyle.Render("Target tables fed by " + snap.Selection.Topic)}
	if len(snap.TopicTables) == 0 {
		rows = append(rows, styles.HelpStyle.Render("No target tables recorded"))
		return lipgloss.JoinVertical(lipgloss.Left, rows...)
	}

	var (
		values []int64
		labels []string
	)
	for _, tt := range snap.TopicTables {
		if !tt.Available() {
			rows = append(rows, fmt.Sprintf("%s  %s", tt.Table, styles.UnavailableStyle.Render(components.UnavailableText)))
			continue
		}
		values = append(values, tt.Count)
		labels = append(labels, tt.Table)
	}
	if chart := components.RenderBarChart(values, labels, width); chart != "" {
		rows = append(rows, chart)
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// renderSparkline shows the warehouse's last 24 hours at a glance.
func (m *Model) renderSparkline(snap *models.Snapshot, width int) string {
	rec := snap.Timeline
	if rec == nil || len(rec.Rows) == 0 || rec.IsUnavailable(sources.Warehouse) {
		return ""
	}
	spark := lipgloss.NewStyle().Foreground(styles.Warehouse).
		Render(components.RenderSparkline(rec.Chronological(sources.Warehouse), min(width-12, len(rec.Rows)*2)))
	return lipgloss.JoinVertical(lipgloss.Left, "", styles.HelpStyle.Render("Last 24h ")+spark)
}

func truncate(s string, width int) string {
	if width <= 1 || lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	return string(r[:min(len(r), width-1)]) + "…"
}
