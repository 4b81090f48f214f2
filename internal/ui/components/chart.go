// Package components provides reusable UI components for the TUI.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/guptarohit/asciigraph"

	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/ui/styles"
)

const noData = "No data available"

// chartColor maps a source to its asciigraph series color.
func chartColor(source string) asciigraph.AnsiColor {
	switch source {
	case "warehouse":
		return asciigraph.Blue
	case "relational":
		return asciigraph.Red
	default:
		return asciigraph.Green
	}
}

// RenderComparisonChart plots every available source of rec, oldest hour on
// the left. Unavailable sources are left out of the plot and marked in the
// legend.
func RenderComparisonChart(rec *models.Reconciliation, width, height int) string {
	if rec == nil || len(rec.Rows) == 0 {
		return styles.HelpStyle.Render(noData)
	}

	// Ensure minimum dimensions
	width = max(width, 20)
	height = max(height, 3)

	var (
		data   [][]float64
		colors []asciigraph.AnsiColor
		legend []LegendItem
	)
	for _, source := range rec.Sources {
		item := LegendItem{Label: source, Color: styles.SourceColor(source)}
		if rec.IsUnavailable(source) {
			item.Label += " (unavailable)"
			item.Color = styles.Error
			legend = append(legend, item)
			continue
		}
		data = append(data, rec.Chronological(source))
		colors = append(colors, chartColor(source))
		legend = append(legend, item)
	}
	if len(data) == 0 {
		return styles.UnavailableStyle.Render("Unavailable") + "\n" + RenderLegend(legend)
	}

	oldest := rec.Rows[len(rec.Rows)-1].Hour.UTC()
	newest := rec.Rows[0].Hour.UTC()
	caption := fmt.Sprintf("records per hour, %s to %s UTC", oldest.Format("01-02 15:00"), newest.Format("01-02 15:00"))

	graph := asciigraph.PlotMany(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Precision(0),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(colors...),
	)

	return graph + "\n" + RenderLegend(legend)
}

// RenderBarChart creates a simple horizontal bar chart of counts.
func RenderBarChart(values []int64, labels []string, width int) string {
	if len(values) == 0 {
		return ""
	}

	var maxVal int64
	for _, v := range values {
		maxVal = max(maxVal, v)
	}
	if maxVal == 0 {
		maxVal = 1
	}

	maxLabelLen := 0
	for _, l := range labels {
		maxLabelLen = max(maxLabelLen, lipgloss.Width(l))
	}

	// Leave room for label and value
	barWidth := max(width-maxLabelLen-14, 10)

	lines := make([]string, 0, len(values))
	for i, v := range values {
		label := ""
		if i < len(labels) {
			label = labels[i]
		}

		barLen := max(int(float64(v)/float64(maxVal)*float64(barWidth)), 0)
		bar := strings.Repeat("█", barLen)

		lines = append(lines, fmt.Sprintf("%*s │%s %s", maxLabelLen, label, bar, humanize.Comma(v)))
	}

	return strings.Join(lines, "\n")
}

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// RenderSparkline creates a compact inline sparkline chart.
func RenderSparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}

	maxVal := 0.0
	for _, v := range values {
		maxVal = max(maxVal, v)
	}
	if maxVal == 0 {
		maxVal = 1
	}

	// Sample values to fit width
	var result strings.Builder
	step := max(float64(len(values))/float64(width), 1)

	for i := 0; i < width && int(float64(i)*step) < len(values); i++ {
		val := values[int(float64(i)*step)]
		normalized := int((val / maxVal) * float64(len(sparkChars)-1))
		normalized = min(max(normalized, 0), len(sparkChars)-1)
		result.WriteRune(sparkChars[normalized])
	}

	return result.String()
}

// RenderLegend creates a chart legend.
func RenderLegend(items []LegendItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		colorBox := lipgloss.NewStyle().Foreground(item.Color).Render("■")
		parts = append(parts, fmt.Sprintf("%s %s", colorBox, item.Label))
	}
	return strings.Join(parts, "  ")
}

// LegendItem represents a single legend entry.
type LegendItem struct {
	Label string
	Color lipgloss.Color
}
