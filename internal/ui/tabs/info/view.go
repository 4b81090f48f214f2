package info

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/j-veylop/pipeline-monitor-tui/internal/app"
	"github.com/j-veylop/pipeline-monitor-tui/internal/config"
	"github.com/j-veylop/pipeline-monitor-tui/internal/ui/styles"
	"github.com/j-veylop/pipeline-monitor-tui/internal/version"
)

// View renders the info tab.
func (m *Model) View() string {
	var sections []string

	sections = append(sections,
		m.renderTitle(),
		m.renderConfigCard(),
		m.renderIdentityCard(),
		m.renderHealthCard(),
		m.renderAboutCard(),
	)

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)

	m.viewport.SetContent(content)

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(m.viewport.View())
}

// renderTitle renders the info tab title.
func (m *Model) renderTitle() string {
	title := styles.TitleStyle.Render("Info")
	subtitle := styles.HelpStyle.Render("Configuration, connections and application information")

	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

func (m *Model) cardWidth() int {
	return min(max(m.width-6, 50), 80)
}

// renderConfigCard renders the settings in effect. Credentials are never shown.
func (m *Model) renderConfigCard() string {
	var rows []string
	rows = append(rows, styles.CardTitleStyle.Render("Configuration"))

	cfg := m.state.Config()
	if cfg == nil {
		rows = append(rows, styles.HelpStyle.Render("Configuration not loaded"))
		return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	envFile := cfg.EnvFile
	if envFile == "" {
		envFile = "(environment only)"
	}

	systems := make([]string, 0, len(cfg.SourceSystems))
	for _, sys := range cfg.SourceSystems {
		systems = append(systems, fmt.Sprintf("%s=%s", sys.Name, sys.Source))
	}

	rows = append(rows,
		renderRow("Env File", envFile),
		renderRow("Source Systems", strings.Join(systems, ", ")),
		renderRow("Warehouse", describeDatabase(cfg.Warehouse)),
		renderRow("Metadata View", cfg.MetadataView),
		renderRow("Relational", describeDatabase(cfg.Relational)),
		renderRow("Search", describeSearch(cfg.Search)),
		renderRow("Default Lookback", fmt.Sprintf("%dh", cfg.DefaultLookbackHours)),
		renderRow("Cache TTL", cfg.CacheTTL.String()),
		renderRow("Auto Refresh", cfg.RefreshInterval.String()),
		renderRow("Query Timeout", cfg.QueryTimeout.String()),
		renderRow("Alert Threshold", fmt.Sprintf("%.1f%%", cfg.DiscrepancyThreshold)),
		renderRow("Notifications", onOff(cfg.NotificationsEnabled)),
		renderRow("Metrics", orNone(cfg.MetricsAddr)),
		renderRow("Log File", cfg.LogPath),
	)

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func describeDatabase(d config.DatabaseConfig) string {
	if !d.Configured() {
		return "not configured"
	}
	return fmt.Sprintf("%s · schema %s · %s", d.Driver, d.Schema, d.Timezone)
}

func describeSearch(s config.SearchConfig) string {
	if !s.Configured() {
		return "not configured"
	}
	return fmt.Sprintf("%s · timeout %s", s.BaseURL, s.Timeout)
}

// renderIdentityCard renders who the warehouse connection runs as.
func (m *Model) renderIdentityCard() string {
	var rows []string
	rows = append(rows, styles.CardTitleStyle.Render("Warehouse Identity"))

	id, err := m.state.Identity()
	switch {
	case m.state.IsLoading(app.ResourceIdentity):
		rows = append(rows, styles.HelpStyle.Render("Loading..."))
	case err != nil:
		rows = append(rows, styles.ErrorTextStyle.Render(err.Error()))
	case id == nil:
		rows = append(rows, styles.HelpStyle.Render("Unknown"))
	default:
		rows = append(rows,
			renderRow("User", id.User),
			renderRow("Account", id.Account),
			renderRow("Region", id.Region),
		)
	}

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// renderHealthCard renders cache usage and the circuit breaker of every source.
func (m *Model) renderHealthCard() string {
	health := m.state.Health()

	var rows []string
	rows = append(rows, styles.CardTitleStyle.Render("Source Health"))

	rows = append(rows, renderRow("Cache", fmt.Sprintf("%s entries · %s hits · %s misses",
		humanize.Comma(int64(health.Cache.Entries)),
		humanize.Comma(health.Cache.Hits),
		humanize.Comma(health.Cache.Misses))))

	if len(health.Breakers) == 0 {
		rows = append(rows, styles.HelpStyle.Render("No queries yet"))
	}
	names := make([]string, 0, len(health.Breakers))
	for name := range health.Breakers {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		rows = append(rows, renderRow(name, breakerStyle(health.Breakers[name]).Render(health.Breakers[name])))
	}

	if !m.state.LastUpdated.IsZero() {
		rows = append(rows, "", styles.HelpStyle.Render("Last refresh "+humanize.Time(m.state.LastUpdated)))
	}

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func breakerStyle(state string) lipgloss.Style {
	switch state {
	case "closed":
		return styles.SuccessTextStyle
	case "half-open":
		return styles.WarningTextStyle
	default:
		return styles.ErrorTextStyle
	}
}

// renderAboutCard renders the about/version information card.
func (m *Model) renderAboutCard() string {
	var rows []string
	rows = append(rows, styles.CardTitleStyle.Render("About Pipeline Monitor"))

	rows = append(rows,
		renderRow("Version", version.GetVersion()),
		renderRow("Build Date", version.GetDate()),
		renderRow("Git Commit", version.GetCommit()),
		renderRow("Go Version", runtime.Version()),
		renderRow("Platform", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)),
	)

	return styles.CardStyle.Width(m.cardWidth()).Render(
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
}

// renderRow renders a key-value row.
func renderRow(label, value string) string {
	labelStyle := lipgloss.NewStyle().
		Width(18).
		Foreground(styles.TextMuted)

	valueStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary)

	return labelStyle.Render(label+":") + " " + valueStyle.Render(value)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func orNone(s string) string {
	if s == "" {
		return "disabled"
	}
	return s
}
