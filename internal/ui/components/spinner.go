package components

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/pipeline-monitor-tui/internal/ui/styles"
)

// LoadingSpinner is a bubble spinner with a default label. Tabs that load
// several things at once pass a per-resource label to ViewWith.
type LoadingSpinner struct {
	spinner spinner.Model
	label   string
	style   lipgloss.Style
}

// NewSpinner creates a new loading spinner with the given label.
func NewSpinner(label string) LoadingSpinner {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(styles.Primary)

	return LoadingSpinner{
		spinner: s,
		label:   label,
		style:   lipgloss.NewStyle().Foreground(styles.TextSecondary),
	}
}

// Init starts the spinner.
func (l LoadingSpinner) Init() tea.Cmd {
	return l.spinner.Tick
}

// Update advances the spinner on its own ticks.
func (l LoadingSpinner) Update(msg tea.Msg) (LoadingSpinner, tea.Cmd) {
	var cmd tea.Cmd
	l.spinner, cmd = l.spinner.Update(msg)
	return l, cmd
}

// View renders the spinner frame alone.
func (l LoadingSpinner) View() string {
	return l.spinner.View()
}

// ViewWithLabel renders the spinner with its default label.
func (l LoadingSpinner) ViewWithLabel() string {
	return l.ViewWith(l.label)
}

// ViewWith renders the spinner followed by label.
func (l LoadingSpinner) ViewWith(label string) string {
	return l.spinner.View() + " " + l.style.Render(label)
}

// SetLabel replaces the default label.
func (l *LoadingSpinner) SetLabel(label string) {
	l.label = label
}

// Label returns the default label.
func (l LoadingSpinner) Label() string {
	return l.label
}

// Tick restarts the spinner after it went idle.
func (l LoadingSpinner) Tick() tea.Cmd {
	return l.spinner.Tick
}

// RenderSpinnerCentered renders a spinner centered in a given width and height.
func RenderSpinnerCentered(s LoadingSpinner, width, height int) string {
	return styles.CenterBoth(s.ViewWithLabel(), width, height)
}
