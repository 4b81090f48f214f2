// Package app implements the main Bubble Tea application with tab-based navigation.
package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/services"
	"github.com/j-veylop/pipeline-monitor-tui/internal/ui/styles"
)

// TabID represents the identifier for a tab in the application.
type TabID int

const (
	// TabOverview is the ID for the overview tab.
	TabOverview TabID = iota
	// TabTimeline is the ID for the timeline tab.
	TabTimeline
	// TabInfo is the ID for the info tab.
	TabInfo
)

// String returns the string representation of the TabID.
func (t TabID) String() string {
	switch t {
	case TabOverview:
		return "Overview"
	case TabTimeline:
		return "Timeline"
	case TabInfo:
		return "Info"
	default:
		return "Unknown"
	}
}

// Tab defines the interface that all tabs must implement.
type Tab interface {
	// Init initializes the tab and returns any initial commands.
	Init() tea.Cmd

	// Update handles messages and returns the updated tab and any commands.
	Update(msg tea.Msg) (Tab, tea.Cmd)

	// View renders the tab content.
	View() string

	// SetSize sets the available size for the tab.
	SetSize(width, height int)

	// ShortHelp returns key bindings for the short help view.
	ShortHelp() []key.Binding

	// FullHelp returns key bindings for the full help view.
	FullHelp() [][]key.Binding
}

// KeyMap defines the keybindings for the application.
type KeyMap struct {
	Tab1         key.Binding
	Tab2         key.Binding
	Tab3         key.Binding
	NextTab      key.Binding
	PrevTab      key.Binding
	Refresh      key.Binding
	ForceRefresh key.Binding
	Mode         key.Binding
	Source       key.Binding
	LookbackUp   key.Binding
	LookbackDown key.Binding
	CompareAll   key.Binding
	Help         key.Binding
	Quit         key.Binding
	Escape       key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	km := KeyMap{}
	km = setTabKeys(km)
	km = setActionKeys(km)
	km = setSelectionKeys(km)
	return km
}

func setTabKeys(k KeyMap) KeyMap {
	k.Tab1 = key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "overview"))
	k.Tab2 = key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "timeline"))
	k.Tab3 = key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "info"))
	k.NextTab = key.NewBinding(key.WithKeys("tab", "l", "right"), key.WithHelp("tab/→", "next tab"))
	k.PrevTab = key.NewBinding(key.WithKeys("shift+tab", "h", "left"), key.WithHelp("shift+tab/←", "prev tab"))
	return k
}

func setActionKeys(k KeyMap) KeyMap {
	k.Refresh = key.NewBinding(key.WithKeys("r", "ctrl+r"), key.WithHelp("r", "refresh"))
	k.ForceRefresh = key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "refresh, bypass cache"))
	k.Help = key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help"))
	k.Quit = key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit"))
	k.Escape = key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel"))
	return k
}

func setSelectionKeys(k KeyMap) KeyMap {
	k.Mode = key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "table/topic"))
	k.Source = key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "source system"))
	k.LookbackUp = key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "longer lookback"))
	k.LookbackDown = key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "shorter lookback"))
	k.CompareAll = key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "compare all sources"))
	return k
}

// ShortHelp returns key bindings for the short help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Refresh, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab1, k.Tab2, k.Tab3},
		{k.NextTab, k.PrevTab},
		{k.Mode, k.Source, k.LookbackUp, k.LookbackDown, k.CompareAll},
		{k.Refresh, k.ForceRefresh, k.Help, k.Quit},
	}
}

// Styles defines the application styles.
type Styles struct {
	// Tab bar styles
	TabBar      lipgloss.Style
	ActiveTab   lipgloss.Style
	InactiveTab lipgloss.Style
	Status      lipgloss.Style

	// Notification styles
	NotificationSuccess lipgloss.Style
	NotificationError   lipgloss.Style
	NotificationWarning lipgloss.Style
	NotificationInfo    lipgloss.Style

	// Content styles
	Content lipgloss.Style
	Toast   lipgloss.Style

	// Common styles
	Title     lipgloss.Style
	Subtle    lipgloss.Style
	Highlight lipgloss.Style
}

// DefaultStyles returns the default application styles.
func DefaultStyles() Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	success := lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	warning := lipgloss.AdaptiveColor{Light: "#FF8C00", Dark: "#FF8C00"}
	errorColor := lipgloss.AdaptiveColor{Light: "#FF5F87", Dark: "#FF5F87"}
	info := lipgloss.AdaptiveColor{Light: "#0087D7", Dark: "#5FAFFF"}

	s := Styles{}
	s.TabBar = lipgloss.NewStyle().Padding(0, 1).BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).BorderForeground(subtle)
	s.ActiveTab = lipgloss.NewStyle().Bold(true).Foreground(highlight).Padding(0, 2)
	s.InactiveTab = lipgloss.NewStyle().Foreground(subtle).Padding(0, 2)
	s.Status = lipgloss.NewStyle().Foreground(subtle).Padding(0, 2)

	s.NotificationSuccess = lipgloss.NewStyle().Foreground(success).Padding(0, 1)
	s.NotificationError = lipgloss.NewStyle().Foreground(errorColor).Bold(true).Padding(0, 1)
	s.NotificationWarning = lipgloss.NewStyle().Foreground(warning).Padding(0, 1)
	s.NotificationInfo = lipgloss.NewStyle().Foreground(info).Padding(0, 1)

	s.Content = lipgloss.NewStyle().Padding(1, 2)
	s.Toast = styles.ToastStyle

	s.Title = lipgloss.NewStyle().Bold(true).Foreground(highlight)
	s.Subtle = lipgloss.NewStyle().Foreground(subtle)
	s.Highlight = lipgloss.NewStyle().Foreground(highlight)

	return s
}

// Model is the main application model.
type Model struct {
	// Tab management
	activeTab TabID
	tabs      []Tab
	tabNames  []string

	// Shared state
	state     *State
	backend   Backend
	keymap    KeyMap
	styles    Styles
	exportDir string

	// UI components
	spinner spinner.Model

	// Window dimensions
	width  int
	height int

	// UI state
	showHelp bool
	ready    bool

	// Service subscription
	eventChannel chan services.ServiceEvent
}

// NewModel initializes a new application model. b may be nil, in which case
// nothing is ever loaded.
func NewModel(b Backend) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	state := NewState()
	if b != nil {
		state.ApplyConfig(b.Config())
	}

	return &Model{
		activeTab: TabOverview,
		tabNames:  []string{"Overview", "Timeline", "Info"},
		tabs:      make([]Tab, 3), // Placeholder - tabs will be set externally
		state:     state,
		backend:   b,
		keymap:    DefaultKeyMap(),
		styles:    DefaultStyles(),
		exportDir: ".",
		spinner:   s,
	}
}

// SetTabs sets the tabs for the model.
func (m *Model) SetTabs(tabs []Tab) {
	m.tabs = tabs
	if m.width > 0 && m.height > 0 {
		m.updateTabSizes()
	}
}

// SetExportDir sets where CSV exports are written.
func (m *Model) SetExportDir(dir string) {
	if dir != "" {
		m.exportDir = dir
	}
}

// GetState returns the application state.
func (m *Model) GetState() *State {
	return m.state
}

// GetKeyMap returns the key bindings.
func (m *Model) GetKeyMap() KeyMap {
	return m.keymap
}

// GetActiveTab returns the currently active tab ID.
func (m *Model) GetActiveTab() TabID {
	return m.activeTab
}

// IsReady returns true if the model is ready (window size received).
func (m *Model) IsReady() bool {
	return m.ready
}

// Init initializes the model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.spinner.Tick,
		defaultTickCmd(),
	}

	if m.backend != nil {
		m.state.SetLoadingNotification("Loading tables...")
		m.state.SetLoading(ResourceCatalog, true)
		m.state.SetLoading(ResourceIdentity, true)
		cmds = append(cmds,
			subscribeToServicesCmd(m.backend),
			loadCatalogCmd(m.backend, m.state.Selection().SourceSystem),
			loadIdentityCmd(m.backend),
		)
	}

	for _, tab := range m.tabs {
		if tab != nil {
			cmds = append(cmds, tab.Init())
		}
	}

	return tea.Batch(cmds...)
}

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg, tea.KeyMsg, spinner.TickMsg:
		if cmd := m.handleTeaMsg(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}

	default:
		if appCmds := m.handleAppMsg(msg); len(appCmds) > 0 {
			cmds = append(cmds, appCmds...)
		}
	}

	if cmd := m.updateActiveTab(msg); cmd != nil {
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleTeaMsg(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.handleWindowSize(msg)
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return cmd
	}
	return nil
}

func (m *Model) handleAppMsg(msg tea.Msg) []tea.Cmd {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case TickMsg:
		m.state.ClearExpiredNotifications()
		cmds = append(cmds, defaultTickCmd())
	case SubscriptionEventMsg:
		m.eventChannel = msg.Channel
		cmds = append(cmds, waitForServiceEventCmd(m.eventChannel))
	case ServiceEventMsg:
		cmds = append(cmds, m.handleServiceEvent(msg.Event))
		if m.eventChannel != nil {
			cmds = append(cmds, waitForServiceEventCmd(m.eventChannel))
		}
	case CatalogLoadedMsg:
		cmds = append(cmds, m.handleCatalogLoaded(msg)...)
	case SnapshotLoadedMsg:
		cmds = append(cmds, m.handleSnapshotLoaded(msg))
	case IdentityLoadedMsg:
		m.state.SetIdentity(msg.Identity, msg.Err)
		m.stopLoading(ResourceIdentity)
	case SelectItemMsg:
		m.state.SelectItem(msg.Name)
		cmds = append(cmds, m.refresh(false))
	case RefreshMsg:
		cmds = append(cmds, m.refresh(msg.Force))
	case ExportMsg:
		cmds = append(cmds, exportCSVCmd(m.state.Snapshot(), m.exportDir))
	case ExportResultMsg:
		if msg.Err != nil {
			cmds = append(cmds, notifyErrorCmd(fmt.Sprintf("Export failed: %v", msg.Err)))
		} else {
			cmds = append(cmds, notifySuccessCmd("Exported "+msg.Path))
		}
	case AddNotificationMsg:
		id := m.state.AddNotification(msg.Type, msg.Message, msg.Duration)
		if msg.Duration > 0 {
			cmds = append(cmds, clearNotificationCmd(id, msg.Duration))
		}
	case RemoveNotificationMsg:
		m.state.RemoveNotification(msg.ID)
	case ClearExpiredNotificationsMsg:
		m.state.ClearExpiredNotifications()
	case StartLoadingMsg:
		m.startLoading(msg.Resource)
	case StopLoadingMsg:
		m.stopLoading(msg.Resource)
	case ErrorMsg:
		cmds = append(cmds, notifyErrorCmd(msg.Error.Error()))
	case TabSwitchMsg:
		m.activeTab = msg.Tab
		m.updateTabSizes()
	case ToggleHelpMsg:
		m.showHelp = !m.showHelp
	}
	return cmds
}

func (m *Model) handleWindowSize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height
	m.ready = true
	m.updateTabSizes()
}

func (m *Model) startLoading(resource string) {
	m.state.SetLoading(resource, true)
	m.state.SetLoadingNotification("Refreshing...")
}

func (m *Model) stopLoading(resource string) {
	m.state.SetLoading(resource, false)
	if !m.state.AnyLoading() {
		m.state.ClearLoadingNotification()
	}
}

func (m *Model) handleCatalogLoaded(msg CatalogLoadedMsg) []tea.Cmd {
	if !m.state.SetCatalog(msg.SourceSystem, msg.Targets, msg.Topics, msg.Err) {
		return nil
	}
	m.state.SetLoading(ResourceInitial, false)
	m.stopLoading(ResourceCatalog)

	var cmds []tea.Cmd
	if msg.Err != nil {
		cmds = append(cmds, notifyErrorCmd(fmt.Sprintf("Failed to list %s tables: %v", msg.SourceSystem, msg.Err)))
	}
	return append(cmds, m.selectionChanged())
}

func (m *Model) handleSnapshotLoaded(msg SnapshotLoadedMsg) tea.Cmd {
	m.stopLoading(ResourceSnapshot)
	if msg.Err != nil {
		m.state.SetLastError(msg.Err)
		// Without a subscription the ErrorEvent broadcast never arrives.
		if m.eventChannel == nil {
			return notifyErrorCmd(fmt.Sprintf("Refresh failed: %v", msg.Err))
		}
		return nil
	}
	m.applySnapshot(msg.Snapshot)
	return nil
}

func (m *Model) applySnapshot(snap *models.Snapshot) {
	m.state.SetSnapshot(snap)
	if m.backend != nil {
		m.state.SetHealth(m.backend.CacheStats(), m.backend.BreakerStates())
	}
}

// selectionChanged picks the highlighted item when nothing is selected yet
// and refreshes once the selection names something.
func (m *Model) selectionChanged() tea.Cmd {
	if !m.state.Selection().Ready() {
		name, ok := m.state.CursorItem()
		if !ok {
			return nil
		}
		m.state.SelectItem(name)
	}
	return m.refresh(false)
}

func (m *Model) refresh(force bool) tea.Cmd {
	if m.backend == nil {
		return nil
	}
	sel := m.state.Selection()
	if !sel.Ready() {
		return notifyWarningCmd(fmt.Sprintf("Select a %s first", strings.ToLower(sel.Mode.String())))
	}
	m.startLoading(ResourceSnapshot)
	return refreshCmd(m.backend, sel, force)
}

func (m *Model) reloadCatalog() tea.Cmd {
	if m.backend == nil {
		return nil
	}
	m.startLoading(ResourceCatalog)
	return loadCatalogCmd(m.backend, m.state.Selection().SourceSystem)
}

func (m *Model) updateActiveTab(msg tea.Msg) tea.Cmd {
	if int(m.activeTab) < len(m.tabs) && m.tabs[m.activeTab] != nil {
		var cmd tea.Cmd
		m.tabs[m.activeTab], cmd = m.tabs[m.activeTab].Update(msg)
		return cmd
	}
	return nil
}

func (m *Model) updateTabSizes() {
	contentHeight := max(0, m.height-5)

	for _, tab := range m.tabs {
		if tab != nil {
			tab.SetSize(m.width, contentHeight)
		}
	}
}

// handleKeyMsg handles keyboard input.
func (m *Model) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	// Global keybindings (work regardless of tab)
	switch {
	case key.Matches(msg, m.keymap.Quit):
		return tea.Quit

	case key.Matches(msg, m.keymap.Help):
		m.showHelp = !m.showHelp

	case key.Matches(msg, m.keymap.Escape):
		m.showHelp = false

	case key.Matches(msg, m.keymap.Tab1):
		m.switchTab(TabOverview)

	case key.Matches(msg, m.keymap.Tab2):
		m.switchTab(TabTimeline)

	case key.Matches(msg, m.keymap.Tab3):
		m.switchTab(TabInfo)

	case key.Matches(msg, m.keymap.NextTab):
		if !m.showHelp {
			m.switchTab(TabID((int(m.activeTab) + 1) % len(m.tabs)))
		}

	case key.Matches(msg, m.keymap.PrevTab):
		if !m.showHelp {
			m.switchTab(TabID((int(m.activeTab) - 1 + len(m.tabs)) % len(m.tabs)))
		}

	case key.Matches(msg, m.keymap.ForceRefresh):
		return m.refresh(true)

	case key.Matches(msg, m.keymap.Refresh):
		return m.refresh(false)

	case key.Matches(msg, m.keymap.Mode):
		m.state.ToggleMode()
		return m.selectionChanged()

	case key.Matches(msg, m.keymap.Source):
		m.state.CycleSourceSystem()
		return m.reloadCatalog()

	case key.Matches(msg, m.keymap.LookbackUp):
		return m.adjustLookback(1)

	case key.Matches(msg, m.keymap.LookbackDown):
		return m.adjustLookback(-1)

	case key.Matches(msg, m.keymap.CompareAll):
		m.state.ToggleCompareAll()
		if m.state.Selection().Ready() {
			return m.refresh(false)
		}
	}

	// Let the tab handle other keys
	return nil
}

func (m *Model) switchTab(id TabID) {
	m.activeTab = id
	m.updateTabSizes()
}

func (m *Model) adjustLookback(delta int) tea.Cmd {
	before := m.state.Selection().LookbackHours
	sel := m.state.AdjustLookback(delta)
	if sel.LookbackHours == before || !sel.Ready() {
		return nil
	}
	return m.refresh(false)
}

func (m *Model) handleServiceEvent(event services.ServiceEvent) tea.Cmd {
	switch e := event.(type) {
	case services.SnapshotUpdatedEvent:
		m.applySnapshot(e.Snapshot)
		cmds := make([]tea.Cmd, 0, len(e.Alerts))
		for _, a := range e.Alerts {
			cmds = append(cmds, notifyWarningCmd(fmt.Sprintf("%s: %s", a.Title, a.Message)))
		}
		return tea.Batch(cmds...)

	case services.ErrorEvent:
		return notifyErrorCmd(fmt.Sprintf("[%s] %v", e.Service, e.Error))

	case services.ConfigReloadedEvent:
		m.state.ApplyConfig(e.Config)
		cmds := []tea.Cmd{notifyInfoCmd("Configuration reloaded")}
		if m.backend != nil {
			m.state.SetLoading(ResourceIdentity, true)
			cmds = append(cmds, m.reloadCatalog(), loadIdentityCmd(m.backend))
		}
		return tea.Batch(cmds...)
	}

	return nil
}

// View renders the application UI.
func (m *Model) View() string {
	var b strings.Builder

	if m.width > 0 {
		b.WriteString(m.renderNavbar())
		b.WriteString("\n")
	}

	if !m.ready {
		b.WriteString(m.styles.Content.Render(fmt.Sprintf("%s Loading...", m.spinner.View())))
		return b.String()
	}

	if int(m.activeTab) < len(m.tabs) && m.tabs[m.activeTab] != nil {
		b.WriteString(m.tabs[m.activeTab].View())
	} else {
		b.WriteString(m.renderPlaceholder())
	}

	mainView := b.String()

	if m.showHelp {
		mainView = m.overlayCentered(mainView, m.renderHelp())
	}

	if notifications := m.renderNotifications(); len(notifications) > 0 {
		return m.overlayToasts(mainView, notifications)
	}

	return mainView
}

func (m *Model) overlayCentered(mainView string, overlay string) string {
	mainLines := strings.Split(mainView, "\n")
	overlayLines := strings.Split(overlay, "\n")

	overlayWidth := lipgloss.Width(overlay)

	// Calculate center position
	y := max((m.height-len(overlayLines))/2, 0)
	x := max((m.width-overlayWidth)/2, 0)

	// Short views are padded so the overlay is never clipped.
	for len(mainLines) < max(m.height, y+len(overlayLines)) {
		mainLines = append(mainLines, "")
	}

	for i, overlayLine := range overlayLines {
		mainY := y + i
		mainLine := mainLines[mainY]

		left := ansi.Truncate(mainLine, x, "")
		// Skip x + overlayWidth visual cells for the right part
		right := ansi.TruncateLeft(mainLine, x+overlayWidth, "")

		if lipgloss.Width(left) < x {
			left += strings.Repeat(" ", x-lipgloss.Width(left))
		}

		mainLines[mainY] = left + overlayLine + right
	}

	return strings.Join(mainLines, "\n")
}

func (m *Model) renderNavbar() string {
	var tabs []string

	for i, name := range m.tabNames {
		if TabID(i) == m.activeTab {
			tabs = append(tabs, m.styles.ActiveTab.Render(fmt.Sprintf("[%d] %s", i+1, name)))
		} else {
			tabs = append(tabs, m.styles.InactiveTab.Render(fmt.Sprintf(" %d  %s", i+1, name)))
		}
	}
	tabs = append(tabs, m.styles.Status.Render(SelectionLabel(m.state.Selection())))

	tabBar := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)

	return m.styles.TabBar.Width(m.width).Render(tabBar)
}

// SelectionLabel summarizes a selection on one line.
func SelectionLabel(sel models.Selection) string {
	name := sel.Target
	if sel.Mode == models.ByTopic {
		name = sel.Topic
	}
	if name == "" {
		name = "(none)"
	}
	label := fmt.Sprintf("%s · %s: %s · %dh", sel.SourceSystem, sel.Mode, name, sel.LookbackHours)
	if sel.CompareAll {
		label += " · all sources"
	}
	return label
}

func (m *Model) renderNotifications() []string {
	notifications := m.state.GetNotifications()
	if len(notifications) == 0 {
		return nil
	}

	toasts := make([]string, 0, len(notifications))
	for _, n := range notifications {
		var style lipgloss.Style
		var prefix string

		switch n.Type {
		case NotificationSuccess:
			style = m.styles.NotificationSuccess
			prefix = "[OK]"
		case NotificationError:
			style = m.styles.NotificationError
			prefix = "[ERR]"
		case NotificationWarning:
			style = m.styles.NotificationWarning
			prefix = "[WARN]"
		case NotificationInfo:
			style = m.styles.NotificationInfo
			prefix = "[INFO]"
		case NotificationLoading:
			style = m.styles.NotificationInfo
			prefix = m.spinner.View()
		}

		content := style.Render(fmt.Sprintf("%s %s", prefix, n.Message))
		toasts = append(toasts, m.styles.Toast.Render(content))
	}

	return toasts
}

func (m *Model) overlayToasts(mainView string, toasts []string) string {
	toastStack := lipgloss.JoinVertical(lipgloss.Right, toasts...)
	toastLines := strings.Split(toastStack, "\n")
	mainLines := strings.Split(mainView, "\n")

	startX := max(m.width-lipgloss.Width(toastStack)-2, 0)
	startY := 2

	for i, toastLine := range toastLines {
		lineIdx := startY + i
		if lineIdx >= len(mainLines) {
			break
		}

		mainLine := mainLines[lineIdx]
		mainLineWidth := lipgloss.Width(mainLine)

		if mainLineWidth < startX {
			mainLines[lineIdx] = mainLine + strings.Repeat(" ", startX-mainLineWidth) + toastLine
		} else {
			mainLines[lineIdx] = ansi.Truncate(mainLine, startX, "") + toastLine
		}
	}

	return strings.Join(mainLines, "\n")
}

func (m *Model) renderHelp() string {
	lines := []string{
		m.styles.Title.Render("Keyboard Shortcuts"),
		"",
		m.styles.Highlight.Render("Navigation"),
		"  1-3        Switch tabs",
		"  Tab        Next tab",
		"  Shift+Tab  Previous tab",
		"",
		m.styles.Highlight.Render("Selection"),
		"  m          Filter by target table or topic",
		"  s          Next source system",
		"  +/-        Lookback hours",
		"  a          Compare every source",
		"",
		m.styles.Highlight.Render("Actions"),
		"  r          Refresh",
		"  R          Refresh, bypassing the cache",
		"  ?          Toggle help",
		"  q/Ctrl+C   Quit",
		"",
	}

	if int(m.activeTab) < len(m.tabs) && m.tabs[m.activeTab] != nil {
		if tabHelp := m.tabs[m.activeTab].ShortHelp(); len(tabHelp) > 0 {
			lines = append(lines, m.styles.Highlight.Render(fmt.Sprintf("%s Tab", m.tabNames[m.activeTab])))
			for _, binding := range tabHelp {
				lines = append(lines, fmt.Sprintf("  %-10s %s", binding.Help().Key, binding.Help().Desc))
			}
			lines = append(lines, "")
		}
	}

	lines = append(lines, m.styles.Subtle.Render("Press ? or Esc to close"))

	return styles.HelpPanelStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderPlaceholder() string {
	content := fmt.Sprintf(
		"Tab %d: %s\n\n%s",
		m.activeTab+1,
		m.tabNames[m.activeTab],
		m.styles.Subtle.Render("This tab is not yet implemented."),
	)
	return m.styles.Content.Render(content)
}
