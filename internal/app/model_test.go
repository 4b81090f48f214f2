package app

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/pipeline-monitor-tui/internal/config"
	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/services"
	"github.com/j-veylop/pipeline-monitor-tui/internal/services/monitor"
)

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

// loadedModel returns a model whose catalog for DVM has been delivered.
func loadedModel(t *testing.T, fb *fakeBackend) *Model {
	t.Helper()
	m := NewModel(fb)
	m.Update(loadCatalogCmd(fb, "DVM")())
	return m
}

func TestNewModel(t *testing.T) {
	model := NewModel(nil)
	if model == nil {
		t.Fatal("NewModel returned nil")
	}
	if model.state == nil {
		t.Error("State should be initialized")
	}
	if model.activeTab != TabOverview {
		t.Error("Default tab should be Overview")
	}
	if len(model.tabs) != 3 {
		t.Errorf("Should have 3 tabs placeholder, got %d", len(model.tabs))
	}
}

func TestNewModelAppliesConfig(t *testing.T) {
	m := NewModel(newFakeBackend())
	sel := m.state.Selection()
	if sel.SourceSystem != "DVM" {
		t.Errorf("SourceSystem = %q, want DVM", sel.SourceSystem)
	}
	if sel.LookbackHours != 3 {
		t.Errorf("LookbackHours = %d, want 3", sel.LookbackHours)
	}
}

func TestModel_Init(t *testing.T) {
	if NewModel(nil).Init() == nil {
		t.Error("Init returned nil command")
	}

	m := NewModel(newFakeBackend())
	if m.Init() == nil {
		t.Fatal("Init returned nil command")
	}
	if !m.state.IsLoading(ResourceCatalog) || !m.state.IsLoading(ResourceIdentity) {
		t.Error("Init should mark the catalog and identity as loading")
	}
}

func TestModel_Update_WindowSize(t *testing.T) {
	model := NewModel(nil)
	newModel, _ := model.Update(tea.WindowSizeMsg{Width: 100, Height: 50})

	m, ok := newModel.(*Model)
	if !ok {
		t.Fatal("Update returned wrong model type")
	}
	if m.width != 100 || m.height != 50 {
		t.Errorf("size = %dx%d, want 100x50", m.width, m.height)
	}
	if !m.ready {
		t.Error("Model should be ready after WindowSizeMsg")
	}
}

func TestModel_TabSwitch(t *testing.T) {
	model := NewModel(nil)

	model.Update(TabSwitchMsg{Tab: TabTimeline})
	if model.activeTab != TabTimeline {
		t.Errorf("ActiveTab = %v, want Timeline", model.activeTab)
	}

	model.Update(runeKey('3'))
	if model.activeTab != TabInfo {
		t.Errorf("ActiveTab = %v, want Info", model.activeTab)
	}

	model.Update(tea.KeyMsg{Type: tea.KeyTab})
	if model.activeTab != TabOverview {
		t.Errorf("ActiveTab = %v, want Overview after wrapping", model.activeTab)
	}

	model.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	if model.activeTab != TabInfo {
		t.Errorf("ActiveTab = %v, want Info", model.activeTab)
	}
}

func TestModel_Update_Tick(t *testing.T) {
	_, cmd := NewModel(nil).Update(TickMsg{Time: time.Now()})
	if cmd == nil {
		t.Error("TickMsg should return a command (next tick)")
	}
}

func TestModel_CatalogSelectsFirstItemAndRefreshes(t *testing.T) {
	fb := newFakeBackend()
	m := NewModel(fb)
	m.state.SetLoading(ResourceCatalog, true)

	_, cmd := m.Update(loadCatalogCmd(fb, "DVM")())
	if cmd == nil {
		t.Fatal("catalog should trigger a refresh")
	}

	sel := m.state.Selection()
	if sel.Target != "S_DVM_ITEMS" {
		t.Errorf("Target = %q, want first target", sel.Target)
	}
	if m.state.IsLoading(ResourceCatalog) || m.state.IsLoading(ResourceInitial) {
		t.Error("catalog loading should be finished")
	}
	if !m.state.IsLoading(ResourceSnapshot) {
		t.Error("snapshot should be loading")
	}

	m.Update(refreshCmd(fb, sel, false)())
	snap := m.state.Snapshot()
	if snap == nil || snap.TargetCount.Count != 10 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if m.state.IsLoading(ResourceSnapshot) {
		t.Error("snapshot loading should be finished")
	}
	if h := m.state.Health(); h.Cache.Hits != 1 || h.Breakers["warehouse"] != "closed" {
		t.Errorf("health = %+v", h)
	}
}

func TestModel_StaleCatalogIgnored(t *testing.T) {
	fb := newFakeBackend()
	m := NewModel(fb)

	m.Update(CatalogLoadedMsg{SourceSystem: "RXMGT", Targets: []string{"S_RXMGT_SCRIPTS"}})
	if len(m.state.Items()) != 0 {
		t.Error("catalog of another source system should be ignored")
	}
}

func TestModel_CatalogError(t *testing.T) {
	fb := newFakeBackend()
	m := NewModel(fb)

	_, cmd := m.Update(CatalogLoadedMsg{SourceSystem: "DVM", Err: errors.New("warehouse down")})
	if cmd == nil {
		t.Fatal("catalog error should notify")
	}
	if m.state.CatalogError() == nil {
		t.Error("catalog error should be stored")
	}
}

func TestModel_SelectionKeys(t *testing.T) {
	fb := newFakeBackend()
	m := loadedModel(t, fb)

	m.Update(runeKey('m'))
	sel := m.state.Selection()
	if sel.Mode != models.ByTopic || sel.Topic != "dvm.items" {
		t.Errorf("after m: %+v", sel)
	}

	m.Update(runeKey('+'))
	if got := m.state.Selection().LookbackHours; got != 4 {
		t.Errorf("LookbackHours = %d, want 4", got)
	}

	m.Update(runeKey('a'))
	if !m.state.Selection().CompareAll {
		t.Error("a should enable compare-all")
	}

	m.Update(runeKey('s'))
	sel = m.state.Selection()
	if sel.SourceSystem != "RXMGT" || sel.Topic != "" || sel.Target != "" {
		t.Errorf("after s: %+v", sel)
	}
	if !m.state.IsLoading(ResourceCatalog) {
		t.Error("switching source should reload the catalog")
	}
}

func TestModel_LookbackClamped(t *testing.T) {
	fb := newFakeBackend()
	m := loadedModel(t, fb)

	for range 5 {
		m.Update(runeKey('-'))
	}
	if got := m.state.Selection().LookbackHours; got != models.MinLookbackHours {
		t.Errorf("LookbackHours = %d, want %d", got, models.MinLookbackHours)
	}
	if cmd := m.adjustLookback(-1); cmd != nil {
		t.Error("lookback at the minimum should not refresh")
	}
}

func TestModel_RefreshKeys(t *testing.T) {
	fb := newFakeBackend()
	m := NewModel(fb)

	_, cmd := m.Update(runeKey('r'))
	if cmd == nil {
		t.Fatal("refresh without selection should warn")
	}
	if m.state.IsLoading(ResourceSnapshot) {
		t.Error("nothing should load without a selection")
	}

	m = loadedModel(t, fb)
	cmd = m.handleKeyMsg(runeKey('R'))
	if cmd == nil {
		t.Fatal("R should refresh")
	}
	if _, ok := cmd().(SnapshotLoadedMsg); !ok {
		t.Error("R should produce a snapshot")
	}
	if fb.forced != 1 {
		t.Errorf("forced = %d, want 1", fb.forced)
	}
}

func TestModel_SelectItem(t *testing.T) {
	fb := newFakeBackend()
	m := loadedModel(t, fb)

	_, cmd := m.Update(SelectItemMsg{Name: "S_DVM_ORDERS"})
	if cmd == nil {
		t.Fatal("selecting should refresh")
	}
	if m.state.Selection().Target != "S_DVM_ORDERS" || m.state.Cursor() != 1 {
		t.Errorf("selection = %+v cursor = %d", m.state.Selection(), m.state.Cursor())
	}
}

func TestModel_RefreshError(t *testing.T) {
	fb := newFakeBackend()
	m := loadedModel(t, fb)

	_, cmd := m.Update(SnapshotLoadedMsg{Err: errors.New("timeout")})
	if m.state.LastError() == nil {
		t.Error("refresh error should be stored")
	}
	if cmd == nil {
		t.Error("unsubscribed model should report the error itself")
	}

	m.eventChannel = make(chan services.ServiceEvent)
	if cmd := m.handleSnapshotLoaded(SnapshotLoadedMsg{Err: errors.New("timeout")}); cmd != nil {
		t.Error("subscribed model should leave reporting to the ErrorEvent")
	}
}

func TestModel_HandleServiceEvent(t *testing.T) {
	fb := newFakeBackend()
	m := NewModel(fb)

	snap := &models.Snapshot{Selection: models.Selection{Target: "S_DVM_ORDERS"}}
	cmd := m.handleServiceEvent(services.SnapshotUpdatedEvent{
		Snapshot: snap,
		Alerts:   []monitor.Alert{{Title: "Source unavailable: relational", Message: "down"}},
	})
	if m.state.Snapshot() != snap {
		t.Error("snapshot event should update the state")
	}
	if cmd == nil {
		t.Error("alerts should produce notifications")
	}

	cmd = m.handleServiceEvent(services.ErrorEvent{Service: "monitor", Error: errors.New("boom")})
	msg, ok := cmd().(AddNotificationMsg)
	if !ok || msg.Type != NotificationError || !strings.Contains(msg.Message, "boom") {
		t.Errorf("error event produced %+v", msg)
	}

	cfg := &config.Config{
		SourceSystems:        []config.SourceSystem{{Name: "RXMGT", Source: config.SourceSearch}},
		DefaultLookbackHours: 1,
	}
	if cmd := m.handleServiceEvent(services.ConfigReloadedEvent{Config: cfg}); cmd == nil {
		t.Error("config reload should reload the catalog")
	}
	if m.state.Selection().SourceSystem != "RXMGT" {
		t.Errorf("SourceSystem = %q after reload", m.state.Selection().SourceSystem)
	}
	if !m.state.IsLoading(ResourceCatalog) {
		t.Error("catalog should be reloading")
	}
}

func TestModel_Identity(t *testing.T) {
	m := NewModel(newFakeBackend())
	m.state.SetLoading(ResourceIdentity, true)

	m.Update(IdentityLoadedMsg{Identity: models.Identity{User: "MONITOR"}})
	id, err := m.state.Identity()
	if err != nil || id == nil || id.User != "MONITOR" {
		t.Errorf("identity = %+v, %v", id, err)
	}
	if m.state.IsLoading(ResourceIdentity) {
		t.Error("identity should be loaded")
	}
}

func TestModel_Export(t *testing.T) {
	m := NewModel(newFakeBackend())
	m.SetExportDir(t.TempDir())
	m.state.SetSnapshot(timelineSnapshot("S_DVM_ORDERS"))

	cmds := m.handleAppMsg(ExportMsg{})
	if len(cmds) != 1 {
		t.Fatalf("export returned %d commands", len(cmds))
	}
	result, ok := cmds[0]().(ExportResultMsg)
	if !ok || result.Err != nil {
		t.Fatalf("result = %+v", result)
	}
	if _, err := os.Stat(result.Path); err != nil {
		t.Errorf("export file missing: %v", err)
	}

	cmds = m.handleAppMsg(result)
	if msg, ok := cmds[0]().(AddNotificationMsg); !ok || msg.Type != NotificationSuccess {
		t.Errorf("export result produced %+v", msg)
	}
}

func TestModel_View(t *testing.T) {
	model := NewModel(nil)

	if view := model.View(); !strings.Contains(view, "Loading...") {
		t.Error("View should show Loading when not ready")
	}

	model.ready = true
	model.width = 120
	model.height = 24

	view := model.View()
	if !strings.Contains(view, "Overview") {
		t.Error("View should show Overview tab")
	}
	if !strings.Contains(view, "not yet implemented") {
		t.Error("View should show placeholder text")
	}
}

func TestModel_Help(t *testing.T) {
	model := NewModel(nil)
	model.ready = true
	model.width = 80
	model.height = 40

	model.Update(ToggleHelpMsg{})
	if !model.showHelp {
		t.Error("showHelp should be true")
	}
	if !strings.Contains(model.View(), "Keyboard Shortcuts") {
		t.Error("View should show help modal")
	}

	model.handleKeyMsg(tea.KeyMsg{Type: tea.KeyEsc})
	if model.showHelp {
		t.Error("Esc should close help")
	}
}

func TestModel_OverlayCenteredShortView(t *testing.T) {
	model := NewModel(nil)
	model.width = 40
	model.height = 20

	out := model.overlayCentered("nav\nbody", "HELP-1\nHELP-2")
	lines := strings.Split(out, "\n")
	if len(lines) != 20 {
		t.Fatalf("expected view padded to 20 lines, got %d", len(lines))
	}
	if lines[0] != "nav" || lines[1] != "body" {
		t.Errorf("main view lines changed: %q", lines[:2])
	}
	if !strings.Contains(lines[9], "HELP-1") || !strings.Contains(lines[10], "HELP-2") {
		t.Errorf("overlay not centered: %q", lines[8:12])
	}
}

func TestModel_OverlayTallerThanView(t *testing.T) {
	model := NewModel(nil)
	model.width = 40
	model.height = 2

	out := model.overlayCentered("nav", "A\nB\nC")
	for _, want := range []string{"A", "B", "C"} {
		if !strings.Contains(out, want) {
			t.Errorf("overlay line %q clipped: %q", want, out)
		}
	}
}

func TestModel_Notifications(t *testing.T) {
	model := NewModel(nil)
	model.Update(AddNotificationMsg{Message: "Test Note", Type: NotificationInfo})

	if notifs := model.state.GetNotifications(); len(notifs) != 1 {
		t.Errorf("Expected 1 notification, got %d", len(notifs))
	}

	model.ready = true
	model.width = 80
	model.height = 24
	if !strings.Contains(model.View(), "Test Note") {
		t.Error("View should show notification")
	}
}

func TestModel_LoadingMessages(t *testing.T) {
	model := NewModel(nil)

	model.Update(StartLoadingMsg{Resource: ResourceSnapshot})
	if !model.state.IsLoading(ResourceSnapshot) {
		t.Error("snapshot should be loading")
	}

	model.state.SetLoading(ResourceInitial, false)
	model.Update(StopLoadingMsg{Resource: ResourceSnapshot})
	if model.state.AnyLoading() {
		t.Error("nothing should be loading")
	}
	for _, n := range model.state.GetNotifications() {
		if n.ID == LoadingNotificationID {
			t.Error("loading notification should be cleared")
		}
	}
}

func TestModel_HandleSpinnerTick(t *testing.T) {
	model := NewModel(nil)
	model.Update(spinner.TickMsg{})
}

func TestSelectionLabel(t *testing.T) {
	tests := []struct {
		sel  models.Selection
		want string
	}{
		{models.Selection{SourceSystem: "DVM", Target: "S_DVM_ORDERS", LookbackHours: 2}, "DVM · Target Table: S_DVM_ORDERS · 2h"},
		{models.Selection{Mode: models.ByTopic, SourceSystem: "DVM", LookbackHours: 1}, "DVM · Topic Name: (none) · 1h"},
		{models.Selection{SourceSystem: "DVM", Target: "T", LookbackHours: 1, CompareAll: true}, "DVM · Target Table: T · 1h · all sources"},
	}
	for _, tt := range tests {
		if got := SelectionLabel(tt.sel); got != tt.want {
			t.Errorf("SelectionLabel() = %q, want %q", got, tt.want)
		}
	}
}

func TestTabID_String(t *testing.T) {
	tests := []struct {
		id   TabID
		want string
	}{
		{TabOverview, "Overview"},
		{TabTimeline, "Timeline"},
		{TabInfo, "Info"},
		{TabID(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.id.String(); got != tt.want {
			t.Errorf("TabID(%d).String() = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestDefaultKeyMap(t *testing.T) {
	km := DefaultKeyMap()
	if len(km.ShortHelp()) == 0 {
		t.Error("ShortHelp should not be empty")
	}
	if len(km.FullHelp()) != 4 {
		t.Errorf("FullHelp has %d groups, want 4", len(km.FullHelp()))
	}
}
