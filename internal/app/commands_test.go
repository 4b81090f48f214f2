package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/pipeline-monitor-tui/internal/config"
	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/services"
	"github.com/j-veylop/pipeline-monitor-tui/internal/sources"
)

type fakeBackend struct {
	mu         sync.Mutex
	cfg        *config.Config
	targets    map[string][]string
	topics     map[string][]string
	listErr    error
	refreshErr error
	refreshed  []models.Selection
	forced     int
	ch         chan services.ServiceEvent
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		cfg: &config.Config{
			SourceSystems: []config.SourceSystem{
				{Name: "DVM", Source: config.SourceRelational},
				{Name: "RXMGT", Source: config.SourceSearch},
			},
			DefaultLookbackHours: 3,
		},
		targets: map[string][]string{
			"DVM":   {"S_DVM_ITEMS", "S_DVM_ORDERS"},
			"RXMGT": {"S_RXMGT_SCRIPTS"},
		},
		topics: map[string][]string{
			"DVM": {"dvm.items", "dvm.orders"},
		},
	}
}

func (f *fakeBackend) Config() *config.Config { return f.cfg }

func (f *fakeBackend) Refresh(_ context.Context, sel models.Selection, force bool) (*models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, sel)
	if force {
		f.forced++
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &models.Snapshot{
		Selection:   sel,
		TakenAt:     time.Now(),
		TargetCount: models.CountResult{Source: "warehouse", Target: sel.Target, Count: 10},
	}, nil
}

func (f *fakeBackend) Targets(_ context.Context, system string) ([]string, error) {
	return f.targets[system], f.listErr
}

func (f *fakeBackend) Topics(_ context.Context, system string) ([]string, error) {
	return f.topics[system], nil
}

func (f *fakeBackend) Identity(context.Context) (models.Identity, error) {
	return models.Identity{User: "MONITOR", Account: "acme", Region: "us-east-1"}, nil
}

func (f *fakeBackend) CacheStats() sources.CacheStats {
	return sources.CacheStats{Entries: 2, Hits: 1, Misses: 2}
}

func (f *fakeBackend) BreakerStates() map[string]string {
	return map[string]string{"warehouse": "closed"}
}

func (f *fakeBackend) Subscribe() (chan services.ServiceEvent, tea.Cmd) {
	f.ch = make(chan services.ServiceEvent, 1)
	return f.ch, nil
}

func TestTickCmd(t *testing.T) {
	if tickCmd(time.Millisecond) == nil {
		t.Error("tickCmd returned nil")
	}
	if defaultTickCmd() == nil {
		t.Error("defaultTickCmd returned nil")
	}
}

func TestNotifyCommands(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) tea.Cmd
		want NotificationType
	}{
		{"Success", notifySuccessCmd, NotificationSuccess},
		{"Error", notifyErrorCmd, NotificationError},
		{"Warning", notifyWarningCmd, NotificationWarning},
		{"Info", notifyInfoCmd, NotificationInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.fn("msg")()

			addMsg, ok := msg.(AddNotificationMsg)
			if !ok {
				t.Fatalf("Expected AddNotificationMsg, got %T", msg)
			}
			if addMsg.Type != tt.want {
				t.Errorf("Type = %v, want %v", addMsg.Type, tt.want)
			}
			if addMsg.Message != "msg" {
				t.Errorf("Message = %q, want msg", addMsg.Message)
			}
			if addMsg.Duration <= 0 {
				t.Error("notification should expire")
			}
		})
	}
}

func TestClearNotificationCmd(t *testing.T) {
	if clearNotificationCmd("id", time.Millisecond) == nil {
		t.Error("clearNotificationCmd returned nil")
	}
}

func TestLoadCatalogCmd(t *testing.T) {
	fb := newFakeBackend()
	msg := loadCatalogCmd(fb, "DVM")().(CatalogLoadedMsg)

	if msg.SourceSystem != "DVM" || len(msg.Targets) != 2 || len(msg.Topics) != 2 {
		t.Errorf("msg = %+v", msg)
	}
	if msg.Err != nil {
		t.Errorf("Err = %v", msg.Err)
	}

	fb.listErr = errors.New("warehouse down")
	msg = loadCatalogCmd(fb, "DVM")().(CatalogLoadedMsg)
	if msg.Err == nil || !strings.Contains(msg.Err.Error(), "warehouse down") {
		t.Errorf("Err = %v", msg.Err)
	}
	if len(msg.Topics) != 2 {
		t.Error("topics should still load when targets fail")
	}
}

func TestRefreshCmd(t *testing.T) {
	fb := newFakeBackend()
	sel := models.Selection{SourceSystem: "DVM", Target: "S_DVM_ORDERS", LookbackHours: 1}

	msg := refreshCmd(fb, sel, true)().(SnapshotLoadedMsg)
	if msg.Err != nil || msg.Snapshot == nil {
		t.Fatalf("msg = %+v", msg)
	}
	if fb.forced != 1 {
		t.Errorf("forced = %d, want 1", fb.forced)
	}
}

func TestLoadIdentityCmd(t *testing.T) {
	msg := loadIdentityCmd(newFakeBackend())().(IdentityLoadedMsg)
	if msg.Err != nil || msg.Identity.User != "MONITOR" {
		t.Errorf("msg = %+v", msg)
	}
}

func TestWaitForServiceEventCmd(t *testing.T) {
	ch := make(chan services.ServiceEvent, 1)
	ch <- services.ErrorEvent{Service: "monitor"}

	msg := waitForServiceEventCmd(ch)()
	if _, ok := msg.(ServiceEventMsg); !ok {
		t.Errorf("msg = %T, want ServiceEventMsg", msg)
	}

	close(ch)
	if msg := waitForServiceEventCmd(ch)(); msg != nil {
		t.Errorf("closed channel should yield nil, got %T", msg)
	}
}

func timelineSnapshot(target string) *models.Snapshot {
	hour := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	return &models.Snapshot{
		Selection: models.Selection{Target: target},
		Timeline: &models.Reconciliation{
			Sources: []string{"warehouse", "relational"},
			Rows: []models.ReconciledRow{{
				Hour:    hour,
				Counts:  map[string]int64{"warehouse": 5, "relational": 4},
				Present: map[string]bool{"warehouse": true, "relational": true},
			}},
		},
	}
}

func TestExportCSV(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	path, err := exportCSV(timelineSnapshot("VLT.S_DVM_ORDERS"), dir, now)
	if err != nil {
		t.Fatalf("exportCSV: %v", err)
	}
	if filepath.Base(path) != "pmt-VLT_S_DVM_ORDERS-20260102T030405.csv" {
		t.Errorf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "2026-01-02 03:00,5,true,4,true") {
		t.Errorf("csv = %q", data)
	}

	if _, err := exportCSV(&models.Snapshot{}, dir, now); err == nil {
		t.Error("snapshot without timeline should not export")
	}
	if _, err := exportCSV(timelineSnapshot("X"), filepath.Join(dir, "missing"), now); err == nil {
		t.Error("missing directory should fail")
	}
}

func TestExportName(t *testing.T) {
	tests := map[string]string{
		"S_DVM_ORDERS":  "S_DVM_ORDERS",
		"VLT.S_ORDERS":  "VLT_S_ORDERS",
		"../etc/passwd": "__etcpasswd",
		"":              "timeline",
	}
	for in, want := range tests {
		if got := exportName(in); got != want {
			t.Errorf("exportName(%q) = %q, want %q", in, got, want)
		}
	}
}
