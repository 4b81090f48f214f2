package info

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/j-veylop/pipeline-monitor-tui/internal/app"
	"github.com/j-veylop/pipeline-monitor-tui/internal/config"
	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/sources"
)

func testConfig() *config.Config {
	return &config.Config{
		EnvFile: "/tmp/pmt/.env",
		Warehouse: config.DatabaseConfig{
			Driver: "snowflake", DSN: "user:secret@account/db", Schema: "VLT", Timezone: "UTC",
		},
		Relational: config.DatabaseConfig{Driver: "mysql", Schema: "dvm", Timezone: "UTC"},
		SourceSystems: []config.SourceSystem{
			{Name: "DVM", Source: config.SourceRelational},
			{Name: "RXMGT", Source: config.SourceSearch},
		},
		DefaultLookbackHours: 1,
		CacheTTL:             20 * time.Minute,
		DiscrepancyThreshold: 10,
	}
}

func TestNew(t *testing.T) {
	m := New(app.NewState())
	if m == nil {
		t.Fatal("New returned nil")
	}
	if m.Init() != nil {
		t.Error("Init should return nil")
	}
}

func TestModel_Update(t *testing.T) {
	m := New(app.NewState())
	updated, _ := m.Update(nil)
	if updated == nil {
		t.Error("Update returned nil model")
	}
}

func TestModel_ViewWithoutConfig(t *testing.T) {
	m := New(app.NewState())
	m.SetSize(100, 80)
	if view := m.View(); !strings.Contains(view, "Configuration not loaded") {
		t.Error("view should say the configuration is missing")
	}
}

func TestModel_ViewConfig(t *testing.T) {
	state := app.NewState()
	state.ApplyConfig(testConfig())
	m := New(state)
	m.SetSize(100, 120)
	view := m.View()

	for _, want := range []string{"/tmp/pmt/.env", "DVM=relational", "snowflake", "20m0s", "not configured", "10.0%"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(view, "secret") {
		t.Error("view must not show credentials")
	}
}

func TestModel_ViewIdentityAndHealth(t *testing.T) {
	state := app.NewState()
	state.SetIdentity(models.Identity{User: "MONITOR", Account: "ACME", Region: "AWS_US_EAST_1"}, nil)
	state.SetHealth(sources.CacheStats{Entries: 1200, Hits: 5, Misses: 2}, map[string]string{
		sources.Warehouse: "closed",
		sources.Search:    "open",
	})
	m := New(state)
	m.SetSize(100, 120)
	view := m.View()

	for _, want := range []string{"MONITOR", "ACME", "1,200 entries", "warehouse", "closed", "search", "open"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	state.SetIdentity(models.Identity{}, errors.New("insufficient privileges"))
	if view := m.View(); !strings.Contains(view, "insufficient privileges") {
		t.Error("view should show the identity error")
	}
}

func TestModel_Help(t *testing.T) {
	m := New(app.NewState())
	if len(m.ShortHelp()) == 0 {
		t.Error("ShortHelp returned empty")
	}
	if len(m.FullHelp()) == 0 {
		t.Error("FullHelp returned empty")
	}
}
