package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	tmpDir := cleanEnv(t)
	t.Setenv("LOG_PATH", filepath.Join(tmpDir, "pmt.log"))
	envPath := filepath.Join(tmpDir, ".env")
	if err := os.WriteFile(envPath, []byte("WAREHOUSE_DSN=first\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("WAREHOUSE_DSN") })

	reloaded := make(chan *Config, 4)
	w, err := Watch(envPath, func(cfg *Config, err error) {
		if err != nil {
			t.Errorf("reload failed: %v", err)
			return
		}
		reloaded <- cfg
	})
	if err != nil {
		t.Fatalf("Watch() failed: %v", err)
	}
	defer w.Close()

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(tmpDir, "other.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(envPath, []byte("WAREHOUSE_DSN=second\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Warehouse.DSN != "second" {
			t.Errorf("reloaded DSN = %q, want second", cfg.Warehouse.DSN)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not reload")
	}
}

func TestWatcherReportsInvalidConfig(t *testing.T) {
	tmpDir := cleanEnv(t)
	envPath := filepath.Join(tmpDir, ".env")
	if err := os.WriteFile(envPath, []byte("WAREHOUSE_DSN=ok\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = os.Unsetenv("WAREHOUSE_DSN")
		_ = os.Unsetenv("DEFAULT_LOOKBACK_HOURS")
	})

	errs := make(chan error, 4)
	w, err := Watch(envPath, func(_ *Config, err error) { errs <- err })
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := os.WriteFile(envPath, []byte("WAREHOUSE_DSN=ok\nDEFAULT_LOOKBACK_HOURS=48\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errs:
		if err == nil {
			t.Error("expected validation error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not reload")
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	if _, err := Watch(filepath.Join(t.TempDir(), "nope", ".env"), func(*Config, error) {}); err == nil {
		t.Error("Watch() of a missing directory should fail")
	}
}
