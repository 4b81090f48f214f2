package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/pipeline-monitor-tui/internal/config"
	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/reconcile"
	"github.com/j-veylop/pipeline-monitor-tui/internal/services"
	"github.com/j-veylop/pipeline-monitor-tui/internal/sources"
)

const (
	// DefaultTickInterval is the default interval between ticks.
	DefaultTickInterval = 2 * time.Second

	// DefaultNotificationDuration is the default duration for notifications.
	DefaultNotificationDuration = 5 * time.Second

	// QuickNotificationDuration is for brief notifications.
	QuickNotificationDuration = 3 * time.Second

	// LongNotificationDuration is for important notifications.
	LongNotificationDuration = 10 * time.Second
)

// Backend is the part of the service manager the application talks to.
type Backend interface {
	Config() *config.Config
	Refresh(ctx context.Context, sel models.Selection, force bool) (*models.Snapshot, error)
	Targets(ctx context.Context, sourceSystem string) ([]string, error)
	Topics(ctx context.Context, sourceSystem string) ([]string, error)
	Identity(ctx context.Context) (models.Identity, error)
	CacheStats() sources.CacheStats
	BreakerStates() map[string]string
	Subscribe() (chan services.ServiceEvent, tea.Cmd)
}

// tickCmd returns a command that sends a TickMsg after the specified interval.
func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

// defaultTickCmd returns a command that sends a TickMsg after the default interval.
func defaultTickCmd() tea.Cmd {
	return tickCmd(DefaultTickInterval)
}

// loadCatalogCmd lists the target tables and topics of a source system.
func loadCatalogCmd(b Backend, sourceSystem string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		targets, targetsErr := b.Targets(ctx, sourceSystem)
		topics, topicsErr := b.Topics(ctx, sourceSystem)
		return CatalogLoadedMsg{
			SourceSystem: sourceSystem,
			Targets:      targets,
			Topics:       topics,
			Err:          errors.Join(targetsErr, topicsErr),
		}
	}
}

// refreshCmd builds a snapshot for sel.
func refreshCmd(b Backend, sel models.Selection, force bool) tea.Cmd {
	return func() tea.Msg {
		snap, err := b.Refresh(context.Background(), sel, force)
		return SnapshotLoadedMsg{Snapshot: snap, Err: err}
	}
}

// loadIdentityCmd fetches the warehouse identity.
func loadIdentityCmd(b Backend) tea.Cmd {
	return func() tea.Msg {
		id, err := b.Identity(context.Background())
		return IdentityLoadedMsg{Identity: id, Err: err}
	}
}

// exportCSVCmd writes the reconciled table of snap into dir.
func exportCSVCmd(snap *models.Snapshot, dir string) tea.Cmd {
	return func() tea.Msg {
		path, err := exportCSV(snap, dir, time.Now())
		return ExportResultMsg{Path: path, Err: err}
	}
}

func exportCSV(snap *models.Snapshot, dir string, now time.Time) (string, error) {
	if snap == nil || snap.Timeline == nil {
		return "", errors.New("no timeline to export")
	}

	name := fmt.Sprintf("pmt-%s-%s.csv", exportName(snap.Selection.Target), now.UTC().Format("20060102T150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	if err := reconcile.WriteCSV(f, snap.Timeline); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close export file: %w", err)
	}
	return path, nil
}

// exportName keeps letters, digits and underscores of a table name.
func exportName(target string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		case r == '.':
			return '_'
		default:
			return -1
		}
	}, target)
	if name == "" {
		return "timeline"
	}
	return name
}

// subscribeToServicesCmd returns a command that subscribes to service events.
func subscribeToServicesCmd(b Backend) tea.Cmd {
	ch, _ := b.Subscribe()
	return func() tea.Msg {
		return SubscriptionEventMsg{Channel: ch}
	}
}

// waitForServiceEventCmd returns a command that waits for the next service event.
func waitForServiceEventCmd(ch <-chan services.ServiceEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return ServiceEventMsg{Event: event}
	}
}

// clearNotificationCmd returns a command that removes a notification after a delay.
func clearNotificationCmd(id string, delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(_ time.Time) tea.Msg {
		return RemoveNotificationMsg{ID: id}
	})
}

func notifyCmd(t NotificationType, message string, d time.Duration) tea.Cmd {
	return func() tea.Msg {
		return AddNotificationMsg{Type: t, Message: message, Duration: d}
	}
}

// notifySuccessCmd returns a command that adds a success notification.
func notifySuccessCmd(message string) tea.Cmd {
	return notifyCmd(NotificationSuccess, message, DefaultNotificationDuration)
}

// notifyErrorCmd returns a command that adds an error notification.
func notifyErrorCmd(message string) tea.Cmd {
	return notifyCmd(NotificationError, message, LongNotificationDuration)
}

// notifyWarningCmd returns a command that adds a warning notification.
func notifyWarningCmd(message string) tea.Cmd {
	return notifyCmd(NotificationWarning, message, LongNotificationDuration)
}

// notifyInfoCmd returns a command that adds an info notification.
func notifyInfoCmd(message string) tea.Cmd {
	return notifyCmd(NotificationInfo, message, QuickNotificationDuration)
}
