// Package services provides service orchestration for the TUI.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/pipeline-monitor-tui/internal/config"
	"github.com/j-veylop/pipeline-monitor-tui/internal/logger"
	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/services/monitor"
	"github.com/j-veylop/pipeline-monitor-tui/internal/sources"
)

type (
	// SnapshotUpdatedEvent is emitted after a selection has been refreshed.
	SnapshotUpdatedEvent struct {
		Snapshot *models.Snapshot
		Alerts   []monitor.Alert
	}

	// ErrorEvent is emitted when an error occurs in any service.
	ErrorEvent struct {
		Service string
		Error   error
	}

	// ConfigReloadedEvent is emitted after the .env file changed and the
	// sources were rebuilt.
	ConfigReloadedEvent struct {
		Config *config.Config
	}
)

// ServiceEvent is the interface implemented by all service events.
type ServiceEvent interface {
	isServiceEvent()
}

func (SnapshotUpdatedEvent) isServiceEvent() {}
func (ErrorEvent) isServiceEvent()           {}
func (ConfigReloadedEvent) isServiceEvent()  {}

// ErrClosed is returned by operations on a closed manager.
var ErrClosed = errors.New("manager closed")

// Option configures a Manager.
type Option func(*Manager)

// WithBuilder replaces BuildSources.
func WithBuilder(b Builder) Option {
	return func(m *Manager) { m.build = b }
}

// WithNotifyFunc replaces desktop notifications.
func WithNotifyFunc(fn monitor.NotifyFunc) Option {
	return func(m *Manager) { m.notify = fn }
}

// WithoutWatcher disables reloading when the .env file changes.
func WithoutWatcher() Option {
	return func(m *Manager) { m.watch = false }
}

// WithoutBackgroundRefresh disables the periodic refresh loop.
func WithoutBackgroundRefresh() Option {
	return func(m *Manager) { m.background = false }
}

// Manager orchestrates services and event routing.
type Manager struct {
	mu          sync.RWMutex
	cfg         *config.Config
	sources     *Sources
	notifier    *monitor.Notifier
	selection   models.Selection
	selected    bool
	last        *models.Snapshot
	subscribers []chan<- ServiceEvent
	closed      bool

	// refreshMu serializes refreshes so background and manual refreshes
	// do not query the same sources twice at once.
	refreshMu sync.Mutex

	build      Builder
	notify     monitor.NotifyFunc
	watch      bool
	background bool
	watcher    *config.Watcher

	ctx          context.Context
	cancel       context.CancelFunc
	intervalChan chan time.Duration
	wg           sync.WaitGroup
}

// NewManager creates a new service manager.
func NewManager(cfg *config.Config, opts ...Option) (*Manager, error) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:          cfg,
		build:        BuildSources,
		watch:        true,
		background:   true,
		ctx:          ctx,
		cancel:       cancel,
		intervalChan: make(chan time.Duration, 1),
	}
	for _, opt := range opts {
		opt(m)
	}

	var err error
	m.sources, err = m.build(cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize sources: %w", err)
	}
	m.notifier = m.newNotifier(cfg)

	if m.watch && cfg.EnvFile != "" {
		m.watcher, err = config.Watch(cfg.EnvFile, m.handleConfigChange)
		if err != nil {
			logger.Warn("config watcher disabled", "path", cfg.EnvFile, "error", err)
		}
	}

	if m.background && cfg.RefreshInterval > 0 {
		m.wg.Add(1)
		go m.refreshLoop(cfg.RefreshInterval)
	}

	return m, nil
}

func (m *Manager) newNotifier(cfg *config.Config) *monitor.Notifier {
	if !cfg.NotificationsEnabled {
		return nil
	}
	return monitor.NewNotifier(cfg.DiscrepancyThreshold, m.notify)
}

// refreshLoop refreshes the current selection on a timer.
func (m *Manager) refreshLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sel, ok := m.Selection()
			if !ok {
				continue
			}
			if _, err := m.Refresh(m.ctx, sel, false); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("background refresh failed", "error", err)
			}

		case d := <-m.intervalChan:
			if d > 0 {
				ticker.Reset(d)
			}

		case <-m.ctx.Done():
			return
		}
	}
}

// handleConfigChange rebuilds the sources from a reloaded configuration.
func (m *Manager) handleConfigChange(cfg *config.Config, err error) {
	if err != nil {
		m.broadcast(ErrorEvent{Service: "config", Error: err})
		return
	}
	if err := m.Reconfigure(cfg); err != nil {
		m.broadcast(ErrorEvent{Service: "config", Error: err})
	}
}

// Reconfigure swaps in sources built from cfg and closes the old ones.
func (m *Manager) Reconfigure(cfg *config.Config) error {
	next, err := m.build(cfg)
	if err != nil {
		return fmt.Errorf("failed to rebuild sources: %w", err)
	}

	m.refreshMu.Lock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.refreshMu.Unlock()
		_ = next.Close()
		return ErrClosed
	}
	prev := m.sources
	m.sources = next
	m.cfg = cfg
	m.notifier = m.newNotifier(cfg)
	m.mu.Unlock()
	m.refreshMu.Unlock()

	if err := prev.Close(); err != nil {
		logger.Warn("failed to close previous sources", "error", err)
	}

	select {
	case m.intervalChan <- cfg.RefreshInterval:
	default:
	}

	logger.Info("sources rebuilt", "env", cfg.EnvFile)
	m.broadcast(ConfigReloadedEvent{Config: cfg})
	return nil
}

// broadcast sends an event to all subscribers.
func (m *Manager) broadcast(event ServiceEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber channel full, skip
		}
	}
}

// Subscribe creates a channel for receiving service events.
// Returns a tea.Cmd that can be used in Bubble Tea's Init or Update.
func (m *Manager) Subscribe() (chan ServiceEvent, tea.Cmd) {
	ch := make(chan ServiceEvent, 50)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	return ch, waitForEvent(ch)
}

// waitForEvent returns a tea.Cmd that waits for the next event.
func waitForEvent(ch <-chan ServiceEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return event
	}
}

// WaitForEvent returns a tea.Cmd for the next event on a channel.
func WaitForEvent(ch <-chan ServiceEvent) tea.Cmd {
	return waitForEvent(ch)
}

// Unsubscribe removes a subscriber channel.
func (m *Manager) Unsubscribe(ch chan ServiceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// Config returns the active configuration.
func (m *Manager) Config() *config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) current() (*Sources, *monitor.Notifier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, nil, ErrClosed
	}
	return m.sources, m.notifier, nil
}

// Selection returns the most recently refreshed selection.
func (m *Manager) Selection() (models.Selection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selection, m.selected
}

// LastSnapshot returns the most recent snapshot, if any.
func (m *Manager) LastSnapshot() *models.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Refresh builds a snapshot for sel and makes sel the selection refreshed in
// the background. A forced refresh purges cached results first.
func (m *Manager) Refresh(ctx context.Context, sel models.Selection, force bool) (*models.Snapshot, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	srcs, notifier, err := m.current()
	if err != nil {
		return nil, err
	}

	if force {
		srcs.Purge()
	}

	if timeout := m.Config().QueryTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	snap, err := srcs.Monitor.Snapshot(ctx, sel)
	if err != nil {
		m.broadcast(ErrorEvent{Service: "monitor", Error: err})
		return nil, err
	}

	var alerts []monitor.Alert
	if notifier != nil {
		alerts = notifier.Evaluate(snap)
	}

	m.mu.Lock()
	m.selection, m.selected = sel, true
	m.last = snap
	m.mu.Unlock()

	m.broadcast(SnapshotUpdatedEvent{Snapshot: snap, Alerts: alerts})
	return snap, nil
}

// Purge drops every cached result without refreshing.
func (m *Manager) Purge() {
	if srcs, _, err := m.current(); err == nil {
		srcs.Purge()
	}
}

// Targets lists the target tables of a source system.
func (m *Manager) Targets(ctx context.Context, sourceSystem string) ([]string, error) {
	srcs, _, err := m.current()
	if err != nil {
		return nil, err
	}
	return srcs.Monitor.Targets(ctx, sourceSystem)
}

// Topics lists the topics of a source system.
func (m *Manager) Topics(ctx context.Context, sourceSystem string) ([]string, error) {
	srcs, _, err := m.current()
	if err != nil {
		return nil, err
	}
	return srcs.Monitor.Topics(ctx, sourceSystem)
}

// Identity returns the warehouse connection identity.
func (m *Manager) Identity(ctx context.Context) (models.Identity, error) {
	srcs, _, err := m.current()
	if err != nil {
		return models.Identity{}, err
	}
	return srcs.Monitor.Identity(ctx)
}

// CacheStats returns combined cache statistics.
func (m *Manager) CacheStats() sources.CacheStats {
	srcs, _, err := m.current()
	if err != nil {
		return sources.CacheStats{}
	}
	return srcs.CacheStats()
}

// BreakerStates returns each source's circuit breaker state.
func (m *Manager) BreakerStates() map[string]string {
	srcs, _, err := m.current()
	if err != nil {
		return nil
	}
	return srcs.BreakerStates()
}

// Close closes the manager and all its services.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()

	var errs []error
	if m.watcher != nil {
		if err := m.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.wg.Wait()

	// Wait for an in-flight refresh before releasing connections.
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.mu.Lock()
	for _, sub := range m.subscribers {
		close(sub)
	}
	m.subscribers = nil
	srcs := m.sources
	m.mu.Unlock()

	if err := srcs.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
