// Package app provides the main Bubble Tea application model and state management.
package app

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/j-veylop/pipeline-monitor-tui/internal/config"
	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/sources"
)

// NotificationType defines the type of notification.
type NotificationType int

const (
	// NotificationSuccess represents a success notification.
	NotificationSuccess NotificationType = iota
	// NotificationError represents an error notification.
	NotificationError
	// NotificationWarning represents a warning notification.
	NotificationWarning
	// NotificationInfo represents an informational notification.
	NotificationInfo
	// NotificationLoading represents a loading notification with spinner.
	NotificationLoading
)

const (
	// LoadingNotificationID is the fixed ID for loading notifications.
	LoadingNotificationID = "__loading__"

	maxNotifications = 10
)

// Loading resources.
const (
	ResourceInitial  = "initial"
	ResourceCatalog  = "catalog"
	ResourceSnapshot = "snapshot"
	ResourceIdentity = "identity"
)

// String returns the string representation of a NotificationType.
func (n NotificationType) String() string {
	switch n {
	case NotificationSuccess:
		return "success"
	case NotificationError:
		return "error"
	case NotificationWarning:
		return "warning"
	case NotificationInfo:
		return "info"
	case NotificationLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// Notification represents a user-facing notification message.
type Notification struct {
	ID        string
	Type      NotificationType
	Message   string
	CreatedAt time.Time
	Duration  time.Duration
}

// IsExpired returns true if the notification has expired.
func (n *Notification) IsExpired() bool {
	if n.Duration <= 0 {
		return false
	}
	return time.Since(n.CreatedAt) > n.Duration
}

// LoadingState tracks loading states for different resources.
type LoadingState struct {
	Initial  bool
	Catalog  bool
	Snapshot bool
	Identity bool
}

// Health is the latest cache and circuit breaker status of the sources.
type Health struct {
	Cache    sources.CacheStats
	Breakers map[string]string
}

// State is shared by the application model and its tabs.
type State struct {
	mu sync.RWMutex

	cfg       *config.Config
	systems   []string
	selection models.Selection

	catalogSystem string
	targets       []string
	topics        []string
	catalogErr    error
	cursor        int

	snapshot    *models.Snapshot
	lastErr     error
	identity    *models.Identity
	identityErr error
	health      Health

	Loading     LoadingState
	LastUpdated time.Time

	notifications   []Notification
	notificationSeq int
}

// NewState creates an empty state selecting a one hour table lookback.
func NewState() *State {
	return &State{
		selection: models.Selection{
			Mode:          models.ByTable,
			LookbackHours: models.MinLookbackHours,
		},
		notifications: make([]Notification, 0),
		Loading:       LoadingState{Initial: true},
	}
}

// ApplyConfig records cfg and the source systems it names. The selection
// keeps its source system when cfg still knows it.
func (s *State) ApplyConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.systems = s.systems[:0]
	for _, sys := range cfg.SourceSystems {
		s.systems = append(s.systems, sys.Name)
	}
	if !slices.Contains(s.systems, s.selection.SourceSystem) && len(s.systems) > 0 {
		s.selection.SourceSystem = s.systems[0]
		s.clearCatalogLocked()
	}
	if s.selection.Target == "" && s.selection.Topic == "" {
		s.selection.LookbackHours = models.ClampLookback(cfg.DefaultLookbackHours)
	}
}

// Config returns the configuration last applied.
func (s *State) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SourceSystems returns the configured source system names.
func (s *State) SourceSystems() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.systems)
}

// Selection returns the current selection.
func (s *State) Selection() models.Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection
}

// ToggleMode switches between table and topic filtering.
func (s *State) ToggleMode() models.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selection.Mode == models.ByTable {
		s.selection.Mode = models.ByTopic
	} else {
		s.selection.Mode = models.ByTable
	}
	s.cursor = s.indexLocked(s.selectedNameLocked())
	return s.selection
}

// CycleSourceSystem moves to the next configured source system and drops the
// catalog and selected item of the previous one.
func (s *State) CycleSourceSystem() models.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.systems) == 0 {
		return s.selection
	}
	next := (slices.Index(s.systems, s.selection.SourceSystem) + 1) % len(s.systems)
	s.selection.SourceSystem = s.systems[next]
	s.clearCatalogLocked()
	return s.selection
}

// AdjustLookback changes the lookback by delta hours within the accepted range.
func (s *State) AdjustLookback(delta int) models.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.LookbackHours = models.ClampLookback(s.selection.LookbackHours + delta)
	return s.selection
}

// ToggleCompareAll switches between comparing one source and every source.
func (s *State) ToggleCompareAll() models.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.CompareAll = !s.selection.CompareAll
	return s.selection
}

// SelectItem selects a target table or topic, depending on the mode.
func (s *State) SelectItem(name string) models.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selection.Mode == models.ByTopic {
		s.selection.Topic = name
	} else {
		s.selection.Target = name
	}
	if i := slices.Index(s.itemsLocked(), name); i >= 0 {
		s.cursor = i
	}
	return s.selection
}

func (s *State) clearCatalogLocked() {
	s.catalogSystem = ""
	s.targets = nil
	s.topics = nil
	s.catalogErr = nil
	s.cursor = 0
	s.selection.Target = ""
	s.selection.Topic = ""
}

// SetCatalog stores the lists of a source system. Lists for a system that is
// no longer selected are ignored.
func (s *State) SetCatalog(system string, targets, topics []string, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if system != s.selection.SourceSystem {
		return false
	}
	s.catalogSystem = system
	s.targets = slices.Clone(targets)
	s.topics = slices.Clone(topics)
	s.catalogErr = err
	s.cursor = s.indexLocked(s.selectedNameLocked())
	return true
}

// CatalogError returns the error of the last catalog load.
func (s *State) CatalogError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalogErr
}

// Items returns the target tables or topics of the current mode.
func (s *State) Items() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.itemsLocked())
}

func (s *State) itemsLocked() []string {
	if s.selection.Mode == models.ByTopic {
		return s.topics
	}
	return s.targets
}

func (s *State) selectedNameLocked() string {
	if s.selection.Mode == models.ByTopic {
		return s.selection.Topic
	}
	return s.selection.Target
}

func (s *State) indexLocked(name string) int {
	return max(slices.Index(s.itemsLocked(), name), 0)
}

// Cursor returns the highlighted position in Items.
func (s *State) Cursor() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// MoveCursor moves the highlight by delta, staying within the list.
func (s *State) MoveCursor(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.itemsLocked())
	if n == 0 {
		s.cursor = 0
		return 0
	}
	s.cursor = min(max(s.cursor+delta, 0), n-1)
	return s.cursor
}

// CursorItem returns the highlighted item, if any.
func (s *State) CursorItem() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.itemsLocked()
	if s.cursor < 0 || s.cursor >= len(items) {
		return "", false
	}
	return items[s.cursor], true
}

// SetSnapshot stores the latest snapshot.
func (s *State) SetSnapshot(snap *models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
	s.lastErr = nil
	s.LastUpdated = time.Now()
}

// Snapshot returns the latest snapshot.
func (s *State) Snapshot() *models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// SetLastError records why the last refresh failed.
func (s *State) SetLastError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

// LastError returns why the last refresh failed, if it did.
func (s *State) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// SetIdentity stores the warehouse identity or the error fetching it.
func (s *State) SetIdentity(id models.Identity, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.identity = nil
	} else {
		s.identity = &id
	}
	s.identityErr = err
}

// Identity returns the warehouse identity and the error fetching it.
func (s *State) Identity() (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.identityErr
}

// SetHealth stores cache and breaker status.
func (s *State) SetHealth(cache sources.CacheStats, breakers map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = Health{Cache: cache, Breakers: maps.Clone(breakers)}
}

// Health returns cache and breaker status.
func (s *State) Health() Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Health{Cache: s.health.Cache, Breakers: maps.Clone(s.health.Breakers)}
}

// SetLoading sets the loading state for a specific resource.
func (s *State) SetLoading(resource string, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch resource {
	case ResourceInitial:
		s.Loading.Initial = loading
	case ResourceCatalog:
		s.Loading.Catalog = loading
	case ResourceSnapshot:
		s.Loading.Snapshot = loading
	case ResourceIdentity:
		s.Loading.Identity = loading
	}
}

// IsLoading reports whether resource is loading.
func (s *State) IsLoading(resource string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch resource {
	case ResourceInitial:
		return s.Loading.Initial
	case ResourceCatalog:
		return s.Loading.Catalog
	case ResourceSnapshot:
		return s.Loading.Snapshot
	case ResourceIdentity:
		return s.Loading.Identity
	}
	return false
}

// AnyLoading returns true if any resource is currently loading.
func (s *State) AnyLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Loading.Initial || s.Loading.Catalog || s.Loading.Snapshot || s.Loading.Identity
}

// AddNotification adds a new notification and returns its ID.
func (s *State) AddNotification(notifType NotificationType, message string, duration time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notificationSeq++
	id := time.Now().Format("20060102150405") + "-" + string(rune('A'+s.notificationSeq%26))

	s.notifications = append(s.notifications, Notification{
		ID:        id,
		Type:      notifType,
		Message:   message,
		CreatedAt: time.Now(),
		Duration:  duration,
	})

	if len(s.notifications) > maxNotifications {
		s.notifications = s.notifications[len(s.notifications)-maxNotifications:]
	}

	return id
}

// RemoveNotification removes a notification by ID.
func (s *State) RemoveNotification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return
		}
	}
}

// ClearExpiredNotifications removes all expired notifications.
func (s *State) ClearExpiredNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}
	s.notifications = active
}

// GetNotifications returns a copy of all active notifications.
func (s *State) GetNotifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}
	return active
}

// SetLoadingNotification sets a loading notification message.
func (s *State) SetLoadingNotification(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == LoadingNotificationID {
			s.notifications[i].Message = message
			return
		}
	}

	s.notifications = append(s.notifications, Notification{
		ID:        LoadingNotificationID,
		Type:      NotificationLoading,
		Message:   message,
		CreatedAt: time.Now(),
	})
}

// ClearLoadingNotification removes the loading notification.
func (s *State) ClearLoadingNotification() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == LoadingNotificationID {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return
		}
	}
}

// TimeSinceUpdate returns the duration since the last snapshot.
func (s *State) TimeSinceUpdate() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.LastUpdated.IsZero() {
		return 0
	}
	return time.Since(s.LastUpdated)
}
