package app

import (
	"time"

	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/services"
)

// TickMsg is sent periodically to trigger state refresh.
type TickMsg struct {
	Time time.Time
}

// StartLoadingMsg signals that a resource is starting to load.
type StartLoadingMsg struct {
	Resource string
}

// StopLoadingMsg signals that a resource has finished loading.
type StopLoadingMsg struct {
	Resource string
}

// CatalogLoadedMsg carries the target tables and topics of a source system.
type CatalogLoadedMsg struct {
	SourceSystem string
	Targets      []string
	Topics       []string
	Err          error
}

// SnapshotLoadedMsg is the result of a foreground refresh.
type SnapshotLoadedMsg struct {
	Snapshot *models.Snapshot
	Err      error
}

// IdentityLoadedMsg carries the warehouse connection identity.
type IdentityLoadedMsg struct {
	Identity models.Identity
	Err      error
}

// ExportResultMsg reports where the reconciled table was written.
type ExportResultMsg struct {
	Path string
	Err  error
}

// RefreshMsg requests a refresh of the current selection.
type RefreshMsg struct {
	Force bool
}

// SelectItemMsg is sent by a tab when the user picks a target table or topic.
type SelectItemMsg struct {
	Name string
}

// ExportMsg asks the application to export the current reconciliation.
type ExportMsg struct{}

// SubscriptionEventMsg carries the channel returned by a subscription.
type SubscriptionEventMsg struct {
	Channel chan services.ServiceEvent
}

// ServiceEventMsg wraps an event received from the service manager.
type ServiceEventMsg struct {
	Event services.ServiceEvent
}

// AddNotificationMsg requests adding a notification.
type AddNotificationMsg struct {
	Type     NotificationType
	Message  string
	Duration time.Duration
}

// RemoveNotificationMsg requests removing a notification.
type RemoveNotificationMsg struct {
	ID string
}

// ClearExpiredNotificationsMsg requests clearing expired notifications.
type ClearExpiredNotificationsMsg struct{}

// ErrorMsg represents an error that occurred.
type ErrorMsg struct {
	Error error
}

// TabSwitchMsg requests switching to a different tab.
type TabSwitchMsg struct {
	Tab TabID
}

// ToggleHelpMsg toggles the help overlay.
type ToggleHelpMsg struct{}
