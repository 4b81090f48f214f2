package monitor

import (
	"fmt"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/j-veylop/pipeline-monitor-tui/internal/logger"
	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/reconcile"
)

// NotifyFunc delivers one desktop notification.
type NotifyFunc func(title, message string) error

// Alert is a notification raised by a snapshot.
type Alert struct {
	Title   string
	Message string
}

// Notifier raises alerts when a source becomes unavailable or recovers, and
// when the gap between the warehouse and a source crosses a threshold.
// Only transitions alert; a state that persists across snapshots is quiet.
type Notifier struct {
	mu          sync.Mutex
	notify      NotifyFunc
	threshold   float64
	unavailable map[string]bool
	over        map[string]bool
}

// NewNotifier creates a notifier. A non-positive threshold disables
// discrepancy alerts. A nil notify sends desktop notifications.
func NewNotifier(threshold float64, notify NotifyFunc) *Notifier {
	if notify == nil {
		notify = func(title, message string) error {
			return beeep.Notify(title, message, "")
		}
	}
	return &Notifier{
		notify:      notify,
		threshold:   threshold,
		unavailable: make(map[string]bool),
		over:        make(map[string]bool),
	}
}

// Evaluate compares snap with what was seen before and sends any alerts.
func (n *Notifier) Evaluate(snap *models.Snapshot) []Alert {
	if snap == nil || snap.Selection.Mode != models.ByTable {
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	sel := snap.Selection
	scope := sel.SourceSystem + "/" + sel.Target
	var alerts []Alert

	results := append([]models.CountResult{snap.TargetCount}, snap.SourceCounts...)
	for _, r := range results {
		key := scope + "/" + r.Source
		was := n.unavailable[key]
		is := !r.Available()
		n.unavailable[key] = is

		switch {
		case is && !was:
			alerts = append(alerts, Alert{
				Title:   fmt.Sprintf("Source unavailable: %s", r.Source),
				Message: fmt.Sprintf("%s for %s: %v", r.Source, sel.Target, r.Err),
			})
		case !is && was:
			alerts = append(alerts, Alert{
				Title:   fmt.Sprintf("Source recovered: %s", r.Source),
				Message: fmt.Sprintf("%s is answering again for %s", r.Source, sel.Target),
			})
		}
	}

	if n.threshold > 0 && snap.TargetCount.Available() {
		for _, r := range snap.SourceCounts {
			if !r.Available() {
				continue
			}
			key := scope + "/" + r.Source
			pct := reconcile.Discrepancy(snap.TargetCount.Count, r.Count)
			isOver := reconcile.OverThreshold(pct, n.threshold)
			if isOver && !n.over[key] {
				alerts = append(alerts, Alert{
					Title: fmt.Sprintf("Count discrepancy: %s", sel.Target),
					Message: fmt.Sprintf("%s %d vs %s %d (%.1f%%) over the last %dh",
						snap.TargetCount.Source, snap.TargetCount.Count, r.Source, r.Count, pct, sel.LookbackHours),
				})
			}
			n.over[key] = isOver
		}
	}

	for _, a := range alerts {
		if err := n.notify(a.Title, a.Message); err != nil {
			logger.Warn("failed to send notification", "title", a.Title, "error", err)
		}
	}
	return alerts
}

// Reset forgets previously seen states.
func (n *Notifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	clear(n.unavailable)
	clear(n.over)
}
