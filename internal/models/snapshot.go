package models

import "time"

// FilterMode selects whether the dashboard is driven by a target table or a topic.
type FilterMode int

const (
	// ByTable filters by warehouse target table.
	ByTable FilterMode = iota
	// ByTopic filters by pipeline topic.
	ByTopic
)

// String returns the display name of the mode.
func (m FilterMode) String() string {
	if m == ByTopic {
		return "Topic Name"
	}
	return "Target Table"
}

// Selection is what the user is currently looking at.
type Selection struct {
	Mode          FilterMode
	SourceSystem  string
	Target        string
	Topic         string
	LookbackHours int
	CompareAll    bool
}

// Ready reports whether the selection names something to query.
func (s Selection) Ready() bool {
	if s.Mode == ByTopic {
		return s.Topic != ""
	}
	return s.Target != ""
}

// CountResult is one source's record count for a target.
type CountResult struct {
	Source string
	Target string
	Count  int64
	Err    error
}

// Available reports whether the count was obtained.
func (c CountResult) Available() bool {
	return c.Err == nil
}

// TopicTableCount is the warehouse count of one table fed by a topic.
type TopicTableCount struct {
	Table string
	CountResult
}

// Snapshot is everything rendered for one selection at one point in time.
type Snapshot struct {
	Selection    Selection
	TakenAt      time.Time
	TargetCount  CountResult
	SourceCounts []CountResult
	Topics       []string
	TopicsErr    error
	TopicTables  []TopicTableCount
	Timeline     *Reconciliation
	TimelineErr  error
}

// Degraded reports whether any part of the snapshot is missing a source.
func (s *Snapshot) Degraded() bool {
	if s == nil {
		return false
	}
	if !s.TargetCount.Available() && s.Selection.Mode == ByTable {
		return true
	}
	for _, c := range s.SourceCounts {
		if !c.Available() {
			return true
		}
	}
	return s.Timeline != nil && s.Timeline.Degraded
}

// Identity describes the account a warehouse connection runs as.
type Identity struct {
	User    string `db:"user_name"`
	Account string `db:"account_name"`
	Region  string `db:"region_name"`
}
