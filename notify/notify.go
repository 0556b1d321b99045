// Package notify defines the optional live-update collaborator. Notifiers
// receive status, progress and error updates keyed by task id. Updates are
// purely informational and never on the critical path: slow or absent
// subscribers must not affect orchestration.
package notify

import "time"

// Level classifies an update.
type Level string

const (
	// LevelStatus is a lifecycle announcement (started, completed).
	LevelStatus Level = "status"
	// LevelProgress is an intermediate progress report.
	LevelProgress Level = "progress"
	// LevelError reports a failure that the loop absorbed.
	LevelError Level = "error"
)

// Update is one notification.
type Update struct {
	TaskID    string         `json:"task_id"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Notifier consumes updates. Implementations must return quickly.
type Notifier interface {
	Notify(u Update)
}

// NoopNotifier discards all updates.
type NoopNotifier struct{}

// Notify discards the update.
func (NoopNotifier) Notify(Update) {}
