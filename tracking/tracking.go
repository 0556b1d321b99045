// Package tracking defines the optional observability collaborator. Trackers
// receive structured records of model calls, tool calls and conversation
// turns after the fact; the orchestration core never blocks on them.
package tracking

import "time"

// Kind categorizes a tracked record.
type Kind string

const (
	// KindModelCall records one model invocation.
	KindModelCall Kind = "model_call"
	// KindToolCall records one tool invocation.
	KindToolCall Kind = "tool_call"
	// KindTurn records one completed conversation turn.
	KindTurn Kind = "turn"
)

// Record is one structured observation handed to a Tracker.
type Record struct {
	Kind       Kind           `json:"kind"`
	TaskID     string         `json:"task_id"`
	Name       string         `json:"name"` // model id, tool name or turn label
	Success    bool           `json:"success"`
	DurationMS int64          `json:"duration_ms"`
	Detail     map[string]any `json:"detail,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Tracker consumes records. Implementations must return quickly; the core
// treats Track as fire-and-forget.
type Tracker interface {
	Track(rec Record)
}

// NoopTracker discards all records.
type NoopTracker struct{}

// Track discards the record.
func (NoopTracker) Track(Record) {}
