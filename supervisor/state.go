package supervisor

import "time"

// State identifies the supervisor loop's position in its lifecycle.
type State int

const (
	// StateInit holds empty run state before the first reasoning step.
	StateInit State = iota
	// StateReasoning runs an initial or analyze-results reasoning step.
	StateReasoning
	// StateDispatching fans pending tool calls out concurrently.
	StateDispatching
	// StateMerging folds the settled batch back into the run state.
	StateMerging
	// StateComplete is terminal and carries the final output.
	StateComplete
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateReasoning:
		return "REASONING"
	case StateDispatching:
		return "DISPATCHING"
	case StateMerging:
		return "MERGING"
	case StateComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// ToolCall is one capability invocation proposed by a reasoning step.
// It is created once and consumed exactly once by dispatch.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Tool result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ToolResult is the settled outcome of one ToolCall, associated back to its
// originating call by id rather than by completion order.
type ToolResult struct {
	CallID   string         `json:"call_id"`
	Name     string         `json:"name"`
	Status   string         `json:"status"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Output is the final result of one supervisor run.
type Output struct {
	Success       bool           `json:"success"`
	Content       string         `json:"content"`
	ToolCallsMade int            `json:"tool_calls_made"`
	Iterations    int            `json:"iterations"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// runState is the per-run mutable state. It is owned by exactly one Run
// invocation and mutated only between suspension points; the dispatch
// goroutines write to disjoint result slots, never to runState itself.
type runState struct {
	taskID        string
	task          string
	sessionID     string
	messages      []string
	pending       []ToolCall
	inFlight      map[string]ToolCall
	results       []ToolResult
	lastBatch     []ToolResult
	complete      bool
	failed        bool
	finalOutput   string
	iterations    int
	maxIterations int
	emptyAnalyses int
	reasoned      bool
	started       time.Time
}

// nextState is the loop's single transition function. Every state change in
// the supervisor flows through here.
func nextState(cur State, rs *runState) State {
	switch cur {
	case StateInit:
		return StateReasoning
	case StateReasoning:
		switch {
		case rs.complete:
			return StateComplete
		case len(rs.pending) > 0:
			return StateDispatching
		default:
			// A reasoning step that neither completes nor proposes calls
			// re-enters reasoning; the empty-analysis counter and the
			// iteration cap bound how long that can go on.
			return StateReasoning
		}
	case StateDispatching:
		return StateMerging
	case StateMerging:
		if rs.complete {
			return StateComplete
		}
		return StateReasoning
	default:
		return StateComplete
	}
}
