package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CuriosityQuantified/atlas/invoke"
	"github.com/CuriosityQuantified/atlas/logging"
	"github.com/CuriosityQuantified/atlas/memory"
	"github.com/CuriosityQuantified/atlas/notify"
	"github.com/CuriosityQuantified/atlas/tool"
)

type captureTool struct {
	name   string
	result any
	err    error

	mu    sync.Mutex
	calls []map[string]any
}

func (t *captureTool) Name() string { return t.name }

func (t *captureTool) Description() string { return "capture tool for tests" }

func (t *captureTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text":    map[string]any{"type": "string"},
			"message": map[string]any{"type": "string"},
		},
	}
}

func (t *captureTool) Call(_ context.Context, args map[string]any) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, args)
	return t.result, t.err
}

func (t *captureTool) captured() []map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]map[string]any, len(t.calls))
	copy(out, t.calls)
	return out
}

func scriptedInvoker(responses ...invoke.ScriptedResponse) *invoke.Invoker {
	backend := invoke.NewScriptedBackend(responses...)
	return invoke.New(invoke.WithBackend(invoke.ProviderAnthropic, invoke.StrategySDK, backend))
}

func newTestSupervisor(iv *invoke.Invoker, reg *tool.Registry, maxIters int) *Supervisor {
	return New(func(o *Options) {
		o.Model = iv
		o.ModelID = "claude-3-5-haiku-latest"
		o.Tools = reg
		o.MaxIterations = maxIters
		o.Logger = logging.NoOpLogger{}
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "INIT", StateInit.String())
	assert.Equal(t, "REASONING", StateReasoning.String())
	assert.Equal(t, "DISPATCHING", StateDispatching.String())
	assert.Equal(t, "MERGING", StateMerging.String())
	assert.Equal(t, "COMPLETE", StateComplete.String())
}

func TestNextState(t *testing.T) {
	rs := &runState{maxIterations: 5}

	assert.Equal(t, StateReasoning, nextState(StateInit, rs))

	rs.pending = []ToolCall{{ID: "1", Name: "echo"}}
	assert.Equal(t, StateDispatching, nextState(StateReasoning, rs))
	assert.Equal(t, StateMerging, nextState(StateDispatching, rs))
	assert.Equal(t, StateReasoning, nextState(StateMerging, rs))

	rs.pending = nil
	rs.complete = true
	assert.Equal(t, StateComplete, nextState(StateReasoning, rs))
	assert.Equal(t, StateComplete, nextState(StateMerging, rs))
}

func TestSupervisor_Run_ZeroCallsIsImmediateCompletion(t *testing.T) {
	iv := scriptedInvoker(invoke.ScriptedResponse{
		Text: `{"thought": "I can answer directly", "tool_calls": [], "complete": false, "response": ""}`,
	})

	s := newTestSupervisor(iv, tool.NewRegistry(), 10)
	out := s.Run(context.Background(), "what is 2+2", nil)

	assert.True(t, out.Success)
	assert.Equal(t, 1, out.Iterations)
	assert.Equal(t, 0, out.ToolCallsMade)
	assert.NotEmpty(t, out.Content)
}

func TestSupervisor_Run_DispatchAndComplete(t *testing.T) {
	echo := &captureTool{name: "echo", result: "echoed"}
	iv := scriptedInvoker(
		invoke.ScriptedResponse{Text: `{"thought": "fan out", "tool_calls": [{"tool": "echo", "arguments": {"text": "a"}}, {"tool": "echo", "arguments": {"text": "b"}}], "complete": false}`},
		invoke.ScriptedResponse{Text: `{"thought": "looks good", "tool_calls": [], "complete": true, "response": "final answer"}`},
	)

	s := newTestSupervisor(iv, tool.NewRegistry(echo), 10)
	out := s.Run(context.Background(), "do two things", nil)

	assert.True(t, out.Success)
	assert.Equal(t, "final answer", out.Content)
	assert.Equal(t, 2, out.ToolCallsMade)
	assert.Equal(t, 2, out.Iterations)
	assert.Len(t, echo.captured(), 2)
}

func TestSupervisor_Run_UnknownToolCapturedAsErrorResult(t *testing.T) {
	iv := scriptedInvoker(
		invoke.ScriptedResponse{Text: `{"thought": "call it", "tool_calls": [{"tool": "missing", "arguments": {}}], "complete": false}`},
		invoke.ScriptedResponse{Text: `{"thought": "noted", "tool_calls": [], "complete": true, "response": "handled"}`},
	)

	s := newTestSupervisor(iv, tool.NewRegistry(), 10)
	out := s.Run(context.Background(), "task", nil)

	assert.True(t, out.Success)
	assert.Equal(t, "handled", out.Content)
	assert.Equal(t, 1, out.ToolCallsMade)
}

func TestSupervisor_Run_OneToolFailureDoesNotBlockOthers(t *testing.T) {
	good := &captureTool{name: "good", result: "fine"}
	bad := &captureTool{name: "bad", err: errors.New("broken")}
	iv := scriptedInvoker(
		invoke.ScriptedResponse{Text: `{"thought": "both", "tool_calls": [{"tool": "good", "arguments": {}}, {"tool": "bad", "arguments": {}}], "complete": false}`},
		invoke.ScriptedResponse{Text: `{"thought": "done", "tool_calls": [], "complete": true, "response": "merged"}`},
	)

	s := newTestSupervisor(iv, tool.NewRegistry(good, bad), 10)
	out := s.Run(context.Background(), "task", nil)

	assert.True(t, out.Success)
	assert.Equal(t, 2, out.ToolCallsMade)
	assert.Len(t, good.captured(), 1)
	assert.Len(t, bad.captured(), 1)
}

func TestSupervisor_Run_IterationCapForcesBestEffortOutput(t *testing.T) {
	echo := &captureTool{name: "echo", result: "partial data"}
	// Reasoning always proposes another call and never completes.
	iv := scriptedInvoker(invoke.ScriptedResponse{
		Text: `{"thought": "more", "tool_calls": [{"tool": "echo", "arguments": {"text": "x"}}], "complete": false}`,
	})

	s := newTestSupervisor(iv, tool.NewRegistry(echo), 2)
	out := s.Run(context.Background(), "endless task", nil)

	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Iterations)
	assert.Equal(t, 2, out.ToolCallsMade)
	assert.Contains(t, out.Content, "partial data")
}

func TestSupervisor_Run_EmptyAnalysesEscalate(t *testing.T) {
	echo := &captureTool{name: "echo", result: "some data"}
	iv := scriptedInvoker(
		invoke.ScriptedResponse{Text: `{"thought": "call once", "tool_calls": [{"tool": "echo", "arguments": {}}], "complete": false}`},
		// Two analyses in a row that neither complete nor propose calls.
		invoke.ScriptedResponse{Text: `{"thought": "hmm", "tool_calls": [], "complete": false}`},
		invoke.ScriptedResponse{Text: `{"thought": "still hmm", "tool_calls": [], "complete": false}`},
	)

	s := newTestSupervisor(iv, tool.NewRegistry(echo), 10)
	out := s.Run(context.Background(), "task", nil)

	assert.True(t, out.Success)
	assert.Equal(t, 3, out.Iterations)
	assert.Contains(t, out.Content, "some data")
}

func TestSupervisor_Run_RespondToUserEnriched(t *testing.T) {
	respond := &captureTool{name: "respond_to_user", result: "sent"}
	iv := scriptedInvoker(
		invoke.ScriptedResponse{Text: `{"thought": "reply", "tool_calls": [{"tool": "respond_to_user", "arguments": {"message": "hi there"}}], "complete": false}`},
		invoke.ScriptedResponse{Text: `{"thought": "done", "tool_calls": [], "complete": true, "response": "replied"}`},
	)

	s := New(func(o *Options) {
		o.Model = iv
		o.ModelID = "claude-3-5-haiku-latest"
		o.Tools = tool.NewRegistry(respond)
		o.Memory = memory.NewInMemoryStore()
		o.Logger = logging.NoOpLogger{}
	})
	out := s.Run(context.Background(), "greet the user", nil)

	assert.True(t, out.Success)
	calls := respond.captured()
	assert.Len(t, calls, 1)
	assert.Equal(t, "hi there", calls[0]["message"])
	assert.Equal(t, "greet the user", calls[0]["task_description"])
	assert.NotEmpty(t, calls[0]["task_id"])
	assert.NotEmpty(t, calls[0]["session_id"])
}

func TestSupervisor_Run_ConfigErrorEndsRun(t *testing.T) {
	iv := invoke.New() // no backends registered

	s := newTestSupervisor(iv, tool.NewRegistry(), 10)
	out := s.Run(context.Background(), "task", nil)

	assert.False(t, out.Success)
	assert.Contains(t, out.Content, "reasoning unavailable")
}

func TestSupervisor_Run_RecordsExchanges(t *testing.T) {
	store := memory.NewInMemoryStore()
	iv := scriptedInvoker(invoke.ScriptedResponse{
		Text: `{"thought": "answer", "tool_calls": [], "complete": true, "response": "done"}`,
	})

	s := New(func(o *Options) {
		o.Model = iv
		o.ModelID = "claude-3-5-haiku-latest"
		o.Memory = store
		o.Logger = logging.NoOpLogger{}
	})
	out := s.Run(context.Background(), "remember this", nil)

	assert.True(t, out.Success)

	sessionID, err := store.ActiveSession(context.Background())
	assert.NoError(t, err)
	history, err := store.History(context.Background(), sessionID, 10)
	assert.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "remember this", history[0].Content)
	assert.Equal(t, "assistant", history[1].Role)
}

func TestParseToolCalls(t *testing.T) {
	calls := parseToolCalls([]any{
		map[string]any{"tool": "a", "arguments": map[string]any{"x": 1}},
		map[string]any{"name": "b", "args": map[string]any{}},
		map[string]any{"arguments": map[string]any{}}, // no name, skipped
		"not a map",
	})

	assert.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].Name)
	assert.Equal(t, map[string]any{"x": 1}, calls[0].Args)
	assert.Equal(t, "b", calls[1].Name)
	assert.NotEmpty(t, calls[0].ID)
	assert.NotEqual(t, calls[0].ID, calls[1].ID)
}

type captureNotifier struct {
	mu      sync.Mutex
	updates []notify.Update
}

func (n *captureNotifier) Notify(u notify.Update) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, u)
}

func (n *captureNotifier) captured() []notify.Update {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Update, len(n.updates))
	copy(out, n.updates)
	return out
}

func TestSupervisor_Execute_MarksStructuringApplied(t *testing.T) {
	good := &captureTool{name: "good", result: "fine"}
	bad := &captureTool{name: "bad", err: errors.New("broken")}
	s := newTestSupervisor(scriptedInvoker(), tool.NewRegistry(good, bad), 10)
	rs := &runState{taskID: "t1", task: "task", inFlight: map[string]ToolCall{}}

	tr := s.execute(context.Background(), rs, ToolCall{ID: "c1", Name: "good", Args: map[string]any{"text": "a"}})
	assert.Equal(t, StatusSuccess, tr.Status)
	assert.Equal(t, true, tr.Metadata["structuring_applied"])

	tr = s.execute(context.Background(), rs, ToolCall{ID: "c2", Name: "bad", Args: map[string]any{}})
	assert.Equal(t, StatusError, tr.Status)
	assert.Equal(t, true, tr.Metadata["structuring_applied"])
}

func TestSupervisor_Run_CompletionNotificationCarriesSummary(t *testing.T) {
	notifier := &captureNotifier{}
	iv := scriptedInvoker(invoke.ScriptedResponse{
		Text: `{"thought": "easy", "tool_calls": [], "complete": true, "response": "short answer\nwith supporting detail"}`,
	})

	s := New(func(o *Options) {
		o.Model = iv
		o.ModelID = "claude-3-5-haiku-latest"
		o.Notifier = notifier
		o.Logger = logging.NoOpLogger{}
	})
	out := s.Run(context.Background(), "task", nil)

	assert.True(t, out.Success)

	var summary string
	for _, u := range notifier.captured() {
		if u.Message == "task completed" {
			summary, _ = u.Detail["summary"].(string)
		}
	}
	assert.Equal(t, "short answer", summary)
}
