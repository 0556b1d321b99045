package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CuriosityQuantified/atlas/invoke"
	"github.com/CuriosityQuantified/atlas/logging"
	"github.com/CuriosityQuantified/atlas/tool"
	"github.com/CuriosityQuantified/atlas/tracking"
)

type fakeTool struct {
	name   string
	result any
	err    error

	mu    sync.Mutex
	calls []map[string]any
}

func (t *fakeTool) Name() string { return t.name }

func (t *fakeTool) Description() string { return "fake tool for tests" }

func (t *fakeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
	}
}

func (t *fakeTool) Call(_ context.Context, args map[string]any) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, args)
	return t.result, t.err
}

func (t *fakeTool) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func scriptedInvoker(responses ...invoke.ScriptedResponse) *invoke.Invoker {
	backend := invoke.NewScriptedBackend(responses...)
	return invoke.New(invoke.WithBackend(invoke.ProviderAnthropic, invoke.StrategySDK, backend))
}

func newTestWorker(iv *invoke.Invoker, tools *tool.Registry, maxIters int) *Worker {
	return New("researcher", func(o *Options) {
		o.Model = iv
		o.ModelID = "claude-3-5-haiku-latest"
		o.Tools = tools
		o.MaxIterations = maxIters
		o.Logger = logging.NoOpLogger{}
	})
}

func TestWorker_Run_ExplicitCompletion(t *testing.T) {
	echo := &fakeTool{name: "echo", result: map[string]any{"echoed": "hi"}}
	iv := scriptedInvoker(
		invoke.ScriptedResponse{Text: `{"thought": "use the tool", "action": "echo", "action_input": {"text": "hi"}, "done": false}`},
		invoke.ScriptedResponse{Text: `{"thought": "all done", "done": true, "final_answer": "the answer"}`},
		invoke.ScriptedResponse{Text: "synthesized findings"},
	)

	w := newTestWorker(iv, tool.NewRegistry(echo), 10)
	f := w.Run(context.Background(), "test task", nil)

	assert.True(t, f.Success)
	assert.Equal(t, ConfidenceComplete, f.Confidence)
	assert.Equal(t, 2, f.Iterations)
	assert.Equal(t, "synthesized findings", f.Findings)
	assert.Equal(t, 1, echo.callCount())
	// Map-shaped tool results accumulate as structured findings.
	assert.Equal(t, map[string]any{"echoed": "hi"}, f.Structured["echo"])
}

func TestWorker_Run_ToolCallRecordsCarryTaskID(t *testing.T) {
	rec := tracking.NewRecorder(16)
	echo := &fakeTool{name: "echo", result: "echoed"}
	iv := scriptedInvoker(
		invoke.ScriptedResponse{Text: `{"thought": "use the tool", "action": "echo", "action_input": {"text": "hi"}, "done": false}`},
		invoke.ScriptedResponse{Text: `{"thought": "all done", "done": true, "final_answer": "the answer"}`},
		invoke.ScriptedResponse{Text: "findings"},
	)

	w := New("researcher", func(o *Options) {
		o.Model = iv
		o.ModelID = "claude-3-5-haiku-latest"
		o.Tools = tool.NewRegistry(echo)
		o.Tracker = rec
		o.Logger = logging.NoOpLogger{}
	})
	f := w.Run(context.Background(), "test task", nil)
	rec.Close()

	assert.True(t, f.Success)
	taskID, _ := f.Metadata["task_id"].(string)
	assert.NotEmpty(t, taskID)

	var toolRecords int
	for _, r := range rec.Records() {
		if r.Kind == tracking.KindToolCall {
			toolRecords++
			assert.Equal(t, taskID, r.TaskID)
			assert.Equal(t, "echo", r.Name)
		}
	}
	assert.Equal(t, 1, toolRecords)
}

func TestWorker_Run_UnknownActionDoesNotFailLoop(t *testing.T) {
	iv := scriptedInvoker(
		invoke.ScriptedResponse{Text: `{"thought": "try something", "action": "bogus", "action_input": {}, "done": false}`},
		invoke.ScriptedResponse{Text: `{"thought": "recovered", "done": true, "final_answer": "done anyway"}`},
		invoke.ScriptedResponse{Text: "findings"},
	)

	w := newTestWorker(iv, tool.NewRegistry(), 10)
	f := w.Run(context.Background(), "test task", nil)

	assert.True(t, f.Success)
	assert.Equal(t, ConfidenceComplete, f.Confidence)
	assert.Equal(t, 2, f.Iterations)
}

func TestWorker_Run_FailingToolBecomesObservation(t *testing.T) {
	broken := &fakeTool{name: "broken", err: errors.New("tool exploded")}
	iv := scriptedInvoker(
		invoke.ScriptedResponse{Text: `{"thought": "use broken", "action": "broken", "action_input": {}, "done": false}`},
		invoke.ScriptedResponse{Text: `{"thought": "conclude", "done": true, "final_answer": "finished"}`},
		invoke.ScriptedResponse{Text: "findings despite failure"},
	)

	w := newTestWorker(iv, tool.NewRegistry(broken), 10)
	f := w.Run(context.Background(), "test task", nil)

	assert.True(t, f.Success)
	assert.Equal(t, 1, broken.callCount())
	assert.Equal(t, "findings despite failure", f.Findings)
}

func TestWorker_Run_IterationCapReducesConfidence(t *testing.T) {
	// A single never-done response repeats for every reasoning step and for
	// the synthesis call.
	iv := scriptedInvoker(
		invoke.ScriptedResponse{Text: `{"thought": "still thinking", "action": "", "done": false}`},
	)

	w := newTestWorker(iv, tool.NewRegistry(), 3)
	f := w.Run(context.Background(), "endless task", nil)

	assert.True(t, f.Success)
	assert.Equal(t, ConfidenceExhausted, f.Confidence)
	assert.Equal(t, 3, f.Iterations)
	assert.NotEmpty(t, f.Findings)
}

func TestWorker_Run_ConfigErrorIsWholeLoopFailure(t *testing.T) {
	iv := invoke.New() // no backends: every call is a configuration error

	w := newTestWorker(iv, tool.NewRegistry(), 5)
	f := w.Run(context.Background(), "test task", nil)

	assert.False(t, f.Success)
	assert.Zero(t, f.Confidence)
	assert.Contains(t, f.ErrorMessage, "reasoning step unreachable")
}

func TestWorker_Run_NoModelConfigured(t *testing.T) {
	w := New("empty", func(o *Options) {
		o.Logger = logging.NoOpLogger{}
	})

	f := w.Run(context.Background(), "test task", nil)

	assert.False(t, f.Success)
	assert.NotEmpty(t, f.ErrorMessage)
}

func TestAsTool(t *testing.T) {
	iv := scriptedInvoker(
		invoke.ScriptedResponse{Text: `{"thought": "done immediately", "done": true, "final_answer": "delegated answer"}`},
		invoke.ScriptedResponse{Text: "delegated findings"},
	)
	w := newTestWorker(iv, tool.NewRegistry(), 5)

	adapted := AsTool(w, "Delegates research tasks")

	assert.Equal(t, "researcher", adapted.Name())
	assert.Equal(t, "Delegates research tasks", adapted.Description())

	result, err := adapted.Call(context.Background(), map[string]any{
		"task_description": "look into something",
	})

	assert.NoError(t, err)
	m, ok := result.(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, true, m["success"])
	assert.Equal(t, "delegated findings", m["findings"])
	assert.Equal(t, 1.0, m["confidence"])
}
