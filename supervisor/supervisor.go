// Package supervisor implements the top-level orchestration state machine.
//
// A Supervisor alternates between model-backed reasoning and concurrent tool
// dispatch: each reasoning step proposes zero or more tool calls, pending
// calls are structured and fanned out in parallel, and settled results are
// merged back and analyzed until the loop signals completion or exhausts its
// iteration cap. Subordinate worker loops participate through the same tool
// contract as ordinary capabilities.
package supervisor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/CuriosityQuantified/atlas/internal/util"
	"github.com/CuriosityQuantified/atlas/invoke"
	"github.com/CuriosityQuantified/atlas/logging"
	"github.com/CuriosityQuantified/atlas/memory"
	"github.com/CuriosityQuantified/atlas/notify"
	"github.com/CuriosityQuantified/atlas/structured"
	"github.com/CuriosityQuantified/atlas/tool"
	"github.com/CuriosityQuantified/atlas/tracking"
)

const (
	// respondToolName routes a call back to the requester. Such calls are
	// enriched with the current task and session context before dispatch.
	respondToolName = "respond_to_user"

	// resultWindow bounds how many recent results feed each analysis step.
	resultWindow = 5

	// maxEmptyAnalyses bounds consecutive analysis steps that neither
	// complete nor propose calls before the loop forces completion.
	maxEmptyAnalyses = 2
)

// ModelInvoker is the slice of the invocation layer the supervisor needs.
type ModelInvoker interface {
	Invoke(ctx context.Context, req invoke.Request, optFns ...invoke.CallOption) invoke.Result
}

// Options configures a Supervisor.
type Options struct {
	// Model performs all reasoning calls. Required.
	Model ModelInvoker

	// ModelID selects which model the supervisor reasons with. Required.
	ModelID string

	// Tools holds the dispatchable capabilities, including worker adapters.
	Tools *tool.Registry

	// Structurer normalizes proposed call arguments before dispatch.
	// Nil means a rule-based-only service.
	Structurer *structured.Structurer

	// MaxIterations caps the reason-dispatch-merge cycle.
	MaxIterations int

	// Memory stores user/assistant exchanges when present.
	Memory memory.Store

	// Tracker receives after-the-fact records. Optional.
	Tracker tracking.Tracker

	// Notifier receives progress updates. Optional.
	Notifier notify.Notifier

	// Logger receives loop diagnostics.
	Logger logging.Logger
}

// Supervisor coordinates reasoning and concurrent tool dispatch for one
// task at a time. It is safe to run multiple tasks concurrently: all
// per-task state lives in the run, not on the Supervisor.
type Supervisor struct {
	model      ModelInvoker
	modelID    string
	tools      *tool.Registry
	structurer *structured.Structurer
	maxIters   int
	memory     memory.Store
	tracker    tracking.Tracker
	notifier   notify.Notifier
	logger     logging.Logger
}

// New constructs a Supervisor. Defaults: 10 iterations, no-op memory,
// tracker and notifier, rule-based structuring.
func New(optFns ...func(o *Options)) *Supervisor {
	opts := Options{
		MaxIterations: 10,
		Memory:        memory.NoopStore{},
		Tracker:       tracking.NoopTracker{},
		Notifier:      notify.NoopNotifier{},
		Logger:        logging.NewDefaultSlogLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Tools == nil {
		opts.Tools = tool.NewRegistry()
	}
	if opts.Structurer == nil {
		opts.Structurer = structured.New()
	}

	return &Supervisor{
		model:      opts.Model,
		modelID:    opts.ModelID,
		tools:      opts.Tools,
		structurer: opts.Structurer,
		maxIters:   opts.MaxIterations,
		memory:     opts.Memory,
		tracker:    opts.Tracker,
		notifier:   opts.Notifier,
		logger:     opts.Logger,
	}
}

// decisionSchema shapes every reasoning reply. Malformed model output
// conforms to it with defaults instead of derailing the loop.
var decisionSchema = structured.Schema{
	{Name: "thought", Type: structured.TypeString},
	{Name: "tool_calls", Type: structured.TypeList},
	{Name: "complete", Type: structured.TypeBoolean},
	{Name: "response", Type: structured.TypeString},
}

const reasonInstructions = `You are a supervisor coordinating specialist tools and workers.
Decide which tools to call next, or whether the task is complete.
Respond with a JSON object containing:
  "thought": your reasoning,
  "tool_calls": a list of {"tool": name, "arguments": {...}} objects (may be empty),
  "complete": true only when the task is fully done,
  "response": the final answer for the requester when complete is true.`

// Run drives one task through the state machine until completion. Failures
// at any single call are captured as results, never raised; Run itself
// always returns a structured Output.
func (s *Supervisor) Run(ctx context.Context, task string, taskCtx map[string]any) Output {
	rs := &runState{
		taskID:        util.NewID(),
		task:          task,
		inFlight:      map[string]ToolCall{},
		maxIterations: s.maxIters,
		started:       time.Now(),
	}

	log := s.logger
	if al, ok := log.(*logging.AtlasLogger); ok {
		log = al.WithTask(rs.taskID)
	}

	if s.model == nil {
		return Output{
			Success:    false,
			Content:    "supervisor has no model invoker configured",
			Iterations: 0,
			Metadata:   map[string]any{"task_id": rs.taskID, "error_kind": "config"},
		}
	}

	if id, err := s.memory.ActiveSession(ctx); err == nil {
		rs.sessionID = id
		s.memory.AppendExchange(ctx, id, memory.Exchange{
			Role:      "user",
			Content:   task,
			Timestamp: time.Now(),
			Metadata:  map[string]any{"task_id": rs.taskID},
		})
	}

	s.notifier.Notify(notify.Update{
		TaskID:    rs.taskID,
		Level:     notify.LevelStatus,
		Message:   "task started",
		Detail:    map[string]any{"task": util.Truncate(task, 200)},
		Timestamp: time.Now(),
	})

	state := StateInit
	for state != StateComplete {
		select {
		case <-ctx.Done():
			rs.complete = true
			rs.failed = true
			rs.finalOutput = fmt.Sprintf("task cancelled: %v", ctx.Err())
			state = StateComplete
			continue
		default:
		}

		switch state {
		case StateReasoning:
			s.reason(ctx, rs, taskCtx, log)
		case StateDispatching:
			s.dispatch(ctx, rs, log)
		case StateMerging:
			s.merge(rs, log)
		}

		prev := state
		state = nextState(state, rs)
		if state != prev {
			log.Debug("state transition", "from", prev.String(), "to", state.String())
		}
	}

	out := s.finish(ctx, rs, log)
	return out
}

// reason runs either the initial reasoning step or an analyze-results step,
// depending on where the run stands. It is the only place that increments
// the iteration counter and the only place that can set the completion flag
// from model output.
func (s *Supervisor) reason(ctx context.Context, rs *runState, taskCtx map[string]any, log logging.Logger) {
	if rs.iterations >= rs.maxIterations {
		// Graceful degradation: build a best-effort answer from whatever
		// has accumulated.
		rs.complete = true
		rs.finalOutput = s.bestEffortOutput(rs)
		log.Warn("iteration cap reached, forcing completion",
			"iterations", rs.iterations)
		return
	}
	rs.iterations++

	var prompt string
	analyzing := len(rs.results) > 0 && len(rs.pending) == 0
	if analyzing {
		prompt = s.analysisPrompt(rs)
	} else {
		prompt = s.initialPrompt(rs, taskCtx)
	}

	start := time.Now()
	res := s.model.Invoke(ctx, invoke.Request{
		Model:        s.modelID,
		Instructions: reasonInstructions,
		Prompt:       prompt,
	})
	s.tracker.Track(tracking.Record{
		Kind:       tracking.KindModelCall,
		TaskID:     rs.taskID,
		Name:       s.modelID,
		Success:    res.Success,
		DurationMS: time.Since(start).Milliseconds(),
		Timestamp:  time.Now(),
	})

	if !res.Success {
		if res.ErrorKind == invoke.ErrorKindConfig {
			// Reasoning is permanently unreachable; end the run as a
			// structured failure rather than spinning on the cap.
			rs.complete = true
			rs.failed = true
			rs.finalOutput = "reasoning unavailable: " + res.ErrorMessage
			return
		}
		log.Warn("reasoning step failed, continuing",
			"iteration", rs.iterations, "error", res.ErrorMessage)
		rs.emptyAnalyses++
		if rs.emptyAnalyses >= maxEmptyAnalyses {
			rs.complete = true
			rs.finalOutput = s.bestEffortOutput(rs)
		}
		return
	}

	decision := structured.ApplySchema(res.Text, decisionSchema, "")
	thought, _ := decision["thought"].(string)
	if thought != "" {
		rs.messages = append(rs.messages, thought)
	}

	if done, _ := decision["complete"].(bool); done {
		rs.complete = true
		if response, _ := decision["response"].(string); response != "" {
			rs.finalOutput = response
		} else if thought != "" {
			rs.finalOutput = thought
		} else {
			rs.finalOutput = res.Text
		}
		return
	}

	calls := parseToolCalls(decision["tool_calls"])
	if len(calls) == 0 {
		if !rs.reasoned {
			// Zero calls from the very first reasoning step: the reasoning
			// text is the answer.
			rs.complete = true
			rs.finalOutput = res.Text
			rs.reasoned = true
			return
		}
		rs.emptyAnalyses++
		log.Debug("empty analysis", "count", rs.emptyAnalyses)
		if rs.emptyAnalyses >= maxEmptyAnalyses {
			rs.complete = true
			rs.finalOutput = s.bestEffortOutput(rs)
		}
		return
	}

	rs.reasoned = true
	rs.emptyAnalyses = 0
	rs.pending = append(rs.pending, calls...)
}

// dispatch fans all pending calls out concurrently. Each goroutine writes
// to its own slot in the batch slice; one call's panic or failure never
// prevents collection of the others.
func (s *Supervisor) dispatch(ctx context.Context, rs *runState, log logging.Logger) {
	calls := rs.pending
	rs.pending = nil

	for _, c := range calls {
		rs.inFlight[c.ID] = c
	}

	batch := make([]ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call ToolCall) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					batch[i] = ToolResult{
						CallID:  call.ID,
						Name:    call.Name,
						Status:  StatusError,
						Content: fmt.Sprintf("tool %s panicked: %v", call.Name, r),
					}
				}
			}()
			batch[i] = s.execute(ctx, rs, call)
		}(i, call)
	}
	wg.Wait()

	rs.lastBatch = batch
	log.Info("dispatch batch settled", "calls", len(calls))
}

// execute structures one call's arguments and invokes the tool, capturing
// success or failure as a ToolResult.
func (s *Supervisor) execute(ctx context.Context, rs *runState, call ToolCall) ToolResult {
	t, ok := s.tools.Get(call.Name)
	if !ok {
		return ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Status:  StatusError,
			Content: fmt.Sprintf("unknown tool %q", call.Name),
		}
	}

	schema := structured.SchemaFromParameters(t.Parameters())
	args := s.structurer.Structure(ctx, structured.MarshalArgs(call.Args), schema, call.Name)

	if call.Name == respondToolName {
		// Responses to the requester always carry the task and session
		// context, on top of whatever the schema declared.
		args["task_id"] = rs.taskID
		args["task_description"] = rs.task
		if rs.sessionID != "" {
			args["session_id"] = rs.sessionID
		}
	}

	start := time.Now()
	result, err := t.Call(ctx, args)
	dur := time.Since(start)

	s.tracker.Track(tracking.Record{
		Kind:       tracking.KindToolCall,
		TaskID:     rs.taskID,
		Name:       call.Name,
		Success:    err == nil,
		DurationMS: dur.Milliseconds(),
		Timestamp:  time.Now(),
	})
	s.notifier.Notify(notify.Update{
		TaskID:    rs.taskID,
		Level:     notify.LevelProgress,
		Message:   fmt.Sprintf("tool %s finished", call.Name),
		Detail:    map[string]any{"call_id": call.ID, "success": err == nil},
		Timestamp: time.Now(),
	})

	if err != nil {
		return ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Status:  StatusError,
			Content: err.Error(),
			Metadata: map[string]any{
				"duration_ms": dur.Milliseconds(),
				"structuring_applied": true,
			},
		}
	}

	tr := ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Status:  StatusSuccess,
		Content: fmt.Sprintf("%v", result),
		Metadata: map[string]any{
			"duration_ms": dur.Milliseconds(),
			"structuring_applied": true,
		},
	}
	if m, ok := result.(map[string]any); ok {
		tr.Metadata["structured"] = m
	}
	return tr
}

// merge folds the settled batch into the completed-results log and clears
// the in-flight map. Results stay attributed by call id, not by completion
// order.
func (s *Supervisor) merge(rs *runState, log logging.Logger) {
	rs.results = append(rs.results, rs.lastBatch...)
	for _, r := range rs.lastBatch {
		delete(rs.inFlight, r.CallID)
	}
	rs.lastBatch = nil
	log.Debug("results merged", "total", len(rs.results))
}

// finish assembles the Output, records the turn, and stores the exchange.
func (s *Supervisor) finish(ctx context.Context, rs *runState, log logging.Logger) Output {
	if rs.finalOutput == "" {
		rs.finalOutput = s.bestEffortOutput(rs)
	}

	if rs.sessionID != "" {
		s.memory.AppendExchange(ctx, rs.sessionID, memory.Exchange{
			Role:      "assistant",
			Content:   rs.finalOutput,
			Timestamp: time.Now(),
			Metadata:  map[string]any{"task_id": rs.taskID},
		})
	}

	dur := time.Since(rs.started)
	s.tracker.Track(tracking.Record{
		Kind:       tracking.KindTurn,
		TaskID:     rs.taskID,
		Name:       "supervisor",
		Success:    !rs.failed,
		DurationMS: dur.Milliseconds(),
		Detail:     map[string]any{"output": util.Truncate(rs.finalOutput, 256)},
		Timestamp:  time.Now(),
	})
	s.notifier.Notify(notify.Update{
		TaskID:  rs.taskID,
		Level:   notify.LevelStatus,
		Message: "task completed",
		Detail: map[string]any{
			"summary": util.Truncate(util.FirstLine(rs.finalOutput), 200),
		},
		Timestamp: time.Now(),
	})
	log.Info("supervisor run completed",
		"iterations", rs.iterations,
		"tool_calls", len(rs.results),
		"duration", dur.String())

	return Output{
		Success:       !rs.failed,
		Content:       rs.finalOutput,
		ToolCallsMade: len(rs.results),
		Iterations:    rs.iterations,
		Metadata: map[string]any{
			"task_id":    rs.taskID,
			"session_id": rs.sessionID,
			"duration":   dur.String(),
		},
	}
}

// initialPrompt builds the first reasoning prompt from the task and the
// available tool descriptions.
func (s *Supervisor) initialPrompt(rs *runState, taskCtx map[string]any) string {
	var b strings.Builder
	b.WriteString("Task: ")
	b.WriteString(rs.task)
	b.WriteString("\n")
	if len(taskCtx) > 0 {
		b.WriteString("Context: ")
		b.WriteString(structured.MarshalArgs(taskCtx))
		b.WriteString("\n")
	}
	if s.tools.Len() > 0 {
		b.WriteString("Available tools:\n")
		b.WriteString(s.tools.Describe())
	} else {
		b.WriteString("No tools are available; answer directly.\n")
	}
	b.WriteString("\nDecide which tools to call, or answer directly.")
	return b.String()
}

// analysisPrompt builds the analyze-results prompt over a bounded window of
// recent results.
func (s *Supervisor) analysisPrompt(rs *runState) string {
	var b strings.Builder
	b.WriteString("Task: ")
	b.WriteString(rs.task)
	b.WriteString("\nRecent results:\n")

	recent := rs.results
	if len(recent) > resultWindow {
		recent = recent[len(recent)-resultWindow:]
	}
	for _, r := range recent {
		fmt.Fprintf(&b, "- %s [%s]: %s\n",
			r.Name, r.Status, util.Truncate(r.Content, 400))
	}

	b.WriteString("\nDecide whether the task is complete. If it is, set complete to true and write the final response. Otherwise propose the next tool calls.")
	return b.String()
}

// bestEffortOutput summarizes accumulated results when the loop must end
// without an explicit completion response.
func (s *Supervisor) bestEffortOutput(rs *runState) string {
	if len(rs.results) == 0 {
		if len(rs.messages) > 0 {
			return rs.messages[len(rs.messages)-1]
		}
		return "no results were produced for this task"
	}

	var b strings.Builder
	b.WriteString("Partial results:\n")
	for _, r := range rs.results {
		fmt.Fprintf(&b, "- %s [%s]: %s\n",
			r.Name, r.Status, util.Truncate(r.Content, 400))
	}
	return b.String()
}

// parseToolCalls extracts ToolCall values from a reasoning decision's
// tool_calls list, tolerating the field-name variants models actually emit.
func parseToolCalls(v any) []ToolCall {
	list, ok := v.([]any)
	if !ok {
		return nil
	}

	var calls []ToolCall
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}

		name, _ := m["tool"].(string)
		if name == "" {
			name, _ = m["name"].(string)
		}
		if name == "" {
			continue
		}

		args, _ := m["arguments"].(map[string]any)
		if args == nil {
			args, _ = m["args"].(map[string]any)
		}
		if args == nil {
			args, _ = m["input"].(map[string]any)
		}
		if args == nil {
			args = map[string]any{}
		}

		calls = append(calls, ToolCall{
			ID:   util.NewID(),
			Name: name,
			Args: args,
		})
	}
	return calls
}
