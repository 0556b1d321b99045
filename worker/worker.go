// Package worker implements a bounded reason-act-observe execution loop.
//
// A Worker repeatedly asks a model what to do next, executes the chosen
// action against a read-only tool registry, and feeds the observation back
// into the next reasoning step. The loop terminates on an explicit
// completion signal or on the iteration cap, then synthesizes the collected
// history into a single Findings payload.
package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CuriosityQuantified/atlas/internal/util"
	"github.com/CuriosityQuantified/atlas/invoke"
	"github.com/CuriosityQuantified/atlas/logging"
	"github.com/CuriosityQuantified/atlas/notify"
	"github.com/CuriosityQuantified/atlas/structured"
	"github.com/CuriosityQuantified/atlas/tool"
	"github.com/CuriosityQuantified/atlas/tracking"
)

// Confidence values reported by Run. Explicit completion earns full
// confidence; hitting the iteration cap still terminates successfully but
// reports a fixed reduced value.
const (
	ConfidenceComplete  = 1.0
	ConfidenceExhausted = 0.5
)

// ModelInvoker is the slice of the invocation layer the worker needs.
type ModelInvoker interface {
	Invoke(ctx context.Context, req invoke.Request, optFns ...invoke.CallOption) invoke.Result
}

// ReActStep is one completed reason-act-observe iteration. Steps are
// appended to an ordered history and never mutated afterwards.
type ReActStep struct {
	Number      int            `json:"number"`
	Thought     string         `json:"thought"`
	Action      string         `json:"action,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
	Observation string         `json:"observation,omitempty"`
	Done        bool           `json:"done"`
	FinalAnswer string         `json:"final_answer,omitempty"`
}

// Findings is the synthesized result of one worker run.
type Findings struct {
	Success      bool           `json:"success"`
	Findings     string         `json:"findings"`
	Structured   map[string]any `json:"structured_data"`
	Confidence   float64        `json:"confidence"`
	Iterations   int            `json:"iterations_used"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Options configures a Worker.
type Options struct {
	// Model performs all reasoning and synthesis calls. Required.
	Model ModelInvoker

	// ModelID selects which model the worker reasons with. Required.
	ModelID string

	// Tools holds the actions available to the worker. A nil registry
	// means the worker can only reason and conclude.
	Tools *tool.Registry

	// MaxIterations caps the reason-act-observe cycle.
	MaxIterations int

	// HistoryWindow bounds how many recent steps are summarized into each
	// reasoning prompt.
	HistoryWindow int

	// Logger receives loop diagnostics.
	Logger logging.Logger

	// Tracker receives a turn record after each run. Optional.
	Tracker tracking.Tracker

	// Notifier receives progress updates during the run. Optional.
	Notifier notify.Notifier
}

// Worker executes a bounded ReAct cycle against a tool registry.
type Worker struct {
	name     string
	model    ModelInvoker
	modelID  string
	tools    *tool.Registry
	maxIters int
	window   int
	logger   logging.Logger
	tracker  tracking.Tracker
	notifier notify.Notifier
}

// New constructs a Worker. Defaults: 10 iterations, a 5-step history
// window, no-op tracker and notifier.
func New(name string, optFns ...func(o *Options)) *Worker {
	opts := Options{
		MaxIterations: 10,
		HistoryWindow: 5,
		Logger:        logging.NewDefaultSlogLogger(),
		Tracker:       tracking.NoopTracker{},
		Notifier:      notify.NoopNotifier{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Tools == nil {
		opts.Tools = tool.NewRegistry()
	}

	return &Worker{
		name:     name,
		model:    opts.Model,
		modelID:  opts.ModelID,
		tools:    opts.Tools,
		maxIters: opts.MaxIterations,
		window:   opts.HistoryWindow,
		logger:   opts.Logger,
		tracker:  opts.Tracker,
		notifier: opts.Notifier,
	}
}

// Name returns the worker's name.
func (w *Worker) Name() string { return w.name }

const reasonInstructions = `You are a focused specialist working through a task one step at a time.
At each step decide whether the task is complete or which single action to take next.
Respond with a JSON object containing:
  "thought": your reasoning about the current situation,
  "action": the name of the tool to use next (or "" if none),
  "action_input": an object with the tool's arguments,
  "done": true only when the task is fully complete,
  "final_answer": your complete answer when done is true.`

// reasoningSchema shapes the model's step decision. Malformed output
// conforms to it with defaults rather than failing the loop.
var reasoningSchema = structured.Schema{
	{Name: "thought", Type: structured.TypeString},
	{Name: "action", Type: structured.TypeString},
	{Name: "action_input", Type: structured.TypeMap},
	{Name: "done", Type: structured.TypeBoolean},
	{Name: "final_answer", Type: structured.TypeString},
}

// Run executes the reason-act-observe cycle for one task. A failing action
// never aborts the loop; it becomes an observation and reasoning continues.
// Only a configuration error from the reasoning step itself ends the run
// early, and even then Run returns a structured failure rather than an
// error value.
func (w *Worker) Run(ctx context.Context, task string, taskCtx map[string]any) Findings {
	start := time.Now()
	taskID := util.NewID()
	log := w.logger

	if al, ok := log.(*logging.AtlasLogger); ok {
		log = al.WithTask(taskID)
	}

	if w.model == nil {
		return Findings{
			Success:      false,
			Confidence:   0,
			ErrorMessage: "worker has no model invoker configured",
			Metadata:     map[string]any{"task_id": taskID},
		}
	}

	w.notifier.Notify(notify.Update{
		TaskID:    taskID,
		Level:     notify.LevelStatus,
		Message:   fmt.Sprintf("worker %s started", w.name),
		Timestamp: time.Now(),
	})

	var (
		history     []ReActStep
		structData  = map[string]any{}
		finalAnswer string
		completed   bool
	)

	iterations := 0
	for i := 0; i < w.maxIters; i++ {
		select {
		case <-ctx.Done():
			return w.failure(taskID, iterations, history, structData,
				fmt.Sprintf("worker run cancelled: %v", ctx.Err()))
		default:
		}

		iterations = i + 1

		res := w.model.Invoke(ctx, invoke.Request{
			Model:        w.modelID,
			Instructions: reasonInstructions,
			Prompt:       w.reasoningPrompt(task, taskCtx, history),
		})
		if !res.Success {
			if res.ErrorKind == invoke.ErrorKindConfig {
				// Reasoning is permanently unreachable; nothing to retry.
				return w.failure(taskID, iterations, history, structData,
					"reasoning step unreachable: "+res.ErrorMessage)
			}
			log.Warn("reasoning step failed, continuing",
				"iteration", iterations, "error", res.ErrorMessage)
			history = append(history, ReActStep{
				Number:      iterations,
				Thought:     "",
				Observation: "reasoning failed: " + res.ErrorMessage,
			})
			continue
		}

		decision := structured.ApplySchema(res.Text, reasoningSchema, "")
		step := ReActStep{
			Number:  iterations,
			Thought: asString(decision["thought"]),
		}

		if asBool(decision["done"]) {
			step.Done = true
			step.FinalAnswer = asString(decision["final_answer"])
			if step.FinalAnswer == "" {
				step.FinalAnswer = step.Thought
			}
			history = append(history, step)
			finalAnswer = step.FinalAnswer
			completed = true
			break
		}

		step.Action = asString(decision["action"])
		step.Args = asMap(decision["action_input"])
		step.Observation = w.act(ctx, taskID, step.Action, step.Args, structData)
		history = append(history, step)

		log.Debug("worker step completed",
			"iteration", iterations,
			"action", step.Action,
			"observation", util.Truncate(step.Observation, 120))

		w.notifier.Notify(notify.Update{
			TaskID:    taskID,
			Level:     notify.LevelProgress,
			Message:   fmt.Sprintf("iteration %d: %s", iterations, step.Action),
			Timestamp: time.Now(),
		})
	}

	confidence := ConfidenceComplete
	if !completed {
		confidence = ConfidenceExhausted
	}

	findings := w.synthesize(ctx, task, history, structData, finalAnswer)

	w.tracker.Track(tracking.Record{
		Kind:       tracking.KindTurn,
		TaskID:     taskID,
		Name:       w.name,
		Success:    true,
		DurationMS: time.Since(start).Milliseconds(),
		Detail:     map[string]any{"findings": util.Truncate(findings, 256)},
		Timestamp:  time.Now(),
	})
	w.notifier.Notify(notify.Update{
		TaskID:    taskID,
		Level:     notify.LevelStatus,
		Message:   fmt.Sprintf("worker %s completed", w.name),
		Timestamp: time.Now(),
	})

	return Findings{
		Success:    true,
		Findings:   findings,
		Structured: structData,
		Confidence: confidence,
		Iterations: iterations,
		Metadata: map[string]any{
			"task_id":  taskID,
			"worker":   w.name,
			"complete": completed,
		},
	}
}

// act executes one action and returns its observation text. Structured
// (map-shaped) results are additionally accumulated under the action name.
func (w *Worker) act(ctx context.Context, taskID, action string, args map[string]any, structData map[string]any) string {
	if action == "" {
		return "no action proposed; continuing"
	}

	t, ok := w.tools.Get(action)
	if !ok {
		return fmt.Sprintf("unknown action %q; available actions: %s",
			action, strings.Join(w.tools.Names(), ", "))
	}

	start := time.Now()
	result, err := t.Call(ctx, args)
	w.tracker.Track(tracking.Record{
		Kind:       tracking.KindToolCall,
		TaskID:     taskID,
		Name:       action,
		Success:    err == nil,
		DurationMS: time.Since(start).Milliseconds(),
		Timestamp:  time.Now(),
	})
	if err != nil {
		return fmt.Sprintf("action %s failed: %v", action, err)
	}

	if m, ok := result.(map[string]any); ok {
		structData[action] = m
	}

	return fmt.Sprintf("%v", result)
}

// reasoningPrompt assembles the per-step prompt from the task, a bounded
// window of recent history, and the available action names.
func (w *Worker) reasoningPrompt(task string, taskCtx map[string]any, history []ReActStep) string {
	var b strings.Builder

	b.WriteString("Task: ")
	b.WriteString(task)
	b.WriteString("\n")

	if len(taskCtx) > 0 {
		b.WriteString("Context: ")
		b.WriteString(structured.MarshalArgs(taskCtx))
		b.WriteString("\n")
	}

	names := w.tools.Names()
	if len(names) > 0 {
		b.WriteString("Available actions: ")
		b.WriteString(strings.Join(names, ", "))
		b.WriteString("\n")
	} else {
		b.WriteString("No actions are available; reason and conclude.\n")
	}

	recent := history
	if len(recent) > w.window {
		recent = recent[len(recent)-w.window:]
	}
	if len(recent) > 0 {
		b.WriteString("Recent steps:\n")
		for _, s := range recent {
			fmt.Fprintf(&b, "%d. thought: %s", s.Number, util.Truncate(s.Thought, 200))
			if s.Action != "" {
				fmt.Fprintf(&b, " | action: %s | observation: %s",
					s.Action, util.Truncate(s.Observation, 200))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("Decide the next step.")
	return b.String()
}

const synthesizeInstructions = `You are concluding a multi-step task.
Summarize the work below into a single coherent set of findings for the requester.
Report what was done, what was learned, and any caveats. Respond with plain text.`

// synthesize produces the final findings text. If the synthesis call fails,
// it falls back to the best text already in hand.
func (w *Worker) synthesize(ctx context.Context, task string, history []ReActStep, structData map[string]any, finalAnswer string) string {
	var b strings.Builder
	b.WriteString("Task: ")
	b.WriteString(task)
	b.WriteString("\nSteps taken:\n")
	for _, s := range history {
		fmt.Fprintf(&b, "%d. %s", s.Number, util.Truncate(s.Thought, 300))
		if s.Action != "" {
			fmt.Fprintf(&b, " -> %s: %s", s.Action, util.Truncate(s.Observation, 300))
		}
		b.WriteString("\n")
	}
	if len(structData) > 0 {
		b.WriteString("Structured findings: ")
		b.WriteString(structured.MarshalArgs(structData))
		b.WriteString("\n")
	}
	if finalAnswer != "" {
		b.WriteString("Proposed answer: ")
		b.WriteString(finalAnswer)
		b.WriteString("\n")
	}

	res := w.model.Invoke(ctx, invoke.Request{
		Model:        w.modelID,
		Instructions: synthesizeInstructions,
		Prompt:       b.String(),
	})
	if res.Success && res.Text != "" {
		return res.Text
	}

	w.logger.Warn("findings synthesis failed, using fallback",
		"error", res.ErrorMessage)

	if finalAnswer != "" {
		return finalAnswer
	}
	if len(history) > 0 {
		last := history[len(history)-1]
		if last.Observation != "" {
			return last.Observation
		}
		return last.Thought
	}
	return "no findings produced"
}

// failure builds the structured whole-loop failure result.
func (w *Worker) failure(taskID string, iterations int, history []ReActStep, structData map[string]any, msg string) Findings {
	w.logger.Error("worker run failed", "worker", w.name, "error", msg)
	w.notifier.Notify(notify.Update{
		TaskID:    taskID,
		Level:     notify.LevelError,
		Message:   msg,
		Timestamp: time.Now(),
	})

	return Findings{
		Success:      false,
		Structured:   structData,
		Confidence:   0,
		Iterations:   iterations,
		ErrorMessage: msg,
		Metadata: map[string]any{
			"task_id": taskID,
			"worker":  w.name,
			"steps":   len(history),
		},
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m
}
