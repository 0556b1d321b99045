package worker

import (
	"context"

	"github.com/CuriosityQuantified/atlas/tool"
)

// workerTool adapts a Worker to the tool contract so a supervisor can
// dispatch whole subordinate loops the same way it dispatches ordinary
// capabilities.
type workerTool struct {
	worker      *Worker
	description string
}

// AsTool wraps w as a tool.Tool. The returned tool accepts a
// task_description string and an optional context map, runs the worker's
// full cycle, and returns the Findings as a map.
func AsTool(w *Worker, description string) tool.Tool {
	return &workerTool{worker: w, description: description}
}

func (t *workerTool) Name() string { return t.worker.Name() }

func (t *workerTool) Description() string { return t.description }

func (t *workerTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task_description": map[string]any{
				"type":        "string",
				"description": "The task to delegate to this worker",
			},
			"context": map[string]any{
				"type":        "object",
				"description": "Additional context for the task",
			},
		},
		"required": []any{"task_description"},
	}
}

// Call runs the worker loop. A failed run is reported through the result
// map's success flag, not through the error return, because the supervisor
// treats worker findings as data either way.
func (t *workerTool) Call(ctx context.Context, args map[string]any) (any, error) {
	task, _ := args["task_description"].(string)
	taskCtx, _ := args["context"].(map[string]any)

	f := t.worker.Run(ctx, task, taskCtx)

	return map[string]any{
		"success":         f.Success,
		"findings":        f.Findings,
		"structured_data": f.Structured,
		"confidence":      f.Confidence,
		"iterations_used": f.Iterations,
		"error_message":   f.ErrorMessage,
	}, nil
}
