package invoke

import (
	"context"
	"sync"
	"time"
)

// ScriptedBackend is a lightweight in-memory Backend useful for tests and
// examples. Responses are consumed in order; when the script is exhausted the
// last entry repeats. A zero ScriptedBackend echoes the prompt.
type ScriptedBackend struct {
	mu        sync.Mutex
	responses []ScriptedResponse
	next      int
	calls     int
}

// ScriptedResponse is one canned backend outcome.
type ScriptedResponse struct {
	Text  string
	Usage Usage
	Err   error
	// Delay is applied before the response, honoring context cancellation.
	Delay time.Duration
}

// NewScriptedBackend constructs a backend replaying the given responses.
func NewScriptedBackend(responses ...ScriptedResponse) *ScriptedBackend {
	return &ScriptedBackend{responses: responses}
}

// Calls returns how many times Complete has been invoked.
func (b *ScriptedBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// Complete implements Backend.
func (b *ScriptedBackend) Complete(ctx context.Context, req Request) (Result, error) {
	b.mu.Lock()
	b.calls++
	var resp ScriptedResponse
	if len(b.responses) == 0 {
		resp = ScriptedResponse{Text: "scripted response to: " + req.Prompt}
	} else {
		if b.next >= len(b.responses) {
			b.next = len(b.responses) - 1
		}
		resp = b.responses[b.next]
		b.next++
	}
	b.mu.Unlock()

	if resp.Delay > 0 {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(resp.Delay):
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if resp.Err != nil {
		return Result{}, resp.Err
	}

	return Result{Text: resp.Text, Usage: resp.Usage}, nil
}
