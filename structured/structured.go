// Package structured converts free-text tool-call descriptions into typed
// argument maps matching a declared schema.
//
// Structuring is a two-tier strategy: an optional model-assisted extraction
// path, and a deterministic rule-based path (ApplySchema) that the service
// falls back to unconditionally on any extraction failure. Callers never
// observe the failure, only a fully-populated argument map.
package structured

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/CuriosityQuantified/atlas/invoke"
	"github.com/CuriosityQuantified/atlas/logging"
)

// Extractor is the optional model-assisted extraction tier.
type Extractor interface {
	Extract(ctx context.Context, text string, schema Schema, toolName string) (map[string]any, error)
}

// Options holds dependency overrides passed to New().
type Options struct {
	// Extractor enables the model-assisted tier. Nil means rule-based only.
	Extractor Extractor
	// Logger receives fallback telemetry.
	Logger logging.Logger
}

// Structurer is the argument structuring service. Safe for concurrent use.
type Structurer struct {
	extractor Extractor
	logger    logging.Logger
}

// New constructs a Structurer with optional overrides.
func New(optFns ...func(o *Options)) *Structurer {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Structurer{extractor: opts.Extractor, logger: opts.Logger}
}

// Structure produces an argument map matching schema from free text. The
// model-assisted tier is tried first when configured; any failure falls back
// to the rule-based tier. Every schema field is guaranteed present with a
// value of its declared type.
func (s *Structurer) Structure(ctx context.Context, text string, schema Schema, toolName string) map[string]any {
	if s.extractor != nil {
		extracted, err := s.extractor.Extract(ctx, text, schema, toolName)
		if err == nil {
			// Model output is conformed through the same resolution rules so
			// mistyped or renamed fields still land in typed slots.
			return ConformMap(extracted, schema, toolName)
		}
		s.logger.Warn("model-assisted structuring failed, using rule-based tier", "tool", toolName, "error", err.Error())
	}
	return ApplySchema(text, schema, toolName)
}

// ModelExtractor implements Extractor on top of the invocation layer. It asks
// a model to emit the argument map as JSON and parses the reply leniently.
type ModelExtractor struct {
	caller  ModelCaller
	model   string
	timeout time.Duration
}

// ModelCaller is the subset of invoke.Invoker needed by ModelExtractor.
type ModelCaller interface {
	Invoke(ctx context.Context, req invoke.Request, callOpts ...invoke.CallOption) invoke.Result
}

// NewModelExtractor constructs an Extractor delegating to the given caller.
func NewModelExtractor(caller ModelCaller, model string, timeout time.Duration) *ModelExtractor {
	return &ModelExtractor{caller: caller, model: model, timeout: timeout}
}

// Extract implements Extractor.
func (e *ModelExtractor) Extract(ctx context.Context, text string, schema Schema, toolName string) (map[string]any, error) {
	res := e.caller.Invoke(ctx, invoke.Request{
		Model:        e.model,
		Instructions: "You convert tool call descriptions into JSON argument objects. Reply with a single JSON object and nothing else.",
		Prompt:       e.buildPrompt(text, schema, toolName),
		Timeout:      e.timeout,
		MaxTokens:    1024,
	})
	if !res.Success {
		return nil, fmt.Errorf("extraction call failed (%s): %s", res.ErrorKind, res.ErrorMessage)
	}

	parsed := parseCandidate(res.Text)
	if _, onlyRaw := parsed[genericKey]; onlyRaw && len(parsed) == 1 {
		return nil, fmt.Errorf("extraction produced no structured value")
	}
	return parsed, nil
}

func (e *ModelExtractor) buildPrompt(text string, schema Schema, toolName string) string {
	var sb strings.Builder
	if toolName != "" {
		fmt.Fprintf(&sb, "Tool: %s\n", toolName)
	}
	sb.WriteString("Fields:\n")
	for _, f := range schema {
		fmt.Fprintf(&sb, "  %s (%s)\n", f.Name, f.Type)
	}
	sb.WriteString("Description:\n")
	sb.WriteString(text)
	return sb.String()
}

// MarshalArgs renders an argument map as compact JSON for observations and
// prompts. Failures degrade to fmt formatting rather than erroring.
func MarshalArgs(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(data)
}
