// Package anthropic provides invoke backends for the Anthropic Claude API:
// an SDK strategy built on the official client and a lightweight raw HTTP
// strategy for environments that keep the dependency surface minimal.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/CuriosityQuantified/atlas/invoke"
)

const defaultMaxTokens = 4096

// Options configures the Anthropic SDK backend.
type Options struct {
	APIKey string
	// MaxTokens applies when a request does not specify a completion cap.
	MaxTokens int64
}

// Backend wraps the Anthropic Messages API behind the invoke.Backend interface.
type Backend struct {
	client *anthropic.Client
	opts   Options
}

// New creates an Anthropic backend using the official client.
func New(optFns ...func(o *Options)) *Backend {
	opts := Options{MaxTokens: defaultMaxTokens}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Backend{client: &client, opts: opts}
}

// NewFromClient creates an Anthropic backend from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Backend {
	opts := Options{MaxTokens: defaultMaxTokens}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, opts: opts}
}

// Complete implements invoke.Backend against the Messages API.
func (b *Backend) Complete(ctx context.Context, req invoke.Request) (invoke.Result, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = b.opts.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  buildMessages(req),
		MaxTokens: maxTokens,
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = anthropic.Float(req.TopP)
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return invoke.Result{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}

	return invoke.Result{
		Text: text,
		Usage: invoke.Usage{
			InputUnits:  int(resp.Usage.InputTokens),
			OutputUnits: int(resp.Usage.OutputTokens),
			TotalUnits:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		Raw: resp,
	}, nil
}

// buildMessages converts history plus the latest prompt into Anthropic
// message params. System entries in the history are skipped; instructions
// travel via the dedicated system field.
func buildMessages(req invoke.Request) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, m := range req.History {
		switch m.Role {
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
		case "system":
			continue
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
		}
	}
	if req.Prompt != "" {
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)))
	}
	return messages
}
