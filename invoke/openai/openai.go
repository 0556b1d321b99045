// Package openai provides an invoke backend for the OpenAI Chat Completions
// API using the official client library.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/CuriosityQuantified/atlas/invoke"
)

// Options configures the OpenAI backend.
type Options struct {
	APIKey string
	// MaxCompletionTokens applies when a request does not specify a cap.
	MaxCompletionTokens int64
}

// Backend wraps the OpenAI Chat Completions API behind the invoke.Backend interface.
type Backend struct {
	client *openai.Client
	opts   Options
}

// New creates an OpenAI backend using the official client.
func New(optFns ...func(o *Options)) *Backend {
	opts := Options{MaxCompletionTokens: 4096}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)

	return &Backend{client: &client, opts: opts}
}

// NewFromClient creates an OpenAI backend from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Backend {
	opts := Options{MaxCompletionTokens: 4096}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, opts: opts}
}

// Complete implements invoke.Backend against Chat Completions.
func (b *Backend) Complete(ctx context.Context, req invoke.Request) (invoke.Result, error) {
	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: buildMessages(req),
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = b.opts.MaxCompletionTokens
	}
	params.MaxCompletionTokens = openai.Int(maxTokens)

	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}
	if req.FrequencyPenalty != 0 {
		params.FrequencyPenalty = openai.Float(req.FrequencyPenalty)
	}
	if req.PresencePenalty != 0 {
		params.PresencePenalty = openai.Float(req.PresencePenalty)
	}
	if len(req.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.StopSequences}
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return invoke.Result{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return invoke.Result{}, invoke.NewError(invoke.ErrorKindProvider, "openai response contained no choices")
	}

	return invoke.Result{
		Text: resp.Choices[0].Message.Content,
		Usage: invoke.Usage{
			InputUnits:  int(resp.Usage.PromptTokens),
			OutputUnits: int(resp.Usage.CompletionTokens),
			TotalUnits:  int(resp.Usage.TotalTokens),
		},
		Raw: resp,
	}, nil
}

// buildMessages converts instructions, history and the latest prompt into
// chat completion messages.
func buildMessages(req invoke.Request) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	for _, m := range req.History {
		switch m.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Text))
		case "system":
			messages = append(messages, openai.SystemMessage(m.Text))
		default:
			messages = append(messages, openai.UserMessage(m.Text))
		}
	}
	if req.Prompt != "" {
		messages = append(messages, openai.UserMessage(req.Prompt))
	}
	return messages
}
