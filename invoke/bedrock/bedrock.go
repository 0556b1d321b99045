// Package bedrock provides an invoke backend for the AWS Bedrock Converse
// API. The runtime client is injected behind a narrow interface so tests can
// substitute a fake without AWS credentials.
package bedrock

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/CuriosityQuantified/atlas/invoke"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client required
// by the backend. It matches *bedrockruntime.Client so callers can pass
// either the real client or a mock in tests.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the Bedrock backend.
type Options struct {
	// Runtime provides access to the Bedrock runtime. Required.
	Runtime RuntimeClient
	// MaxTokens applies when a request does not specify a completion cap.
	// Zero or negative omits the field so Bedrock uses its own default.
	MaxTokens int64
}

// Backend wraps the Bedrock Converse API behind the invoke.Backend interface.
type Backend struct {
	runtime   RuntimeClient
	maxTokens int64
}

// New creates a Bedrock backend around an injected runtime client.
func New(optFns ...func(o *Options)) *Backend {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{runtime: opts.Runtime, maxTokens: opts.MaxTokens}
}

// NewRuntime loads default AWS configuration for the given region and
// returns a Converse runtime client suitable for Options.Runtime.
func NewRuntime(ctx context.Context, region string) (*bedrockruntime.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}

// Complete implements invoke.Backend against the Converse API.
func (b *Backend) Complete(ctx context.Context, req invoke.Request) (invoke.Result, error) {
	if b.runtime == nil {
		return invoke.Result{}, invoke.NewError(invoke.ErrorKindConfig, "bedrock runtime client is not configured")
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.Model),
		Messages: buildMessages(req),
	}
	if req.Instructions != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: req.Instructions},
		}
	}
	if cfg := b.inferenceConfig(req); cfg != nil {
		input.InferenceConfig = cfg
	}

	output, err := b.runtime.Converse(ctx, input)
	if err != nil {
		return invoke.Result{}, fmt.Errorf("bedrock converse error: %w", err)
	}

	var text string
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if t, ok := block.(*brtypes.ContentBlockMemberText); ok {
				text += t.Value
			}
		}
	}

	var usage invoke.Usage
	if output.Usage != nil {
		usage = invoke.Usage{
			InputUnits:  int(aws.ToInt32(output.Usage.InputTokens)),
			OutputUnits: int(aws.ToInt32(output.Usage.OutputTokens)),
			TotalUnits:  int(aws.ToInt32(output.Usage.TotalTokens)),
		}
	}

	return invoke.Result{Text: text, Usage: usage, Raw: output}, nil
}

func (b *Backend) inferenceConfig(req invoke.Request) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	var set bool

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = b.maxTokens
	}
	if maxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(maxTokens))
		set = true
	}
	if req.Temperature > 0 {
		cfg.Temperature = aws.Float32(float32(req.Temperature))
		set = true
	}
	if req.TopP > 0 {
		cfg.TopP = aws.Float32(float32(req.TopP))
		set = true
	}
	if len(req.StopSequences) > 0 {
		cfg.StopSequences = req.StopSequences
		set = true
	}

	if !set {
		return nil
	}
	return &cfg
}

// buildMessages converts history plus the latest prompt into Converse
// messages. Bedrock requires alternating user/assistant turns; system
// entries travel via the dedicated system field and are skipped here.
func buildMessages(req invoke.Request) []brtypes.Message {
	var messages []brtypes.Message
	appendText := func(role brtypes.ConversationRole, text string) {
		messages = append(messages, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
		})
	}

	for _, m := range req.History {
		switch m.Role {
		case "assistant":
			appendText(brtypes.ConversationRoleAssistant, m.Text)
		case "system":
			continue
		default:
			appendText(brtypes.ConversationRoleUser, m.Text)
		}
	}
	if req.Prompt != "" {
		appendText(brtypes.ConversationRoleUser, req.Prompt)
	}
	return messages
}
