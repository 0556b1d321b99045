package invoke

import (
	"fmt"
	"time"
)

// Provider identifies an external model backend.
type Provider int

const (
	// ProviderUnregistered marks a provider that could not be resolved.
	ProviderUnregistered Provider = iota
	// ProviderAnthropic is the Anthropic Messages API.
	ProviderAnthropic
	// ProviderOpenAI is the OpenAI Chat Completions API.
	ProviderOpenAI
	// ProviderBedrock is the AWS Bedrock Converse API.
	ProviderBedrock
)

// String returns the string representation of the provider.
func (p Provider) String() string {
	switch p {
	case ProviderAnthropic:
		return "anthropic"
	case ProviderOpenAI:
		return "openai"
	case ProviderBedrock:
		return "bedrock"
	default:
		return "unregistered"
	}
}

// Strategy identifies one of possibly several call paths into a provider.
type Strategy int

const (
	// StrategyUnregistered marks a strategy that could not be resolved.
	StrategyUnregistered Strategy = iota
	// StrategySDK uses the provider's official client library.
	StrategySDK
	// StrategyHTTP uses a lightweight raw HTTP call path.
	StrategyHTTP
)

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategySDK:
		return "sdk"
	case StrategyHTTP:
		return "http"
	default:
		return "unregistered"
	}
}

// ErrorKind categorizes invocation failures for caller retry policy.
type ErrorKind int

const (
	// ErrorKindNone means no error occurred.
	ErrorKindNone ErrorKind = iota
	// ErrorKindConfig is a missing credential, unknown provider or absent
	// preference table entry. Not retryable.
	ErrorKindConfig
	// ErrorKindTransport is a network level failure. Retryable by caller policy.
	ErrorKindTransport
	// ErrorKindProvider means the backend rejected the request. Not retryable
	// without modification.
	ErrorKindProvider
	// ErrorKindTimeout means the per-call timeout expired.
	ErrorKindTimeout
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "none"
	case ErrorKindConfig:
		return "config"
	case ErrorKindTransport:
		return "transport"
	case ErrorKindProvider:
		return "provider"
	case ErrorKindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a typed invocation failure produced by backends so the invoker can
// map it onto a Result error kind without string matching.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string { return fmt.Sprintf("invoke error [%s]: %s", e.Kind, e.Message) }

// NewError constructs a typed invocation error.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Message is one turn of prior conversation history supplied to a request.
type Message struct {
	Role string `json:"role"` // "user", "assistant" or "system"
	Text string `json:"text"`
}

// Request captures a single normalized model invocation. It is immutable per
// call; combinators copy it before mutating overrides.
type Request struct {
	// Model is the target model identifier. When Provider is not forced via
	// a call option it is inferred from this identifier.
	Model string

	// Instructions are optional system instructions.
	Instructions string

	// History is the optional ordered conversation history.
	History []Message

	// Prompt is the optional latest user message.
	Prompt string

	// Sampling parameters. Zero values mean "use the backend default".
	MaxTokens        int64
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	StopSequences    []string

	// Timeout bounds the whole call including internal retries. Zero uses
	// the invoker default.
	Timeout time.Duration

	// Retries is the number of additional attempts after a retryable failure.
	Retries int

	// Stream requests incremental output where the backend supports it.
	Stream bool
}

// Usage captures unit counts reported by a backend. Absent usage defaults to
// zero counts rather than omitted fields.
type Usage struct {
	InputUnits  int `json:"input_units"`
	OutputUnits int `json:"output_units"`
	TotalUnits  int `json:"total_units"`
}

// Result is the outcome of one attempted invocation. Either the success
// fields or the error fields are authoritative, never both.
type Result struct {
	Success bool `json:"success"`

	// Success fields.
	Text     string        `json:"text,omitempty"`
	Provider Provider      `json:"provider"`
	Strategy Strategy      `json:"strategy"`
	Latency  time.Duration `json:"latency"`
	Usage    Usage         `json:"usage"`
	Cost     float64       `json:"cost"`

	// Error fields.
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`

	// Attempt is the zero-based index of the request that produced this
	// result inside a fallback chain. Zero outside chains.
	Attempt int `json:"attempt,omitempty"`
	// Attempted lists the model identifiers tried by a failed fallback chain.
	Attempted []string `json:"attempted,omitempty"`

	// Raw holds the opaque backend payload for diagnostics.
	Raw any `json:"-"`
}

// failure builds an error result preserving provider/strategy attribution.
func failure(p Provider, s Strategy, latency time.Duration, kind ErrorKind, msg string) Result {
	return Result{
		Provider:     p,
		Strategy:     s,
		Latency:      latency,
		ErrorKind:    kind,
		ErrorMessage: msg,
	}
}
