package invoke

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProvider_String(t *testing.T) {
	assert.Equal(t, "anthropic", ProviderAnthropic.String())
	assert.Equal(t, "openai", ProviderOpenAI.String())
	assert.Equal(t, "bedrock", ProviderBedrock.String())
	assert.Equal(t, "unregistered", ProviderUnregistered.String())
}

func TestInferProvider(t *testing.T) {
	iv := New()

	assert.Equal(t, ProviderAnthropic, iv.InferProvider("claude-3-5-haiku-latest"))
	assert.Equal(t, ProviderOpenAI, iv.InferProvider("gpt-4o-mini"))
	assert.Equal(t, ProviderOpenAI, iv.InferProvider("o3-mini"))
	assert.Equal(t, ProviderBedrock, iv.InferProvider("amazon.nova-lite-v1:0"))
	// Unknown identifiers fall back to the default provider.
	assert.Equal(t, ProviderAnthropic, iv.InferProvider("mystery-model"))
}

func TestInvoke_Success(t *testing.T) {
	backend := NewScriptedBackend(ScriptedResponse{
		Text:  "hello",
		Usage: Usage{InputUnits: 10, OutputUnits: 5, TotalUnits: 15},
	})
	iv := New(WithBackend(ProviderAnthropic, StrategySDK, backend))

	res := iv.Invoke(context.Background(), Request{Model: "claude-3-5-haiku-latest", Prompt: "hi"})

	assert.True(t, res.Success)
	assert.Equal(t, "hello", res.Text)
	assert.Equal(t, ProviderAnthropic, res.Provider)
	assert.Equal(t, StrategySDK, res.Strategy)
	assert.Equal(t, ErrorKindNone, res.ErrorKind)
	assert.Equal(t, 15, res.Usage.TotalUnits)
	assert.GreaterOrEqual(t, res.Cost, 0.0)
	assert.Equal(t, 1, backend.Calls())
}

func TestInvoke_MissingBackendIsConfigError(t *testing.T) {
	iv := New()

	res := iv.Invoke(context.Background(), Request{Model: "claude-3-5-haiku-latest", Prompt: "hi"})

	assert.False(t, res.Success)
	assert.Equal(t, ErrorKindConfig, res.ErrorKind)
	assert.NotEmpty(t, res.ErrorMessage)
}

func TestInvoke_MissingPreferenceIsConfigError(t *testing.T) {
	iv := New(func(o *Options) {
		o.Preferences = map[Provider]Strategy{}
	})

	res := iv.Invoke(context.Background(), Request{Model: "gpt-4o", Prompt: "hi"})

	assert.False(t, res.Success)
	assert.Equal(t, ErrorKindConfig, res.ErrorKind)
}

func TestInvoke_ProviderError(t *testing.T) {
	backend := NewScriptedBackend(ScriptedResponse{
		Err: NewError(ErrorKindProvider, "model rejected the request"),
	})
	iv := New(WithBackend(ProviderOpenAI, StrategySDK, backend))

	res := iv.Invoke(context.Background(), Request{Model: "gpt-4o", Prompt: "hi"})

	assert.False(t, res.Success)
	assert.Equal(t, ErrorKindProvider, res.ErrorKind)
	assert.Equal(t, "model rejected the request", res.ErrorMessage)
	// Provider rejections are not retried.
	assert.Equal(t, 1, backend.Calls())
}

func TestInvoke_TimeoutClassification(t *testing.T) {
	backend := NewScriptedBackend(ScriptedResponse{
		Text:  "too late",
		Delay: 200 * time.Millisecond,
	})
	iv := New(WithBackend(ProviderAnthropic, StrategySDK, backend))

	res := iv.Invoke(context.Background(), Request{
		Model:   "claude-3-5-haiku-latest",
		Prompt:  "hi",
		Timeout: 10 * time.Millisecond,
	})

	assert.False(t, res.Success)
	assert.Equal(t, ErrorKindTimeout, res.ErrorKind)
}

func TestInvoke_RetriesTransportErrors(t *testing.T) {
	backend := NewScriptedBackend(
		ScriptedResponse{Err: NewError(ErrorKindTransport, "connection reset")},
		ScriptedResponse{Text: "recovered"},
	)
	iv := New(WithBackend(ProviderAnthropic, StrategySDK, backend))

	res := iv.Invoke(context.Background(), Request{
		Model:   "claude-3-5-haiku-latest",
		Prompt:  "hi",
		Retries: 2,
	})

	assert.True(t, res.Success)
	assert.Equal(t, "recovered", res.Text)
	assert.Equal(t, 2, backend.Calls())
}

func TestInvoke_CallOptionsOverride(t *testing.T) {
	backend := NewScriptedBackend(ScriptedResponse{Text: "forced"})
	iv := New(WithBackend(ProviderOpenAI, StrategyHTTP, backend))

	res := iv.Invoke(context.Background(),
		Request{Model: "claude-3-5-haiku-latest", Prompt: "hi"},
		WithProvider(ProviderOpenAI), WithStrategy(StrategyHTTP))

	assert.True(t, res.Success)
	assert.Equal(t, ProviderOpenAI, res.Provider)
	assert.Equal(t, StrategyHTTP, res.Strategy)
}

func TestStats_RecordedForSuccessAndFailure(t *testing.T) {
	backend := NewScriptedBackend(
		ScriptedResponse{Text: "ok"},
		ScriptedResponse{Err: NewError(ErrorKindProvider, "rejected")},
	)
	iv := New(WithBackend(ProviderAnthropic, StrategySDK, backend))

	iv.Invoke(context.Background(), Request{Model: "claude-3-5-haiku-latest", Prompt: "a"})
	iv.Invoke(context.Background(), Request{Model: "claude-3-5-haiku-latest", Prompt: "b"})

	stats := iv.Stats()
	entry, ok := stats[StatKey{Provider: ProviderAnthropic, Strategy: StrategySDK}]
	assert.True(t, ok)
	assert.Equal(t, 2, entry.Count)
	assert.GreaterOrEqual(t, entry.Max, entry.Min)
	assert.GreaterOrEqual(t, entry.Avg(), time.Duration(0))
}

func TestStats_ConcurrentUpdates(t *testing.T) {
	backend := NewScriptedBackend()
	iv := New(WithBackend(ProviderAnthropic, StrategySDK, backend))

	reqs := make([]Request, 20)
	for i := range reqs {
		reqs[i] = Request{Model: "claude-3-5-haiku-latest", Prompt: "x"}
	}
	iv.InvokeAll(context.Background(), reqs)

	entry := iv.Stats()[StatKey{Provider: ProviderAnthropic, Strategy: StrategySDK}]
	assert.Equal(t, 20, entry.Count)
}
