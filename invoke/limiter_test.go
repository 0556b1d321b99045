package invoke

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallLimiter(t *testing.T) {
	l := NewCallLimiter(2)

	assert.True(t, l.Take())
	assert.True(t, l.Take())
	assert.False(t, l.Take())
	assert.Equal(t, 2, l.Count())
	assert.Equal(t, 0, l.Remaining())
}

func TestCallLimiter_Unlimited(t *testing.T) {
	l := NewCallLimiter(0)

	for i := 0; i < 50; i++ {
		assert.True(t, l.Take())
	}
	assert.Equal(t, -1, l.Remaining())
}

func TestInvoke_BudgetExhaustedIsConfigError(t *testing.T) {
	backend := NewScriptedBackend()
	iv := New(
		WithBackend(ProviderAnthropic, StrategySDK, backend),
		func(o *Options) { o.MaxCalls = 1 },
	)

	first := iv.Invoke(context.Background(), Request{Model: "claude-3-5-haiku-latest", Prompt: "a"})
	second := iv.Invoke(context.Background(), Request{Model: "claude-3-5-haiku-latest", Prompt: "b"})

	assert.True(t, first.Success)
	assert.False(t, second.Success)
	assert.Equal(t, ErrorKindConfig, second.ErrorKind)
	assert.Equal(t, 1, backend.Calls())
}
