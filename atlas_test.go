package atlas

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CuriosityQuantified/atlas/config"
	"github.com/CuriosityQuantified/atlas/invoke"
	"github.com/CuriosityQuantified/atlas/logging"
	"github.com/CuriosityQuantified/atlas/memory"
	redisstore "github.com/CuriosityQuantified/atlas/memory/redis"
	"github.com/CuriosityQuantified/atlas/tool"
	"github.com/CuriosityQuantified/atlas/tracking"
)

func scriptedAtlas(responses ...invoke.ScriptedResponse) *Atlas {
	backend := invoke.NewScriptedBackend(responses...)
	iv := invoke.New(invoke.WithBackend(invoke.ProviderAnthropic, invoke.StrategySDK, backend))
	return New(func(o *Options) {
		o.Invoker = iv
		o.Logger = logging.NoOpLogger{}
	})
}

func TestNew_Defaults(t *testing.T) {
	a := New()

	assert.NotNil(t, a.Invoker())
	assert.NotNil(t, a.Tools())
	assert.Equal(t, 0, a.Tools().Len())
	// The default config selects no memory driver and disables tracking.
	assert.IsType(t, memory.NoopStore{}, a.memory)
	assert.IsType(t, tracking.NoopTracker{}, a.tracker)
	assert.IsType(t, &logging.AtlasLogger{}, a.logger)
}

func TestNew_AssemblesCollaboratorsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Memory.Driver = "inmemory"
	cfg.Tracking.Enabled = true
	cfg.Tracking.BufferSize = 8

	backend := invoke.NewScriptedBackend(invoke.ScriptedResponse{
		Text: `{"thought": "easy", "tool_calls": [], "complete": true, "response": "done"}`,
	})
	iv := invoke.New(invoke.WithBackend(invoke.ProviderAnthropic, invoke.StrategySDK, backend))

	a := New(func(o *Options) {
		o.Config = cfg
		o.Invoker = iv
		o.Logger = logging.NoOpLogger{}
	})

	store, ok := a.memory.(*memory.InMemoryStore)
	assert.True(t, ok)
	rec, ok := a.tracker.(*tracking.Recorder)
	assert.True(t, ok)

	out := a.RunSupervisor(context.Background(), "hello", nil)
	assert.True(t, out.Success)

	// The run's exchanges land in the configured store.
	id, err := store.ActiveSession(context.Background())
	assert.NoError(t, err)
	history, err := store.History(context.Background(), id, 0)
	assert.NoError(t, err)
	assert.Len(t, history, 2)

	// And the configured recorder captures the run's records.
	rec.Close()
	assert.NotEmpty(t, rec.Records())
}

func TestStoreFromConfig_Drivers(t *testing.T) {
	assert.IsType(t, memory.NoopStore{}, storeFromConfig(config.MemoryConfig{Driver: "none"}))
	assert.IsType(t, &memory.InMemoryStore{}, storeFromConfig(config.MemoryConfig{Driver: "inmemory"}))
	assert.IsType(t, &redisstore.Store{}, storeFromConfig(config.MemoryConfig{Driver: "redis", Addr: "localhost:6379"}))
}

func TestInvokeModel_UsesConfiguredDefaultModel(t *testing.T) {
	a := scriptedAtlas(invoke.ScriptedResponse{Text: "hello back"})

	res := a.InvokeModel(context.Background(), invoke.Request{Prompt: "hello"})

	assert.True(t, res.Success)
	assert.Equal(t, "hello back", res.Text)
	// The default model id maps onto the anthropic backend.
	assert.Equal(t, invoke.ProviderAnthropic, res.Provider)
}

func TestRunSupervisor_DirectAnswer(t *testing.T) {
	a := scriptedAtlas(invoke.ScriptedResponse{
		Text: `{"thought": "easy", "tool_calls": [], "complete": true, "response": "four"}`,
	})

	out := a.RunSupervisor(context.Background(), "what is 2+2", nil)

	assert.True(t, out.Success)
	assert.Equal(t, "four", out.Content)
}

func TestRunWorker(t *testing.T) {
	a := scriptedAtlas(
		invoke.ScriptedResponse{Text: `{"thought": "done", "done": true, "final_answer": "worked"}`},
		invoke.ScriptedResponse{Text: "worker findings"},
	)

	f := a.RunWorker(context.Background(), "helper", "small task", nil, tool.NewRegistry())

	assert.True(t, f.Success)
	assert.Equal(t, "worker findings", f.Findings)
	assert.Equal(t, 1.0, f.Confidence)
}
