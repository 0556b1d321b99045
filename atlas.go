// Package atlas provides a high-level façade over the orchestration core:
// the supervisor state machine, subordinate worker loops, the multi-backend
// model invocation layer, and the argument structuring service. Most
// applications interact with this package by:
//  1. Creating an Atlas via New() (optionally overriding collaborators)
//  2. Registering supervisor tools and worker loops
//  3. Running tasks through RunSupervisor / RunWorker, or calling models
//     directly through InvokeModel and its combinators
//
// All defaults are safe for local development and testing; production
// deployments typically supply a configured invoker with real provider
// backends, durable memory, and a structured logger.
package atlas

import (
	"context"

	"github.com/CuriosityQuantified/atlas/config"
	"github.com/CuriosityQuantified/atlas/invoke"
	"github.com/CuriosityQuantified/atlas/logging"
	"github.com/CuriosityQuantified/atlas/memory"
	redisstore "github.com/CuriosityQuantified/atlas/memory/redis"
	"github.com/CuriosityQuantified/atlas/notify"
	"github.com/CuriosityQuantified/atlas/structured"
	"github.com/CuriosityQuantified/atlas/supervisor"
	"github.com/CuriosityQuantified/atlas/tool"
	"github.com/CuriosityQuantified/atlas/tracking"
	"github.com/CuriosityQuantified/atlas/worker"
)

// Options configures the Atlas instance.
type Options struct {
	// Config supplies assembly defaults (model ids, caps, timeouts).
	// Nil uses config.Default().
	Config *config.Config

	// Invoker performs all model calls. Nil creates an invoker with no
	// backends; invocations then return configuration errors until
	// backends are registered via invoke options.
	Invoker *invoke.Invoker

	// Structurer normalizes tool-call arguments. Nil means rule-based only.
	Structurer *structured.Structurer

	// SupervisorTools holds the capabilities the supervisor may dispatch.
	SupervisorTools *tool.Registry

	// Memory stores user/assistant exchanges. Nil selects a store from
	// the config's memory driver ("none", "inmemory", or "redis").
	Memory memory.Store

	// Tracker receives after-the-fact invocation records. Nil attaches a
	// buffering recorder when tracking is enabled in the config, and a
	// no-op tracker otherwise.
	Tracker tracking.Tracker

	// Notifier receives live task updates (defaults to no-op).
	Notifier notify.Notifier

	// Logger receives diagnostics. Nil builds a logger from the config's
	// logging level and format.
	Logger logging.Logger
}

// Atlas is the high-level façade aggregating the orchestration core and its
// collaborators.
type Atlas struct {
	cfg        *config.Config
	invoker    *invoke.Invoker
	structurer *structured.Structurer
	tools      *tool.Registry
	memory     memory.Store
	tracker    tracking.Tracker
	notifier   notify.Notifier
	logger     logging.Logger
	super      *supervisor.Supervisor
}

// New creates an Atlas instance with optional overrides. Any unset
// collaborator is assembled from the config's memory, tracking, and logging
// sections, so a YAML file alone is enough to wire the optional pieces.
func New(optFns ...func(o *Options)) *Atlas {
	opts := Options{Config: config.Default()}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		lc := logging.DefaultLoggerConfig()
		lc.Level = logging.ParseLevel(opts.Config.Logging.Level)
		lc.Format = opts.Config.Logging.Format
		opts.Logger = logging.NewLogger(lc)
	}
	if opts.Memory == nil {
		opts.Memory = storeFromConfig(opts.Config.Memory)
	}
	if opts.Tracker == nil {
		if opts.Config.Tracking.Enabled {
			opts.Tracker = tracking.NewRecorder(opts.Config.Tracking.BufferSize)
		} else {
			opts.Tracker = tracking.NoopTracker{}
		}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NoopNotifier{}
	}
	if opts.Invoker == nil {
		opts.Invoker = invoke.New(func(o *invoke.Options) {
			o.DefaultTimeout = opts.Config.Model.Timeout.Std()
			o.Logger = opts.Logger
		})
	}
	if opts.Structurer == nil {
		opts.Structurer = structured.New(func(o *structured.Options) {
			o.Logger = opts.Logger
		})
	}
	if opts.SupervisorTools == nil {
		opts.SupervisorTools = tool.NewRegistry()
	}

	a := &Atlas{
		cfg:        opts.Config,
		invoker:    opts.Invoker,
		structurer: opts.Structurer,
		tools:      opts.SupervisorTools,
		memory:     opts.Memory,
		tracker:    opts.Tracker,
		notifier:   opts.Notifier,
		logger:     opts.Logger,
	}

	a.super = supervisor.New(func(o *supervisor.Options) {
		o.Model = a.invoker
		o.ModelID = a.cfg.Model.Default
		o.Tools = a.tools
		o.Structurer = a.structurer
		o.MaxIterations = a.cfg.Supervisor.MaxIterations
		o.Memory = a.memory
		o.Tracker = a.tracker
		o.Notifier = a.notifier
		o.Logger = a.logger
	})

	return a
}

// Invoker exposes the configured invocation layer for direct use of the
// batch, racing, and fallback combinators.
func (a *Atlas) Invoker() *invoke.Invoker { return a.invoker }

// Tools exposes the supervisor tool registry.
func (a *Atlas) Tools() *tool.Registry { return a.tools }

// NewWorker constructs a worker loop wired to this instance's invoker and
// collaborators, with the given tool registry.
func (a *Atlas) NewWorker(name string, tools *tool.Registry) *worker.Worker {
	return worker.New(name, func(o *worker.Options) {
		o.Model = a.invoker
		o.ModelID = a.cfg.Model.Default
		o.Tools = tools
		o.MaxIterations = a.cfg.Worker.MaxIterations
		o.HistoryWindow = a.cfg.Worker.HistoryWindow
		o.Logger = a.logger
		o.Tracker = a.tracker
		o.Notifier = a.notifier
	})
}

// RunSupervisor executes one task through the supervisor loop.
func (a *Atlas) RunSupervisor(ctx context.Context, task string, taskCtx map[string]any) supervisor.Output {
	return a.super.Run(ctx, task, taskCtx)
}

// RunWorker executes one task through a standalone worker loop using the
// given tools.
func (a *Atlas) RunWorker(ctx context.Context, name, task string, taskCtx map[string]any, tools *tool.Registry) worker.Findings {
	return a.NewWorker(name, tools).Run(ctx, task, taskCtx)
}

// InvokeModel performs a single model invocation through the configured
// invoker. The request's Model falls back to the configured default.
func (a *Atlas) InvokeModel(ctx context.Context, req invoke.Request, optFns ...invoke.CallOption) invoke.Result {
	if req.Model == "" {
		req.Model = a.cfg.Model.Default
	}
	if req.Retries == 0 {
		req.Retries = a.cfg.Model.Retries
	}
	return a.invoker.Invoke(ctx, req, optFns...)
}

// storeFromConfig maps the memory driver selection onto a Store
// implementation. Unknown drivers are rejected by config.Validate, so they
// degrade to the no-op store here rather than erroring twice.
func storeFromConfig(mc config.MemoryConfig) memory.Store {
	switch mc.Driver {
	case "inmemory":
		return memory.NewInMemoryStore()
	case "redis":
		return redisstore.New(func(o *redisstore.Options) {
			o.Addr = mc.Addr
		})
	default:
		return memory.NoopStore{}
	}
}
