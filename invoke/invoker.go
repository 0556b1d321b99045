package invoke

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/CuriosityQuantified/atlas/logging"
)

// Backend executes a single normalized request against one concrete
// provider/strategy pair. Implementations live in the provider subpackages.
// A backend returns either a populated success Result or an error; it never
// needs to fill the error fields itself.
type Backend interface {
	Complete(ctx context.Context, req Request) (Result, error)
}

type backendKey struct {
	provider Provider
	strategy Strategy
}

// providerKeyword maps a model identifier substring onto a provider. Matching
// is ordered: the first hit wins.
type providerKeyword struct {
	substr   string
	provider Provider
}

var defaultKeywords = []providerKeyword{
	{"claude", ProviderAnthropic},
	{"anthropic", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"openai", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"bedrock", ProviderBedrock},
	{"titan", ProviderBedrock},
	{"nova", ProviderBedrock},
}

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// DefaultProvider handles model identifiers that match no keyword.
	DefaultProvider Provider
	// DefaultTimeout bounds calls whose request does not carry a timeout.
	DefaultTimeout time.Duration
	// Preferences maps each provider onto its single preferred strategy for
	// ordinary calls. Providers absent from the table yield a configuration
	// error result at call time.
	Preferences map[Provider]Strategy
	// MaxCalls caps the total number of model calls the invoker will make
	// over its lifetime (0 = unlimited). Exhausting the budget yields
	// configuration-error results.
	MaxCalls int
	// Logger receives invocation telemetry.
	Logger logging.Logger

	backends map[backendKey]Backend
}

// WithBackend registers a backend for a provider/strategy pair.
func WithBackend(p Provider, s Strategy, b Backend) func(o *Options) {
	return func(o *Options) { o.backends[backendKey{p, s}] = b }
}

// Invoker presents one uniform call contract over the registered backends and
// provides the batch, racing and fallback combinators. The backend registry
// and preference table are read-only after construction; Invoker is safe for
// concurrent use.
type Invoker struct {
	backends        map[backendKey]Backend
	prefs           map[Provider]Strategy
	keywords        []providerKeyword
	defaultProvider Provider
	defaultTimeout  time.Duration
	limiter         *CallLimiter
	logger          logging.Logger
	stats           *Stats
}

// New constructs an Invoker with optional overrides.
func New(optFns ...func(o *Options)) *Invoker {
	opts := Options{
		DefaultProvider: ProviderAnthropic,
		DefaultTimeout:  120 * time.Second,
		Preferences: map[Provider]Strategy{
			ProviderAnthropic: StrategySDK,
			ProviderOpenAI:    StrategySDK,
			ProviderBedrock:   StrategySDK,
		},
		Logger:   logging.NoOpLogger{},
		backends: make(map[backendKey]Backend),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Invoker{
		backends:        opts.backends,
		prefs:           opts.Preferences,
		keywords:        defaultKeywords,
		defaultProvider: opts.DefaultProvider,
		defaultTimeout:  opts.DefaultTimeout,
		limiter:         NewCallLimiter(opts.MaxCalls),
		logger:          opts.Logger,
		stats:           newStats(),
	}
}

// CallOptions carries per-call overrides for Invoke.
type CallOptions struct {
	Provider Provider
	Strategy Strategy
}

// CallOption customizes a single Invoke call.
type CallOption func(o *CallOptions)

// WithProvider forces a provider instead of inferring it from the model id.
func WithProvider(p Provider) CallOption {
	return func(o *CallOptions) { o.Provider = p }
}

// WithStrategy forces a strategy instead of using the preference table.
func WithStrategy(s Strategy) CallOption {
	return func(o *CallOptions) { o.Strategy = s }
}

// InferProvider resolves a provider from a model identifier using ordered
// keyword matching, falling back to the configured default provider.
func (iv *Invoker) InferProvider(modelID string) Provider {
	lower := strings.ToLower(modelID)
	for _, kw := range iv.keywords {
		if strings.Contains(lower, kw.substr) {
			return kw.provider
		}
	}
	return iv.defaultProvider
}

// Invoke executes a single model call. It never returns an error: backend
// failures are encoded as a non-success Result with an error kind. The call
// is bounded by the request timeout (or the invoker default) and retried up
// to Request.Retries times on retryable failures; latency covers all
// attempts end-to-end.
func (iv *Invoker) Invoke(ctx context.Context, req Request, callOpts ...CallOption) Result {
	var co CallOptions
	for _, fn := range callOpts {
		fn(&co)
	}

	if !iv.limiter.Take() {
		return failure(ProviderUnregistered, StrategyUnregistered, 0, ErrorKindConfig,
			"model call budget exhausted")
	}

	provider := co.Provider
	if provider == ProviderUnregistered {
		provider = iv.InferProvider(req.Model)
	}

	strategy := co.Strategy
	if strategy == StrategyUnregistered {
		preferred, ok := iv.prefs[provider]
		if !ok {
			res := failure(provider, StrategyUnregistered, 0, ErrorKindConfig,
				"no preferred strategy registered for provider "+provider.String())
			iv.stats.record(provider, StrategyUnregistered, 0)
			return res
		}
		strategy = preferred
	}

	backend, ok := iv.backends[backendKey{provider, strategy}]
	if !ok {
		res := failure(provider, strategy, 0, ErrorKindConfig,
			"no backend registered for "+provider.String()+"/"+strategy.String())
		iv.stats.record(provider, strategy, 0)
		return res
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = iv.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var res Result
	var err error
	for attempt := 0; attempt <= req.Retries; attempt++ {
		res, err = backend.Complete(callCtx, req)
		if err == nil {
			break
		}
		if !retryable(callCtx, err) {
			break
		}
	}
	latency := time.Since(start)
	iv.stats.record(provider, strategy, latency)

	if err != nil {
		kind, msg := classify(callCtx, err)
		iv.logger.Error("model invocation failed", "model", req.Model, "provider", provider.String(), "kind", kind.String(), "error", msg)
		return failure(provider, strategy, latency, kind, msg)
	}

	res.Success = true
	res.Provider = provider
	res.Strategy = strategy
	res.Latency = latency
	res.ErrorKind = ErrorKindNone
	res.ErrorMessage = ""
	res.Cost = estimateCost(req.Model, res.Usage)
	iv.logger.Debug("model invocation completed", "model", req.Model, "provider", provider.String(), "latency_ms", latency.Milliseconds())
	return res
}

// Stats returns a snapshot of the running per provider/strategy latency
// aggregates. Updated after every completed call, success or failure.
func (iv *Invoker) Stats() map[StatKey]StatEntry { return iv.stats.Snapshot() }

// retryable reports whether another attempt may succeed. Context expiry and
// configuration/provider rejections are terminal.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var ierr *Error
	if errors.As(err, &ierr) {
		return ierr.Kind == ErrorKindTransport
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// classify maps a backend error onto an error kind plus message.
func classify(ctx context.Context, err error) (ErrorKind, string) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrorKindTimeout, err.Error()
	}
	var ierr *Error
	if errors.As(err, &ierr) {
		return ierr.Kind, ierr.Message
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorKindTransport, err.Error()
	}
	return ErrorKindProvider, err.Error()
}
