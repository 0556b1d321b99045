package invoke

import (
	"context"
	"sync"
)

// InvokeAll dispatches all requests concurrently. Every request completes
// independently; one request's failure never cancels or corrupts its
// siblings. Results are returned in submission order, not completion order.
func (iv *Invoker) InvokeAll(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(slot int, r Request) {
			defer wg.Done()
			results[slot] = iv.Invoke(ctx, r)
		}(i, req)
	}
	wg.Wait()

	return results
}

// InvokeRacing dispatches all requests concurrently and returns the first
// successful result by completion time. Non-winning in-flight requests are
// cancelled once a winner is selected. If every request fails the
// last-observed failure is returned.
func (iv *Invoker) InvokeRacing(ctx context.Context, reqs []Request) Result {
	if len(reqs) == 0 {
		return failure(ProviderUnregistered, StrategyUnregistered, 0, ErrorKindConfig, "no requests to race")
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan Result, len(reqs))
	for _, req := range reqs {
		go func(r Request) {
			done <- iv.Invoke(raceCtx, r)
		}(req)
	}

	var lastFailure Result
	for i := 0; i < len(reqs); i++ {
		res := <-done
		if res.Success {
			cancel() // losers observe cancellation through their call context
			return res
		}
		lastFailure = res
	}

	return lastFailure
}

// InvokeFallbackChain attempts requests strictly in order, stopping at the
// first success and recording its zero-based attempt index. If all fail, the
// final failure is returned augmented with the list of attempted models.
func (iv *Invoker) InvokeFallbackChain(ctx context.Context, reqs []Request) Result {
	if len(reqs) == 0 {
		return failure(ProviderUnregistered, StrategyUnregistered, 0, ErrorKindConfig, "no requests in fallback chain")
	}

	attempted := make([]string, 0, len(reqs))
	var last Result
	for i, req := range reqs {
		attempted = append(attempted, req.Model)
		last = iv.Invoke(ctx, req)
		if last.Success {
			last.Attempt = i
			return last
		}
		iv.logger.Warn("fallback attempt failed", "model", req.Model, "attempt", i, "kind", last.ErrorKind.String())
	}

	last.Attempt = len(reqs) - 1
	last.Attempted = attempted
	return last
}
