package invoke

import "sync"

// CallLimiter enforces a maximum number of model calls across an Invoker's
// lifetime. Zero max means unlimited. It is the cost-control backstop for
// long-running orchestrations; the loop iteration caps remain the primary
// runaway-prevention mechanism.
type CallLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewCallLimiter creates a limiter allowing up to max calls (0 = unlimited).
func NewCallLimiter(max int) *CallLimiter {
	return &CallLimiter{max: max}
}

// Take consumes one call from the budget, reporting whether it was granted.
func (l *CallLimiter) Take() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	if l.max > 0 && l.count > l.max {
		l.count = l.max
		return false
	}
	return true
}

// Count returns how many calls have been granted so far.
func (l *CallLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Remaining returns how many calls are left, or -1 when unlimited.
func (l *CallLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max == 0 {
		return -1
	}
	return l.max - l.count
}
