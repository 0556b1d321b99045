package invoke

import (
	"sync"
	"time"
)

// StatKey identifies one provider/strategy aggregate.
type StatKey struct {
	Provider Provider
	Strategy Strategy
}

// StatEntry is a running latency aggregate for a provider/strategy pair.
type StatEntry struct {
	Count int
	Min   time.Duration
	Max   time.Duration
	Total time.Duration
}

// Avg returns the mean latency over all recorded calls.
func (e StatEntry) Avg() time.Duration {
	if e.Count == 0 {
		return 0
	}
	return e.Total / time.Duration(e.Count)
}

// Stats serializes aggregate updates from concurrent call completions behind
// a single mutex so no update is lost. Used for operational tuning, not
// correctness.
type Stats struct {
	mu      sync.Mutex
	entries map[StatKey]*StatEntry
}

func newStats() *Stats {
	return &Stats{entries: make(map[StatKey]*StatEntry)}
}

func (s *Stats) record(p Provider, st Strategy, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := StatKey{Provider: p, Strategy: st}
	entry, ok := s.entries[key]
	if !ok {
		entry = &StatEntry{Min: latency, Max: latency}
		s.entries[key] = entry
	}
	entry.Count++
	entry.Total += latency
	if latency < entry.Min {
		entry.Min = latency
	}
	if latency > entry.Max {
		entry.Max = latency
	}
}

// Snapshot returns a copy of the current aggregates safe for caller use.
func (s *Stats) Snapshot() map[StatKey]StatEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[StatKey]StatEntry, len(s.entries))
	for k, v := range s.entries {
		out[k] = *v
	}
	return out
}
