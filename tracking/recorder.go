package tracking

import "sync"

// Recorder is an in-process Tracker buffering records through a channel so a
// slow consumer never stalls the orchestration loops. When the buffer is
// full, records are dropped rather than blocking the caller.
type Recorder struct {
	ch   chan Record
	done chan struct{}

	mu      sync.Mutex
	records []Record
	dropped int

	closeOnce sync.Once
}

// NewRecorder creates a Recorder with the given buffer size (minimum 1).
func NewRecorder(bufferSize int) *Recorder {
	if bufferSize < 1 {
		bufferSize = 1
	}
	r := &Recorder{
		ch:   make(chan Record, bufferSize),
		done: make(chan struct{}),
	}
	go r.drain()
	return r
}

func (r *Recorder) drain() {
	defer close(r.done)
	for rec := range r.ch {
		r.mu.Lock()
		r.records = append(r.records, rec)
		r.mu.Unlock()
	}
}

// Track implements Tracker. Never blocks.
func (r *Recorder) Track(rec Record) {
	select {
	case r.ch <- rec:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
	}
}

// Records returns a snapshot of everything captured so far.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Dropped reports how many records were discarded due to a full buffer.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close stops the drain goroutine and waits for buffered records to land.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.ch)
		<-r.done
	})
}
