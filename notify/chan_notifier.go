package notify

import "sync"

// ChanNotifier fans updates out to subscriber channels. Delivery is
// best-effort: a full subscriber channel drops the update rather than
// blocking the sender.
type ChanNotifier struct {
	mu      sync.Mutex
	subs    []chan Update
	bufSize int
	closed  bool
}

// NewChanNotifier creates a notifier whose subscriber channels hold up to
// bufSize pending updates each.
func NewChanNotifier(bufSize int) *ChanNotifier {
	if bufSize <= 0 {
		bufSize = 16
	}
	return &ChanNotifier{bufSize: bufSize}
}

// Subscribe registers a new subscriber and returns its channel. The channel
// is closed when Close is called.
func (n *ChanNotifier) Subscribe() <-chan Update {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan Update, n.bufSize)
	if n.closed {
		close(ch)
		return ch
	}
	n.subs = append(n.subs, ch)
	return ch
}

// Notify delivers the update to every subscriber that has buffer room.
func (n *ChanNotifier) Notify(u Update) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	for _, ch := range n.subs {
		select {
		case ch <- u:
		default:
			// Subscriber is behind, drop.
		}
	}
}

// Close closes all subscriber channels. Further updates are discarded.
func (n *ChanNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for _, ch := range n.subs {
		close(ch)
	}
	n.subs = nil
}
