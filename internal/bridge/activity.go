package bridge

import (
	"sync"
	"time"
)

const defaultActivityLimit = 256

// ActivityEvent is one observable thing the bridge did: a routed
// notification or an executed command.
type ActivityEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	IssueID   int64     `json:"issueId,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// ActivityFeed fans bridge activity out to live subscribers and keeps a
// bounded ring of recent events. Publishing never blocks: a subscriber that
// cannot keep up misses events rather than stalling an invocation.
type ActivityFeed struct {
	mu          sync.Mutex
	limit       int
	recent      []ActivityEvent
	subscribers map[chan ActivityEvent]struct{}
}

func NewActivityFeed(limit int) *ActivityFeed {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	return &ActivityFeed{
		limit:       limit,
		subscribers: map[chan ActivityEvent]struct{}{},
	}
}

func (f *ActivityFeed) Publish(ev ActivityEvent) {
	if f == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recent = append(f.recent, ev)
	if len(f.recent) > f.limit {
		f.recent = f.recent[len(f.recent)-f.limit:]
	}
	for ch := range f.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a listener. The returned cancel func must be called to
// release it; the channel is closed on cancel.
func (f *ActivityFeed) Subscribe() (<-chan ActivityEvent, func()) {
	ch := make(chan ActivityEvent, 16)
	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subscribers, ch)
			f.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Recent returns a copy of the retained events, oldest first.
func (f *ActivityFeed) Recent() []ActivityEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ActivityEvent, len(f.recent))
	copy(out, f.recent)
	return out
}
