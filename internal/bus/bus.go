package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Topic names events on the bus.
type Topic string

const (
	TopicAnalysisComplete Topic = "analysis.complete"
	TopicDetectorAlert    Topic = "detector.alert"
)

// Event is the unit passed through the bus.
type Event struct {
	ID        uuid.UUID
	Topic     Topic
	Ticker    string
	Timestamp int64             // Event timestamp (ms since epoch), 0 if not applicable
	At        time.Time         // Publish time
	Fields    map[string]string // Topic-specific payload
}

// Bus fans published events out to subscribers. The zero value is not
// usable; construct with New.
type Bus struct {
	mu      sync.RWMutex
	subs    []*subscriber
	bufSize int
	closed  bool

	published atomic.Int64
	dropped   atomic.Int64
}

type subscriber struct {
	ch     chan Event
	topics map[Topic]struct{} // nil = all topics
}

// New creates a bus whose subscriber channels buffer bufSize events.
func New(bufSize int) *Bus {
	if bufSize < 1 {
		bufSize = 1
	}
	return &Bus{bufSize: bufSize}
}

// Subscribe registers a subscriber for the given topics (all topics
// when none are given) and returns its receive channel. The channel is
// closed by Close.
func (b *Bus) Subscribe(topics ...Topic) <-chan Event {
	sub := &subscriber{ch: make(chan Event, b.bufSize)}
	if len(topics) > 0 {
		sub.topics = make(map[Topic]struct{}, len(topics))
		for _, t := range topics {
			sub.topics[t] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub.ch
	}
	b.subs = append(b.subs, sub)
	return sub.ch
}

// Publish delivers an event to all matching subscribers without
// blocking. Events to full subscriber channels are dropped.
func (b *Bus) Publish(e Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	b.published.Add(1)
	for _, sub := range b.subs {
		if sub.topics != nil {
			if _, ok := sub.topics[e.Topic]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Stats returns publish and drop counters.
func (b *Bus) Stats() (published, dropped int64) {
	return b.published.Load(), b.dropped.Load()
}

// Close closes all subscriber channels. Publish after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}
