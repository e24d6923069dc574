package syncer

import (
	"sync"
	"time"
)

// Event is one milestone of a sync run, delivered to in-process
// subscribers. Shop is carried on the event itself so consumers can
// route without decoding the payload.
type Event struct {
	Type      EventType
	Shop      string
	Timestamp time.Time
	Payload   any
}

type SubscriberID int

type subscription struct {
	types []EventType
	fn    func(Event)
}

func (s subscription) matches(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	for _, st := range s.types {
		if st == t {
			return true
		}
	}
	return false
}

// EventBus fans sync events out to registered handlers. Handlers run
// on the emitting goroutine and must not block.
type EventBus struct {
	mu     sync.RWMutex
	nextID SubscriberID
	subs   map[SubscriberID]subscription
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[SubscriberID]subscription)}
}

// Subscribe registers fn for the named event types, or for every event
// when no types are given.
func (b *EventBus) Subscribe(fn func(Event), types ...EventType) SubscriberID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[b.nextID] = subscription{types: types, fn: fn}
	return b.nextID
}

func (b *EventBus) Unsubscribe(id SubscriberID) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Emit stamps the event and delivers it to every matching subscriber.
func (b *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	matched := make([]func(Event), 0, len(b.subs))
	for _, s := range b.subs {
		if s.matches(evt.Type) {
			matched = append(matched, s.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range matched {
		fn(evt)
	}
}
