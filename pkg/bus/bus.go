// Package bus implements the in-process publish/subscribe dispatcher for
// state-change events. Publish is a synchronous fan-out to every matching
// subscriber; a subscriber that fails (error or panic) is logged and
// skipped for that event only, never removed and never allowed to block
// delivery to the others.
package bus

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"hive/pkg/protocol"

	"github.com/google/uuid"
)

// Filter narrows which events a subscriber receives. A zero Filter matches
// everything.
type Filter struct {
	ProjectNumbers []int
	Types          []protocol.EventType
}

// Matches reports whether ev passes the filter.
func (f Filter) Matches(ev protocol.StateChangeEvent) bool {
	if len(f.ProjectNumbers) > 0 {
		found := false
		for _, p := range f.ProjectNumbers {
			if p == ev.ProjectNumber {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == ev.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Handler consumes one event. Returning an error marks the delivery failed
// for this subscriber; it does not affect other subscribers or future
// deliveries to this one.
type Handler func(protocol.StateChangeEvent) error

type subscriber struct {
	id       string
	filter   Filter
	handler  Handler
	failures atomic.Int64
}

// Bus is the event dispatcher. The zero value is not usable; call New.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*subscriber

	// logf reports subscriber failures. Defaults to log.Printf.
	logf func(format string, args ...any)

	published atomic.Int64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[string]*subscriber),
		logf: log.Printf,
	}
}

// Subscribe registers handler under a fresh handle and returns the handle.
func (b *Bus) Subscribe(filter Filter, handler Handler) string {
	id := "sub-" + uuid.NewString()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id] = &subscriber{id: id, filter: filter, handler: handler}
	return id
}

// Unsubscribe removes the subscription for handle. Unknown handles fail
// loudly.
func (b *Bus) Unsubscribe(handle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[handle]; !ok {
		return fmt.Errorf("no subscription %s", handle)
	}
	delete(b.subs, handle)
	return nil
}

// Publish delivers ev to every subscriber whose filter matches. Delivery
// is synchronous: Publish returns after every matching handler has run.
// Handler errors and panics are isolated per subscriber.
func (b *Bus) Publish(ev protocol.StateChangeEvent) {
	b.published.Add(1)

	b.mu.RLock()
	matching := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.filter.Matches(ev) {
			matching = append(matching, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range matching {
		b.deliver(s, ev)
	}
}

// deliver runs one handler, converting panics into logged failures.
func (b *Bus) deliver(s *subscriber, ev protocol.StateChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.failures.Add(1)
			b.logf("bus: subscriber %s panicked on %s: %v", s.id, ev.Type, r)
		}
	}()

	if err := s.handler(ev); err != nil {
		s.failures.Add(1)
		b.logf("bus: subscriber %s failed on %s: %v", s.id, ev.Type, err)
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// PublishedCount returns the total number of events published.
func (b *Bus) PublishedCount() int64 {
	return b.published.Load()
}

// Failures returns the failure count recorded for handle, or -1 if the
// handle is unknown.
func (b *Bus) Failures(handle string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.subs[handle]
	if !ok {
		return -1
	}
	return s.failures.Load()
}
