// Package statusbus fans workflow state changes out to live observers.
//
// Publish never blocks: a subscriber whose channel is full misses that
// update and the drop is counted. Observers only care about the newest state,
// and every published value is a full snapshot, so a missed update is
// repaired by the next one.
//
//	bus := statusbus.New[selfieworkflow.Snapshot]()
//	defer bus.Close()
//
//	ch := make(chan selfieworkflow.Snapshot, 8)
//	_ = bus.Subscribe("kiosk-screen", ch)
//	defer bus.Unsubscribe("kiosk-screen")
package statusbus

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate id.
	ErrSubscriberExists = errors.New("subscriber id already exists")
	// ErrSubscriberNotFound is returned when Unsubscribe is called with an unknown id.
	ErrSubscriberNotFound = errors.New("subscriber id not found")
	// ErrBusClosed is returned by Subscribe and Unsubscribe after Close.
	ErrBusClosed = errors.New("bus is closed")
)

// Stats is a point-in-time view of the bus counters.
type Stats struct {
	Published   uint64
	Sent        uint64
	Dropped     uint64
	Subscribers map[string]SubscriberStats
}

// SubscriberStats counts deliveries to one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type subscriber[T any] struct {
	ch      chan<- T
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Bus distributes values of T to subscribers. The zero value is not usable; call New.
type Bus[T any] struct {
	mu        sync.RWMutex
	subs      map[string]*subscriber[T]
	closed    bool
	published atomic.Uint64
}

// New returns an open bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[string]*subscriber[T])}
}

// Subscribe registers ch under id. The bus never closes ch.
func (b *Bus[T]) Subscribe(id string, ch chan<- T) error {
	if ch == nil {
		return errors.New("subscriber channel cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if _, ok := b.subs[id]; ok {
		return ErrSubscriberExists
	}
	b.subs[id] = &subscriber[T]{ch: ch}
	return nil
}

// Unsubscribe removes id. Once it returns no further sends reach its channel.
func (b *Bus[T]) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if _, ok := b.subs[id]; !ok {
		return ErrSubscriberNotFound
	}
	delete(b.subs, id)
	return nil
}

// Publish offers v to every subscriber without blocking. It is a no-op after
// Close, so late state changes during shutdown are harmless.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	b.published.Add(1)
	for _, s := range b.subs {
		select {
		case s.ch <- v:
			s.sent.Add(1)
		default:
			s.dropped.Add(1)
		}
	}
}

// Len returns the number of subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Stats returns the current counters.
func (b *Bus[T]) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := Stats{
		Published:   b.published.Load(),
		Subscribers: make(map[string]SubscriberStats, len(b.subs)),
	}
	for id, s := range b.subs {
		st := SubscriberStats{Sent: s.sent.Load(), Dropped: s.dropped.Load()}
		out.Sent += st.Sent
		out.Dropped += st.Dropped
		out.Subscribers[id] = st
	}
	return out
}

// Close drops all subscribers. Idempotent.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = map[string]*subscriber[T]{}
}
