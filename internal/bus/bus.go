// Package bus implements the typed, tag-scoped publish/subscribe event
// bus (C1) that binds the broker facade's components together.
package bus

import (
	"sync"

	"github.com/yanun0323/logs"

	"github.com/ktrader-tech/broker-facade/internal/obs"
	"github.com/ktrader-tech/broker-facade/internal/schema"
)

// Handler receives a posted event. Handlers must not block: long-running
// work belongs on a background goroutine started by the subscriber.
type Handler func(event schema.BrokerEvent)

type subscriber struct {
	tag     string
	handler Handler
}

// Bus is a typed pub/sub broker. All operations are safe for concurrent
// use. For a single emitter, subscribers observe events in the order
// they were posted; ordering across distinct emitters is unspecified.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[schema.EventType][]subscriber
	closed      bool
	inFlight    sync.WaitGroup
	metrics     *obs.Metrics
}

// New creates an empty event bus.
func New() *Bus {
	return &Bus{subscribers: make(map[schema.EventType][]subscriber)}
}

// SetMetrics attaches the counters Post reports into. Nil disables
// reporting; the zero value already does, since m is nil until set.
func (b *Bus) SetMetrics(m *obs.Metrics) {
	b.mu.Lock()
	b.metrics = m
	b.mu.Unlock()
}

// Subscribe registers handler under tag for every type in types. tag
// identifies the owning component so it can later revoke every
// subscription it holds via RemoveSubscribersByTag.
func (b *Bus) Subscribe(types []schema.EventType, tag string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, t := range types {
		b.subscribers[t] = append(b.subscribers[t], subscriber{tag: tag, handler: handler})
	}
}

// RemoveSubscribersByTag revokes every subscription registered under tag,
// across every event type.
func (b *Bus) RemoveSubscribersByTag(tag string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for t, subs := range b.subscribers {
		kept := subs[:0]
		for _, s := range subs {
			if s.tag != tag {
				kept = append(kept, s)
			}
		}
		b.subscribers[t] = kept
	}
}

// Post delivers event to every subscriber of event.Type, synchronously,
// in FIFO subscription order. Post is safe to call re-entrantly from
// within a handler.
func (b *Bus) Post(event schema.BrokerEvent) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := append([]subscriber(nil), b.subscribers[event.Type]...)
	metrics := b.metrics
	b.inFlight.Add(1)
	b.mu.RUnlock()
	defer b.inFlight.Done()

	metrics.ObserveEvent(event.Type)

	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logs.Errorf("bus: handler panic tag=%s type=%s recover=%v", s.tag, event.Type.String(), r)
				}
			}()
			s.handler(event)
		}()
	}
}

// Release marks the bus closed to new posts/subscriptions and waits for
// every in-flight Post call to finish delivering.
func (b *Bus) Release() {
	b.mu.Lock()
	b.closed = true
	b.subscribers = make(map[schema.EventType][]subscriber)
	b.mu.Unlock()
	b.inFlight.Wait()
}
