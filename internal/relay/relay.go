// Package relay delivers session events to the one live stream connection
// bound to a session.
//
// A Relay has at most one Subscription. Publishing while nothing is bound is
// a no-op: events are not queued for clients that connect later.
package relay

import (
	"errors"
	"sync"
)

// Kind tags an event on the wire.
type Kind string

const (
	KindStart        Kind = "start"
	KindHook         Kind = "hook"
	KindHookResponse Kind = "hookResponse"
)

var ErrAlreadyBound = errors.New("relay already has a bound stream")

// Event is one published item. An empty ID lets the connection assign the
// next value of its own counter.
type Event struct {
	Kind    Kind
	ID      string
	Payload any
}

type Relay struct {
	mu     sync.RWMutex
	sub    *Subscription
	buffer int
}

// New returns an unbound relay whose subscriptions queue up to buffer events.
// The queue always holds at least one event so the start event can be
// published before the consumer runs.
func New(buffer int) *Relay {
	if buffer < 1 {
		buffer = 1
	}
	return &Relay{buffer: buffer}
}

// Bind attaches a new subscription. Only one may be bound at a time.
func (r *Relay) Bind() (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sub != nil {
		return nil, ErrAlreadyBound
	}
	r.sub = &Subscription{
		events: make(chan Event, r.buffer),
		done:   make(chan struct{}),
	}
	return r.sub, nil
}

// Unbind releases sub if it is the bound subscription. Publishers blocked on
// it return immediately.
func (r *Relay) Unbind(sub *Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	if r.sub == sub {
		r.sub = nil
	}
	r.mu.Unlock()
	sub.release()
}

// Close releases whatever subscription is bound.
func (r *Relay) Close() {
	r.mu.RLock()
	sub := r.sub
	r.mu.RUnlock()
	r.Unbind(sub)
}

func (r *Relay) Bound() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sub != nil
}

// Publish queues an event with a connection-assigned id. It reports whether
// the event was handed to a bound subscription.
func (r *Relay) Publish(kind Kind, payload any) bool {
	return r.PublishEvent(Event{Kind: kind, Payload: payload})
}

// PublishWithID queues an event carrying an explicit id.
func (r *Relay) PublishWithID(kind Kind, payload any, id string) bool {
	return r.PublishEvent(Event{Kind: kind, ID: id, Payload: payload})
}

func (r *Relay) PublishEvent(ev Event) bool {
	r.mu.RLock()
	sub := r.sub
	r.mu.RUnlock()

	if sub == nil {
		return false
	}

	select {
	case <-sub.done:
		return false
	default:
	}

	select {
	case sub.events <- ev:
		return true
	case <-sub.done:
		return false
	}
}

// Subscription is the consuming end of a relay. Events arrive in publish
// order.
type Subscription struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Done is closed once the subscription has been released.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) release() {
	s.once.Do(func() { close(s.done) })
}
