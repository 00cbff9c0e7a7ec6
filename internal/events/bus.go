// Package events implements the event bus: best-effort, non-blocking
// fan-out of lifecycle events to external subscribers.
package events

import (
	"time"

	"github.com/deskagent/core/pkg/models"
)

const defaultSubscriberBuffer = 64

// Subscription is a per-subscriber delivery channel. A slow subscriber's
// buffer fills and the bus drops its oldest buffered event rather than
// blocking the decision loop.
type Subscription struct {
	ch     chan models.Event
	cancel func()
}

// Events returns the channel to range over for delivered events.
func (s *Subscription) Events() <-chan models.Event { return s.ch }

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() { s.cancel() }

// Bus is C10. Emit is called from the decision-loop thread and never
// blocks; each subscriber drains its own channel on its own goroutine.
type Bus struct {
	register   chan *subscriberHandle
	unregister chan *subscriberHandle
	publish    chan models.Event
	done       chan struct{}
}

type subscriberHandle struct {
	ch chan models.Event
}

// New starts a Bus. Call Close to stop its dispatch goroutine.
func New() *Bus {
	b := &Bus{
		register:   make(chan *subscriberHandle),
		unregister: make(chan *subscriberHandle),
		publish:    make(chan models.Event, 256),
		done:       make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	subs := make(map[*subscriberHandle]bool)
	for {
		select {
		case <-b.done:
			return
		case h := <-b.register:
			subs[h] = true
		case h := <-b.unregister:
			delete(subs, h)
			close(h.ch)
		case evt := <-b.publish:
			for h := range subs {
				deliverNonBlocking(h.ch, evt)
			}
		}
	}
}

// deliverNonBlocking sends evt to ch, dropping the oldest buffered event
// to make room if ch is full, so a slow subscriber never stalls the bus.
func deliverNonBlocking(ch chan models.Event, evt models.Event) {
	for {
		select {
		case ch <- evt:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// Subscribe registers a new subscriber with its own buffered delivery
// channel.
func (b *Bus) Subscribe() *Subscription {
	h := &subscriberHandle{ch: make(chan models.Event, defaultSubscriberBuffer)}
	select {
	case b.register <- h:
	case <-b.done:
	}
	sub := &Subscription{ch: h.ch}
	sub.cancel = func() {
		select {
		case b.unregister <- h:
		case <-b.done:
		}
	}
	return sub
}

// Emit publishes an event of the given kind with the given data payload.
func (b *Bus) Emit(kind models.EventKind, data any) {
	select {
	case b.publish <- models.Event{Kind: kind, Data: data, TimestampMS: time.Now().UnixMilli()}:
	case <-b.done:
	}
}

// Close stops the bus's dispatch goroutine.
func (b *Bus) Close() {
	close(b.done)
}
