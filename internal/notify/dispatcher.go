// Package notify delivers post-commit events to fire-and-forget sinks.
//
// Emit never blocks and never reports delivery failure to the caller, so a
// broken sink cannot influence the ledger transaction that produced the event.
package notify

import (
	"context"
	"sync"
	"time"

	"storefront_ledger/internal/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Emitter accepts events after a transaction has committed
type Emitter interface {
	Emit(ctx context.Context, ev domain.Event)
}

// Sink delivers one event to an outside system
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev domain.Event) error
}

// NopEmitter drops every event
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, domain.Event) {}

// Dispatcher queues events and fans them out to sinks on a single worker
type Dispatcher struct {
	sinks   []Sink
	events  chan domain.Event
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts the delivery worker. buffer bounds the number of
// undelivered events; beyond it new events are dropped with a warning.
func NewDispatcher(buffer int, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	d := &Dispatcher{
		sinks:   sinks,
		events:  make(chan domain.Event, buffer),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit stamps and enqueues the event without blocking
func (d *Dispatcher) Emit(_ context.Context, ev domain.Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		logrus.WithField("kind", ev.Kind).Warn("Notification dropped, dispatcher closed")
		return
	}
	select {
	case d.events <- ev:
	default:
		logrus.WithFields(logrus.Fields{
			"kind":       ev.Kind,
			"account_id": ev.AccountID,
		}).Warn("Notification dropped, buffer full")
	}
}

// Close stops accepting events and waits for queued ones to be delivered
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.events {
		for _, s := range d.sinks {
			d.deliver(s, ev)
		}
	}
}

func (d *Dispatcher) deliver(s Sink, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"sink":  s.Name(),
				"kind":  ev.Kind,
				"panic": r,
			}).Error("Notification sink panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := s.Deliver(ctx, ev); err != nil {
		logrus.WithFields(logrus.Fields{
			"sink":       s.Name(),
			"kind":       ev.Kind,
			"account_id": ev.AccountID,
			"error":      err.Error(),
		}).Warn("Notification delivery failed")
	}
}

var _ Emitter = (*Dispatcher)(nil)
