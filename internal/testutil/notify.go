package testutil

import (
	"context"
	"sync"

	"storefront_ledger/internal/domain"
)

// RecordingEmitter captures emitted events in order
type RecordingEmitter struct {
	mu     sync.Mutex
	events []domain.Event
}

// Emit records the event
func (r *RecordingEmitter) Emit(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of what was recorded
func (r *RecordingEmitter) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}
