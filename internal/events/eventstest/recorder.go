// Package eventstest provides an in-memory events.Publisher for tests.
package eventstest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/loomperapp-jpg/loomper-backend/internal/events"
)

// Recorder keeps every published ledger event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []events.LedgerEvent
}

var _ events.Publisher = (*Recorder)(nil)

func (r *Recorder) Publish(_ context.Context, _ string, payload []byte, _ string) error {
	var ev events.LedgerEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []events.LedgerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.LedgerEvent, len(r.events))
	copy(out, r.events)
	return out
}

// OfType filters recorded events by type.
func (r *Recorder) OfType(eventType string) []events.LedgerEvent {
	var out []events.LedgerEvent
	for _, ev := range r.Events() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
