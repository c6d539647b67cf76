package hook

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type Event string

// EventUser2Email fires when the webmail resolves the identities of a user,
// on first login or on every login when extended data is requested.
const EventUser2Email Event = "user2email"

var ErrNoHandler = errors.New("no handler registered for event")

// LoginEvent carries the user2email hook arguments in and the updated
// arguments out. Email is whatever the webmail passed in until a sync
// replaces it with the directory identities.
type LoginEvent struct {
	Login    string `json:"user"`
	First    bool   `json:"first"`
	Extended bool   `json:"extended"`
	Email    any    `json:"email,omitempty"`
	Abort    bool   `json:"abort"`
}

type Handler interface {
	Handle(ctx context.Context, event Event, in LoginEvent) LoginEvent
}

type HandlerFunc func(ctx context.Context, event Event, in LoginEvent) LoginEvent

func (f HandlerFunc) Handle(ctx context.Context, event Event, in LoginEvent) LoginEvent {
	return f(ctx, event, in)
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[Event][]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[Event][]Handler),
	}
}

func (r *Registry) Register(event Event, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = append(r.handlers[event], h)
}

// Dispatch runs the handlers of event in registration order, each one
// receiving the previous one's output. An aborted event stops the chain.
func (r *Registry) Dispatch(ctx context.Context, event Event, in LoginEvent) (LoginEvent, error) {
	r.mu.RLock()
	handlers := r.handlers[event]
	r.mu.RUnlock()

	if len(handlers) == 0 {
		return in, fmt.Errorf("%w: %s", ErrNoHandler, event)
	}

	out := in
	for _, h := range handlers {
		out = h.Handle(ctx, event, out)
		if out.Abort {
			break
		}
	}
	return out, nil
}

func (r *Registry) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := make([]Event, 0, len(r.handlers))
	for e := range r.handlers {
		events = append(events, e)
	}
	return events
}
