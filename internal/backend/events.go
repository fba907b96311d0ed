package backend

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventKind names an authentication state change.
type EventKind string

const (
	EventSignedIn       EventKind = "signed_in"
	EventSignedOut      EventKind = "signed_out"
	EventTokenRefreshed EventKind = "token_refreshed"
	EventProfileUpdated EventKind = "profile_updated"
)

// AuthEvent is delivered to subscribers whenever a session or profile changes.
type AuthEvent struct {
	Kind   EventKind `json:"kind"`
	UserID string    `json:"userId"`
	At     time.Time `json:"at"`
}

const subscriberBuffer = 16

// Events fans authentication state changes out to subscribers.
type Events struct {
	logger *slog.Logger
	mu     sync.Mutex
	subs   map[int]chan AuthEvent
	next   int
}

// NewEvents builds an empty event hub.
func NewEvents(logger *slog.Logger) *Events {
	if logger == nil {
		logger = slog.Default()
	}
	return &Events{
		logger: logger.With("component", "auth_events"),
		subs:   make(map[int]chan AuthEvent),
	}
}

// Subscribe returns a channel receiving events until ctx is done, after which
// the channel is closed.
func (e *Events) Subscribe(ctx context.Context) <-chan AuthEvent {
	ch := make(chan AuthEvent, subscriberBuffer)
	e.mu.Lock()
	id := e.next
	e.next++
	e.subs[id] = ch
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
		close(ch)
	}()
	return ch
}

// Publish delivers evt to every subscriber without blocking. Slow subscribers
// miss events rather than stall the publisher.
func (e *Events) Publish(evt AuthEvent) {
	if e == nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.subs {
		select {
		case ch <- evt:
		default:
			e.logger.Warn("dropping auth event for slow subscriber", "subscriber", id, "kind", evt.Kind)
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (e *Events) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}
