package guard

import (
	"context"
	"log/slog"

	"pechincha/internal/backend"
	"pechincha/internal/session"
)

// invalidator is implemented by resolvers that cache profiles.
type invalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Watcher re-evaluates a location whenever the backend reports an auth change.
type Watcher struct {
	guard  *Guard
	events *backend.Events
	logger *slog.Logger
}

// NewWatcher builds a watcher over g and the auth event hub.
func NewWatcher(g *Guard, events *backend.Events, logger *slog.Logger) *Watcher {
	return &Watcher{guard: g, events: events, logger: logger.With("component", "guard_watcher")}
}

// Watch emits the Unresolved decision for location, then the resolved one,
// then a fresh decision after every auth event or credential update. The
// channel closes when ctx is done.
func (w *Watcher) Watch(ctx context.Context, location string, cred session.Credential, updates <-chan session.Credential) <-chan Decision {
	out := make(chan Decision, 4)
	events := w.events.Subscribe(ctx)

	go func() {
		defer close(out)
		emit := func(d Decision) bool {
			select {
			case out <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}
		resolve := func() bool {
			d, _ := w.guard.Check(ctx, location, cred)
			if ctx.Err() != nil {
				return false
			}
			return emit(d)
		}

		if !emit(w.guard.policy.Evaluate(location, nil)) || !resolve() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				w.logger.Debug("re-resolving after auth event", "kind", evt.Kind, "location", location)
				if inv, ok := w.guard.resolver.(invalidator); ok && evt.UserID != "" {
					inv.Invalidate(ctx, evt.UserID)
				}
			case next, ok := <-updates:
				if !ok {
					updates = nil
					continue
				}
				cred = next
			}
			if !resolve() {
				return
			}
		}
	}()
	return out
}
