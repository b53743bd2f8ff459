package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"courier/contract"
	"courier/domain"
	"courier/domain/event"
)

// Broadcaster owns the registry mutations triggered by connection
// lifecycle events and announces genuine status transitions to every
// live connection. Reconnect supersedes are silent.
//
// Broadcast scope is global, like the original system: every connected
// user hears every transition. Scoping to conversation counterparts is
// a possible optimization, not a correctness requirement.
type Broadcaster struct {
	registry contract.IRegistry
	log      *slog.Logger
}

func NewBroadcaster(registry contract.IRegistry, log *slog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, log: log}
}

// Connect registers the handle and, on an Offline->Online transition,
// broadcasts the new status. The superseded handle (if any) is returned
// so the transport can close it and avoid leaking a dead connection.
func (b *Broadcaster) Connect(ctx context.Context, userID string, h contract.Handle) *contract.Handle {
	prev, wasOnline := b.registry.Register(userID, h)
	if wasOnline {
		b.log.Debug(fmt.Sprintf("Reconnect supersede for %s", userID))
		return prev
	}
	b.announce(ctx, userID, domain.StatusOnline)
	return nil
}

// Disconnect unregisters the handle; stale handles are ignored and
// produce no broadcast.
func (b *Broadcaster) Disconnect(ctx context.Context, userID string, h contract.Handle) {
	if !b.registry.Unregister(userID, h) {
		b.log.Debug(fmt.Sprintf("Stale disconnect ignored for %s", userID))
		return
	}
	b.announce(ctx, userID, domain.StatusOffline)
}

func (b *Broadcaster) announce(ctx context.Context, userID string, status domain.Status) {
	evt := event.PresenceChanged{UserID: userID, Status: status}
	for _, sink := range b.registry.Sinks() {
		if err := sink.Consume(ctx, evt); err != nil {
			b.log.Debug("Presence event dropped", "user_id", userID, "error", err)
		}
	}
}
