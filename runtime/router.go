package runtime

import (
	"context"
	"log/slog"

	"courier/contract"
	"courier/domain/event"
)

// Router delivers point-to-point events to the recipient's live
// connection. Delivery is at-most-once and best-effort: an absent
// recipient or a full connection buffer drops the event without error,
// and the message store stays the authoritative record.
type Router struct {
	registry contract.IRegistry
	log      *slog.Logger
}

func NewRouter(registry contract.IRegistry, log *slog.Logger) *Router {
	return &Router{registry: registry, log: log}
}

func (r *Router) RouteMessage(ctx context.Context, recipient string, e event.MessageDelivered) bool {
	return r.deliver(ctx, recipient, e)
}

func (r *Router) RouteTyping(ctx context.Context, recipient string, e event.TypingChanged) bool {
	return r.deliver(ctx, recipient, e)
}

func (r *Router) deliver(ctx context.Context, recipient string, e event.DomainEvent) bool {
	handle, ok := r.registry.Lookup(recipient)
	if !ok {
		r.log.Debug("Recipient not connected, event dropped",
			"recipient", recipient, "kind", e.Kind())
		return false
	}
	if err := handle.Sink.Consume(ctx, e); err != nil {
		r.log.Debug("Event delivery failed",
			"recipient", recipient, "kind", e.Kind(), "error", err)
		return false
	}
	return true
}
