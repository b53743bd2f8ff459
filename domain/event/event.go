// Package event defines the events pushed over live connections.
// Events are ephemeral: dropping one is never an error, the message
// store remains the single source of truth.
package event

import "courier/domain"

// DomainEvent is anything that can be pushed to a connected user.
type DomainEvent interface {
	Kind() string
}

// MessageDelivered carries a freshly stored message to its recipient's
// live connection.
type MessageDelivered struct {
	Message domain.Message
}

func (MessageDelivered) Kind() string { return "message" }

// PresenceChanged announces an online/offline transition.
type PresenceChanged struct {
	UserID string
	Status domain.Status
}

func (PresenceChanged) Kind() string { return "presence" }

// TypingChanged signals that a user started or stopped typing to the
// recipient. Never persisted, never retried.
type TypingChanged struct {
	Sender    string
	Recipient string
	IsTyping  bool
}

func (TypingChanged) Kind() string { return "typing" }
