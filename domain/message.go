// Package domain contains core concepts of the messaging system.
// This file defines direct messages and the read-state rules attached to them.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is an immutable direct message between two users.
// Only the read flag may change after creation; ReadAt is stamped
// exactly once, on the first transition to read.
type Message struct {
	ID        uuid.UUID
	Sender    string
	Recipient string
	Content   string
	CreatedAt time.Time
	Read      bool
	ReadAt    *time.Time
}

// Counterpart returns the other party of the message from the point of
// view of the given user.
func (m Message) Counterpart(viewer string) string {
	if m.Sender == viewer {
		return m.Recipient
	}
	return m.Sender
}

// PairKey builds the canonical conversation key for two users.
// The lexicographically smaller identifier always comes first, so both
// directions of a conversation map to the same key.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
