package runtime

import (
	"context"
	"sync"
	"time"

	"courier/contract"
	"courier/domain/event"
)

// DefaultTypingExpiry clears a typing flag when no refresh arrives.
const DefaultTypingExpiry = 3 * time.Second

type pairID struct {
	sender    string
	recipient string
}

type typingTimer struct {
	timer *time.Timer
	token uint64
}

// TypingManager holds the ephemeral typing flags, one per
// (sender, recipient) pair, with automatic expiry. Nothing here is ever
// persisted and no call blocks on delivery.
type TypingManager struct {
	router contract.IRouter
	expiry time.Duration

	mu        sync.Mutex
	nextToken uint64
	timers    map[pairID]typingTimer
}

func NewTypingManager(router contract.IRouter, expiry time.Duration) *TypingManager {
	if expiry <= 0 {
		expiry = DefaultTypingExpiry
	}
	return &TypingManager{
		router: router,
		expiry: expiry,
		timers: make(map[pairID]typingTimer),
	}
}

// SetTyping routes the typing signal and manages the auto-off timer.
// A typing-on (re)schedules the expiry, cancelling any pending timer
// for the same pair; a typing-off fires immediately and cancels. The
// lock makes cancel-and-reschedule atomic with a concurrent expiry.
func (t *TypingManager) SetTyping(ctx context.Context, sender, recipient string, isTyping bool) bool {
	pair := pairID{sender: sender, recipient: recipient}

	t.mu.Lock()
	if entry, ok := t.timers[pair]; ok {
		entry.timer.Stop()
		delete(t.timers, pair)
	}
	if isTyping {
		t.nextToken++
		token := t.nextToken
		timer := time.AfterFunc(t.expiry, func() {
			t.expire(pair, token)
		})
		t.timers[pair] = typingTimer{timer: timer, token: token}
	}
	t.mu.Unlock()

	return t.router.RouteTyping(ctx, recipient, event.TypingChanged{
		Sender:    sender,
		Recipient: recipient,
		IsTyping:  isTyping,
	})
}

// expire fires the auto-off for a pair whose timer elapsed. A fired
// timer that was superseded by a fresh SetTyping finds a different
// token registered for the pair and must do nothing, otherwise it
// would clear a flag that was just refreshed.
func (t *TypingManager) expire(pair pairID, token uint64) {
	t.mu.Lock()
	current, ok := t.timers[pair]
	if !ok || current.token != token {
		t.mu.Unlock()
		return
	}
	delete(t.timers, pair)
	t.mu.Unlock()

	t.router.RouteTyping(context.Background(), pair.recipient, event.TypingChanged{
		Sender:    pair.sender,
		Recipient: pair.recipient,
		IsTyping:  false,
	})
}

// Stop cancels every pending timer. Used at shutdown.
func (t *TypingManager) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for pair, entry := range t.timers {
		entry.timer.Stop()
		delete(t.timers, pair)
	}
}
