package runtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"courier/contract"
	"courier/domain/event"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func typingEvents(sink *recordSink) []event.TypingChanged {
	return lo.FilterMap(sink.All(), func(e event.DomainEvent, _ int) (event.TypingChanged, bool) {
		typing, ok := e.(event.TypingChanged)
		return typing, ok
	})
}

func newTypingFixture(t *testing.T, expiry time.Duration) (*TypingManager, *recordSink) {
	t.Helper()
	registry := NewRegistry()
	sink := &recordSink{}
	registry.Register("bob", contract.Handle{ConnID: uuid.NewString(), Sink: sink})
	manager := NewTypingManager(NewRouter(registry, slog.Default()), expiry)
	t.Cleanup(manager.Stop)
	return manager, sink
}

func TestTyping_On_Is_Delivered_Once(t *testing.T) {
	req := require.New(t)
	manager, sink := newTypingFixture(t, time.Minute)

	req.True(manager.SetTyping(context.Background(), "alice", "bob", true))

	events := typingEvents(sink)
	req.Len(events, 1)
	req.True(events[0].IsTyping)
	req.Equal("alice", events[0].Sender)
}

func TestTyping_Expires_Without_Explicit_Off(t *testing.T) {
	req := require.New(t)
	manager, sink := newTypingFixture(t, 30*time.Millisecond)

	manager.SetTyping(context.Background(), "alice", "bob", true)

	// Then the auto-off fires on its own
	req.Eventually(func() bool {
		events := typingEvents(sink)
		return len(events) == 2 && !events[1].IsTyping
	}, time.Second, 5*time.Millisecond)
}

func TestTyping_Refresh_Reschedules_Expiry(t *testing.T) {
	req := require.New(t)
	manager, sink := newTypingFixture(t, 60*time.Millisecond)

	// Given a typing-on refreshed before it expires
	manager.SetTyping(context.Background(), "alice", "bob", true)
	time.Sleep(35 * time.Millisecond)
	manager.SetTyping(context.Background(), "alice", "bob", true)
	time.Sleep(35 * time.Millisecond)

	// Then no auto-off has fired yet, the refresh reset the clock
	events := typingEvents(sink)
	req.Len(events, 2)
	req.True(events[0].IsTyping)
	req.True(events[1].IsTyping)

	// And it still expires once the refreshed window elapses
	req.Eventually(func() bool {
		events := typingEvents(sink)
		return len(events) == 3 && !events[2].IsTyping
	}, time.Second, 5*time.Millisecond)
}

func TestTyping_Explicit_Off_Cancels_Timer(t *testing.T) {
	req := require.New(t)
	manager, sink := newTypingFixture(t, 30*time.Millisecond)

	manager.SetTyping(context.Background(), "alice", "bob", true)
	manager.SetTyping(context.Background(), "alice", "bob", false)

	// The canceled timer must not produce a third event
	time.Sleep(60 * time.Millisecond)
	events := typingEvents(sink)
	req.Len(events, 2)
	req.True(events[0].IsTyping)
	req.False(events[1].IsTyping)
}
