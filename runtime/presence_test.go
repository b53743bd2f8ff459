package runtime

import (
	"context"
	"log/slog"
	"testing"

	"courier/contract"
	"courier/domain"
	"courier/domain/event"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func presenceEvents(sink *recordSink) []event.PresenceChanged {
	return lo.FilterMap(sink.All(), func(e event.DomainEvent, _ int) (event.PresenceChanged, bool) {
		presence, ok := e.(event.PresenceChanged)
		return presence, ok
	})
}

func TestBroadcaster_Announces_Online_To_Everyone(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, slog.Default())
	ctx := context.Background()

	// Given alice already connected
	aliceSink := &recordSink{}
	broadcaster.Connect(ctx, "alice", contract.Handle{ConnID: uuid.NewString(), Sink: aliceSink})

	// When bob connects
	bobSink := &recordSink{}
	broadcaster.Connect(ctx, "bob", contract.Handle{ConnID: uuid.NewString(), Sink: bobSink})

	// Then both connections hear bob going online
	aliceEvents := presenceEvents(aliceSink)
	req.Len(aliceEvents, 2) // their own online + bob's
	req.Equal("bob", aliceEvents[1].UserID)
	req.Equal(domain.StatusOnline, aliceEvents[1].Status)

	bobEvents := presenceEvents(bobSink)
	req.Len(bobEvents, 1)
	req.Equal("bob", bobEvents[0].UserID)
}

func TestBroadcaster_Disconnect_Announces_Offline(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, slog.Default())
	ctx := context.Background()

	aliceSink := &recordSink{}
	broadcaster.Connect(ctx, "alice", contract.Handle{ConnID: uuid.NewString(), Sink: aliceSink})
	bobHandle := contract.Handle{ConnID: uuid.NewString(), Sink: &recordSink{}}
	broadcaster.Connect(ctx, "bob", bobHandle)

	// When bob disconnects
	broadcaster.Disconnect(ctx, "bob", bobHandle)

	// Then alice hears the offline transition
	aliceEvents := presenceEvents(aliceSink)
	last := aliceEvents[len(aliceEvents)-1]
	req.Equal("bob", last.UserID)
	req.Equal(domain.StatusOffline, last.Status)
	// bob is gone from the snapshot, alice remains
	req.Equal([]string{"alice"}, lo.Keys(registry.Snapshot()))
}

func TestBroadcaster_Reconnect_Is_Silent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, slog.Default())
	ctx := context.Background()

	observer := &recordSink{}
	broadcaster.Connect(ctx, "alice", contract.Handle{ConnID: uuid.NewString(), Sink: observer})

	h1 := contract.Handle{ConnID: uuid.NewString(), Sink: &recordSink{}}
	broadcaster.Connect(ctx, "bob", h1)
	before := len(presenceEvents(observer))

	// When bob reconnects with a fresh handle
	h2 := contract.Handle{ConnID: uuid.NewString(), Sink: &recordSink{}}
	prev := broadcaster.Connect(ctx, "bob", h2)

	// Then the supersede produced no broadcast and handed the old handle back
	req.NotNil(prev)
	req.Equal(h1.ConnID, prev.ConnID)
	req.Len(presenceEvents(observer), before)

	// And the stale disconnect stays silent too
	broadcaster.Disconnect(ctx, "bob", h1)
	req.Len(presenceEvents(observer), before)
	_, ok := registry.Lookup("bob")
	req.True(ok)
}
