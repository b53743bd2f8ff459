package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"courier/contract"
	"courier/domain"
	"courier/domain/event"
	"courier/errors"
	"courier/mocks"
	"courier/repositories"
	"courier/runtime"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	messages      *repositories.MessageRepository
	users         *repositories.UserRepository
	registry      *runtime.Registry
	broadcaster   *runtime.Broadcaster
	chat          *ChatService
	conversations *ConversationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	users := repositories.NewUserRepository(db)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, users.Put(domain.Profile{ID: id, Username: "user-" + id}))
	}

	messages := repositories.NewMessageRepository(db, users, log, nil, 4096)
	registry := runtime.NewRegistry()
	router := runtime.NewRouter(registry, log)
	typing := runtime.NewTypingManager(router, time.Minute)
	t.Cleanup(typing.Stop)

	return &fixture{
		messages:      messages,
		users:         users,
		registry:      registry,
		broadcaster:   runtime.NewBroadcaster(registry, log),
		chat:          NewChatService(messages, nil, router, typing, nil, 10, log),
		conversations: NewConversationService(messages, users, registry, log),
	}
}

// Mirrors the full offline-send flow: a messages b while b is offline,
// both sides see consistent summaries, b comes online, opens the
// conversation and the unread count drops to zero.
func Test_Offline_Send_Then_Read_Scenario(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	// Given b is offline, a sends "hi"
	message, err := f.chat.SendMessage(ctx, "a", "b", "hi")
	req.NoError(err)

	// Then a's summary shows the conversation with nothing unread
	summariesA, err := f.conversations.Summarize("a")
	req.NoError(err)
	req.Len(summariesA, 1)
	req.Equal("b", summariesA[0].Counterpart)
	req.Equal("hi", summariesA[0].LastMessage.Content)
	req.Equal(0, summariesA[0].UnreadCount)
	req.Equal(domain.StatusOffline, summariesA[0].Status)

	// And b, still offline, already sees one unread from a
	summariesB, err := f.conversations.Summarize("b")
	req.NoError(err)
	req.Len(summariesB, 1)
	req.Equal("a", summariesB[0].Counterpart)
	req.Equal(message.ID, summariesB[0].LastMessage.ID)
	req.Equal(1, summariesB[0].UnreadCount)

	// When b connects
	f.broadcaster.Connect(ctx, "b", contract.Handle{ConnID: uuid.NewString(), Sink: nopSink{}})

	summariesA, err = f.conversations.Summarize("a")
	req.NoError(err)
	req.Equal(domain.StatusOnline, summariesA[0].Status)

	// And opens the conversation
	page, _, err := f.chat.GetConversation(ctx, "b", "a", nil)
	req.NoError(err)
	req.Len(page, 1)
	req.Equal("hi", page[0].Content)

	// Then the unread count is cleared
	summariesB, err = f.conversations.Summarize("b")
	req.NoError(err)
	req.Equal(0, summariesB[0].UnreadCount)
}

func Test_Summarize_Orders_By_Recency(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.chat.SendMessage(ctx, "a", "b", "older exchange")
	req.NoError(err)
	time.Sleep(time.Millisecond)
	_, err = f.chat.SendMessage(ctx, "c", "a", "newer exchange")
	req.NoError(err)

	summaries, err := f.conversations.Summarize("a")
	req.NoError(err)
	req.Len(summaries, 2)

	// Newest conversation first
	req.Equal("c", summaries[0].Counterpart)
	req.Equal("b", summaries[1].Counterpart)
	req.Equal("user-c", summaries[0].Username)
}

func Test_Summarize_Breaks_Timestamp_Ties_By_Counterpart(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	messages := mocks.NewMockIMessageRepository(ctrl)
	users := mocks.NewMockIUserRepository(ctrl)

	// Given three conversations whose last messages share one timestamp
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	summary := func(counterpart string) domain.ConversationSummary {
		return domain.ConversationSummary{
			Counterpart: counterpart,
			LastMessage: domain.Message{
				ID: uuid.New(), Sender: counterpart, Recipient: "viewer",
				Content: "tie", CreatedAt: at,
			},
		}
	}
	messages.EXPECT().
		Conversations("viewer").
		Return([]domain.ConversationSummary{summary("zed"), summary("amy"), summary("mia")}, nil)
	users.EXPECT().
		Get(gomock.Any()).
		Return(domain.Profile{}, errors.ErrUserNotFound).
		Times(3)

	service := NewConversationService(messages, users, runtime.NewRegistry(), slog.Default())

	summaries, err := service.Summarize("viewer")
	req.NoError(err)

	// Then the tie resolves to counterpart id ascending
	req.Equal([]string{"amy", "mia", "zed"}, lo.Map(summaries,
		func(s domain.ConversationSummary, _ int) string { return s.Counterpart }))
}

func Test_Summarize_Empty_For_User_Without_History(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	summaries, err := f.conversations.Summarize("c")
	req.NoError(err)
	req.Empty(summaries)
}

type nopSink struct{}

func (nopSink) Consume(ctx context.Context, e event.DomainEvent) error { return nil }
