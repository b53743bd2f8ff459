package services

import (
	"context"
	"log/slog"

	"courier/contract"
	"courier/domain"
	"courier/domain/event"
	"courier/moderation"
	"courier/repositories"
	"courier/runtime"
	"courier/search"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"
)

type IChatService interface {
	SendMessage(ctx context.Context, sender, recipient, content string) (domain.Message, error)
	GetConversation(ctx context.Context, viewer, counterpart string, cursor *string) ([]domain.Message, *string, error)
	MarkRead(messageIDs []uuid.UUID, viewer string) error
	SetTyping(ctx context.Context, sender, recipient string, isTyping bool) bool
	Search(ctx context.Context, viewer, query string) ([]search.Hit, error)
}

// ChatService ties persistence and live delivery together. Writes go to
// the store first; only a successfully stored message is offered to the
// recipient's live connection. An undelivered event is not an error:
// the recipient reconciles through GetConversation on next open.
type ChatService struct {
	messages    repositories.IMessageRepository
	index       search.IMessageIndex
	router      contract.IRouter
	typing      *runtime.TypingManager
	moderator   *moderation.Moderator
	searchLimit int
	log         *slog.Logger
}

func NewChatService(messages repositories.IMessageRepository, index search.IMessageIndex,
	router contract.IRouter, typing *runtime.TypingManager,
	moderator *moderation.Moderator, searchLimit int, log *slog.Logger) *ChatService {
	return &ChatService{
		messages:    messages,
		index:       index,
		router:      router,
		typing:      typing,
		moderator:   moderator,
		searchLimit: searchLimit,
		log:         log,
	}
}

func (s *ChatService) SendMessage(ctx context.Context, sender, recipient, content string) (domain.Message, error) {
	content = s.censor(sender, content)

	message, err := s.messages.Append(sender, recipient, content)
	if err != nil {
		return domain.Message{}, err
	}

	if s.index != nil {
		if err := s.index.Index(message); err != nil {
			// The store already holds the message; the index can be
			// rebuilt, so indexing failures only get logged.
			s.log.Error("Failed to index message", "message_id", message.ID, "error", err)
		}
	}

	if delivered := s.router.RouteMessage(ctx, recipient, event.MessageDelivered{Message: message}); !delivered {
		s.log.Debug("Recipient offline, live delivery skipped",
			"message_id", message.ID, "recipient", recipient)
	}
	return message, nil
}

// GetConversation returns one page of the conversation and marks every
// unread message from the counterpart as read: opening a conversation
// is what "reading it" means here.
func (s *ChatService) GetConversation(ctx context.Context, viewer, counterpart string, cursor *string) ([]domain.Message, *string, error) {
	page, next, err := s.messages.ListBetween(viewer, counterpart, cursor)
	if err != nil {
		return nil, nil, err
	}
	if err := s.messages.MarkAllReadFrom(counterpart, viewer); err != nil {
		return nil, nil, err
	}
	return page, next, nil
}

func (s *ChatService) MarkRead(messageIDs []uuid.UUID, viewer string) error {
	return s.messages.MarkRead(messageIDs, viewer)
}

func (s *ChatService) SetTyping(ctx context.Context, sender, recipient string, isTyping bool) bool {
	return s.typing.SetTyping(ctx, sender, recipient, isTyping)
}

func (s *ChatService) Search(ctx context.Context, viewer, query string) ([]search.Hit, error) {
	if s.index == nil {
		return nil, nil
	}
	return s.index.Search(ctx, viewer, query, s.searchLimit)
}

func (s *ChatService) censor(sender, content string) string {
	if s.moderator == nil {
		return content
	}
	censored, found := s.moderator.Censor(content)
	if len(found) > 0 {
		info := whatlanggo.Detect(content)
		s.log.Warn("Censored outbound message",
			"sender", sender,
			"words", len(found),
			"lang", info.Lang.Iso6391())
	}
	return censored
}
