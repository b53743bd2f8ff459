package api

import (
	"time"

	"courier/domain"
	"courier/domain/event"

	"github.com/samber/lo"
)

// wireMessage is the JSON shape of a message on both REST and WS.
type wireMessage struct {
	ID        string     `json:"id"`
	Sender    string     `json:"sender"`
	Recipient string     `json:"recipient"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

type wireConversation struct {
	Counterpart string      `json:"counterpart"`
	Username    string      `json:"username,omitempty"`
	AvatarRef   string      `json:"avatar_ref,omitempty"`
	Status      string      `json:"status"`
	LastMessage wireMessage `json:"last_message"`
	UnreadCount int         `json:"unread_count"`
}

// wireEvent is one frame on the live channel, in both directions.
// Outbound kinds: message, presence, typing. Inbound: typing, message.
type wireEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type wirePresence struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

type wireTyping struct {
	Sender   string `json:"sender,omitempty"`
	IsTyping bool   `json:"is_typing"`
}

// Inbound WS payloads.
type inboundTyping struct {
	Recipient string `json:"recipient"`
	IsTyping  bool   `json:"is_typing"`
}

type inboundMessage struct {
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
}

func toWireMessage(m domain.Message) wireMessage {
	return wireMessage{
		ID:        m.ID.String(),
		Sender:    m.Sender,
		Recipient: m.Recipient,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Read:      m.Read,
		ReadAt:    m.ReadAt,
	}
}

func toWireMessages(messages []domain.Message) []wireMessage {
	return lo.Map(messages, func(m domain.Message, _ int) wireMessage {
		return toWireMessage(m)
	})
}

func toWireConversations(summaries []domain.ConversationSummary) []wireConversation {
	return lo.Map(summaries, func(s domain.ConversationSummary, _ int) wireConversation {
		return wireConversation{
			Counterpart: s.Counterpart,
			Username:    s.Username,
			AvatarRef:   s.AvatarRef,
			Status:      string(s.Status),
			LastMessage: toWireMessage(s.LastMessage),
			UnreadCount: s.UnreadCount,
		}
	})
}

func toWireEvent(e event.DomainEvent) wireEvent {
	switch evt := e.(type) {
	case event.MessageDelivered:
		return wireEvent{Type: evt.Kind(), Payload: toWireMessage(evt.Message)}
	case event.PresenceChanged:
		return wireEvent{Type: evt.Kind(), Payload: wirePresence{UserID: evt.UserID, Status: string(evt.Status)}}
	case event.TypingChanged:
		return wireEvent{Type: evt.Kind(), Payload: wireTyping{Sender: evt.Sender, IsTyping: evt.IsTyping}}
	default:
		return wireEvent{Type: e.Kind()}
	}
}
