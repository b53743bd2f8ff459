package domain

// Status is the live reachability of a user as seen by the registry.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// ConversationSummary is a derived view, never persisted: for a viewing
// user, one counterpart with the most recent message exchanged and the
// number of messages from that counterpart still unread.
type ConversationSummary struct {
	Counterpart string
	Username    string
	AvatarRef   string
	Status      Status
	LastMessage Message
	UnreadCount int
}

// Profile is the public part of a user record, owned by the user
// directory and only read by the messaging core.
type Profile struct {
	ID        string
	Username  string
	AvatarRef string
}
