package services

import (
	stderrors "errors"
	"log/slog"
	"sort"

	"courier/contract"
	"courier/domain"
	"courier/errors"
	"courier/repositories"
)

// ConversationService derives the ranked conversation list for a user.
// Summaries are recomputed from the store on every call, never cached;
// the registry snapshot contributes the live status of counterparts.
type ConversationService struct {
	messages repositories.IMessageRepository
	users    repositories.IUserRepository
	registry contract.IRegistry
	log      *slog.Logger
}

func NewConversationService(messages repositories.IMessageRepository,
	users repositories.IUserRepository, registry contract.IRegistry,
	log *slog.Logger) *ConversationService {
	return &ConversationService{messages: messages, users: users, registry: registry, log: log}
}

// Summarize returns one entry per counterpart, newest conversation
// first. Two conversations whose last messages share a timestamp order
// by counterpart id ascending, so the result is deterministic.
func (s *ConversationService) Summarize(viewer string) ([]domain.ConversationSummary, error) {
	summaries, err := s.messages.Conversations(viewer)
	if err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		ti, tj := summaries[i].LastMessage.CreatedAt, summaries[j].LastMessage.CreatedAt
		if ti.Equal(tj) {
			return summaries[i].Counterpart < summaries[j].Counterpart
		}
		return ti.After(tj)
	})

	statuses := s.registry.Snapshot()
	for i := range summaries {
		summaries[i].Status = domain.StatusOffline
		if status, ok := statuses[summaries[i].Counterpart]; ok {
			summaries[i].Status = status
		}
		profile, err := s.users.Get(summaries[i].Counterpart)
		switch {
		case err == nil:
			summaries[i].Username = profile.Username
			summaries[i].AvatarRef = profile.AvatarRef
		case stderrors.Is(err, errors.ErrUserNotFound):
			// Counterpart account no longer resolvable; keep the bare id.
		default:
			return nil, err
		}
	}
	return summaries, nil
}
