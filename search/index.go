//go:generate go run go.uber.org/mock/mockgen -source=index.go -destination=../mocks/mock_message_index.go -package=mocks
// Package search maintains a full-text index over stored messages.
// The index is a convenience view: the message store stays the source
// of truth and the index can always be rebuilt from it.
package search

import (
	"context"
	"log/slog"
	"time"

	"courier/domain"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

type IMessageIndex interface {
	Index(message domain.Message) error
	Search(ctx context.Context, viewer, query string, limit int) ([]Hit, error)
	Close() error
}

// Hit is one search result, rebuilt from the stored fields of the
// index rather than from the message store.
type Hit struct {
	MessageID uuid.UUID
	Sender    string
	Recipient string
	Content   string
	CreatedAt time.Time
}

// DefaultSearchLimit bounds result pages when the caller passes no
// usable limit. bluge.NewTopNSearch(0, ...) returns nothing at all, so
// a non-positive limit must never reach it.
const DefaultSearchLimit = 20

type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func Open(path string, log *slog.Logger) (*MessageIndex, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return &MessageIndex{writer: writer, log: log}, nil
}

func (m *MessageIndex) Index(message domain.Message) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewTextField("content", message.Content).StoreValue()).
		AddField(bluge.NewKeywordField("sender", message.Sender).StoreValue()).
		AddField(bluge.NewKeywordField("recipient", message.Recipient).StoreValue()).
		AddField(bluge.NewDateTimeField("created_at", message.CreatedAt).StoreValue())
	return m.writer.Update(doc.ID(), doc)
}

// Search returns matches on message content, restricted to messages the
// viewer sent or received. A user never sees someone else's
// conversations through search.
func (m *MessageIndex) Search(ctx context.Context, viewer, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	reader, err := m.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = reader.Close()
	}()

	participant := bluge.NewBooleanQuery().
		AddShould(bluge.NewTermQuery(viewer).SetField("sender")).
		AddShould(bluge.NewTermQuery(viewer).SetField("recipient"))
	participant.SetMinShould(1)

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query).SetField("content")).
		AddMust(participant)

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	var hits []Hit
	match, err := iterator.Next()
	for err == nil && match != nil {
		var hit Hit
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
					hit.MessageID = id
				}
			case "content":
				hit.Content = string(value)
			case "sender":
				hit.Sender = string(value)
			case "recipient":
				hit.Recipient = string(value)
			case "created_at":
				if t, parseErr := bluge.DecodeDateTime(value); parseErr == nil {
					hit.CreatedAt = t
				}
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		hits = append(hits, hit)
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}

func (m *MessageIndex) Close() error {
	return m.writer.Close()
}
