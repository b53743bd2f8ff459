package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"courier/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *MessageIndex {
	t.Helper()
	index, err := Open(t.TempDir(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func newMessage(sender, recipient, content string) domain.Message {
	return domain.Message{
		ID:        uuid.New(),
		Sender:    sender,
		Recipient: recipient,
		Content:   content,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func Test_Search_Finds_Indexed_Content(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	message := newMessage("a", "b", "lunch at the harbor tomorrow")
	req.NoError(index.Index(message))
	req.NoError(index.Index(newMessage("a", "b", "completely unrelated note")))

	hits, err := index.Search(context.Background(), "a", "harbor", 10)

	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(message.ID, hits[0].MessageID)
	req.Equal("a", hits[0].Sender)
	req.Equal("b", hits[0].Recipient)
	req.Equal("lunch at the harbor tomorrow", hits[0].Content)
	req.True(message.CreatedAt.Equal(hits[0].CreatedAt))
}

func Test_Search_Restricted_To_Viewer_Conversations(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	req.NoError(index.Index(newMessage("a", "b", "keyword between a and b")))
	req.NoError(index.Index(newMessage("b", "c", "keyword between b and c")))

	// c only sees conversations c took part in
	hits, err := index.Search(context.Background(), "c", "keyword", 10)

	req.NoError(err)
	req.Len(hits, 1)
	req.Equal("c", hits[0].Recipient)
}

func Test_Search_Sees_Both_Directions(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	req.NoError(index.Index(newMessage("a", "b", "sent keyword")))
	req.NoError(index.Index(newMessage("b", "a", "received keyword")))

	hits, err := index.Search(context.Background(), "a", "keyword", 10)

	req.NoError(err)
	req.Len(hits, 2)
}

func Test_Search_Honors_Limit(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	for i := 0; i < 5; i++ {
		req.NoError(index.Index(newMessage("a", "b", "repeated keyword")))
	}

	hits, err := index.Search(context.Background(), "a", "keyword", 2)

	req.NoError(err)
	req.Len(hits, 2)
}

func Test_Search_Zero_Limit_Falls_Back_To_Default(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	req.NoError(index.Index(newMessage("a", "b", "hello world")))

	// An unset limit must not silence the whole search
	hits, err := index.Search(context.Background(), "a", "hello", 0)
	req.NoError(err)
	req.Len(hits, 1)

	hits, err = index.Search(context.Background(), "a", "hello", -1)
	req.NoError(err)
	req.Len(hits, 1)
}

func Test_Index_Update_Replaces_Document(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	message := newMessage("a", "b", "original wording")
	req.NoError(index.Index(message))

	message.Content = "revised wording"
	req.NoError(index.Index(message))

	hits, err := index.Search(context.Background(), "a", "wording", 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal("revised wording", hits[0].Content)
}
