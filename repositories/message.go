//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"courier/domain"
	"courier/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	Append(sender, recipient, content string) (domain.Message, error)
	ListBetween(userA, userB string, cursor *string) ([]domain.Message, *string, error)
	MarkRead(messageIDs []uuid.UUID, viewer string) error
	MarkAllReadFrom(counterpart, viewer string) error
	Conversations(viewer string) ([]domain.ConversationSummary, error)
}

// MessageRepository persists direct messages in BadgerDB.
//
// Keys are laid out so that a prefix scan over one conversation pair
// yields messages in chronological order:
//
//	msg:{pairKey}:{timestamp_padded}:{uuid}  -> JSON message
//	ref:{uuid}                               -> full msg key (read-state lookups)
//	conv:{user}:{counterpart}                -> marker (counterpart enumeration)
//
// The 19-digit zero padding keeps lexicographical order equal to
// chronological order; the UUID disambiguates two messages stored in
// the same nanosecond.
type MessageRepository struct {
	db            *badger.DB
	users         IUserRepository
	log           *slog.Logger
	limitMessages *int
	maxContentLen int

	mu sync.Mutex
	// pairLocks is never pruned; it grows with the number of distinct
	// conversation pairs this process has written to, one mutex each.
	pairLocks map[string]*sync.Mutex

	markReadBatch int
}

// defaultMarkReadBatch caps how many read-state updates go into one
// badger transaction. A single Update over a very large conversation
// would hit ErrTxnTooBig.
const defaultMarkReadBatch = 500

func NewMessageRepository(db *badger.DB, users IUserRepository, log *slog.Logger,
	limitMessages *int, maxContentLen int) *MessageRepository {
	return &MessageRepository{
		db:            db,
		users:         users,
		log:           log,
		limitMessages: limitMessages,
		maxContentLen: maxContentLen,
		pairLocks:     make(map[string]*sync.Mutex),
		markReadBatch: defaultMarkReadBatch,
	}
}

type diskMessage struct {
	ID        uuid.UUID  `json:"id"`
	Sender    string     `json:"sender"`
	Recipient string     `json:"recipient"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// pairLock serializes writes touching one conversation pair. Badger
// detects write conflicts but does not retry them; a per-pair mutex
// keeps append and read-state updates linearized without a global lock.
func (m *MessageRepository) pairLock(pairKey string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.pairLocks[pairKey]
	if !ok {
		l = &sync.Mutex{}
		m.pairLocks[pairKey] = l
	}
	return l
}

// Append validates and stores a new message. The recipient must exist
// and the content must be non-empty and under the configured length.
// Both checks happen before any write.
func (m *MessageRepository) Append(sender, recipient, content string) (domain.Message, error) {
	if len([]rune(content)) == 0 || len([]rune(content)) > m.maxContentLen {
		return domain.Message{}, errors.ErrInvalidContent
	}

	exists, err := m.users.Exists(recipient)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	if !exists {
		return domain.Message{}, errors.ErrInvalidRecipient
	}

	message := domain.Message{
		ID:        uuid.New(),
		Sender:    sender,
		Recipient: recipient,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	pairKey := domain.PairKey(sender, recipient)
	lock := m.pairLock(pairKey)
	lock.Lock()
	defer lock.Unlock()

	key := messageKey(pairKey, message.CreatedAt, message.ID)
	data, err := json.Marshal(toDiskMessage(message))
	if err != nil {
		return domain.Message{}, err
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), data); err != nil {
			return err
		}
		if err := txn.Set([]byte("ref:"+message.ID.String()), []byte(key)); err != nil {
			return err
		}
		if err := txn.Set([]byte(convKey(sender, recipient)), nil); err != nil {
			return err
		}
		return txn.Set([]byte(convKey(recipient, sender)), nil)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return message, nil
}

// ListBetween returns one page of the conversation between two users,
// ascending by creation time. The page holds the most recent messages
// when cursor is nil; the returned cursor fetches the next older page.
func (m *MessageRepository) ListBetween(userA, userB string, cursor *string) ([]domain.Message, *string, error) {
	pairKey := domain.PairKey(userA, userB)
	prefixStr := "msg:" + pairKey + ":"
	prefix := []byte(prefixStr)

	var page []domain.Message
	var lastKey string

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// With no cursor, seek past the newest possible timestamp and
		// walk backwards; with a cursor, resume just before it.
		var seekKey []byte
		switch cursor {
		case nil:
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}
		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(page) == *m.limitMessages {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			err := item.Value(func(val []byte) error {
				var dm diskMessage
				if err := json.Unmarshal(val, &dm); err != nil {
					return err
				}
				page = append(page, fromDiskMessage(dm))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	if len(page) == 0 {
		return nil, nil, nil
	}
	return lo.Reverse(page), lo.ToPtr(lastKey), nil
}

// MarkRead flips the read flag of every listed message addressed to the
// viewer. Messages addressed to someone else are skipped silently: the
// call is a no-op for them, not a failure. Repeated calls with the same
// ids change nothing after the first.
func (m *MessageRepository) MarkRead(messageIDs []uuid.UUID, viewer string) error {
	for _, id := range messageIDs {
		if err := m.markOneRead(id, viewer); err != nil {
			return err
		}
	}
	return nil
}

func (m *MessageRepository) markOneRead(id uuid.UUID, viewer string) error {
	key, dm, err := m.lookupByID(id)
	if err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	if dm.Recipient != viewer || dm.Read {
		return nil
	}

	pairKey := domain.PairKey(dm.Sender, dm.Recipient)
	lock := m.pairLock(pairKey)
	lock.Lock()
	defer lock.Unlock()

	err = m.db.Update(func(txn *badger.Txn) error {
		// Re-read under the pair lock so ReadAt is stamped exactly once.
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		var current diskMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &current)
		}); err != nil {
			return err
		}
		if current.Read {
			return nil
		}
		current.Read = true
		current.ReadAt = lo.ToPtr(time.Now().UTC())
		data, err := json.Marshal(current)
		if err != nil {
			return err
		}
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return nil
}

// MarkAllReadFrom marks every unread message from counterpart to viewer
// as read. Used when the viewer opens the conversation. The writes are
// chunked so one huge conversation cannot exceed badger's transaction
// size limit; the pair lock keeps the chunks atomic with respect to
// concurrent writers on the same pair.
func (m *MessageRepository) MarkAllReadFrom(counterpart, viewer string) error {
	pairKey := domain.PairKey(counterpart, viewer)
	lock := m.pairLock(pairKey)
	lock.Lock()
	defer lock.Unlock()

	prefix := []byte("msg:" + pairKey + ":")
	now := time.Now().UTC()

	var keys [][]byte
	var payloads [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var dm diskMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &dm)
			}); err != nil {
				return err
			}
			if dm.Sender != counterpart || dm.Recipient != viewer || dm.Read {
				continue
			}
			dm.Read = true
			dm.ReadAt = lo.ToPtr(now)
			data, err := json.Marshal(dm)
			if err != nil {
				return err
			}
			keys = append(keys, item.KeyCopy(nil))
			payloads = append(payloads, data)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	for start := 0; start < len(keys); start += m.markReadBatch {
		end := min(start+m.markReadBatch, len(keys))
		err := m.db.Update(func(txn *badger.Txn) error {
			for i := start; i < end; i++ {
				if err := txn.Set(keys[i], payloads[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
		}
	}
	return nil
}

// Conversations scans every conversation the viewer takes part in and
// returns one raw summary per counterpart: the most recent message and
// the unread count. A reverse scan per pair finds the newest message
// first (identical timestamps resolve to the greater message id, which
// is the key order) and counts unread entries on the way down.
// Ordering and profile enrichment belong to the service layer.
func (m *MessageRepository) Conversations(viewer string) ([]domain.ConversationSummary, error) {
	counterparts, err := m.counterpartsOf(viewer)
	if err != nil {
		return nil, err
	}

	var summaries []domain.ConversationSummary
	for _, counterpart := range counterparts {
		summary, ok, err := m.summarizePair(viewer, counterpart)
		if err != nil {
			return nil, err
		}
		if ok {
			summaries = append(summaries, summary)
		}
	}
	return summaries, nil
}

func (m *MessageRepository) counterpartsOf(viewer string) ([]string, error) {
	prefixStr := "conv:" + viewer + ":"
	prefix := []byte(prefixStr)
	var counterparts []string

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			counterparts = append(counterparts, string(it.Item().Key()[len(prefixStr):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return counterparts, nil
}

func (m *MessageRepository) summarizePair(viewer, counterpart string) (domain.ConversationSummary, bool, error) {
	prefix := []byte("msg:" + domain.PairKey(viewer, counterpart) + ":")
	var last *domain.Message
	unread := 0

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			var dm diskMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &dm)
			}); err != nil {
				return err
			}
			if last == nil {
				last = lo.ToPtr(fromDiskMessage(dm))
			}
			if dm.Recipient == viewer && dm.Sender == counterpart && !dm.Read {
				unread++
			}
		}
		return nil
	})
	if err != nil {
		return domain.ConversationSummary{}, false, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	if last == nil {
		return domain.ConversationSummary{}, false, nil
	}
	return domain.ConversationSummary{
		Counterpart: counterpart,
		LastMessage: *last,
		UnreadCount: unread,
	}, true, nil
}

func (m *MessageRepository) lookupByID(id uuid.UUID) (string, diskMessage, error) {
	var key string
	var dm diskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("ref:" + id.String()))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			key = string(val)
			return nil
		}); err != nil {
			return err
		}
		msgItem, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return msgItem.Value(func(val []byte) error {
			return json.Unmarshal(val, &dm)
		})
	})
	return key, dm, err
}

func messageKey(pairKey string, at time.Time, id uuid.UUID) string {
	return fmt.Sprintf("msg:%s:%019d:%s", pairKey, at.UnixNano(), id)
}

func convKey(user, counterpart string) string {
	return fmt.Sprintf("conv:%s:%s", user, counterpart)
}

func toDiskMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:        message.ID,
		Sender:    message.Sender,
		Recipient: message.Recipient,
		Content:   message.Content,
		CreatedAt: message.CreatedAt,
		Read:      message.Read,
		ReadAt:    message.ReadAt,
	}
}

func fromDiskMessage(dm diskMessage) domain.Message {
	return domain.Message{
		ID:        dm.ID,
		Sender:    dm.Sender,
		Recipient: dm.Recipient,
		Content:   dm.Content,
		CreatedAt: dm.CreatedAt,
		Read:      dm.Read,
		ReadAt:    dm.ReadAt,
	}
}
