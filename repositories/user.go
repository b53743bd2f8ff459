//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"courier/domain"
	"courier/errors"

	"github.com/dgraph-io/badger/v4"
)

// IUserRepository is the user identity collaborator as seen by the
// messaging core: existence checks and profile reads only. Account
// creation and credential handling live outside this process.
type IUserRepository interface {
	Exists(userID string) (bool, error)
	Get(userID string) (domain.Profile, error)
	List() ([]domain.Profile, error)
	Put(profile domain.Profile) error
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

type diskProfile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarRef string `json:"avatar_ref,omitempty"`
}

func (u *UserRepository) Exists(userID string) (bool, error) {
	err := u.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("user:" + userID))
		return err
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (u *UserRepository) Get(userID string) (domain.Profile, error) {
	var dp diskProfile
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("user:" + userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &dp)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Profile{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return domain.Profile{ID: dp.ID, Username: dp.Username, AvatarRef: dp.AvatarRef}, nil
}

func (u *UserRepository) List() ([]domain.Profile, error) {
	prefix := []byte("user:")
	var profiles []domain.Profile
	err := u.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var dp diskProfile
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &dp)
			}); err != nil {
				return err
			}
			profiles = append(profiles, domain.Profile{ID: dp.ID, Username: dp.Username, AvatarRef: dp.AvatarRef})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return profiles, nil
}

// Put upserts a profile. The server itself only calls this from seeding
// and tests; profile mutation is owned by the account system.
func (u *UserRepository) Put(profile domain.Profile) error {
	data, err := json.Marshal(diskProfile{
		ID:        profile.ID,
		Username:  profile.Username,
		AvatarRef: profile.AvatarRef,
	})
	if err != nil {
		return err
	}
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("user:"+profile.ID), data)
	})
}
