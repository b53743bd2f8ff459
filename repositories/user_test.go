package repositories

import (
	"testing"

	"courier/domain"
	"courier/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func Test_UserRepository_Exists_And_Get(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	users := NewUserRepository(db)
	req.NoError(users.Put(domain.Profile{ID: "alice", Username: "Alice", AvatarRef: "avatars/alice.png"}))

	exists, err := users.Exists("alice")
	req.NoError(err)
	req.True(exists)

	exists, err = users.Exists("bob")
	req.NoError(err)
	req.False(exists)

	profile, err := users.Get("alice")
	req.NoError(err)
	req.Equal("Alice", profile.Username)
	req.Equal("avatars/alice.png", profile.AvatarRef)

	_, err = users.Get("bob")
	req.ErrorIs(err, errors.ErrUserNotFound)
}

func Test_UserRepository_List(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	users := NewUserRepository(db)
	req.NoError(users.Put(domain.Profile{ID: "alice", Username: "Alice"}))
	req.NoError(users.Put(domain.Profile{ID: "bob", Username: "Bob"}))

	profiles, err := users.List()
	req.NoError(err)
	req.Len(profiles, 2)
}
