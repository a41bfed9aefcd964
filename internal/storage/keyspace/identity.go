package keyspace

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart/internal/domain/identity"
	"github.com/xenking/kart/internal/kv"
)

var (
	_ identity.UserRepository    = (*UserRepository)(nil)
	_ identity.SessionRepository = (*SessionRepository)(nil)
)

// UserRepository stores profiles under user:<actorId> with an
// email:<address> index for login.
type UserRepository struct {
	store kv.Store
}

// NewUserRepository returns a UserRepository on store.
func NewUserRepository(store kv.Store) *UserRepository {
	return &UserRepository{store: store}
}

func (r *UserRepository) Get(ctx context.Context, id string) (*identity.User, error) {
	var u identity.User
	ok, err := getJSON(ctx, r.store, kv.UserKey(id), &u)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return &u, nil
}

// Create claims the email index first, so two registrations of one email
// cannot both succeed.
func (r *UserRepository) Create(ctx context.Context, u *identity.User) error {
	err := r.store.Update(ctx, kv.EmailKey(u.Email), func(cur []byte, exists bool) ([]byte, error) {
		if exists && string(cur) != u.ID {
			return nil, identity.ErrEmailTaken
		}
		return []byte(u.ID), nil
	})
	if err != nil {
		return err
	}
	return setJSON(ctx, r.store, kv.UserKey(u.ID), u)
}

// Put stores a profile as is, bypassing the email index check. Used by seeding.
func (r *UserRepository) Put(ctx context.Context, u *identity.User) error {
	if u.Email != "" {
		if err := r.store.Set(ctx, kv.EmailKey(u.Email), []byte(u.ID)); err != nil {
			return err
		}
	}
	return setJSON(ctx, r.store, kv.UserKey(u.ID), u)
}

func (r *UserRepository) Update(ctx context.Context, id string, fn func(u *identity.User) error) error {
	init := func() *identity.User { return &identity.User{} }
	return updateJSON(ctx, r.store, kv.UserKey(id), init, func(u *identity.User, exists bool) error {
		if !exists {
			return identity.ErrUserNotFound
		}
		return fn(u)
	})
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	id, ok, err := r.store.Get(ctx, kv.EmailKey(email))
	if err != nil {
		return nil, errors.Wrap(err, "lookup email")
	}
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return r.Get(ctx, string(id))
}

// SessionRepository stores session:<id> -> actor id.
type SessionRepository struct {
	store kv.Store
}

// NewSessionRepository returns a SessionRepository on store.
func NewSessionRepository(store kv.Store) *SessionRepository {
	return &SessionRepository{store: store}
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (string, error) {
	v, ok, err := r.store.Get(ctx, kv.SessionKey(sessionID))
	if err != nil || !ok {
		return "", err
	}
	return string(v), nil
}

func (r *SessionRepository) Set(ctx context.Context, sessionID, actorID string) error {
	return r.store.Set(ctx, kv.SessionKey(sessionID), []byte(actorID))
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	return r.store.Delete(ctx, kv.SessionKey(sessionID))
}
