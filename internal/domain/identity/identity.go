// Package identity resolves the current actor from a session and manages
// actor profiles and their points balance.
package identity

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// GuestID is the anonymous pseudo-actor. It is a valid actor id for carts.
const GuestID = "guest"

// DefaultSession is the session id used when a caller does not supply one.
const DefaultSession = "current"

var (
	// ErrUserNotFound is returned when no profile exists for an actor id.
	ErrUserNotFound = errors.New("user not found")
	// ErrInsufficientPoints is returned when a debit exceeds the balance.
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrInvalidCredentials is returned by Login for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned by Register when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidPoints is returned for negative point amounts.
	ErrInvalidPoints = errors.New("points must not be negative")
)

// Actor is the owner of a cart and orders. The guest actor has no profile.
type Actor struct {
	ID     string
	Name   string
	Member bool
	Points int64
}

// Guest returns the anonymous actor of the default session.
func Guest() Actor { return Actor{ID: GuestID} }

// GuestFor returns the guest actor id owning an anonymous session's cart.
// The default session keeps the bare GuestID; any other session gets its
// own guest cart so unrelated clients never share one.
func GuestFor(sessionID string) string {
	if sessionID == "" || sessionID == DefaultSession {
		return GuestID
	}
	return GuestID + ":" + sessionID
}

// IsGuestID reports whether id names a guest actor.
func IsGuestID(id string) bool {
	return id == "" || id == GuestID || strings.HasPrefix(id, GuestID+":")
}

// IsGuest reports whether a is an anonymous actor.
func (a Actor) IsGuest() bool { return IsGuestID(a.ID) }

// User is a persisted actor profile.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Member       bool      `json:"member"`
	Points       int64     `json:"points"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Actor projects the profile onto an Actor.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Name: u.Name, Member: u.Member, Points: u.Points}
}

// UserRepository persists profiles keyed by actor id. Update runs fn
// atomically; it returns ErrUserNotFound when no profile exists.
type UserRepository interface {
	Get(ctx context.Context, id string) (*User, error)
	// Create stores u unless its email is already indexed, in which case
	// it returns ErrEmailTaken.
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, id string, fn func(u *User) error) error
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// SessionRepository maps session ids to actor ids.
type SessionRepository interface {
	// Get returns "" when the session is unknown.
	Get(ctx context.Context, sessionID string) (string, error)
	Set(ctx context.Context, sessionID, actorID string) error
	Delete(ctx context.Context, sessionID string) error
}
