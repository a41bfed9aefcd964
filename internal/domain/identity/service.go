package identity

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Service resolves sessions to actors and owns the points balance.
type Service struct {
	users    UserRepository
	sessions SessionRepository
	now      func() time.Time
	newID    func() string
	cost     int
}

// NewService creates an identity Service.
func NewService(users UserRepository, sessions SessionRepository) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		cost:     bcrypt.DefaultCost,
	}
}

// Resolve returns the actor bound to sessionID. An unknown session, or a
// session whose profile has disappeared, resolves to the session's guest
// actor (see GuestFor).
func (s *Service) Resolve(ctx context.Context, sessionID string) (Actor, error) {
	if sessionID == "" {
		sessionID = DefaultSession
	}
	guest := Actor{ID: GuestFor(sessionID)}
	actorID, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Actor{}, errors.Wrap(err, "get session")
	}
	if IsGuestID(actorID) {
		return guest, nil
	}
	a, err := s.Actor(ctx, actorID)
	if err != nil {
		return Actor{}, err
	}
	if a.IsGuest() {
		return guest, nil
	}
	return a, nil
}

// Actor loads an actor by id. Guest ids come back as themselves; unknown
// ids resolve to the default guest actor.
func (s *Service) Actor(ctx context.Context, actorID string) (Actor, error) {
	if actorID == "" {
		return Guest(), nil
	}
	if IsGuestID(actorID) {
		return Actor{ID: actorID}, nil
	}
	u, err := s.users.Get(ctx, actorID)
	if errors.Is(err, ErrUserNotFound) {
		return Guest(), nil
	}
	if err != nil {
		return Actor{}, errors.Wrap(err, "get user")
	}
	return u.Actor(), nil
}

// RegisterRequest holds the input for creating a member profile.
type RegisterRequest struct {
	Name     string
	Email    string
	Password string
}

// Register creates a member profile with a zero points balance.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	u := &User{
		ID:           s.newID(),
		Name:         req.Name,
		Email:        email,
		PasswordHash: string(hash),
		Member:       true,
		CreatedAt:    s.now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, errors.Wrap(err, "create user")
	}
	return u, nil
}

// Login checks the credentials and binds the session to the user.
func (s *Service) Login(ctx context.Context, sessionID, email, password string) (Actor, error) {
	if sessionID == "" {
		sessionID = DefaultSession
	}
	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return Actor{}, ErrInvalidCredentials
	}
	if err != nil {
		return Actor{}, errors.Wrap(err, "find user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Actor{}, ErrInvalidCredentials
	}
	if err := s.sessions.Set(ctx, sessionID, u.ID); err != nil {
		return Actor{}, errors.Wrap(err, "set session")
	}
	return u.Actor(), nil
}

// Logout unbinds the session; subsequent resolves yield the guest actor.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		sessionID = DefaultSession
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return errors.Wrap(err, "delete session")
	}
	return nil
}

// Balance returns the points balance; the guest actor always has 0.
func (s *Service) Balance(ctx context.Context, actorID string) (int64, error) {
	a, err := s.Actor(ctx, actorID)
	if err != nil {
		return 0, err
	}
	return a.Points, nil
}

// Credit adds points to an actor's balance.
func (s *Service) Credit(ctx context.Context, actorID string, points int64) error {
	if points < 0 {
		return ErrInvalidPoints
	}
	if points == 0 {
		return nil
	}
	return s.users.Update(ctx, actorID, func(u *User) error {
		u.Points += points
		return nil
	})
}

// Debit removes points from an actor's balance. It fails without mutation
// when the balance is lower than points.
func (s *Service) Debit(ctx context.Context, actorID string, points int64) error {
	if points < 0 {
		return ErrInvalidPoints
	}
	if points == 0 {
		return nil
	}
	return s.users.Update(ctx, actorID, func(u *User) error {
		if u.Points < points {
			return ErrInsufficientPoints
		}
		u.Points -= points
		return nil
	})
}
