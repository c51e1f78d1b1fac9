// Package session persists the signed-in user's bearer token and identity and
// tells interested parties when that session goes away.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/kimhsiao/fitnix/console/internal/errors"
	"github.com/kimhsiao/fitnix/console/internal/logging"
	"github.com/kimhsiao/fitnix/console/internal/models"
)

// Durable keys holding the session.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// Reason says why a session was invalidated.
type Reason string

const (
	ReasonLogout                Reason = "logout"
	ReasonAuthenticationFailure Reason = "authentication_failure"
	ReasonCorrupt               Reason = "corrupt"
)

// EventType distinguishes session events.
type EventType string

const (
	EventSet         EventType = "session.set"
	EventInvalidated EventType = "session.invalidated"
)

// Event is delivered to subscribers after the session changes.
type Event struct {
	Type      EventType
	Reason    Reason
	Username  string
	Timestamp time.Time
}

// Session is a bearer token plus the identity it belongs to.
type Session struct {
	Token string
	User  models.User
}

// Claims are the fields the console reads out of the bearer token.
type Claims struct {
	Role     string `json:"role,omitempty"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Claims decodes the token without verifying its signature. The server
// remains the authority on validity.
func (s Session) Claims() (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Expired reports whether the token carries an exp claim before now. Tokens
// that are not JWTs, or carry no exp, are never considered expired here.
func (s Session) Expired(now time.Time) bool {
	claims, err := s.Claims()
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.Time.After(now)
}

// Backend is a durable string key/value store.
type Backend interface {
	Load(ctx context.Context, key string) (string, bool, error)
	// Save writes every pair atomically.
	Save(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// Store reads and writes the session through a Backend.
type Store struct {
	backend Backend
	now     func() time.Time

	mu          sync.Mutex
	subscribers map[int]func(Event)
	nextID      int
}

// NewStore creates a Store over backend.
func NewStore(backend Backend) *Store {
	return &Store{
		backend:     backend,
		now:         time.Now,
		subscribers: make(map[int]func(Event)),
	}
}

// Get returns the current session. ok is false when no session exists or the
// stored identity cannot be decoded; in the latter case the leftovers are
// cleared.
func (s *Store) Get(ctx context.Context) (Session, bool, error) {
	token, ok, err := s.backend.Load(ctx, KeyToken)
	if apperrors.Is(err, apperrors.ErrSessionCorrupt) {
		return s.discard(ctx, err)
	}
	if err != nil {
		return Session{}, false, err
	}
	if !ok || token == "" {
		return Session{}, false, nil
	}

	raw, ok, err := s.backend.Load(ctx, KeyUser)
	if apperrors.Is(err, apperrors.ErrSessionCorrupt) {
		return s.discard(ctx, err)
	}
	if err != nil {
		return Session{}, false, err
	}

	var user models.User
	if !ok {
		return s.discard(ctx, apperrors.New(apperrors.ErrSessionCorrupt, "identity missing"))
	}
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return s.discard(ctx, apperrors.Wrap(apperrors.ErrSessionCorrupt, "identity unreadable", err))
	}

	return Session{Token: token, User: user}, true, nil
}

// discard clears a session whose stored values cannot be read and reports
// it as absent.
func (s *Store) discard(ctx context.Context, cause error) (Session, bool, error) {
	logging.Warn("Stored session is unreadable, clearing session", map[string]interface{}{"error": cause.Error()})
	if err := s.Clear(ctx, ReasonCorrupt); err != nil {
		return Session{}, false, err
	}
	return Session{}, false, nil
}

// Token returns the bearer token, or "" when there is no session.
func (s *Store) Token(ctx context.Context) (string, error) {
	sess, ok, err := s.Get(ctx)
	if err != nil || !ok {
		return "", err
	}
	return sess.Token, nil
}

// Set stores token and identity together.
func (s *Store) Set(ctx context.Context, sess Session) error {
	if sess.Token == "" {
		return apperrors.New(apperrors.ErrInvalid, "session token is required")
	}
	user, err := json.Marshal(sess.User)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode session user", err)
	}
	if err := s.backend.Save(ctx, map[string]string{
		KeyToken: sess.Token,
		KeyUser:  string(user),
	}); err != nil {
		return err
	}

	s.publish(Event{Type: EventSet, Username: sess.User.Username})
	return nil
}

// Clear removes token and identity together and notifies subscribers.
func (s *Store) Clear(ctx context.Context, reason Reason) error {
	if err := s.backend.Delete(ctx, KeyToken, KeyUser); err != nil {
		return err
	}
	logging.Info("Session cleared", map[string]interface{}{"reason": string(reason)})
	s.publish(Event{Type: EventInvalidated, Reason: reason})
	return nil
}

// Subscribe registers fn for every future event and returns a function that
// removes it. Events are delivered synchronously on the goroutine that
// changed the session.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *Store) publish(ev Event) {
	ev.Timestamp = s.now()

	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
