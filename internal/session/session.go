// Package session keeps login sessions as keyed records with an expiry.
// A session only establishes who the caller is; roles are re-read from the
// user record on every request.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is the lifetime of a session when none is configured.
const DefaultTTL = 12 * time.Hour

// ErrNotFound is returned for unknown and expired sessions.
var ErrNotFound = errors.New("session not found")

// Session is one login.
type Session struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store persists sessions.
type Store interface {
	// Create starts a session for identity
	Create(ctx context.Context, identity string) (*Session, error)

	// Get returns a live session, or ErrNotFound
	Get(ctx context.Context, id string) (*Session, error)

	// Delete ends a session. Deleting an unknown session is not an error
	Delete(ctx context.Context, id string) error
}

// newSession builds a session with a random id.
func newSession(identity string, now time.Time, ttl time.Duration) (*Session, error) {
	if identity == "" {
		return nil, fmt.Errorf("session needs an identity")
	}
	return &Session{
		ID:        uuid.NewString(),
		Identity:  identity,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// validID rejects anything that is not a session id we issued.
func validID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: malformed id", ErrNotFound)
	}
	return nil
}
