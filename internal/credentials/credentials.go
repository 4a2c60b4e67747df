// Package credentials resolves identities against the user collection of
// the resource store. Nothing is cached: every call reads current state.
package credentials

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ppiankov/aorta/internal/models"
	"github.com/ppiankov/aorta/internal/storage"
)

// Store looks up and verifies users.
type Store struct {
	storage storage.Storage
}

// New creates a credential store over st.
func New(st storage.Storage) *Store {
	return &Store{storage: st}
}

// LookupUser returns the stored user with the given identity.
func (s *Store) LookupUser(identity string) (*models.User, error) {
	data, err := s.storage.Read(models.TypeUser, identity)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user %s: %w", identity, err)
	}
	if user.ID == "" {
		user.ID = identity
	}

	return &user, nil
}

// Verify authenticates identity with secret and checks the required role.
// Unknown identities and wrong secrets both fail with ErrBadCredential.
func (s *Store) Verify(identity, secret string, required models.Role) (*models.User, error) {
	if identity == "" {
		return nil, models.ErrNoIdentity
	}
	if secret == "" {
		return nil, models.ErrNoSecret
	}

	user, err := s.resolve(identity)
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(user.AuthCode), []byte(secret)) != 1 {
		return nil, models.ErrBadCredential
	}

	return checkRole(user, required)
}

// VerifyIdentity checks the role of an identity already authenticated by
// other means, such as a session.
func (s *Store) VerifyIdentity(identity string, required models.Role) (*models.User, error) {
	if identity == "" {
		return nil, models.ErrNoIdentity
	}

	user, err := s.resolve(identity)
	if err != nil {
		return nil, err
	}

	return checkRole(user, required)
}

func (s *Store) resolve(identity string) (*models.User, error) {
	user, err := s.LookupUser(identity)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrInvalidID) {
			return nil, models.ErrBadCredential
		}
		return nil, err
	}
	return user, nil
}

func checkRole(user *models.User, required models.Role) (*models.User, error) {
	if !user.HasRole(required) {
		return nil, fmt.Errorf("%w: %s", models.ErrMissingRole, required)
	}
	return user, nil
}
