package credentials

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/aorta/internal/models"
	"github.com/ppiankov/aorta/internal/storage"
)

func newStore(t *testing.T) (*Store, *storage.LocalStorage) {
	t.Helper()
	st := storage.NewLocal(t.TempDir())
	require.NoError(t, st.Create(models.TypeUser, "alice", []byte(`{"id":"alice","authCode":"a1","roles":["order","read"]}`)))
	return New(st), st
}

func TestLookupUser(t *testing.T) {
	s, _ := newStore(t)

	user, err := s.LookupUser("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.ID)
	assert.ElementsMatch(t, []models.Role{models.RoleOrder, models.RoleRead}, user.Roles)

	_, err = s.LookupUser("nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestVerify(t *testing.T) {
	s, _ := newStore(t)

	tests := []struct {
		name     string
		identity string
		secret   string
		role     models.Role
		wantErr  error
	}{
		{"allowed with role", "alice", "a1", models.RoleOrder, nil},
		{"allowed with empty requirement", "alice", "a1", models.RoleNone, nil},
		{"no identity", "", "a1", models.RoleOrder, models.ErrNoIdentity},
		{"no secret", "alice", "", models.RoleOrder, models.ErrNoSecret},
		{"unknown identity", "mallory", "a1", models.RoleOrder, models.ErrBadCredential},
		{"malformed identity", "../x", "a1", models.RoleOrder, models.ErrBadCredential},
		{"wrong secret", "alice", "nope", models.RoleOrder, models.ErrBadCredential},
		{"missing role", "alice", "a1", models.RoleManage, models.ErrMissingRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := s.Verify(tt.identity, tt.secret, tt.role)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, "alice", user.ID)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
			assert.Nil(t, user)
		})
	}
}

func TestVerifyReadsCurrentState(t *testing.T) {
	s, st := newStore(t)

	_, err := s.Verify("alice", "a1", models.RoleRead)
	require.NoError(t, err)

	require.NoError(t, st.Replace(models.TypeUser, "alice", []byte(`{"id":"alice","authCode":"a2","roles":[]}`)))

	_, err = s.Verify("alice", "a1", models.RoleRead)
	assert.ErrorIs(t, err, models.ErrBadCredential)

	_, err = s.Verify("alice", "a2", models.RoleRead)
	assert.ErrorIs(t, err, models.ErrMissingRole)
}

func TestVerifyIdentity(t *testing.T) {
	s, st := newStore(t)

	_, err := s.VerifyIdentity("alice", models.RoleOrder)
	require.NoError(t, err)

	_, err = s.VerifyIdentity("", models.RoleOrder)
	assert.ErrorIs(t, err, models.ErrNoIdentity)

	require.NoError(t, st.Delete(models.TypeUser, "alice"))
	_, err = s.VerifyIdentity("alice", models.RoleOrder)
	assert.ErrorIs(t, err, models.ErrBadCredential)
}

func TestLookupUserCorrupt(t *testing.T) {
	s, st := newStore(t)
	require.NoError(t, st.Create(models.TypeUser, "broken", []byte(`{not json`)))

	_, err := s.Verify("broken", "x", models.RoleNone)
	require.Error(t, err)
	assert.Equal(t, models.CategoryInfrastructure, models.Classify(err))
}
