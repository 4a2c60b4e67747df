package access

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/aorta/internal/credentials"
	"github.com/ppiankov/aorta/internal/models"
	"github.com/ppiankov/aorta/internal/storage"
)

var testUsers = map[string]string{
	"alice": `{"id":"alice","authCode":"a1","roles":["order"]}`,
	"bob":   `{"id":"bob","authCode":"b1","roles":["test","read"]}`,
	"dana":  `{"id":"dana","authCode":"d1","roles":["manage","assign"]}`,
	"eve":   `{"id":"eve","authCode":"e1","roles":[]}`,
}

var testRoles = map[string][]models.Role{
	"alice": {models.RoleOrder},
	"bob":   {models.RoleTest, models.RoleRead},
	"dana":  {models.RoleManage, models.RoleAssign},
	"eve":   {},
}

func newGate(t *testing.T) *Gate {
	t.Helper()
	st := storage.NewLocal(t.TempDir())
	for id, body := range testUsers {
		require.NoError(t, st.Create(models.TypeUser, id, []byte(body)))
	}
	return NewGate(credentials.New(st))
}

func TestTableCoversEveryTypeAndOperation(t *testing.T) {
	for _, rt := range models.AllTypes {
		for _, op := range []models.Operation{models.OpSee, models.OpCreate, models.OpRemove} {
			_, err := Required(rt, op)
			assert.NoError(t, err, "%s/%s", rt, op)
		}
	}
}

func TestRequiredExamples(t *testing.T) {
	tests := []struct {
		rt   models.ResourceType
		op   models.Operation
		want models.Role
	}{
		{models.TypeReport, models.OpSee, models.RoleRead},
		{models.TypeReport, models.OpCreate, models.RoleTest},
		{models.TypeUser, models.OpRemove, models.RoleManage},
		{models.TypeScript, models.OpSee, models.RoleNone},
		{models.TypeBatch, models.OpCreate, models.RoleOrder},
		{models.TypeScript, models.OpRemove, models.RoleManage},
		{models.TypeJob, models.OpCreate, models.RoleAssign},
		{models.TypeJob, models.OpRemove, models.RoleManage},
		{models.TypeDigest, models.OpCreate, models.RoleRead},
		{models.TypeDigest, models.OpRemove, models.RoleManage},
	}
	for _, tt := range tests {
		got, err := Required(tt.rt, tt.op)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s/%s", tt.rt, tt.op)
	}

	_, err := Required("widget", models.OpSee)
	assert.ErrorIs(t, err, models.ErrUnknownResourceType)
	_, err = Required(models.TypeScript, "edit")
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

// Allowed iff the requirement is among the user's roles or empty.
func TestAuthorizeMatchesRoleTable(t *testing.T) {
	g := newGate(t)
	secrets := map[string]string{"alice": "a1", "bob": "b1", "dana": "d1", "eve": "e1"}

	for user, roles := range testRoles {
		for _, rt := range models.AllTypes {
			for _, op := range []models.Operation{models.OpSee, models.OpCreate, models.OpRemove} {
				t.Run(fmt.Sprintf("%s/%s/%s", user, rt, op), func(t *testing.T) {
					required, _ := Required(rt, op)
					want := required == models.RoleNone
					for _, r := range roles {
						if r == required {
							want = true
						}
					}

					_, err := g.Authorize(rt, op, user, secrets[user])
					if want {
						assert.NoError(t, err)
					} else {
						assert.ErrorIs(t, err, models.ErrMissingRole)
					}
				})
			}
		}
	}
}

func TestAuthorizeNonEnumerable(t *testing.T) {
	g := newGate(t)

	pairs := [][2]string{
		{"mallory", "a1"},
		{"mallory", "whatever"},
		{"alice", "b1"},
		{"alice", "A1"},
		{"bob", "a1"},
	}
	for _, p := range pairs {
		_, err := g.Authorize(models.TypeScript, models.OpSee, p[0], p[1])
		assert.ErrorIs(t, err, models.ErrBadCredential, "%v", p)
		assert.Equal(t, MsgBadCredential, Message(err))
	}
}

func TestAuthorizeDistinctReasons(t *testing.T) {
	g := newGate(t)

	_, err := g.Authorize(models.TypeReport, models.OpSee, "", "x")
	assert.Equal(t, MsgNoIdentity, Message(err))

	_, err = g.Authorize(models.TypeReport, models.OpSee, "alice", "")
	assert.Equal(t, MsgNoSecret, Message(err))

	_, err = g.Authorize(models.TypeReport, models.OpSee, "alice", "a1")
	assert.Equal(t, MsgMissingRole, Message(err))

	_, err = g.Authorize(models.TypeReport, models.OpSee, "alice", "wrong")
	assert.Equal(t, MsgBadCredential, Message(err))
	assert.NotEqual(t, MsgBadCredential, MsgMissingRole)
}

func TestAuthorizeIdentity(t *testing.T) {
	g := newGate(t)

	user, err := g.AuthorizeIdentity(models.TypeReport, models.OpCreate, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", user.ID)

	_, err = g.AuthorizeIdentity(models.TypeUser, models.OpSee, "bob")
	assert.ErrorIs(t, err, models.ErrMissingRole)

	_, err = g.AuthorizeIdentityRole(models.RoleTest, "ghost")
	assert.ErrorIs(t, err, models.ErrBadCredential)
}

func TestAuthenticate(t *testing.T) {
	g := newGate(t)

	user, err := g.Authenticate("eve", "e1")
	require.NoError(t, err)
	assert.Equal(t, "eve", user.ID)

	_, err = g.AuthorizeRole(models.RoleTest, "eve", "e1")
	assert.ErrorIs(t, err, models.ErrMissingRole)
}

func TestMessageInfrastructure(t *testing.T) {
	assert.Equal(t, MsgInternal, Message(fmt.Errorf("disk on fire")))
	assert.Equal(t, "There is no such order.", Message(fmt.Errorf("assign: %w", models.ErrUnknownOrder)))
}
