// Package access decides whether a caller may perform an operation on a
// resource type. Requirements come from a fixed table; adding a resource
// type is a table edit.
package access

import (
	"errors"
	"fmt"

	"github.com/ppiankov/aorta/internal/credentials"
	"github.com/ppiankov/aorta/internal/models"
)

// Requirements maps each operation on a type to the role it needs.
type Requirements map[models.Operation]models.Role

// DefaultTable is the role table enforced by the gate.
var DefaultTable = map[models.ResourceType]Requirements{
	models.TypeScript: {models.OpSee: models.RoleNone, models.OpCreate: models.RoleOrder, models.OpRemove: models.RoleManage},
	models.TypeBatch:  {models.OpSee: models.RoleNone, models.OpCreate: models.RoleOrder, models.OpRemove: models.RoleManage},
	models.TypeOrder:  {models.OpSee: models.RoleNone, models.OpCreate: models.RoleOrder, models.OpRemove: models.RoleManage},
	models.TypeJob:    {models.OpSee: models.RoleAssign, models.OpCreate: models.RoleAssign, models.OpRemove: models.RoleManage},
	models.TypeReport: {models.OpSee: models.RoleRead, models.OpCreate: models.RoleTest, models.OpRemove: models.RoleManage},
	models.TypeDigest: {models.OpSee: models.RoleRead, models.OpCreate: models.RoleRead, models.OpRemove: models.RoleManage},
	models.TypeUser:   {models.OpSee: models.RoleManage, models.OpCreate: models.RoleManage, models.OpRemove: models.RoleManage},
}

// ErrUnknownOperation is returned for an operation missing from the table.
var ErrUnknownOperation = errors.New("unknown operation")

// Required returns the role needed for op on t.
func Required(t models.ResourceType, op models.Operation) (models.Role, error) {
	reqs, ok := DefaultTable[t]
	if !ok {
		return "", fmt.Errorf("%w: %q", models.ErrUnknownResourceType, t)
	}
	role, ok := reqs[op]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
	return role, nil
}

// Gate authorizes requests against the credential store.
type Gate struct {
	creds *credentials.Store
}

// NewGate creates a gate backed by creds.
func NewGate(creds *credentials.Store) *Gate {
	return &Gate{creds: creds}
}

// Authorize checks that identity/secret may perform op on t and returns the
// authenticated user.
func (g *Gate) Authorize(t models.ResourceType, op models.Operation, identity, secret string) (*models.User, error) {
	role, err := Required(t, op)
	if err != nil {
		return nil, err
	}
	return g.creds.Verify(identity, secret, role)
}

// AuthorizeIdentity is Authorize for a caller whose identity was
// established by a session. The user record is still re-read.
func (g *Gate) AuthorizeIdentity(t models.ResourceType, op models.Operation, identity string) (*models.User, error) {
	role, err := Required(t, op)
	if err != nil {
		return nil, err
	}
	return g.creds.VerifyIdentity(identity, role)
}

// AuthorizeRole checks a role directly, for operations outside the
// type/operation table such as listing one's own jobs.
func (g *Gate) AuthorizeRole(role models.Role, identity, secret string) (*models.User, error) {
	return g.creds.Verify(identity, secret, role)
}

// AuthorizeIdentityRole is AuthorizeRole for a session identity.
func (g *Gate) AuthorizeIdentityRole(role models.Role, identity string) (*models.User, error) {
	return g.creds.VerifyIdentity(identity, role)
}

// Authenticate verifies credentials without any role requirement.
func (g *Gate) Authenticate(identity, secret string) (*models.User, error) {
	return g.creds.Verify(identity, secret, models.RoleNone)
}
