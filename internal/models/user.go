package models

// Role is a capability tag granted to a user.
type Role string

const (
	// RoleNone is the requirement of operations open to every authenticated user.
	RoleNone   Role = ""
	RoleOrder  Role = "order"
	RoleAssign Role = "assign"
	RoleTest   Role = "test"
	RoleManage Role = "manage"
	RoleRead   Role = "read"
)

// KnownRoles lists the roles a user record may carry.
var KnownRoles = []Role{RoleOrder, RoleAssign, RoleTest, RoleManage, RoleRead}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range KnownRoles {
		if r == known {
			return true
		}
	}
	return false
}

// User is a stored account. AuthCode is compared by exact match.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	AuthCode string `json:"authCode"`
	Roles    []Role `json:"roles"`
}

// HasRole reports whether the user satisfies the requirement r.
// The empty requirement is satisfied by every user.
func (u *User) HasRole(r Role) bool {
	if r == RoleNone {
		return true
	}
	for _, role := range u.Roles {
		if role == r {
			return true
		}
	}
	return false
}
