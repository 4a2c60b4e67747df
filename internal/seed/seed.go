// Package seed imports user accounts from a YAML file straight into the
// resource store. It is how the first manage-role user gets created.
package seed

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/aorta/internal/models"
	"github.com/ppiankov/aorta/internal/storage"
	"github.com/ppiankov/aorta/internal/validator"
)

// File is a seed file.
type File struct {
	Version int        `yaml:"version"`
	Users   []SeedUser `yaml:"users"`
}

// SeedUser is one account in a seed file.
type SeedUser struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name,omitempty"`
	Email    string   `yaml:"email,omitempty"`
	AuthCode string   `yaml:"auth_code"`
	Roles    []string `yaml:"roles"`
}

// Failure is a user that could not be imported.
type Failure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Result holds the outcome of an import.
type Result struct {
	Created  []string  `json:"created"`
	Replaced []string  `json:"replaced"`
	Skipped  []string  `json:"skipped"`
	Failed   []Failure `json:"failed"`
}

// OK reports whether every user was imported or deliberately skipped.
func (r *Result) OK() bool {
	return len(r.Failed) == 0
}

// LoadFromFile reads a seed file.
func LoadFromFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes seed file content.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if f.Version > 1 {
		return nil, fmt.Errorf("unsupported seed file version %d", f.Version)
	}
	return &f, nil
}

// Import writes the users of f into st. Existing users are skipped unless
// overwrite is set. Every user is validated like an API submission; an
// invalid user is reported and the rest are still imported.
func Import(st storage.Storage, f *File, overwrite bool) (*Result, error) {
	v := validator.New()
	res := &Result{}

	for _, su := range f.Users {
		data, err := json.Marshal(su.record())
		if err != nil {
			return nil, fmt.Errorf("marshal user %s: %w", su.ID, err)
		}

		user, err := v.ValidateUser(data)
		if err != nil {
			res.Failed = append(res.Failed, Failure{ID: su.ID, Reason: err.Error()})
			continue
		}
		if data, err = json.MarshalIndent(user, "", "  "); err != nil {
			return nil, fmt.Errorf("marshal user %s: %w", su.ID, err)
		}

		err = st.Create(models.TypeUser, user.ID, data)
		switch {
		case err == nil:
			res.Created = append(res.Created, user.ID)
		case errors.Is(err, models.ErrDuplicateID) && !overwrite:
			res.Skipped = append(res.Skipped, user.ID)
		case errors.Is(err, models.ErrDuplicateID):
			if err := replace(st, user.ID, data); err != nil {
				return nil, err
			}
			res.Replaced = append(res.Replaced, user.ID)
		default:
			return nil, fmt.Errorf("store user %s: %w", user.ID, err)
		}
	}

	return res, nil
}

func replace(st storage.Storage, id string, data []byte) error {
	unlock := st.Lock(storage.LockKey(models.TypeUser, id))
	defer unlock()
	if err := st.Replace(models.TypeUser, id, data); err != nil {
		return fmt.Errorf("replace user %s: %w", id, err)
	}
	return nil
}

func (su SeedUser) record() models.User {
	roles := make([]models.Role, 0, len(su.Roles))
	for _, r := range su.Roles {
		roles = append(roles, models.Role(r))
	}
	return models.User{
		ID:       su.ID,
		Name:     su.Name,
		Email:    su.Email,
		AuthCode: su.AuthCode,
		Roles:    roles,
	}
}

// Sample returns a commented seed file.
func Sample() string {
	return `# AORTA user seed file
# Import with: aorta users import <file>
version: 1
users:
  - id: admin
    name: Administrator
    email: admin@example.org
    auth_code: change-me
    # order, assign, test, manage, read
    roles: [manage, read]
`
}
