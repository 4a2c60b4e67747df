package storage

import (
	"github.com/ppiankov/aorta/internal/models"
)

// Storage defines the interface for persisting resources. Every instance
// is one file keyed by (type, id); writes never leave a partial file.
type Storage interface {
	// Read returns the stored content of a resource
	Read(t models.ResourceType, id string) ([]byte, error)

	// Create stores a new resource, failing with models.ErrDuplicateID if
	// one with the same id already exists
	Create(t models.ResourceType, id string, data []byte) error

	// Replace stores a resource, overwriting any existing version
	Replace(t models.ResourceType, id string, data []byte) error

	// Delete removes a resource, failing with models.ErrNotFound if absent
	Delete(t models.ResourceType, id string) error

	// Exists reports whether a resource is stored
	Exists(t models.ResourceType, id string) (bool, error)

	// List returns the ids of all stored resources of a type, sorted
	List(t models.ResourceType) ([]string, error)

	// Move atomically turns one resource into another: the destination is
	// created with data and the source removed, serialized on lockKey
	Move(lockKey string, from models.ResourceType, fromID string, to models.ResourceType, toID string, data []byte) error

	// Lock acquires the mutual-exclusion lock for key and returns its release
	Lock(key string) func()
}

// LockKey builds the per-resource lock key used by Move and Lock.
func LockKey(t models.ResourceType, id string) string {
	return string(t) + "/" + id
}
