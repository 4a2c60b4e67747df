package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/aorta/internal/models"
)

// sessionsDir holds file-backed session records next to the resource dirs.
const sessionsDir = "sessions"

// LocalStorage implements Storage interface using local filesystem
type LocalStorage struct {
	baseDir string
	locks   *keyedMutex
}

// NewLocal creates a new local storage instance
func NewLocal(baseDir string) *LocalStorage {
	return &LocalStorage{
		baseDir: baseDir,
		locks:   newKeyedMutex(),
	}
}

// Read returns the content of a stored resource
func (s *LocalStorage) Read(t models.ResourceType, id string) ([]byte, error) {
	path, err := s.path(t, id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s %s: %w", t, id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s %s: %w", t, id, err)
	}

	return data, nil
}

// Create writes a new resource. The content is written to a temporary file
// and hard-linked into place, so a concurrent create of the same id fails.
func (s *LocalStorage) Create(t models.ResourceType, id string, data []byte) error {
	path, err := s.path(t, id)
	if err != nil {
		return err
	}

	tmp, err := writeTemp(filepath.Dir(path), data, 0o755)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp) }()

	if err := os.Link(tmp, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s %s: %w", t, id, models.ErrDuplicateID)
		}
		return fmt.Errorf("failed to create %s %s: %w", t, id, err)
	}

	return nil
}

// Replace writes a resource, atomically replacing any previous version
func (s *LocalStorage) Replace(t models.ResourceType, id string, data []byte) error {
	path, err := s.path(t, id)
	if err != nil {
		return err
	}

	if err := WriteFile(path, data, 0o755); err != nil {
		return fmt.Errorf("failed to replace %s %s: %w", t, id, err)
	}
	return nil
}

// Delete removes a stored resource
func (s *LocalStorage) Delete(t models.ResourceType, id string) error {
	path, err := s.path(t, id)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s %s: %w", t, id, models.ErrNotFound)
		}
		return fmt.Errorf("failed to delete %s %s: %w", t, id, err)
	}

	return nil
}

// Exists reports whether a resource is stored
func (s *LocalStorage) Exists(t models.ResourceType, id string) (bool, error) {
	path, err := s.path(t, id)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s %s: %w", t, id, err)
	}

	return true, nil
}

// List returns the ids of all stored resources of a type, sorted
func (s *LocalStorage) List(t models.ResourceType) ([]string, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownResourceType, t)
	}

	dir := filepath.Join(s.baseDir, t.Dir())

	// Check if directory exists
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s directory: %w", t.Dir(), err)
	}

	ids := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		// Temporary files start with a dot and carry no id
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, t.Ext()) {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, t.Ext()))
	}

	sort.Strings(ids)
	return ids, nil
}

// Move creates the destination and deletes the source while holding the
// lock for lockKey. Readers that take the same lock never observe both or
// neither.
func (s *LocalStorage) Move(lockKey string, from models.ResourceType, fromID string, to models.ResourceType, toID string, data []byte) error {
	unlock := s.Lock(lockKey)
	defer unlock()

	exists, err := s.Exists(from, fromID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", from, fromID, models.ErrNotFound)
	}

	if err := s.Create(to, toID, data); err != nil {
		return err
	}

	if err := s.Delete(from, fromID); err != nil {
		// Roll back so the source remains the only record
		if rbErr := s.Delete(to, toID); rbErr != nil {
			return fmt.Errorf("failed to move %s %s: %w (rollback: %v)", from, fromID, err, rbErr)
		}
		return fmt.Errorf("failed to move %s %s: %w", from, fromID, err)
	}

	return nil
}

// Lock acquires the in-process lock for key
func (s *LocalStorage) Lock(key string) func() {
	return s.locks.lock(key)
}

// GetStoragePath returns the full path to the storage directory
func (s *LocalStorage) GetStoragePath() string {
	return s.baseDir
}

// SessionsDir returns the directory used by file-backed sessions
func (s *LocalStorage) SessionsDir() string {
	return filepath.Join(s.baseDir, sessionsDir)
}

// EnsureDirectoryExists creates the storage directory tree if it doesn't exist
func (s *LocalStorage) EnsureDirectoryExists() error {
	for _, t := range models.AllTypes {
		if err := os.MkdirAll(filepath.Join(s.baseDir, t.Dir()), 0o755); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", t.Dir(), err)
		}
	}
	return os.MkdirAll(s.SessionsDir(), 0o700)
}

// path validates the type and id and returns the file path of a resource
func (s *LocalStorage) path(t models.ResourceType, id string) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", models.ErrUnknownResourceType, t)
	}
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidID, id)
	}
	return filepath.Join(s.baseDir, t.Dir(), id+t.Ext()), nil
}

// WriteFile atomically replaces the file at path with data, creating its
// directory with dirPerm. Temporary files are hidden dot files in the same
// directory.
func WriteFile(path string, data []byte, dirPerm fs.FileMode) error {
	tmp, err := writeTemp(filepath.Dir(path), data, dirPerm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeTemp writes data to a new hidden temporary file in dir
func writeTemp(dir string, data []byte, dirPerm fs.FileMode) (string, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to sync file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to close file: %w", err)
	}

	return name, nil
}
