package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/aorta/internal/models"
	"github.com/ppiankov/aorta/internal/storage"
)

// clock is a settable time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newFileStore(t *testing.T, c *clock) *FileStore {
	t.Helper()
	s := NewFileStore(filepath.Join(t.TempDir(), "sessions"), time.Hour)
	s.now = c.now
	return s
}

func newRedisStore(t *testing.T, c *clock) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, time.Hour)
	s.now = c.now
	return s, mr
}

func TestStores(t *testing.T) {
	builders := map[string]func(t *testing.T, c *clock) Store{
		"file": func(t *testing.T, c *clock) Store { return newFileStore(t, c) },
		"redis": func(t *testing.T, c *clock) Store {
			s, _ := newRedisStore(t, c)
			return s
		},
	}

	for name, build := range builders {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
			s := build(t, c)

			sess, err := s.Create(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, "alice", sess.Identity)
			assert.Equal(t, c.t.Add(time.Hour), sess.ExpiresAt)

			got, err := s.Get(ctx, sess.ID)
			require.NoError(t, err)
			assert.Equal(t, "alice", got.Identity)

			other, err := s.Create(ctx, "alice")
			require.NoError(t, err)
			assert.NotEqual(t, sess.ID, other.ID)

			require.NoError(t, s.Delete(ctx, sess.ID))
			_, err = s.Get(ctx, sess.ID)
			assert.ErrorIs(t, err, ErrNotFound)

			// Deleting twice is fine.
			require.NoError(t, s.Delete(ctx, sess.ID))

			c.t = c.t.Add(2 * time.Hour)
			_, err = s.Get(ctx, other.ID)
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = s.Get(ctx, "../../etc/passwd")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = s.Create(ctx, "")
			assert.Error(t, err)
		})
	}
}

func TestRedisStoreUsesKeyExpiry(t *testing.T) {
	c := &clock{t: time.Now()}
	s, mr := newRedisStore(t, c)
	ctx := context.Background()

	sess, err := s.Create(ctx, "bob")
	require.NoError(t, err)

	key := DefaultKeyPrefix + sess.ID
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))

	mr.FastForward(time.Hour + time.Second)
	_, err = s.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := NewRedisClient(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	addr := mr.Addr()
	mr.Close()
	_, err = NewRedisClient(context.Background(), RedisConfig{Addr: addr})
	assert.Error(t, err)
}

func TestFileStorePurge(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := newFileStore(t, c)
	ctx := context.Background()

	n, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.Create(ctx, "alice")
	require.NoError(t, err)
	c.t = c.t.Add(30 * time.Minute)
	live, err := s.Create(ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "junk.json"), []byte("{"), 0o600))

	c.t = c.t.Add(45 * time.Minute)
	n, err = s.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Get(ctx, live.ID)
	assert.NoError(t, err)
}

func TestFileStorePermissions(t *testing.T) {
	c := &clock{t: time.Now()}
	s := newFileStore(t, c)

	sess, err := s.Create(context.Background(), "alice")
	require.NoError(t, err)

	info, err := os.Stat(s.dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	info, err = os.Stat(s.path(sess.ID))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStoreOnResourceStore(t *testing.T) {
	st := storage.NewLocal(t.TempDir())
	require.NoError(t, st.EnsureDirectoryExists())
	s := NewFileStore(st.SessionsDir(), time.Hour)
	ctx := context.Background()

	first, err := s.Create(ctx, "alice")
	require.NoError(t, err)
	_, err = s.Create(ctx, "bob")
	require.NoError(t, err)

	entries, err := os.ReadDir(st.SessionsDir())
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files are left behind")

	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Identity)

	users, err := st.List(models.TypeUser)
	require.NoError(t, err)
	assert.Empty(t, users)
}
