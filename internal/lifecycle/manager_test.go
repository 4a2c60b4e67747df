package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/aorta/internal/models"
	"github.com/ppiankov/aorta/internal/notify"
	"github.com/ppiankov/aorta/internal/storage"
)

var fixedNow = time.Date(2023, time.March, 14, 15, 9, 26, 0, time.UTC)

func newTestManager(t *testing.T, opts ...Option) (*Manager, *storage.LocalStorage) {
	t.Helper()
	st := storage.NewLocal(t.TempDir())
	require.NoError(t, st.EnsureDirectoryExists())

	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(st, opts...), st
}

func putUser(t *testing.T, st storage.Storage, id, email string, roles ...models.Role) {
	t.Helper()
	if roles == nil {
		roles = []models.Role{}
	}
	data, err := json.Marshal(models.User{ID: id, Email: email, AuthCode: id + "-code", Roles: roles})
	require.NoError(t, err)
	require.NoError(t, st.Create(models.TypeUser, id, data))
}

func TestScriptRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, models.TypeScript, "abc123", []byte(`{"what":"desc"}`), "alice")
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)

	entries, err := m.List(ctx, models.TypeScript)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.Entry{ID: "abc123", Description: "desc"}, entries[0])

	require.NoError(t, m.Remove(ctx, models.TypeScript, "abc123"))

	entries, err = m.List(ctx, models.TypeScript)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.ErrorIs(t, m.Remove(ctx, models.TypeScript, "abc123"), models.ErrNotFound)
}

func TestCreateTwiceIsDuplicate(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, models.TypeBatch, "b1", []byte(`{"what":"orgs"}`), "alice")
	require.NoError(t, err)

	_, err = m.Create(ctx, models.TypeBatch, "b1", []byte(`{"what":"other"}`), "alice")
	assert.ErrorIs(t, err, models.ErrDuplicateID)

	data, err := m.Read(ctx, models.TypeBatch, "b1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"what":"orgs"}`, string(data))
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Create(ctx, models.TypeScript, "race", []byte(`{"what":"x"}`), "alice")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, models.ErrDuplicateID)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestCreateValidation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		t       models.ResourceType
		id      string
		body    string
		wantErr error
	}{
		{"bad script id", models.TypeScript, "Bad-Id", `{"what":"x"}`, models.ErrInvalidID},
		{"empty script id", models.TypeScript, "", `{"what":"x"}`, models.ErrMissingID},
		{"script without what", models.TypeScript, "s1", `{"how":"x"}`, models.ErrMissingField},
		{"script not json", models.TypeScript, "s1", `nope`, models.ErrMalformedBody},
		{"user without code", models.TypeUser, "", `{"id":"u1","roles":[]}`, models.ErrMissingField},
		{"user bad role", models.TypeUser, "", `{"id":"u1","authCode":"c","roles":["boss"]}`, models.ErrMalformedBody},
		{"user id mismatch", models.TypeUser, "u2", `{"id":"u1","authCode":"c","roles":[]}`, models.ErrMalformedBody},
		{"jobs are not created directly", models.TypeJob, "j1", `{}`, models.ErrMalformedBody},
		{"unknown type", models.ResourceType("widget"), "w1", `{}`, models.ErrUnknownResourceType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Create(ctx, tt.t, tt.id, []byte(tt.body), "alice")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	entries, err := m.List(ctx, models.TypeScript)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed creates must not write")
}

func TestListSynthesizesIDs(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, st.Create(models.TypeScript, "s2", []byte(`{"what":"second"}`)))
	require.NoError(t, st.Create(models.TypeScript, "s1", []byte(`{"id":"s1","what":"first"}`)))
	require.NoError(t, st.Create(models.TypeScript, "s3", []byte(`not json`)))

	entries, err := m.List(ctx, models.TypeScript)
	require.NoError(t, err)
	assert.Equal(t, []models.Entry{
		{ID: "s1", Description: "first"},
		{ID: "s2", Description: "second"},
		{ID: "s3"},
	}, entries)
}

func TestUserLifecycle(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, models.TypeUser, "", []byte(`{"id":"dana","name":"Dana","authCode":"x","roles":["read"]}`), "admin")
	require.NoError(t, err)
	assert.Equal(t, "dana", id)

	entries, err := m.List(ctx, models.TypeUser)
	require.NoError(t, err)
	assert.Equal(t, []models.Entry{{ID: "dana", Description: "Dana"}}, entries)

	user, err := m.ReplaceUser(ctx, "dana", []byte(`{"id":"dana","authCode":"y","roles":["read","test"]}`))
	require.NoError(t, err)
	assert.True(t, user.HasRole(models.RoleTest))

	_, err = m.ReplaceUser(ctx, "erin", []byte(`{"id":"erin","authCode":"y","roles":[]}`))
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = m.ReplaceUser(ctx, "dana", []byte(`{"id":"erin","authCode":"y","roles":[]}`))
	assert.ErrorIs(t, err, models.ErrMalformedBody)
}

func TestCanceledContext(t *testing.T) {
	m, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Create(ctx, models.TypeScript, "s1", []byte(`{"what":"x"}`), "alice")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = m.List(context.Background(), models.TypeScript)
	require.NoError(t, err)
}

func TestReportNotification(t *testing.T) {
	rec := &recordingNotifier{}
	var logs bytes.Buffer
	d := notify.NewDispatcher(rec, slog.New(slog.NewTextHandler(&logs, nil)), time.Second)

	m, st := newTestManager(t, WithNotifier(d))
	putUser(t, st, "alice", "alice@example.com", models.RoleOrder)
	putUser(t, st, "bob", "", models.RoleTest)
	ctx := context.Background()

	_, err := m.CreateReport(ctx, []byte(`{"id":"r1","tester":"bob","creator":"alice"}`), "bob")
	require.NoError(t, err)

	// Creators without an email are skipped.
	_, err = m.CreateReport(ctx, []byte(`{"id":"r2","tester":"bob","creator":"bob"}`), "bob")
	require.NoError(t, err)

	d.Wait()
	require.Len(t, rec.sent, 1)
	assert.Equal(t, "alice@example.com", rec.sent[0].To)
	assert.Contains(t, rec.sent[0].Subject, "r1")
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (r *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}
