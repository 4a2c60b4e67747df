package lifecycle

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/aorta/internal/models"
)

func TestCreateReportChecks(t *testing.T) {
	m, st := newTestManager(t)
	require.NoError(t, st.Create(models.TypeReport, "taken", []byte(`{"id":"taken","tester":"bob"}`)))
	ctx := context.Background()

	tests := []struct {
		name    string
		body    string
		caller  string
		wantErr error
	}{
		{"missing tester", `{"id":"r1"}`, "bob", models.ErrMissingTester},
		{"tester mismatch", `{"id":"rpt1","tester":"bob"}`, "carol", models.ErrTesterMismatch},
		{"mismatch wins over bad id", `{"id":"Bad!","tester":"bob"}`, "carol", models.ErrTesterMismatch},
		{"missing id", `{"tester":"bob"}`, "bob", models.ErrMissingID},
		{"malformed id", `{"id":"R-1","tester":"bob"}`, "bob", models.ErrInvalidID},
		{"duplicate id", `{"id":"taken","tester":"bob"}`, "bob", models.ErrDuplicateID},
		{"not an object", `[1,2]`, "bob", models.ErrMalformedBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Create(ctx, models.TypeReport, "", []byte(tt.body), tt.caller)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	ids, err := st.List(models.TypeReport)
	require.NoError(t, err)
	assert.Equal(t, []string{"taken"}, ids)
}

func TestCreateReport(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, models.TypeReport, "", []byte(`{"id":"rpt1","tester":"bob","scriptName":"asp09"}`), "bob")
	require.NoError(t, err)
	assert.Equal(t, "rpt1", id)

	entries, err := m.List(ctx, models.TypeReport)
	require.NoError(t, err)
	assert.Equal(t, []models.Entry{{ID: "rpt1", Description: "asp09 tested by bob"}}, entries)
}

func TestReplaceReportInvalidatesDigests(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateReport(ctx, []byte(`{"id":"rpt1","tester":"bob"}`), "bob")
	require.NoError(t, err)
	for _, id := range []string{"rpt1", "rpt1-a", "rpt10"} {
		require.NoError(t, st.Create(models.TypeDigest, id, []byte("<p>old</p>")))
	}

	_, err = m.ReplaceReport(ctx, "rpt1", []byte(`{"id":"rpt1","tester":"bob","v":2}`), "bob")
	require.NoError(t, err)

	ids, err := st.List(models.TypeDigest)
	require.NoError(t, err)
	assert.Equal(t, []string{"rpt10"}, ids)

	data, err := st.Read(models.TypeReport, "rpt1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"rpt1","tester":"bob","v":2}`, string(data))
}

func TestReplaceReportErrors(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateReport(ctx, []byte(`{"id":"rpt1","tester":"bob"}`), "bob")
	require.NoError(t, err)

	_, err = m.ReplaceReport(ctx, "rpt2", []byte(`{"id":"rpt2","tester":"bob"}`), "bob")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = m.ReplaceReport(ctx, "rpt1", []byte(`{"id":"rpt2","tester":"bob"}`), "bob")
	assert.ErrorIs(t, err, models.ErrMalformedBody)

	_, err = m.ReplaceReport(ctx, "rpt1", []byte(`{"id":"rpt1","tester":"eve"}`), "eve")
	assert.ErrorIs(t, err, models.ErrTesterMismatch)
}

func TestCompleteJob(t *testing.T) {
	m, st := newTestManager(t)
	putUser(t, st, "bob", "", models.RoleTest)
	ctx := context.Background()

	order, err := m.CreateOrder(ctx, []byte(`{"scriptName":"s1"}`), "alice")
	require.NoError(t, err)
	_, err = m.Assign(ctx, order.ID, "dave", "bob")
	require.NoError(t, err)

	_, err = m.CompleteJob(ctx, order.ID, "eve", []json.RawMessage{json.RawMessage(`{"id":"r1","tester":"eve"}`)})
	assert.ErrorIs(t, err, models.ErrTesterMismatch)

	_, err = m.CompleteJob(ctx, order.ID, "bob", nil)
	assert.ErrorIs(t, err, models.ErrMissingField)

	_, err = m.CompleteJob(ctx, order.ID, "bob", []json.RawMessage{
		json.RawMessage(`{"id":"r1","tester":"bob"}`),
		json.RawMessage(`{"id":"r1","tester":"bob"}`),
	})
	assert.ErrorIs(t, err, models.ErrDuplicateID)

	_, err = m.CompleteJob(ctx, order.ID, "bob", []json.RawMessage{
		json.RawMessage(`{"id":"r1","tester":"bob"}`),
		json.RawMessage(`{"id":"r2"}`),
	})
	assert.ErrorIs(t, err, models.ErrMissingTester)

	ids, err := st.List(models.TypeReport)
	require.NoError(t, err)
	assert.Empty(t, ids, "rejected completions must not write reports")

	reports, err := m.CompleteJob(ctx, order.ID, "bob", []json.RawMessage{
		json.RawMessage(`{"id":"r1","tester":"bob"}`),
		json.RawMessage(`{"id":"r2","tester":"bob"}`),
	})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, order.ID, reports[0].OrderID)
	assert.Equal(t, "alice", reports[0].Creator)

	exists, err := st.Exists(models.TypeJob, order.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = m.CompleteJob(ctx, order.ID, "bob", []json.RawMessage{json.RawMessage(`{"id":"r3","tester":"bob"}`)})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRemoveReportDropsDigests(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateReport(ctx, []byte(`{"id":"rpt1","tester":"bob"}`), "bob")
	require.NoError(t, err)
	require.NoError(t, st.Create(models.TypeDigest, "rpt1", []byte("<p>x</p>")))

	require.NoError(t, m.Remove(ctx, models.TypeReport, "rpt1"))

	ids, err := st.List(models.TypeDigest)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
