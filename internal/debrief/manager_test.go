package debrief

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intaked/internal/sqlite"
	"github.com/fyrsmithlabs/intaked/internal/store"
)

type fakeTaskCreator struct {
	created []string
	keys    []string
	fail    error
}

func (f *fakeTaskCreator) CreateTask(ctx context.Context, title, idempotencyKey string) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.created = append(f.created, title)
	f.keys = append(f.keys, idempotencyKey)
	return "task-" + title, nil
}

func newTestManager(t *testing.T) (*Manager, *store.MemoryStore, *fakeTaskCreator) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "intaked.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	records := store.NewMemoryStore()
	tasks := &fakeTaskCreator{}
	return NewManager(db.Conn(), records, tasks, 20, zap.NewNop()), records, tasks
}

// seedReview creates review records with descending creation times so the
// newest-first backlog query returns them in argument order.
func seedReview(t *testing.T, records *store.MemoryStore, ids ...string) {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range ids {
		_, err := records.Create(context.Background(), store.Record{
			ID:             id,
			Collection:     "review",
			Title:          "what about " + id,
			IdempotencyKey: "seed:" + id,
			CreatedAt:      base.Add(-time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
}

func TestStart_EmptyBacklog(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, _, err := m.Start(context.Background(), "chan-1", "review")
	assert.ErrorIs(t, err, ErrNoBacklog)
}

func TestStart_BuildsSessionFromBacklog(t *testing.T) {
	m, records, _ := newTestManager(t)
	seedReview(t, records, "r1", "r2")

	s, prompt, err := m.Start(context.Background(), "chan-1", "review")
	require.NoError(t, err)
	assert.Len(t, s.Items, 2)
	assert.Equal(t, StateAwaitingResponse, s.State)
	assert.Contains(t, prompt, "Item 1 of 2")
}

func TestStart_ResumesExistingSession(t *testing.T) {
	m, records, _ := newTestManager(t)
	seedReview(t, records, "r1", "r2")
	ctx := context.Background()

	first, _, err := m.Start(ctx, "chan-1", "review")
	require.NoError(t, err)
	_, err = m.HandleInput(ctx, "chan-1", "skip")
	require.NoError(t, err)

	resumed, prompt, err := m.Start(ctx, "chan-1", "review")
	require.NoError(t, err)
	assert.Equal(t, first.ID, resumed.ID)
	assert.Equal(t, 1, resumed.ItemIndex)
	assert.Contains(t, prompt, "Item 2 of 2")
}

func TestHandleInput_RePresentsUndeliveredPrompt(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "intaked.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	records := store.NewMemoryStore()
	m := NewManager(db.Conn(), records, &fakeTaskCreator{}, 20, zap.NewNop())
	seedReview(t, records, "r1", "r2")
	ctx := context.Background()

	s, _, err := m.Start(ctx, "chan-1", "review")
	require.NoError(t, err)

	// Roll the session back to presenting, as if it went down before the
	// first prompt reached the user.
	_, err = db.Conn().ExecContext(ctx,
		`UPDATE debrief_sessions SET state = ? WHERE id = ?`, string(StateReviewing), s.ID)
	require.NoError(t, err)

	out, err := m.HandleInput(ctx, "chan-1", "skip")
	require.NoError(t, err)
	assert.Nil(t, out.Resolved, "input answered a prompt the user never saw")
	assert.Equal(t, StateAwaitingResponse, out.Session.State)
	assert.Contains(t, out.Prompt, "Item 1 of 2")

	// The next reply lands normally.
	out, err = m.HandleInput(ctx, "chan-1", "skip")
	require.NoError(t, err)
	require.NotNil(t, out.Resolved)
	assert.Equal(t, ResolutionSkipped, out.Resolved.Resolution)
}

func TestHandleInput_FullFlow(t *testing.T) {
	m, records, tasks := newTestManager(t)
	seedReview(t, records, "r1", "r2")
	ctx := context.Background()

	_, _, err := m.Start(ctx, "chan-1", "review")
	require.NoError(t, err)

	out, err := m.HandleInput(ctx, "chan-1", "book dentist for tuesday")
	require.NoError(t, err)
	require.NotNil(t, out.Resolved)
	assert.Equal(t, ResolutionClarified, out.Resolved.Resolution)

	// Clarified item became a task with a session-scoped key.
	require.Len(t, tasks.created, 1)
	assert.Equal(t, "book dentist for tuesday", tasks.created[0])
	assert.Contains(t, tasks.keys[0], "debrief:")

	// Review record was stamped, not deleted.
	rec, err := records.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "clarified", rec.Fields["review_status"])
	assert.False(t, rec.Deleted())

	out, err = m.HandleInput(ctx, "chan-1", "skip")
	require.NoError(t, err)
	assert.Equal(t, StateEnded, out.Session.State)
	require.NotNil(t, out.Summary)
	assert.Equal(t, Summary{Clarified: 1, Skipped: 1}, *out.Summary)

	rec, err = records.Get(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, "dismissed", rec.Fields["review_status"])

	// The session is over; further input has nowhere to go.
	_, err = m.HandleInput(ctx, "chan-1", "anything")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestHandleInput_FailedSideEffectLeavesStateUntouched(t *testing.T) {
	m, records, tasks := newTestManager(t)
	seedReview(t, records, "r1", "r2")
	ctx := context.Background()

	_, _, err := m.Start(ctx, "chan-1", "review")
	require.NoError(t, err)

	tasks.fail = errors.New("store down")
	_, err = m.HandleInput(ctx, "chan-1", "make it a task")
	require.Error(t, err)

	// Index did not advance; retrying the same reply works.
	s, err := m.Active(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, 0, s.ItemIndex)
	assert.Equal(t, ResolutionPending, s.Items[0].Resolution)

	tasks.fail = nil
	out, err := m.HandleInput(ctx, "chan-1", "make it a task")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Session.ItemIndex)
}

func TestStart_SkipsAlreadyResolvedRecords(t *testing.T) {
	m, records, _ := newTestManager(t)
	seedReview(t, records, "r1", "r2")
	ctx := context.Background()

	rec, err := records.Get(ctx, "r1")
	require.NoError(t, err)
	rec.Fields = map[string]any{"review_status": "dismissed"}
	require.NoError(t, records.Update(ctx, rec))

	s, _, err := m.Start(ctx, "chan-1", "review")
	require.NoError(t, err)
	require.Len(t, s.Items, 1)
	assert.Equal(t, "r2", s.Items[0].RecordID)
}

func TestExpireSessions(t *testing.T) {
	m, records, _ := newTestManager(t)
	seedReview(t, records, "r1", "r2")
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return started }
	_, _, err := m.Start(ctx, "chan-1", "review")
	require.NoError(t, err)

	// Cutoff before the session's last update: nothing expires.
	n, err := m.ExpireSessions(ctx, started.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = m.Active(ctx, "chan-1")
	require.NoError(t, err)

	n, err = m.ExpireSessions(ctx, started.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = m.Active(ctx, "chan-1")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	// Unresolved items stay in the backlog for the next session.
	s, _, err := m.Start(ctx, "chan-1", "review")
	require.NoError(t, err)
	assert.Len(t, s.Items, 2)
}
