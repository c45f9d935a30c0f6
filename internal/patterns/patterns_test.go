package patterns

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intaked/internal/auditlog"
	"github.com/fyrsmithlabs/intaked/internal/extraction"
	"github.com/fyrsmithlabs/intaked/internal/sqlite"
	"github.com/fyrsmithlabs/intaked/internal/store"
)

func newTestEnv(t *testing.T) (*SQLStore, *store.MemoryStore, *auditlog.Log) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "intaked.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(db.Conn()), store.NewMemoryStore(), auditlog.New(db.Conn())
}

func TestIsCorrection(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"no, that's a note", true},
		{"wrong, I said Sarah", true},
		{"I meant the dentist", true},
		{"that's not what I said", true},
		{"actually make it a project", true},
		{"change that to Friday", true},
		{"Buy milk tomorrow", false},
		{"Call Sarah at 3pm", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCorrection(tt.text))
		})
	}
}

func TestParseCorrection(t *testing.T) {
	tests := []struct {
		text      string
		wantField string
		wantValue string
		wantOK    bool
	}{
		{"no, that's a note", FieldIntent, "note", true},
		{"that's not a task, it's an idea", FieldIntent, "idea", true},
		{"actually make it a project", FieldIntent, "project", true},
		{"wrong, I said Sarah", FieldTitle, "Sarah", true},
		{"I meant call the dentist", FieldTitle, "call the dentist", true},
		{"no no no", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			field, value, ok := parseCorrection(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantField, field)
			assert.Equal(t, tt.wantValue, value)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "buy milk tomorrow", Normalize("  Buy   Milk tomorrow! "))
	assert.Equal(t, "", Normalize("   "))
}

func TestSQLStore_SaveFindConfirmContradict(t *testing.T) {
	patterns, _, _ := newTestEnv(t)
	ctx := context.Background()

	p, err := patterns.Save(ctx, Pattern{Trigger: "gym", Field: FieldIntent, Value: "place", Confidence: 40})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)

	found, ok, err := patterns.Find(ctx, "gym", FieldIntent)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "place", found.Value)
	assert.Equal(t, 40, found.Confidence)

	require.NoError(t, patterns.Confirm(ctx, p.ID, 15))
	found, _, err = patterns.Find(ctx, "gym", FieldIntent)
	require.NoError(t, err)
	assert.Equal(t, 55, found.Confidence)
	assert.Equal(t, 1, found.Confirmations)

	require.NoError(t, patterns.Contradict(ctx, p.ID, 20))
	found, _, err = patterns.Find(ctx, "gym", FieldIntent)
	require.NoError(t, err)
	assert.Equal(t, 35, found.Confidence)
	assert.Equal(t, 1, found.Contradictions)

	_, ok, err = patterns.Find(ctx, "gym", FieldTitle)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLStore_ConfidenceClamps(t *testing.T) {
	patterns, _, _ := newTestEnv(t)
	ctx := context.Background()

	p, err := patterns.Save(ctx, Pattern{Trigger: "x", Field: FieldIntent, Value: "note", Confidence: 95})
	require.NoError(t, err)

	require.NoError(t, patterns.Confirm(ctx, p.ID, 15))
	found, _, err := patterns.Find(ctx, "x", FieldIntent)
	require.NoError(t, err)
	assert.Equal(t, 100, found.Confidence)

	for i := 0; i < 6; i++ {
		require.NoError(t, patterns.Contradict(ctx, p.ID, 20))
	}
	found, _, err = patterns.Find(ctx, "x", FieldIntent)
	require.NoError(t, err)
	assert.Equal(t, 0, found.Confidence)
}

func TestSQLStore_Disused(t *testing.T) {
	patterns, _, _ := newTestEnv(t)
	ctx := context.Background()

	fresh, err := patterns.Save(ctx, Pattern{Trigger: "fresh", Field: FieldIntent, Value: "task", Confidence: 40})
	require.NoError(t, err)
	_, err = patterns.Save(ctx, Pattern{Trigger: "stale", Field: FieldIntent, Value: "note", Confidence: 40})
	require.NoError(t, err)

	require.NoError(t, patterns.Touch(ctx, fresh.ID))

	disused, err := patterns.Disused(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, disused, 1)
	assert.Equal(t, "stale", disused[0].Trigger)
}

func TestLearner_CreatesPatternAndUpdatesRecord(t *testing.T) {
	patterns, records, audit := newTestEnv(t)
	ctx := context.Background()

	rec, err := records.Create(ctx, store.Record{Collection: "tasks", Title: "Gym", IdempotencyKey: "telegram:1:1"})
	require.NoError(t, err)
	prior, err := audit.Append(ctx, auditlog.Record{
		IdempotencyKey: "telegram:1:1",
		ActionType:     auditlog.ActionCreate,
		InputText:      "Gym",
		ActionTaken:    "created tasks record",
		AffectedIDs:    []string{rec.ID},
	})
	require.NoError(t, err)

	learner := NewLearner(patterns, records, audit, DefaultConfig(), zap.NewNop())
	res, err := learner.ProcessCorrection(ctx, "no, that's a place", prior)
	require.NoError(t, err)
	assert.True(t, res.PatternCreated)
	assert.Equal(t, FieldIntent, res.Field)
	assert.Equal(t, "place", res.Value)
	assert.Equal(t, rec.ID, res.RecordID)

	// Record carries the corrected intent.
	updated, err := records.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "place", updated.Fields["intent"])

	// Audit entry keeps the correction with its timestamp.
	entry, err := audit.Get(ctx, prior.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "no, that's a place", entry.CorrectionText)
	require.NotNil(t, entry.CorrectedAt)

	// Pattern is stored under the normalized original phrase.
	p, ok, err := patterns.Find(ctx, "gym", FieldIntent)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "place", p.Value)
	assert.Equal(t, 40, p.Confidence)
}

func TestLearner_ReinforcesAndContradicts(t *testing.T) {
	patterns, records, audit := newTestEnv(t)
	ctx := context.Background()
	learner := NewLearner(patterns, records, audit, DefaultConfig(), zap.NewNop())

	correct := func(text string) CorrectionResult {
		prior, err := audit.Append(ctx, auditlog.Record{
			IdempotencyKey: "telegram:1:1",
			ActionType:     auditlog.ActionCreate,
			InputText:      "Gym",
			ActionTaken:    "created tasks record",
		})
		require.NoError(t, err)
		res, err := learner.ProcessCorrection(ctx, text, prior)
		require.NoError(t, err)
		return res
	}

	first := correct("no, that's a place")
	assert.True(t, first.PatternCreated)

	second := correct("no, that's a place")
	assert.False(t, second.PatternCreated)
	assert.True(t, second.Reinforced)
	p, _, err := patterns.Find(ctx, "gym", FieldIntent)
	require.NoError(t, err)
	assert.Equal(t, 55, p.Confidence)
	assert.Equal(t, 1, p.Confirmations)

	third := correct("no, that's a note")
	assert.False(t, third.PatternCreated)
	assert.False(t, third.Reinforced)
	p, _, err = patterns.Find(ctx, "gym", FieldIntent)
	require.NoError(t, err)
	assert.Equal(t, 35, p.Confidence)
	assert.Equal(t, 1, p.Contradictions)
}

func TestLearner_UnparseableCorrectionOnlyAnnotates(t *testing.T) {
	patterns, records, audit := newTestEnv(t)
	ctx := context.Background()
	learner := NewLearner(patterns, records, audit, DefaultConfig(), zap.NewNop())

	prior, err := audit.Append(ctx, auditlog.Record{
		IdempotencyKey: "telegram:1:1",
		ActionType:     auditlog.ActionCreate,
		InputText:      "Gym",
		ActionTaken:    "created tasks record",
	})
	require.NoError(t, err)

	res, err := learner.ProcessCorrection(ctx, "no no no", prior)
	require.NoError(t, err)
	assert.Empty(t, res.Field)
	assert.Empty(t, res.PatternID)

	entry, err := audit.Get(ctx, prior.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "no no no", entry.CorrectionText)

	_, ok, err := patterns.Find(ctx, "gym", FieldIntent)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplicator_AppliesConfidentPatterns(t *testing.T) {
	patterns, _, _ := newTestEnv(t)
	ctx := context.Background()
	applicator := NewApplicator(patterns, 70, zap.NewNop())

	// Below threshold: nothing changes.
	p, err := patterns.Save(ctx, Pattern{Trigger: "gym", Field: FieldIntent, Value: "place", Confidence: 40})
	require.NoError(t, err)

	out := applicator.Apply(ctx, "Gym", extraction.IntentTask, "Gym")
	assert.False(t, out.Changed)
	assert.Equal(t, extraction.IntentTask, out.Intent)

	// Confirmed up past the threshold: the pattern overrides the intent.
	require.NoError(t, patterns.Confirm(ctx, p.ID, 15))
	require.NoError(t, patterns.Confirm(ctx, p.ID, 15))

	out = applicator.Apply(ctx, "Gym", extraction.IntentTask, "Gym")
	assert.True(t, out.Changed)
	assert.Equal(t, extraction.IntentPlace, out.Intent)
	assert.Equal(t, p.ID, out.PatternID)

	// Application stamps last-used.
	got, _, err := patterns.Find(ctx, "gym", FieldIntent)
	require.NoError(t, err)
	assert.NotNil(t, got.LastAppliedAt)
}

func TestApplicator_NoMatchLeavesGuessAlone(t *testing.T) {
	patterns, _, _ := newTestEnv(t)
	applicator := NewApplicator(patterns, 70, zap.NewNop())

	out := applicator.Apply(context.Background(), "Buy milk tomorrow", extraction.IntentTask, "Buy milk")
	assert.False(t, out.Changed)
	assert.Equal(t, extraction.IntentTask, out.Intent)
	assert.Equal(t, "Buy milk", out.Title)
}
