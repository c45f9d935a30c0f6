// Package patterns learns from user corrections. A correction to a recent
// automatic action becomes a (trigger phrase -> corrected meaning) pattern;
// confirmations raise its confidence, contradictions lower it, and patterns
// above an application threshold pre-adjust future extractions before
// scoring. Patterns are never hard-deleted, only aged out by disuse.
package patterns

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Pattern fields that a correction can target.
const (
	FieldIntent = "intent"
	FieldTitle  = "title"
)

// Pattern is one learned trigger-to-meaning association.
type Pattern struct {
	ID             string     `json:"id"`
	Trigger        string     `json:"trigger"` // normalized capture phrase
	Field          string     `json:"field"`
	Value          string     `json:"value"`
	Confidence     int        `json:"confidence"` // 0-100
	Confirmations  int        `json:"confirmations"`
	Contradictions int        `json:"contradictions"`
	LastAppliedAt  *time.Time `json:"last_applied_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Store persists learned patterns.
type Store interface {
	Find(ctx context.Context, trigger, field string) (Pattern, bool, error)
	Save(ctx context.Context, p Pattern) (Pattern, error)
	Confirm(ctx context.Context, id string, step int) error
	Contradict(ctx context.Context, id string, step int) error
	Touch(ctx context.Context, id string) error
	Disused(ctx context.Context, since time.Time) ([]Pattern, error)
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalize canonicalizes a capture phrase for trigger matching.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.Trim(text, ".!?,;:")
	return whitespaceRe.ReplaceAllString(text, " ")
}

// SQLStore is the sqlite-backed pattern store.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore creates a SQLStore over an opened database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

const patternColumns = `id, phrase, field, value, confidence, confirmations, contradictions, last_applied_at, created_at, updated_at`

// Find returns the pattern for a trigger and field, if one exists.
func (s *SQLStore) Find(ctx context.Context, trigger, field string) (Pattern, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+patternColumns+` FROM patterns WHERE phrase = ? AND field = ?`, trigger, field)
	p, err := scanPattern(row)
	if err == sql.ErrNoRows {
		return Pattern{}, false, nil
	}
	if err != nil {
		return Pattern{}, false, fmt.Errorf("find pattern: %w", err)
	}
	return p, true, nil
}

// Save inserts a new pattern.
func (s *SQLStore) Save(ctx context.Context, p Pattern) (Pattern, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Confidence = clamp(p.Confidence)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO patterns (id, phrase, field, value, confidence, confirmations, contradictions, last_applied_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		p.ID, p.Trigger, p.Field, p.Value, p.Confidence,
		p.Confirmations, p.Contradictions, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return Pattern{}, fmt.Errorf("save pattern: %w", err)
	}
	return p, nil
}

// Confirm reinforces a pattern: confidence up, confirmation count up.
func (s *SQLStore) Confirm(ctx context.Context, id string, step int) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE patterns SET
	confidence = MIN(100, confidence + ?),
	confirmations = confirmations + 1,
	updated_at = ?
WHERE id = ?`, step, s.now().UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("confirm pattern: %w", err)
	}
	return nil
}

// Contradict weakens a pattern: confidence down, contradiction count up.
func (s *SQLStore) Contradict(ctx context.Context, id string, step int) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE patterns SET
	confidence = MAX(0, confidence - ?),
	contradictions = contradictions + 1,
	updated_at = ?
WHERE id = ?`, step, s.now().UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("contradict pattern: %w", err)
	}
	return nil
}

// Touch stamps a pattern as just applied.
func (s *SQLStore) Touch(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE patterns SET last_applied_at = ? WHERE id = ?`,
		s.now().UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("touch pattern: %w", err)
	}
	return nil
}

// Disused lists patterns not applied since the given time, for review.
// Pruning is a deliberate operator action, never automatic.
func (s *SQLStore) Disused(ctx context.Context, since time.Time) ([]Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+patternColumns+` FROM patterns
WHERE last_applied_at IS NULL OR last_applied_at < ?
ORDER BY updated_at ASC`, since.UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list disused: %w", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (Pattern, error) {
	var p Pattern
	var lastApplied sql.NullInt64
	var created, updated int64
	err := row.Scan(&p.ID, &p.Trigger, &p.Field, &p.Value, &p.Confidence,
		&p.Confirmations, &p.Contradictions, &lastApplied, &created, &updated)
	if err != nil {
		return Pattern{}, err
	}
	p.CreatedAt = time.UnixMilli(created).UTC()
	p.UpdatedAt = time.UnixMilli(updated).UTC()
	if lastApplied.Valid {
		t := time.UnixMilli(lastApplied.Int64).UTC()
		p.LastAppliedAt = &t
	}
	return p, nil
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

var _ Store = (*SQLStore)(nil)
