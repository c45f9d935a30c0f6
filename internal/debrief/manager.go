package debrief

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intaked/internal/store"
)

var (
	// ErrNoBacklog means the review collection is empty; a debrief only
	// starts when there is something to review.
	ErrNoBacklog = errors.New("review backlog is empty")
	// ErrNoActiveSession means no debrief is in progress on this channel.
	ErrNoActiveSession = errors.New("no active debrief session")
)

// TaskCreator turns a clarified review item into a durable task. The
// returned record id may be empty when the write was deferred to the queue.
type TaskCreator interface {
	CreateTask(ctx context.Context, title, idempotencyKey string) (string, error)
}

// Manager runs debrief sessions: it builds them from the review backlog,
// persists their state across turns, and resolves each item transactionally
// before the index advances.
type Manager struct {
	db      *sql.DB
	records store.RecordStore
	tasks   TaskCreator
	logger  *zap.Logger
	now     func() time.Time

	backlogLimit int
}

// NewManager creates a Manager. backlogLimit caps how many flagged items one
// session walks through.
func NewManager(db *sql.DB, records store.RecordStore, tasks TaskCreator, backlogLimit int, logger *zap.Logger) *Manager {
	if backlogLimit <= 0 {
		backlogLimit = 20
	}
	return &Manager{
		db:           db,
		records:      records,
		tasks:        tasks,
		logger:       logger,
		now:          time.Now,
		backlogLimit: backlogLimit,
	}
}

// Start begins a debrief for a channel from the current review backlog.
// An already-running session on the channel is resumed, not replaced.
func (m *Manager) Start(ctx context.Context, channelID, reviewCollection string) (Session, string, error) {
	if existing, err := m.Active(ctx, channelID); err == nil {
		return existing, ItemPrompt(existing), nil
	} else if !errors.Is(err, ErrNoActiveSession) {
		return Session{}, "", err
	}

	backlog, err := m.records.Query(ctx, reviewCollection, m.backlogLimit)
	if err != nil {
		return Session{}, "", fmt.Errorf("load review backlog: %w", err)
	}
	var items []Item
	for _, rec := range backlog {
		if status, _ := rec.Fields["review_status"].(string); status != "" {
			continue // already resolved in an earlier session
		}
		items = append(items, Item{RecordID: rec.ID, Title: rec.Title, Resolution: ResolutionPending})
	}
	if len(items) == 0 {
		return Session{}, "", ErrNoBacklog
	}

	now := m.now().UTC()
	s := Session{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		State:     StateReviewing,
		Items:     items,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := m.insertSession(ctx, s); err != nil {
		return Session{}, "", err
	}
	// The session lands as reviewing first; only once the prompt is on its
	// way does it start awaiting a reply. A crash in between leaves a
	// reviewing session, and HandleInput re-presents the item instead of
	// consuming the next message as a reply to a prompt nobody saw.
	s.State = StateAwaitingResponse
	if err := m.persist(ctx, s, nil); err != nil {
		return Session{}, "", err
	}
	m.logger.Info("debrief started",
		zap.String("channel_id", channelID),
		zap.Int("items", len(items)))
	return s, ItemPrompt(s), nil
}

// HandleInput advances the channel's active session by one user reply.
func (m *Manager) HandleInput(ctx context.Context, channelID, input string) (Outcome, error) {
	s, err := m.Active(ctx, channelID)
	if err != nil {
		return Outcome{}, err
	}

	// A session still in reviewing never got its prompt delivered. Re-present
	// the current item; the input was not an answer to anything.
	if s.State == StateReviewing {
		s.State = StateAwaitingResponse
		if err := m.persist(ctx, s, nil); err != nil {
			return Outcome{}, err
		}
		return Outcome{Session: s, Prompt: ItemPrompt(s)}, nil
	}

	out := Advance(s, input)

	// Side effects first: if they fail the session state is untouched and
	// the user can simply repeat the reply.
	if out.Resolved != nil {
		if err := m.resolveItem(ctx, out.Session, *out.Resolved); err != nil {
			return Outcome{}, err
		}
	}
	if err := m.persist(ctx, out.Session, out.Resolved); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// Active returns the channel's in-progress session.
func (m *Manager) Active(ctx context.Context, channelID string) (Session, error) {
	row := m.db.QueryRowContext(ctx, `
SELECT id, channel_id, state, item_index, started_at, updated_at
FROM debrief_sessions
WHERE channel_id = ? AND state != ?
ORDER BY started_at DESC LIMIT 1`, channelID, string(StateEnded))

	var s Session
	var state string
	var started, updated int64
	err := row.Scan(&s.ID, &s.ChannelID, &state, &s.ItemIndex, &started, &updated)
	if err == sql.ErrNoRows {
		return Session{}, ErrNoActiveSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	s.State = State(state)
	s.StartedAt = time.UnixMilli(started).UTC()
	s.UpdatedAt = time.UnixMilli(updated).UTC()

	rows, err := m.db.QueryContext(ctx, `
SELECT record_id, title, resolution, response_text
FROM debrief_items WHERE session_id = ? ORDER BY position ASC`, s.ID)
	if err != nil {
		return Session{}, fmt.Errorf("load session items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		var response sql.NullString
		if err := rows.Scan(&item.RecordID, &item.Title, &item.Resolution, &response); err != nil {
			return Session{}, err
		}
		item.ResponseText = response.String
		s.Items = append(s.Items, item)
	}
	return s, rows.Err()
}

// resolveItem applies the external effects of a resolution: a clarified item
// becomes a task, and the review record is stamped either way.
func (m *Manager) resolveItem(ctx context.Context, s Session, item Item) error {
	if item.Resolution == ResolutionClarified {
		key := fmt.Sprintf("debrief:%s:%s", s.ID, item.RecordID)
		if _, err := m.tasks.CreateTask(ctx, item.ResponseText, key); err != nil {
			return fmt.Errorf("create task from review item: %w", err)
		}
	}

	rec, err := m.records.Get(ctx, item.RecordID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil // review record already gone; nothing to stamp
		}
		return fmt.Errorf("load review record: %w", err)
	}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	switch item.Resolution {
	case ResolutionClarified:
		rec.Fields["review_status"] = "clarified"
	case ResolutionSkipped:
		rec.Fields["review_status"] = "dismissed"
	}
	if err := m.records.Update(ctx, rec); err != nil {
		return fmt.Errorf("stamp review record: %w", err)
	}
	return nil
}

func (m *Manager) insertSession(ctx context.Context, s Session) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO debrief_sessions (id, channel_id, state, item_index, started_at, updated_at, ended_at)
VALUES (?, ?, ?, ?, ?, ?, NULL)`,
		s.ID, s.ChannelID, string(s.State), s.ItemIndex,
		s.StartedAt.UnixMilli(), s.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	for i, item := range s.Items {
		_, err = tx.ExecContext(ctx, `
INSERT INTO debrief_items (session_id, position, record_id, title, resolution, response_text)
VALUES (?, ?, ?, ?, ?, NULL)`,
			s.ID, i, item.RecordID, item.Title, item.Resolution)
		if err != nil {
			return fmt.Errorf("insert session item: %w", err)
		}
	}
	return tx.Commit()
}

// ExpireSessions ends sessions that have seen no input since the cutoff.
// Resolved items keep their resolutions; unresolved items stay in the review
// backlog for the next session. Nothing calls this on a schedule; it is a
// policy hook for operators.
func (m *Manager) ExpireSessions(ctx context.Context, olderThan time.Time) (int, error) {
	now := m.now().UTC().UnixMilli()
	res, err := m.db.ExecContext(ctx, `
UPDATE debrief_sessions SET state = ?, updated_at = ?, ended_at = ?
WHERE state != ? AND updated_at < ?`,
		string(StateEnded), now, now, string(StateEnded), olderThan.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info("expired stale debrief sessions", zap.Int64("count", n))
	}
	return int(n), nil
}

// persist writes the advanced session state and the resolved item in one
// transaction, so a crash between turns never loses a resolution.
func (m *Manager) persist(ctx context.Context, s Session, resolved *Item) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := m.now().UTC().UnixMilli()
	var ended any
	if s.State == StateEnded {
		ended = now
	}
	_, err = tx.ExecContext(ctx, `
UPDATE debrief_sessions SET state = ?, item_index = ?, updated_at = ?, ended_at = ?
WHERE id = ?`, string(s.State), s.ItemIndex, now, ended, s.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	if resolved != nil {
		_, err = tx.ExecContext(ctx, `
UPDATE debrief_items SET resolution = ?, response_text = ?
WHERE session_id = ? AND record_id = ?`,
			resolved.Resolution, nullable(resolved.ResponseText), s.ID, resolved.RecordID)
		if err != nil {
			return fmt.Errorf("update session item: %w", err)
		}
	}
	return tx.Commit()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
