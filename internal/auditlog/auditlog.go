// Package auditlog persists the append-only action log. Every externally
// visible effect the pipeline takes (or fails to take) lands here; rows are
// never deleted, corrections and undos update columns on the original row
// so the full history of a capture stays reconstructable.
package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no entry matches the given request id.
var ErrNotFound = errors.New("audit entry not found")

// ActionType identifies what kind of action a log entry records.
type ActionType string

const (
	ActionCapture        ActionType = "capture"
	ActionClassify       ActionType = "classify"
	ActionCreate         ActionType = "create"
	ActionUpdate         ActionType = "update"
	ActionDelete         ActionType = "delete"
	ActionSend           ActionType = "send"
	ActionResearch       ActionType = "research"
	ActionEmailRead      ActionType = "email_read"
	ActionEmailSend      ActionType = "email_send"
	ActionCalendarCreate ActionType = "calendar_create"
	ActionCalendarUpdate ActionType = "calendar_update"
	ActionError          ActionType = "error"
	ActionRetry          ActionType = "retry"
)

// Record is one audit log entry.
type Record struct {
	RequestID      string         `json:"request_id"`
	IdempotencyKey string         `json:"idempotency_key"`
	Timestamp      time.Time      `json:"timestamp"`
	ActionType     ActionType     `json:"action_type"`
	InputText      string         `json:"input_text"`
	Interpretation map[string]any `json:"interpretation,omitempty"`
	ActionTaken    string         `json:"action_taken"`
	Confidence     int            `json:"confidence"`
	AffectedIDs    []string       `json:"affected_ids,omitempty"`
	ExternalAPI    string         `json:"external_api,omitempty"`
	ExternalID     string         `json:"external_id,omitempty"`
	ErrorCode      string         `json:"error_code,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	RetryCount     int            `json:"retry_count"`
	CorrectionText string         `json:"correction_text,omitempty"`
	CorrectedAt    *time.Time     `json:"corrected_at,omitempty"`
	UndoUntil      *time.Time     `json:"undo_until,omitempty"`
	Undone         bool           `json:"undone"`
}

// Log is the sqlite-backed audit log.
type Log struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a Log over an opened database.
func New(db *sql.DB) *Log {
	return &Log{db: db, now: time.Now}
}

// Append writes a new entry. A missing request id and timestamp are filled
// in; the stored record is returned.
func (l *Log) Append(ctx context.Context, rec Record) (Record, error) {
	if rec.RequestID == "" {
		rec.RequestID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now().UTC()
	}

	interp, err := marshalJSONColumn(rec.Interpretation)
	if err != nil {
		return Record{}, fmt.Errorf("marshal interpretation: %w", err)
	}
	affected, err := marshalJSONColumn(rec.AffectedIDs)
	if err != nil {
		return Record{}, fmt.Errorf("marshal affected ids: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
INSERT INTO action_log (
	request_id, idempotency_key, ts, action_type, input_text, interpretation,
	action_taken, confidence, affected_ids, external_api, external_id,
	error_code, error_message, retry_count, correction_text, corrected_at,
	undo_until, undone
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.IdempotencyKey, rec.Timestamp.UnixMilli(),
		string(rec.ActionType), rec.InputText, interp,
		rec.ActionTaken, rec.Confidence, affected,
		nullString(rec.ExternalAPI), nullString(rec.ExternalID),
		nullString(rec.ErrorCode), nullString(rec.ErrorMessage),
		rec.RetryCount, nullString(rec.CorrectionText), nullMilli(rec.CorrectedAt),
		nullMilli(rec.UndoUntil), boolToInt(rec.Undone))
	if err != nil {
		return Record{}, fmt.Errorf("append action log: %w", err)
	}
	return rec, nil
}

// MarkCorrected attaches a correction to an existing entry.
func (l *Log) MarkCorrected(ctx context.Context, requestID, correctionText string) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE action_log SET correction_text = ?, corrected_at = ? WHERE request_id = ?`,
		correctionText, l.now().UTC().UnixMilli(), requestID)
	if err != nil {
		return fmt.Errorf("mark corrected: %w", err)
	}
	return requireRow(res, requestID)
}

// MarkUndone flags an entry as undone.
func (l *Log) MarkUndone(ctx context.Context, requestID string) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE action_log SET undone = 1 WHERE request_id = ?`, requestID)
	if err != nil {
		return fmt.Errorf("mark undone: %w", err)
	}
	return requireRow(res, requestID)
}

// Get returns the entry with the given request id.
func (l *Log) Get(ctx context.Context, requestID string) (Record, error) {
	row := l.db.QueryRowContext(ctx, selectColumns+` WHERE request_id = ?`, requestID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// FindByKey returns all entries sharing an idempotency key, newest first.
func (l *Log) FindByKey(ctx context.Context, key string) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, selectColumns+` WHERE idempotency_key = ? ORDER BY ts DESC, rowid DESC`, key)
	if err != nil {
		return nil, fmt.Errorf("find by key: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// LastCreateFor returns the most recent create on a channel. Idempotency keys
// start with the channel id, which scopes corrections to the channel they
// arrived on.
func (l *Log) LastCreateFor(ctx context.Context, channelID string) (Record, bool, error) {
	row := l.db.QueryRowContext(ctx,
		selectColumns+` WHERE action_type = ? AND idempotency_key LIKE ? ORDER BY ts DESC, rowid DESC LIMIT 1`,
		string(ActionCreate), channelID+":%")
	return oneRecord(row)
}

func oneRecord(row rowScanner) (Record, bool, error) {
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

const selectColumns = `
SELECT request_id, idempotency_key, ts, action_type, input_text, interpretation,
	action_taken, confidence, affected_ids, external_api, external_id,
	error_code, error_message, retry_count, correction_text, corrected_at,
	undo_until, undone
FROM action_log`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var ts int64
	var actionType string
	var interp, affected, extAPI, extID, errCode, errMsg, correction sql.NullString
	var correctedAt, undoUntil sql.NullInt64
	var undone int
	err := row.Scan(&rec.RequestID, &rec.IdempotencyKey, &ts, &actionType,
		&rec.InputText, &interp, &rec.ActionTaken, &rec.Confidence, &affected,
		&extAPI, &extID, &errCode, &errMsg, &rec.RetryCount,
		&correction, &correctedAt, &undoUntil, &undone)
	if err != nil {
		return Record{}, err
	}

	rec.Timestamp = time.UnixMilli(ts).UTC()
	rec.ActionType = ActionType(actionType)
	rec.ExternalAPI = extAPI.String
	rec.ExternalID = extID.String
	rec.ErrorCode = errCode.String
	rec.ErrorMessage = errMsg.String
	rec.CorrectionText = correction.String
	rec.Undone = undone != 0
	if correctedAt.Valid {
		t := time.UnixMilli(correctedAt.Int64).UTC()
		rec.CorrectedAt = &t
	}
	if undoUntil.Valid {
		t := time.UnixMilli(undoUntil.Int64).UTC()
		rec.UndoUntil = &t
	}
	if interp.Valid && interp.String != "" {
		if err := json.Unmarshal([]byte(interp.String), &rec.Interpretation); err != nil {
			return Record{}, fmt.Errorf("unmarshal interpretation: %w", err)
		}
	}
	if affected.Valid && affected.String != "" {
		if err := json.Unmarshal([]byte(affected.String), &rec.AffectedIDs); err != nil {
			return Record{}, fmt.Errorf("unmarshal affected ids: %w", err)
		}
	}
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func marshalJSONColumn(v any) (sql.NullString, error) {
	switch vv := v.(type) {
	case map[string]any:
		if len(vv) == 0 {
			return sql.NullString{}, nil
		}
	case []string:
		if len(vv) == 0 {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullMilli(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result, requestID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: request %s", ErrNotFound, requestID)
	}
	return nil
}
