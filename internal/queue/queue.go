// Package queue buffers record writes that could not reach the remote store
// and replays them with bounded retries. The queue is the only reconciliation
// path between "captured" and "durably stored": transient failures stay
// queued, terminal failures are parked with their error, nothing is dropped
// silently.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intaked/internal/auditlog"
	"github.com/fyrsmithlabs/intaked/internal/store"
)

// ErrDrainInProgress is returned when ProcessPending is called while another
// drain is already running. Drains are serialized to keep the at-most-once
// delivery guarantee.
var ErrDrainInProgress = errors.New("queue drain already in progress")

// Action statuses.
const (
	StatusPending = "pending"
	StatusFailed  = "failed"
)

// Action is a deferred record write.
type Action struct {
	ID             string         `json:"id"`
	IdempotencyKey string         `json:"idempotency_key"`
	Collection     string         `json:"collection"`
	Title          string         `json:"title"`
	Fields         map[string]any `json:"fields,omitempty"`
	Status         string         `json:"status"`
	RetryCount     int            `json:"retry_count"`
	LastError      string         `json:"last_error,omitempty"`
	EnqueuedAt     time.Time      `json:"enqueued_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Result summarizes one drain run.
type Result struct {
	Successful   int      `json:"successful"`
	Deduplicated int      `json:"deduplicated"`
	Failed       int      `json:"failed"`
	Errors       []string `json:"errors,omitempty"`
}

// AllSuccessful reports whether nothing failed this run.
func (r Result) AllSuccessful() bool {
	return r.Failed == 0
}

// Queue is the sqlite-backed offline queue.
type Queue struct {
	db         *sql.DB
	records    store.RecordStore
	audit      *auditlog.Log
	maxRetries int
	logger     *zap.Logger
	draining   atomic.Bool
	now        func() time.Time
}

// New creates a Queue. maxRetries bounds how many drain runs may attempt a
// single action before it is parked as failed.
func New(db *sql.DB, records store.RecordStore, audit *auditlog.Log, maxRetries int, logger *zap.Logger) *Queue {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Queue{
		db:         db,
		records:    records,
		audit:      audit,
		maxRetries: maxRetries,
		logger:     logger,
		now:        time.Now,
	}
}

// Enqueue stores an action for later delivery. Enqueueing the same
// idempotency key twice is a no-op.
func (q *Queue) Enqueue(ctx context.Context, a Action) error {
	if a.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	fields, err := marshalFields(a.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	nowMilli := q.now().UTC().UnixMilli()

	_, err = q.db.ExecContext(ctx, `
INSERT INTO queued_actions (id, idempotency_key, collection, title, fields, status, retry_count, last_error, enqueued_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)
ON CONFLICT(idempotency_key) DO NOTHING`,
		a.ID, a.IdempotencyKey, a.Collection, a.Title, fields, StatusPending, nowMilli, nowMilli)
	if err != nil {
		return fmt.Errorf("enqueue action: %w", err)
	}
	q.logger.Info("action enqueued",
		zap.String("idempotency_key", a.IdempotencyKey),
		zap.String("collection", a.Collection))
	return nil
}

// PendingCount returns the number of actions awaiting delivery.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queued_actions WHERE status = ?`, StatusPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// ProcessPending attempts delivery of every pending action in FIFO order.
// Only one drain may run at a time; a concurrent call gets
// ErrDrainInProgress. A transient store failure leaves the action queued with
// its retry count bumped; an action that exhausts its retries, or fails
// terminally, is parked as failed and recorded in the audit log.
func (q *Queue) ProcessPending(ctx context.Context) (Result, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return Result{}, ErrDrainInProgress
	}
	defer q.draining.Store(false)

	pending, err := q.listPending(ctx)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, a := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		q.deliver(ctx, a, &res)
	}
	q.logger.Info("queue drained",
		zap.Int("successful", res.Successful),
		zap.Int("deduplicated", res.Deduplicated),
		zap.Int("failed", res.Failed))
	return res, nil
}

func (q *Queue) deliver(ctx context.Context, a Action, res *Result) {
	// A record with this key already exists: the original write went
	// through before the failure was observed. Report, do not re-apply.
	if _, found, err := q.records.FindByKey(ctx, a.IdempotencyKey); err != nil {
		q.handleTransient(ctx, a, err, res)
		return
	} else if found {
		res.Deduplicated++
		q.remove(ctx, a.ID)
		return
	}

	created, err := q.records.Create(ctx, store.Record{
		Collection:     a.Collection,
		Title:          a.Title,
		Fields:         a.Fields,
		IdempotencyKey: a.IdempotencyKey,
	})
	if err == nil {
		res.Successful++
		q.remove(ctx, a.ID)
		q.appendAudit(ctx, auditlog.Record{
			IdempotencyKey: a.IdempotencyKey,
			ActionType:     auditlog.ActionCreate,
			InputText:      a.Title,
			ActionTaken:    "replayed queued create to " + a.Collection,
			AffectedIDs:    []string{created.ID},
			ExternalAPI:    "recordstore",
			ExternalID:     created.ID,
			RetryCount:     a.RetryCount + 1,
		})
		return
	}

	if store.IsTransient(err) {
		q.handleTransient(ctx, a, err, res)
		return
	}

	// Terminal rejection: park the action, keep it visible in sync reports.
	res.Failed++
	res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", a.IdempotencyKey, err))
	q.park(ctx, a, err)
	q.appendAudit(ctx, auditlog.Record{
		IdempotencyKey: a.IdempotencyKey,
		ActionType:     auditlog.ActionError,
		InputText:      a.Title,
		ActionTaken:    "queued create rejected by store",
		ErrorCode:      store.ErrorCode(err),
		ErrorMessage:   err.Error(),
		RetryCount:     a.RetryCount + 1,
	})
}

func (q *Queue) handleTransient(ctx context.Context, a Action, cause error, res *Result) {
	res.Failed++
	res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", a.IdempotencyKey, cause))

	retries := a.RetryCount + 1
	if retries >= q.maxRetries {
		q.park(ctx, a, cause)
		q.appendAudit(ctx, auditlog.Record{
			IdempotencyKey: a.IdempotencyKey,
			ActionType:     auditlog.ActionError,
			InputText:      a.Title,
			ActionTaken:    "queued create exhausted retries",
			ErrorCode:      store.ErrorCode(cause),
			ErrorMessage:   cause.Error(),
			RetryCount:     retries,
		})
		return
	}

	_, err := q.db.ExecContext(ctx, `
UPDATE queued_actions SET retry_count = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		retries, cause.Error(), q.now().UTC().UnixMilli(), a.ID)
	if err != nil {
		q.logger.Error("failed to record retry", zap.String("id", a.ID), zap.Error(err))
	}
	q.appendAudit(ctx, auditlog.Record{
		IdempotencyKey: a.IdempotencyKey,
		ActionType:     auditlog.ActionRetry,
		InputText:      a.Title,
		ActionTaken:    "store unavailable, will retry",
		ErrorCode:      store.ErrorCode(cause),
		ErrorMessage:   cause.Error(),
		RetryCount:     retries,
	})
}

func (q *Queue) park(ctx context.Context, a Action, cause error) {
	_, err := q.db.ExecContext(ctx, `
UPDATE queued_actions SET status = ?, retry_count = retry_count + 1, last_error = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, cause.Error(), q.now().UTC().UnixMilli(), a.ID)
	if err != nil {
		q.logger.Error("failed to park action", zap.String("id", a.ID), zap.Error(err))
	}
}

func (q *Queue) remove(ctx context.Context, id string) {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM queued_actions WHERE id = ?`, id); err != nil {
		q.logger.Error("failed to remove delivered action", zap.String("id", id), zap.Error(err))
	}
}

func (q *Queue) appendAudit(ctx context.Context, rec auditlog.Record) {
	if _, err := q.audit.Append(ctx, rec); err != nil {
		q.logger.Error("failed to append audit entry",
			zap.String("idempotency_key", rec.IdempotencyKey), zap.Error(err))
	}
}

func (q *Queue) listPending(ctx context.Context) ([]Action, error) {
	return q.list(ctx, StatusPending, "enqueued_at ASC, id ASC")
}

// Failed returns parked actions for sync reporting, newest first.
func (q *Queue) Failed(ctx context.Context) ([]Action, error) {
	return q.list(ctx, StatusFailed, "updated_at DESC")
}

func (q *Queue) list(ctx context.Context, status, order string) ([]Action, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT id, idempotency_key, collection, title, fields, status, retry_count, last_error, enqueued_at, updated_at
FROM queued_actions WHERE status = ? ORDER BY `+order, status)
	if err != nil {
		return nil, fmt.Errorf("list %s actions: %w", status, err)
	}
	defer rows.Close()

	var out []Action
	for rows.Next() {
		var a Action
		var fields, lastErr sql.NullString
		var enqueued, updated int64
		if err := rows.Scan(&a.ID, &a.IdempotencyKey, &a.Collection, &a.Title,
			&fields, &a.Status, &a.RetryCount, &lastErr, &enqueued, &updated); err != nil {
			return nil, err
		}
		a.LastError = lastErr.String
		a.EnqueuedAt = time.UnixMilli(enqueued).UTC()
		a.UpdatedAt = time.UnixMilli(updated).UTC()
		if fields.Valid && fields.String != "" {
			if err := json.Unmarshal([]byte(fields.String), &a.Fields); err != nil {
				return nil, fmt.Errorf("unmarshal fields for %s: %w", a.ID, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func marshalFields(fields map[string]any) (sql.NullString, error) {
	if len(fields) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
