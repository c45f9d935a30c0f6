// Package softdelete marks records deleted without removing them and allows
// time-boxed reversal. The undo deadline is a hard boundary: one second late
// is a terminal refusal, never a best-effort restore.
package softdelete

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/intaked/internal/auditlog"
	"github.com/fyrsmithlabs/intaked/internal/store"
)

var (
	// ErrUndoExpired means the undo window has closed. Terminal.
	ErrUndoExpired = errors.New("undo window expired")
	// ErrNothingToUndo means no deletion is available to reverse.
	ErrNothingToUndo = errors.New("no recent deletion to undo")
)

// DeleteResult describes a completed soft delete.
type DeleteResult struct {
	RecordID  string    `json:"record_id"`
	Title     string    `json:"title"`
	DeletedAt time.Time `json:"deleted_at"`
	UndoUntil time.Time `json:"undo_until"`
}

// Service performs soft deletes and undos against the record store.
type Service struct {
	mu      sync.Mutex
	records store.RecordStore
	audit   *auditlog.Log
	window  time.Duration
	now     func() time.Time

	last *deletion
}

type deletion struct {
	recordID  string
	requestID string
	deadline  time.Time
}

// New creates a Service with the given undo window.
func New(records store.RecordStore, audit *auditlog.Log, window time.Duration) *Service {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Service{
		records: records,
		audit:   audit,
		window:  window,
		now:     time.Now,
	}
}

// SoftDelete stamps the record deleted and opens its undo window.
func (s *Service) SoftDelete(ctx context.Context, recordID string) (DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.records.Get(ctx, recordID)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("load record %s: %w", recordID, err)
	}
	if rec.Deleted() {
		return DeleteResult{}, fmt.Errorf("record %s already deleted", recordID)
	}

	deletedAt := s.now().UTC()
	deadline := deletedAt.Add(s.window)
	rec.DeletedAt = &deletedAt
	if err := s.records.Update(ctx, rec); err != nil {
		return DeleteResult{}, fmt.Errorf("mark deleted: %w", err)
	}

	entry, err := s.audit.Append(ctx, auditlog.Record{
		IdempotencyKey: deleteKey(recordID),
		ActionType:     auditlog.ActionDelete,
		InputText:      rec.Title,
		ActionTaken:    "soft-deleted " + rec.Collection + " record",
		AffectedIDs:    []string{recordID},
		UndoUntil:      &deadline,
	})
	if err != nil {
		return DeleteResult{}, fmt.Errorf("audit delete: %w", err)
	}

	s.last = &deletion{recordID: recordID, requestID: entry.RequestID, deadline: deadline}
	return DeleteResult{RecordID: recordID, Title: rec.Title, DeletedAt: deletedAt, UndoUntil: deadline}, nil
}

// UndoLast reverses the most recent soft delete if its window is still open.
func (s *Service) UndoLast(ctx context.Context) (store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil {
		return store.Record{}, ErrNothingToUndo
	}
	if s.now().After(s.last.deadline) {
		return store.Record{}, ErrUndoExpired
	}

	rec, err := s.restore(ctx, s.last.recordID, s.last.requestID)
	if err != nil {
		return store.Record{}, err
	}
	s.last = nil
	return rec, nil
}

// RestoreByID reverses a specific soft delete. The deadline is read back
// from the delete's audit entry, so it survives restarts.
func (s *Service) RestoreByID(ctx context.Context, recordID string) (store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.audit.FindByKey(ctx, deleteKey(recordID))
	if err != nil {
		return store.Record{}, fmt.Errorf("load delete history: %w", err)
	}
	var entry *auditlog.Record
	for i := range entries {
		if entries[i].ActionType == auditlog.ActionDelete && !entries[i].Undone {
			entry = &entries[i]
			break
		}
	}
	if entry == nil {
		return store.Record{}, ErrNothingToUndo
	}
	if entry.UndoUntil == nil || s.now().After(*entry.UndoUntil) {
		return store.Record{}, ErrUndoExpired
	}

	rec, err := s.restore(ctx, recordID, entry.RequestID)
	if err != nil {
		return store.Record{}, err
	}
	if s.last != nil && s.last.recordID == recordID {
		s.last = nil
	}
	return rec, nil
}

func (s *Service) restore(ctx context.Context, recordID, requestID string) (store.Record, error) {
	rec, err := s.records.Get(ctx, recordID)
	if err != nil {
		return store.Record{}, fmt.Errorf("load record %s: %w", recordID, err)
	}
	if !rec.Deleted() {
		return rec, nil
	}
	rec.DeletedAt = nil
	if err := s.records.Update(ctx, rec); err != nil {
		return store.Record{}, fmt.Errorf("clear deletion: %w", err)
	}
	if err := s.audit.MarkUndone(ctx, requestID); err != nil {
		return store.Record{}, fmt.Errorf("audit undo: %w", err)
	}
	return rec, nil
}

func deleteKey(recordID string) string {
	return "delete:" + recordID
}
