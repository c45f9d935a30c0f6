// Package store defines the remote record store boundary: a page/record
// store reachable over the network that may be transiently unavailable.
// The pipeline and offline queue only see this interface plus the
// transient/terminal error taxonomy.
package store

import (
	"context"
	"time"
)

// Record is one page/record in the external store.
type Record struct {
	ID             string         `json:"id"`
	Collection     string         `json:"collection"`
	Title          string         `json:"title"`
	Fields         map[string]any `json:"fields,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`

	// DeletedAt marks soft deletion; deleted records stay retrievable by id.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the record is soft-deleted.
func (r Record) Deleted() bool {
	return r.DeletedAt != nil
}

// RecordStore is the boundary to the external record store.
//
// Implementations must keep the error taxonomy: reachability problems wrap
// ErrUnavailable (transient), permanent rejections are *ValidationError
// (terminal), missing records are ErrNotFound.
type RecordStore interface {
	// Create stores a new record, assigning an id when empty.
	Create(ctx context.Context, rec Record) (Record, error)

	// Get returns a record by id, including soft-deleted ones.
	Get(ctx context.Context, id string) (Record, error)

	// Update overwrites a record by id.
	Update(ctx context.Context, rec Record) error

	// FindByKey looks a record up by idempotency key. The boolean reports
	// whether a record was found.
	FindByKey(ctx context.Context, idempotencyKey string) (Record, bool, error)

	// Query lists records in a collection, newest first, excluding
	// soft-deleted records.
	Query(ctx context.Context, collection string, limit int) ([]Record, error)
}
