package ledger

import (
	"context"
	"io"
)

// Store owns one ordered ledger per user. Implementations serialize all
// operations per user id so the numbering and uniqueness invariants hold
// under concurrent updates; operations for different users never contend.
type Store interface {
	// EnsureExists lazily creates an empty ledger for the user. Idempotent.
	EnsureExists(ctx context.Context, userID int64) error
	// Exists reports whether some record's link equals link exactly.
	Exists(ctx context.Context, userID int64, link string) (bool, error)
	// Add appends a record with the next contiguous number and returns it.
	// Fails with ErrDuplicateLink when the link is already present.
	Add(ctx context.Context, userID int64, link, status string) (int, error)
	// Delete removes the record matching link and renumbers trailing records.
	// Returns false when no record matches.
	Delete(ctx context.Context, userID int64, link string) (bool, error)
	// UpdateStatus overwrites the status in place, keeping number and
	// timestamp. Returns false when no record matches.
	UpdateStatus(ctx context.Context, userID int64, link, status string) (bool, error)
	// List returns a snapshot of the ledger in order.
	List(ctx context.Context, userID int64) ([]Record, error)
	// Count returns the number of records, zero for an absent ledger.
	Count(ctx context.Context, userID int64) (int, error)
	// StatusHistogram counts records per non-empty status.
	StatusHistogram(ctx context.Context, userID int64) (map[string]int, error)
}

// Exporter produces the serialized table for /export and backups.
type Exporter interface {
	// Export returns the current ledger as an xlsx document. The reader
	// must be closed by the caller. ok is false for an empty/absent ledger.
	Export(ctx context.Context, userID int64) (r io.ReadCloser, ok bool, err error)
}

// Notifier mirrors the ledger elsewhere after a successful mutation.
// Calls are fire-and-forget: implementations must not block the mutation
// path and must swallow their own failures.
type Notifier interface {
	Notify(ctx context.Context, userID int64)
}

// NopNotifier is used when no backup destination is configured.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(context.Context, int64) {}
