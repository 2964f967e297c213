// Package pgstore implements the ledger on Postgres. Per-user serialization
// relies on a transaction-scoped advisory lock keyed by the user id, so the
// renumbering and uniqueness invariants hold across concurrent bot instances.
package pgstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"postledger/core/logger"
	"postledger/ledger"
	"postledger/ledger/sheet"
)

// Options configure the Postgres-backed store.
type Options struct {
	DB *sqlx.DB
	// Notifier receives a backup notification after successful mutations.
	Notifier ledger.Notifier
	// BackupOnStatusUpdate also notifies after UpdateStatus.
	BackupOnStatusUpdate bool
}

// Store implements ledger.Store and ledger.Exporter on Postgres.
type Store struct {
	db             *sqlx.DB
	notifier       ledger.Notifier
	backupOnStatus bool
}

// New returns a Store bound to the given connection pool.
func New(opts Options) *Store {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = ledger.NopNotifier{}
	}
	return &Store{
		db:             opts.DB,
		notifier:       notifier,
		backupOnStatus: opts.BackupOnStatusUpdate,
	}
}

type recordRow struct {
	Seq     int       `db:"seq"`
	Link    string    `db:"link"`
	Status  string    `db:"status"`
	AddedAt time.Time `db:"added_at"`
}

func (r recordRow) record() ledger.Record {
	return ledger.Record{Number: r.Seq, Link: r.Link, Status: r.Status, AddedAt: r.AddedAt}
}

// withUserTx runs fn inside a transaction holding the per-user advisory lock.
func (s *Store) withUserTx(ctx context.Context, op string, userID int64, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &ledger.PersistenceError{Op: op, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, userID); err != nil {
		return &ledger.PersistenceError{Op: op, Err: err}
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &ledger.PersistenceError{Op: op, Err: err}
	}
	return nil
}

// EnsureExists records the ledger marker row for the user. Idempotent.
func (s *Store) EnsureExists(ctx context.Context, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ledgers (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return &ledger.PersistenceError{Op: "ensure", Err: err}
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logger.Info(ctx, "ledger", "ledger.created", slog.Int64("user_id", userID))
	}
	return nil
}

// Exists reports whether the link is present in the user's ledger.
func (s *Store) Exists(ctx context.Context, userID int64, link string) (bool, error) {
	var found bool
	err := s.db.GetContext(ctx, &found,
		`SELECT EXISTS (SELECT 1 FROM ledger_records WHERE user_id = $1 AND link = $2)`,
		userID, link)
	if err != nil {
		return false, &ledger.PersistenceError{Op: "exists", Err: err}
	}
	return found, nil
}

// Add appends a record with the next contiguous sequence number.
func (s *Store) Add(ctx context.Context, userID int64, link, status string) (int, error) {
	var seq int
	err := s.withUserTx(ctx, "add", userID, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledgers (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
			return &ledger.PersistenceError{Op: "add", Err: err}
		}
		if err := tx.GetContext(ctx, &seq,
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM ledger_records WHERE user_id = $1`, userID); err != nil {
			return &ledger.PersistenceError{Op: "add", Err: err}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_records (user_id, seq, link, status, added_at) VALUES ($1, $2, $3, $4, $5)`,
			userID, seq, link, status, time.Now())
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
				return ledger.ErrDuplicateLink
			}
			return &ledger.PersistenceError{Op: "add", Err: err}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Info(ctx, "ledger", "record.added",
		slog.Int64("user_id", userID),
		slog.Int("seq", seq),
		slog.String("link", link),
		slog.String("post_status", status),
	)
	s.notify(ctx, userID)
	return seq, nil
}

// Delete removes the matching record and closes the numbering gap.
func (s *Store) Delete(ctx context.Context, userID int64, link string) (bool, error) {
	deleted := false
	err := s.withUserTx(ctx, "delete", userID, func(tx *sqlx.Tx) error {
		var seq int
		err := tx.GetContext(ctx, &seq,
			`DELETE FROM ledger_records WHERE user_id = $1 AND link = $2 RETURNING seq`,
			userID, link)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return &ledger.PersistenceError{Op: "delete", Err: err}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE ledger_records SET seq = seq - 1 WHERE user_id = $1 AND seq > $2`,
			userID, seq); err != nil {
			return &ledger.PersistenceError{Op: "delete", Err: err}
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	logger.Info(ctx, "ledger", "record.deleted",
		slog.Int64("user_id", userID),
		slog.String("link", link),
	)
	s.notify(ctx, userID)
	return true, nil
}

// UpdateStatus overwrites the status, keeping seq and added_at untouched.
func (s *Store) UpdateStatus(ctx context.Context, userID int64, link, status string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger_records SET status = $3 WHERE user_id = $1 AND link = $2`,
		userID, link, status)
	if err != nil {
		return false, &ledger.PersistenceError{Op: "update_status", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &ledger.PersistenceError{Op: "update_status", Err: err}
	}
	if n == 0 {
		return false, nil
	}
	if s.backupOnStatus {
		s.notify(ctx, userID)
	}
	return true, nil
}

// List returns the ledger snapshot in sequence order.
func (s *Store) List(ctx context.Context, userID int64) ([]ledger.Record, error) {
	var rows []recordRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT seq, link, status, added_at FROM ledger_records WHERE user_id = $1 ORDER BY seq`,
		userID)
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "list", Err: err}
	}
	records := make([]ledger.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.record())
	}
	return records, nil
}

// Count returns the ledger size.
func (s *Store) Count(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM ledger_records WHERE user_id = $1`, userID)
	if err != nil {
		return 0, &ledger.PersistenceError{Op: "count", Err: err}
	}
	return n, nil
}

// StatusHistogram maps each non-empty status to its record count.
func (s *Store) StatusHistogram(ctx context.Context, userID int64) (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT status, COUNT(*) AS count FROM ledger_records
		 WHERE user_id = $1 AND status <> '' GROUP BY status`, userID)
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "histogram", Err: err}
	}
	hist := make(map[string]int, len(rows))
	for _, r := range rows {
		hist[r.Status] = r.Count
	}
	return hist, nil
}

// Export renders the current rows through the shared xlsx codec.
func (s *Store) Export(ctx context.Context, userID int64) (io.ReadCloser, bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM ledgers WHERE user_id = $1)`, userID)
	if err != nil {
		return nil, false, &ledger.PersistenceError{Op: "export", Err: err}
	}
	if !exists {
		return nil, false, nil
	}

	records, err := s.List(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	f, err := sheet.Encode(records)
	if err != nil {
		return nil, false, &ledger.PersistenceError{Op: "export", Err: err}
	}
	defer f.Close()
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, false, &ledger.PersistenceError{Op: "export", Err: err}
	}
	return io.NopCloser(&buf), true, nil
}

func (s *Store) notify(ctx context.Context, userID int64) {
	s.notifier.Notify(context.WithoutCancel(ctx), userID)
}
