// Package filestore persists one xlsx workbook per user under a storage
// directory. The workbook is the database: every mutation loads the table,
// rewrites it in memory, and atomically replaces the file.
package filestore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"postledger/core/logger"
	"postledger/ledger"
	"postledger/ledger/sheet"
)

// Options configure the file-backed store.
type Options struct {
	// Dir is the storage root; one user_<id>.xlsx file per user.
	Dir string
	// Notifier receives a backup notification after successful mutations.
	Notifier ledger.Notifier
	// BackupOnStatusUpdate also notifies after UpdateStatus.
	BackupOnStatusUpdate bool
}

// Store implements ledger.Store and ledger.Exporter on per-user xlsx files.
type Store struct {
	dir            string
	notifier       ledger.Notifier
	backupOnStatus bool

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New prepares the storage directory and returns a Store.
func New(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("filestore: empty storage dir")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create dir: %w", err)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = ledger.NopNotifier{}
	}
	return &Store{
		dir:            opts.Dir,
		notifier:       notifier,
		backupOnStatus: opts.BackupOnStatusUpdate,
		locks:          make(map[int64]*sync.Mutex),
	}, nil
}

// Path returns the workbook location for a user.
func (s *Store) Path(userID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("user_%d.xlsx", userID))
}

// userLock returns the mutex serializing all operations for one user.
func (s *Store) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// EnsureExists creates an empty workbook with the header row if none exists.
func (s *Store) EnsureExists(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return &ledger.PersistenceError{Op: "ensure", Err: err}
	}
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return s.ensureLocked(ctx, userID)
}

func (s *Store) ensureLocked(ctx context.Context, userID int64) error {
	path := s.Path(userID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return &ledger.PersistenceError{Op: "ensure", Err: err}
	}
	if err := s.save(userID, nil); err != nil {
		return err
	}
	logger.Info(ctx, "ledger", "ledger.created",
		slog.Int64("user_id", userID),
		slog.String("file", path),
	)
	return nil
}

// load reads the current records; a missing file means an empty ledger.
func (s *Store) load(userID int64) ([]ledger.Record, error) {
	f, err := os.Open(s.Path(userID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "load", Err: err}
	}
	defer f.Close()
	records, err := sheet.Decode(f)
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "load", Err: err}
	}
	return records, nil
}

// save writes the full table to a temp file and renames it into place so a
// crashed write never leaves a partial workbook behind.
func (s *Store) save(userID int64, records []ledger.Record) error {
	f, err := sheet.Encode(records)
	if err != nil {
		return &ledger.PersistenceError{Op: "save", Err: err}
	}
	defer f.Close()

	path := s.Path(userID)
	// SaveAs checks the target extension, so the temp file must end in .xlsx.
	tmp := path + ".tmp.xlsx"
	if err := f.SaveAs(tmp); err != nil {
		return &ledger.PersistenceError{Op: "save", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &ledger.PersistenceError{Op: "save", Err: err}
	}
	return nil
}

// Exists reports whether the link is already present in the user's ledger.
func (s *Store) Exists(ctx context.Context, userID int64, link string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &ledger.PersistenceError{Op: "exists", Err: err}
	}
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	records, err := s.load(userID)
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		if rec.Link == link {
			return true, nil
		}
	}
	return false, nil
}

// Add appends a record with the next contiguous number.
func (s *Store) Add(ctx context.Context, userID int64, link, status string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, &ledger.PersistenceError{Op: "add", Err: err}
	}
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.ensureLocked(ctx, userID); err != nil {
		return 0, err
	}
	records, err := s.load(userID)
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		if rec.Link == link {
			return 0, ledger.ErrDuplicateLink
		}
	}

	rec := ledger.Record{
		Number:  len(records) + 1,
		Link:    link,
		Status:  status,
		AddedAt: time.Now(),
	}
	if err := s.save(userID, append(records, rec)); err != nil {
		return 0, err
	}

	logger.Info(ctx, "ledger", "record.added",
		slog.Int64("user_id", userID),
		slog.Int("seq", rec.Number),
		slog.String("link", link),
		slog.String("post_status", status),
	)
	s.notify(ctx, userID)
	return rec.Number, nil
}

// Delete removes the matching record and shifts trailing numbers down by one.
func (s *Store) Delete(ctx context.Context, userID int64, link string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &ledger.PersistenceError{Op: "delete", Err: err}
	}
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	records, err := s.load(userID)
	if err != nil {
		return false, err
	}
	idx := -1
	for i, rec := range records {
		if rec.Link == link {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	records = append(records[:idx], records[idx+1:]...)
	for i := range records {
		records[i].Number = i + 1
	}
	if err := s.save(userID, records); err != nil {
		return false, err
	}

	logger.Info(ctx, "ledger", "record.deleted",
		slog.Int64("user_id", userID),
		slog.String("link", link),
		slog.Int("rows", len(records)),
	)
	s.notify(ctx, userID)
	return true, nil
}

// UpdateStatus overwrites the status of the matching record in place.
func (s *Store) UpdateStatus(ctx context.Context, userID int64, link, status string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &ledger.PersistenceError{Op: "update_status", Err: err}
	}
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	records, err := s.load(userID)
	if err != nil {
		return false, err
	}
	updated := false
	for i := range records {
		if records[i].Link == link {
			records[i].Status = status
			updated = true
			break
		}
	}
	if !updated {
		return false, nil
	}
	if err := s.save(userID, records); err != nil {
		return false, err
	}
	if s.backupOnStatus {
		s.notify(ctx, userID)
	}
	return true, nil
}

// List returns a snapshot of the ledger in table order.
func (s *Store) List(ctx context.Context, userID int64) ([]ledger.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ledger.PersistenceError{Op: "list", Err: err}
	}
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return s.load(userID)
}

// Count returns the ledger size excluding the header.
func (s *Store) Count(ctx context.Context, userID int64) (int, error) {
	records, err := s.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// StatusHistogram maps each non-empty status to its record count.
func (s *Store) StatusHistogram(ctx context.Context, userID int64) (map[string]int, error) {
	records, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	hist := make(map[string]int)
	for _, rec := range records {
		if rec.Status != "" {
			hist[rec.Status]++
		}
	}
	return hist, nil
}

// Export streams the user's workbook as stored on disk.
func (s *Store) Export(ctx context.Context, userID int64) (io.ReadCloser, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, &ledger.PersistenceError{Op: "export", Err: err}
	}
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(s.Path(userID))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &ledger.PersistenceError{Op: "export", Err: err}
	}
	return f, true, nil
}

// notify dispatches the backup notification detached from the request's
// cancellation so an already-answered update cannot abort the backup.
func (s *Store) notify(ctx context.Context, userID int64) {
	s.notifier.Notify(context.WithoutCancel(ctx), userID)
}
