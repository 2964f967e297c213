package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"postledger/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func mustAdd(t *testing.T, s *Store, userID int64, link, status string) int {
	t.Helper()
	n, err := s.Add(context.Background(), userID, link, status)
	if err != nil {
		t.Fatalf("add %s: %v", link, err)
	}
	return n
}

func TestAddListRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := mustAdd(t, s, 42, "https://t.me/chan/100", "Вышли первыми")
	if n != 1 {
		t.Fatalf("first add returned %d, want 1", n)
	}

	records, err := s.List(ctx, 42)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("list returned %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Link != "https://t.me/chan/100" || rec.Status != "Вышли первыми" || rec.Number != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.AddedAt.IsZero() {
		t.Fatal("AddedAt not set")
	}

	ok, err := s.Exists(ctx, 42, "https://t.me/chan/100")
	if err != nil || !ok {
		t.Fatalf("exists = %v, %v; want true, nil", ok, err)
	}

	count, err := s.Count(ctx, 42)
	if err != nil || count != 1 {
		t.Fatalf("count = %d, %v; want 1, nil", count, err)
	}

	hist, err := s.StatusHistogram(ctx, 42)
	if err != nil {
		t.Fatalf("histogram: %v", err)
	}
	if len(hist) != 1 || hist["Вышли первыми"] != 1 {
		t.Fatalf("histogram = %v", hist)
	}
}

func TestDuplicateRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustAdd(t, s, 7, "https://t.me/a/1", "")
	_, err := s.Add(ctx, 7, "https://t.me/a/1", "later")
	if !errors.Is(err, ledger.ErrDuplicateLink) {
		t.Fatalf("second add error = %v, want ErrDuplicateLink", err)
	}

	count, err := s.Count(ctx, 7)
	if err != nil || count != 1 {
		t.Fatalf("count after duplicate = %d, %v; want 1", count, err)
	}
}

func TestDeleteRenumbers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	links := make([]string, 5)
	for i := range links {
		links[i] = fmt.Sprintf("https://t.me/chan/%d", i+1)
		mustAdd(t, s, 1, links[i], "")
	}

	ok, err := s.Delete(ctx, 1, links[2])
	if err != nil || !ok {
		t.Fatalf("delete = %v, %v; want true, nil", ok, err)
	}

	records, err := s.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	wantLinks := []string{links[0], links[1], links[3], links[4]}
	if len(records) != len(wantLinks) {
		t.Fatalf("got %d records, want %d", len(records), len(wantLinks))
	}
	for i, rec := range records {
		if rec.Number != i+1 {
			t.Fatalf("record %d has number %d, want %d", i, rec.Number, i+1)
		}
		if rec.Link != wantLinks[i] {
			t.Fatalf("record %d link = %s, want %s", i, rec.Link, wantLinks[i])
		}
	}

	exists, err := s.Exists(ctx, 1, links[2])
	if err != nil || exists {
		t.Fatalf("deleted link still present: %v, %v", exists, err)
	}
}

func TestDeleteThenReadd(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustAdd(t, s, 9, "https://t.me/x/1", "s1")
	if ok, err := s.Delete(ctx, 9, "https://t.me/x/1"); err != nil || !ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}
	n, err := s.Add(ctx, 9, "https://t.me/x/1", "s2")
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if n != 1 {
		t.Fatalf("re-add returned number %d, want 1", n)
	}
}

func TestDeleteMissingReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	ok, err := s.Delete(context.Background(), 3, "https://t.me/none/1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok {
		t.Fatal("delete of missing link reported success")
	}
}

func TestUpdateStatusKeepsNumberAndTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustAdd(t, s, 5, "https://t.me/u/10", "")
	before, _ := s.List(ctx, 5)

	ok, err := s.UpdateStatus(ctx, 5, "https://t.me/u/10", "Вышли в течение часа")
	if err != nil || !ok {
		t.Fatalf("update = %v, %v", ok, err)
	}
	after, _ := s.List(ctx, 5)
	if after[0].Status != "Вышли в течение часа" {
		t.Fatalf("status = %q", after[0].Status)
	}
	if after[0].Number != before[0].Number || !after[0].AddedAt.Equal(before[0].AddedAt) {
		t.Fatalf("number/timestamp changed: %+v -> %+v", before[0], after[0])
	}

	if ok, err := s.UpdateStatus(ctx, 5, "https://t.me/u/missing", "x"); err != nil || ok {
		t.Fatalf("update of missing link = %v, %v; want false, nil", ok, err)
	}
}

func TestReadsOnAbsentLedgerReportEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if records, err := s.List(ctx, 404); err != nil || len(records) != 0 {
		t.Fatalf("list = %v, %v; want empty", records, err)
	}
	if count, err := s.Count(ctx, 404); err != nil || count != 0 {
		t.Fatalf("count = %d, %v; want 0", count, err)
	}
	if hist, err := s.StatusHistogram(ctx, 404); err != nil || len(hist) != 0 {
		t.Fatalf("histogram = %v, %v; want empty", hist, err)
	}
	if _, err := os.Stat(s.Path(404)); !os.IsNotExist(err) {
		t.Fatal("read operations must not create the ledger file")
	}
}

func TestEnsureExistsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.EnsureExists(ctx, 11); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	info, err := os.Stat(s.Path(11))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if err := s.EnsureExists(ctx, 11); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	info2, err := os.Stat(s.Path(11))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info2.ModTime().Equal(info.ModTime()) {
		t.Fatal("second EnsureExists rewrote the file")
	}
}

func TestNumberingInvariantUnderMixedOperations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	link := func(i int) string { return fmt.Sprintf("https://t.me/mix/%d", i) }
	for i := 1; i <= 6; i++ {
		mustAdd(t, s, 2, link(i), "")
	}
	for _, victim := range []int{2, 5, 1} {
		if ok, err := s.Delete(ctx, 2, link(victim)); err != nil || !ok {
			t.Fatalf("delete %d: %v, %v", victim, ok, err)
		}
	}
	mustAdd(t, s, 2, link(7), "")

	records, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	seen := make(map[string]bool)
	for i, rec := range records {
		if rec.Number != i+1 {
			t.Fatalf("gap in numbering at index %d: %+v", i, rec)
		}
		if seen[rec.Link] {
			t.Fatalf("duplicate link %s", rec.Link)
		}
		seen[rec.Link] = true
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}
}

func TestUsersAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustAdd(t, s, 100, "https://t.me/shared/1", "")
	if ok, _ := s.Exists(ctx, 200, "https://t.me/shared/1"); ok {
		t.Fatal("link leaked across users")
	}
	// Same link in another ledger is not a duplicate.
	if n := mustAdd(t, s, 200, "https://t.me/shared/1", ""); n != 1 {
		t.Fatalf("independent ledger numbering broken: %d", n)
	}
}

type countingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *countingNotifier) Notify(context.Context, int64) {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func TestBackupNotifications(t *testing.T) {
	notifier := &countingNotifier{}
	s, err := New(Options{Dir: t.TempDir(), Notifier: notifier})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	mustAdd(t, s, 1, "https://t.me/n/1", "")
	if got := notifier.count(); got != 1 {
		t.Fatalf("after add: %d notifications, want 1", got)
	}
	if _, err := s.UpdateStatus(ctx, 1, "https://t.me/n/1", "s"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := notifier.count(); got != 1 {
		t.Fatalf("status update notified despite disabled flag: %d", got)
	}
	if _, err := s.Delete(ctx, 1, "https://t.me/n/1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := notifier.count(); got != 2 {
		t.Fatalf("after delete: %d notifications, want 2", got)
	}

	// Failed delete must not notify.
	if ok, _ := s.Delete(ctx, 1, "https://t.me/n/1"); ok {
		t.Fatal("delete of missing link reported success")
	}
	if got := notifier.count(); got != 2 {
		t.Fatalf("failed delete notified: %d", got)
	}
}

func TestBackupOnStatusUpdateFlag(t *testing.T) {
	notifier := &countingNotifier{}
	s, err := New(Options{Dir: t.TempDir(), Notifier: notifier, BackupOnStatusUpdate: true})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	mustAdd(t, s, 1, "https://t.me/n/1", "")
	if _, err := s.UpdateStatus(ctx, 1, "https://t.me/n/1", "s"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := notifier.count(); got != 2 {
		t.Fatalf("expected notification on status update, got %d total", got)
	}
}

func TestExport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Export(ctx, 77); err != nil || ok {
		t.Fatalf("export of absent ledger = ok=%v err=%v", ok, err)
	}

	mustAdd(t, s, 77, "https://t.me/e/1", "")
	r, ok, err := s.Export(ctx, 77)
	if err != nil || !ok {
		t.Fatalf("export = ok=%v err=%v", ok, err)
	}
	defer r.Close()
	buf := make([]byte, 4)
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	// xlsx is a zip container.
	if string(buf[:2]) != "PK" {
		t.Fatalf("export is not an xlsx container: % x", buf)
	}
}

func TestSaveLeavesOnlyWorkbookFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Options{Dir: dir})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	mustAdd(t, s, 3, "https://t.me/chan/1", "Вышли первыми")
	if ok, err := s.Delete(ctx, 3, "https://t.me/chan/1"); err != nil || !ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}
	mustAdd(t, s, 3, "https://t.me/chan/2", "")

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "user_3.xlsx" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Fatalf("dir contents = %v, want [user_3.xlsx]", names)
	}

	// A fresh store must be able to read the saved workbook back.
	s2, err := New(Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	records, err := s2.List(ctx, 3)
	if err != nil {
		t.Fatalf("list after reopen: %v", err)
	}
	if len(records) != 1 || records[0].Link != "https://t.me/chan/2" {
		t.Fatalf("unexpected records after reopen: %+v", records)
	}
}
