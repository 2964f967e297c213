package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	coreconfig "postledger/core/config"
	"postledger/ledger"
)

type fakeStore struct {
	mu      sync.Mutex
	records map[int64][]ledger.Record
	addErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[int64][]ledger.Record)}
}

func (s *fakeStore) EnsureExists(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[userID]; !ok {
		s.records[userID] = nil
	}
	return nil
}

func (s *fakeStore) Exists(_ context.Context, userID int64, link string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records[userID] {
		if rec.Link == link {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) Add(_ context.Context, userID int64, link, status string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return 0, s.addErr
	}
	for _, rec := range s.records[userID] {
		if rec.Link == link {
			return 0, ledger.ErrDuplicateLink
		}
	}
	number := len(s.records[userID]) + 1
	s.records[userID] = append(s.records[userID], ledger.Record{
		Number: number, Link: link, Status: status, AddedAt: time.Now(),
	})
	return number, nil
}

func (s *fakeStore) Delete(_ context.Context, userID int64, link string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.records[userID]
	for i, rec := range recs {
		if rec.Link == link {
			recs = append(recs[:i], recs[i+1:]...)
			for j := range recs {
				recs[j].Number = j + 1
			}
			s.records[userID] = recs
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, userID int64, link, status string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.records[userID] {
		if rec.Link == link {
			s.records[userID][i].Status = status
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) List(_ context.Context, userID int64) ([]ledger.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Record, len(s.records[userID]))
	copy(out, s.records[userID])
	return out, nil
}

func (s *fakeStore) Count(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[userID]), nil
}

func (s *fakeStore) StatusHistogram(_ context.Context, userID int64) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hist := make(map[string]int)
	for _, rec := range s.records[userID] {
		if rec.Status != "" {
			hist[rec.Status]++
		}
	}
	return hist, nil
}

func newTestFlow(store ledger.Store, policy string) *Flow {
	return NewFlow(store, NewSessions(), policy)
}

func TestFlowNewLinkPrompt(t *testing.T) {
	ctx := context.Background()
	flow := newTestFlow(newFakeStore(), coreconfig.DuplicateOfferDelete)

	prompt, err := flow.HandleText(ctx, 1, "check this out https://t.me/news/55 cool post")
	if err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if prompt.Link != "https://t.me/news/55" {
		t.Errorf("link = %q", prompt.Link)
	}
	if prompt.Duplicate {
		t.Error("fresh link reported as duplicate")
	}
	if got := flow.Sessions().Get(1); got.State != LinkPending || got.PendingLink != prompt.Link {
		t.Errorf("session = %+v", got)
	}
}

func TestFlowNoLinkLeavesSessionIdle(t *testing.T) {
	ctx := context.Background()
	flow := newTestFlow(newFakeStore(), coreconfig.DuplicateOfferDelete)

	_, err := flow.HandleText(ctx, 1, "just some words")
	if !errors.Is(err, ledger.ErrNoLink) {
		t.Fatalf("err = %v, want ErrNoLink", err)
	}
	if got := flow.Sessions().Get(1); got.State != Idle {
		t.Errorf("session mutated on no-link input: %+v", got)
	}
}

func TestFlowDuplicatePrompt(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	if _, err := store.Add(ctx, 1, "https://t.me/chan/7", ""); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		policy      string
		offerDelete bool
	}{
		{coreconfig.DuplicateOfferDelete, true},
		{coreconfig.DuplicateForceNewOnly, false},
	} {
		flow := newTestFlow(store, tc.policy)
		prompt, err := flow.HandleLink(ctx, 1, "https://t.me/chan/7")
		if err != nil {
			t.Fatalf("%s: HandleLink: %v", tc.policy, err)
		}
		if !prompt.Duplicate {
			t.Errorf("%s: duplicate not detected", tc.policy)
		}
		if prompt.OfferDelete != tc.offerDelete {
			t.Errorf("%s: OfferDelete = %v, want %v", tc.policy, prompt.OfferDelete, tc.offerDelete)
		}
	}
}

func TestFlowCommitStatus(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	flow := newTestFlow(store, coreconfig.DuplicateOfferDelete)

	if _, err := flow.HandleLink(ctx, 42, "https://t.me/chan/100"); err != nil {
		t.Fatal(err)
	}
	commit, err := flow.CommitStatus(ctx, 42, "Вышли первыми")
	if err != nil {
		t.Fatalf("CommitStatus: %v", err)
	}
	if commit.Number != 1 || commit.Status != "Вышли первыми" {
		t.Errorf("commit = %+v", commit)
	}
	if got := flow.Sessions().Get(42); got.State != Idle {
		t.Errorf("session not cleared after commit: %+v", got)
	}
	if hist, _ := store.StatusHistogram(ctx, 42); hist["Вышли первыми"] != 1 {
		t.Errorf("histogram = %v", hist)
	}
}

func TestFlowStaleCallbackReplay(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	flow := newTestFlow(store, coreconfig.DuplicateOfferDelete)

	if _, err := flow.HandleLink(ctx, 1, "https://t.me/chan/1"); err != nil {
		t.Fatal(err)
	}
	if _, err := flow.CommitStatus(ctx, 1, "Вышли первыми"); err != nil {
		t.Fatal(err)
	}

	// Telegram may deliver the same callback twice; the second delivery must
	// not append a second record.
	_, err := flow.CommitStatus(ctx, 1, "Вышли первыми")
	if !errors.Is(err, ledger.ErrStalePending) {
		t.Fatalf("replay err = %v, want ErrStalePending", err)
	}
	if n, _ := store.Count(ctx, 1); n != 1 {
		t.Errorf("count = %d after replay, want 1", n)
	}
}

func TestFlowCustomStatus(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	flow := newTestFlow(store, coreconfig.DuplicateOfferDelete)

	if _, err := flow.HandleLink(ctx, 1, "https://t.me/chan/2"); err != nil {
		t.Fatal(err)
	}
	if err := flow.RequestCustomStatus(1); err != nil {
		t.Fatalf("RequestCustomStatus: %v", err)
	}
	if !flow.Sessions().AwaitingText(1) {
		t.Fatal("session not awaiting text")
	}
	commit, err := flow.CommitStatus(ctx, 1, "эксклюзив")
	if err != nil {
		t.Fatalf("CommitStatus: %v", err)
	}
	if commit.Status != "эксклюзив" {
		t.Errorf("status = %q", commit.Status)
	}
	if flow.Sessions().AwaitingText(1) {
		t.Error("session still awaiting text after commit")
	}
}

func TestFlowCustomStatusWithoutPending(t *testing.T) {
	flow := newTestFlow(newFakeStore(), coreconfig.DuplicateOfferDelete)
	if err := flow.RequestCustomStatus(9); !errors.Is(err, ledger.ErrStalePending) {
		t.Fatalf("err = %v, want ErrStalePending", err)
	}
}

func TestFlowDeletePending(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	if _, err := store.Add(ctx, 1, "https://t.me/chan/3", ""); err != nil {
		t.Fatal(err)
	}
	flow := newTestFlow(store, coreconfig.DuplicateOfferDelete)

	if _, err := flow.HandleLink(ctx, 1, "https://t.me/chan/3"); err != nil {
		t.Fatal(err)
	}
	link, deleted, err := flow.DeletePending(ctx, 1)
	if err != nil || !deleted {
		t.Fatalf("DeletePending = (%q, %v, %v)", link, deleted, err)
	}
	if n, _ := store.Count(ctx, 1); n != 0 {
		t.Errorf("count = %d after delete", n)
	}

	_, _, err = flow.DeletePending(ctx, 1)
	if !errors.Is(err, ledger.ErrStalePending) {
		t.Fatalf("replayed delete err = %v, want ErrStalePending", err)
	}
}

func TestFlowCancelDiscardsPending(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	flow := newTestFlow(store, coreconfig.DuplicateOfferDelete)

	if _, err := flow.HandleLink(ctx, 1, "https://t.me/chan/4"); err != nil {
		t.Fatal(err)
	}
	flow.Cancel(1)

	if _, err := flow.CommitStatus(ctx, 1, "x"); !errors.Is(err, ledger.ErrStalePending) {
		t.Fatalf("commit after cancel err = %v, want ErrStalePending", err)
	}
	if n, _ := store.Count(ctx, 1); n != 0 {
		t.Errorf("cancel mutated the ledger: count = %d", n)
	}
}

func TestFlowDuplicateRaceRestoresSession(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	flow := newTestFlow(store, coreconfig.DuplicateOfferDelete)

	if _, err := flow.HandleLink(ctx, 1, "https://t.me/chan/5"); err != nil {
		t.Fatal(err)
	}
	// Another path stored the same link between the prompt and the commit.
	if _, err := store.Add(ctx, 1, "https://t.me/chan/5", ""); err != nil {
		t.Fatal(err)
	}

	_, err := flow.CommitStatus(ctx, 1, "Вышли первыми")
	if !errors.Is(err, ledger.ErrDuplicateLink) {
		t.Fatalf("err = %v, want ErrDuplicateLink", err)
	}
	got := flow.Sessions().Get(1)
	if got.State != LinkPending || got.Mode != ModeDuplicate || got.PendingLink != "https://t.me/chan/5" {
		t.Errorf("session after duplicate race = %+v", got)
	}
	if n, _ := store.Count(ctx, 1); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}
