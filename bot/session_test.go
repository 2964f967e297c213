package bot

import "testing"

func TestSessionsTakePendingClears(t *testing.T) {
	s := NewSessions()
	s.SetPending(1, "https://t.me/a/1", ModeNew)

	link, ok := s.TakePending(1)
	if !ok || link != "https://t.me/a/1" {
		t.Fatalf("TakePending = (%q, %v)", link, ok)
	}
	if _, ok := s.TakePending(1); ok {
		t.Error("second TakePending returned a link")
	}
	if got := s.Get(1); got.State != Idle {
		t.Errorf("session = %+v, want Idle", got)
	}
}

func TestSessionsAwaitStatusRequiresPending(t *testing.T) {
	s := NewSessions()
	if s.AwaitStatus(1) {
		t.Error("AwaitStatus succeeded with no pending link")
	}

	s.SetPending(1, "https://t.me/a/2", ModeNew)
	if !s.AwaitStatus(1) {
		t.Fatal("AwaitStatus failed with a pending link")
	}
	if !s.AwaitingText(1) {
		t.Error("AwaitingText = false after AwaitStatus")
	}

	// The pending link survives the transition and is consumed normally.
	if link, ok := s.TakePending(1); !ok || link != "https://t.me/a/2" {
		t.Errorf("TakePending = (%q, %v)", link, ok)
	}
	if s.AwaitingText(1) {
		t.Error("AwaitingText = true after TakePending")
	}
}

func TestSessionsSetPendingReplaces(t *testing.T) {
	s := NewSessions()
	s.SetPending(1, "https://t.me/a/3", ModeNew)
	s.SetPending(1, "https://t.me/a/4", ModeDuplicate)

	got := s.Get(1)
	if got.PendingLink != "https://t.me/a/4" || got.Mode != ModeDuplicate {
		t.Errorf("session = %+v", got)
	}
}

func TestSessionsIsolatedPerUser(t *testing.T) {
	s := NewSessions()
	s.SetPending(1, "https://t.me/a/5", ModeNew)

	if _, ok := s.TakePending(2); ok {
		t.Error("user 2 observed user 1's pending link")
	}
	if got := s.Get(1); got.PendingLink != "https://t.me/a/5" {
		t.Errorf("user 1 session lost: %+v", got)
	}
}
