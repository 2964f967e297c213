// Package bot implements the conversation flow on top of the ledger: link
// intake, duplicate detection, status selection and deletion, plus the
// telebot handlers that drive it.
package bot

import "sync"

// State of a user's conversation.
type State int

const (
	// Idle means no link is pending a decision.
	Idle State = iota
	// LinkPending means a link was extracted and awaits a user choice.
	LinkPending
	// AwaitingStatusText means the next text message is consumed as a
	// free-text status for the pending link.
	AwaitingStatusText
)

// Mode distinguishes how a pending link entered the session.
type Mode int

const (
	// ModeNew marks a link not yet present in the ledger.
	ModeNew Mode = iota
	// ModeDuplicate marks a link already stored in the ledger.
	ModeDuplicate
)

// Session is the transient per-user conversation state. At most one link is
// pending; every terminal transition clears it.
type Session struct {
	State       State
	Mode        Mode
	PendingLink string
}

// Sessions keeps one Session per user id. All methods are safe for
// concurrent use; entries for idle users are dropped to keep the map small.
type Sessions struct {
	mu     sync.Mutex
	byUser map[int64]Session
}

// NewSessions returns an empty session table.
func NewSessions() *Sessions {
	return &Sessions{byUser: make(map[int64]Session)}
}

// Get returns a copy of the user's session, Idle when none exists.
func (s *Sessions) Get(userID int64) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byUser[userID]
}

// SetPending stores a newly extracted link, replacing any previous pending
// state for the user.
func (s *Sessions) SetPending(userID int64, link string, mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[userID] = Session{State: LinkPending, Mode: mode, PendingLink: link}
}

// AwaitStatus moves a pending session into AwaitingStatusText. Returns false
// when there is no pending link, leaving the session untouched.
func (s *Sessions) AwaitStatus(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byUser[userID]
	if !ok || sess.PendingLink == "" {
		return false
	}
	sess.State = AwaitingStatusText
	s.byUser[userID] = sess
	return true
}

// TakePending removes and returns the pending link, forcing the session back
// to Idle. The second delivery of a replayed callback finds ok == false.
func (s *Sessions) TakePending(userID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byUser[userID]
	delete(s.byUser, userID)
	if !ok || sess.PendingLink == "" {
		return "", false
	}
	return sess.PendingLink, true
}

// Clear resets the user to Idle, discarding any pending link.
func (s *Sessions) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byUser, userID)
}

// AwaitingText reports whether the user's next text message should be
// consumed as a free-text status.
func (s *Sessions) AwaitingText(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byUser[userID].State == AwaitingStatusText
}
