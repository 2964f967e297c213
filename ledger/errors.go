package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors recovered at the bot boundary and turned into user messages.
var (
	// ErrDuplicateLink reports an Add of a link already present in the ledger.
	ErrDuplicateLink = &domainError{code: "DUPLICATE_LINK", msg: "link already in ledger"}
	// ErrNotFound reports a Delete or UpdateStatus of a link absent from the ledger.
	ErrNotFound = &domainError{code: "LINK_NOT_FOUND", msg: "link not found in ledger"}
	// ErrNoLink reports that incoming text carried no recognizable post reference.
	ErrNoLink = &domainError{code: "NO_LINK", msg: "no post link found in message"}
	// ErrStalePending reports a button press with no pending link in the session.
	ErrStalePending = &domainError{code: "STALE_PENDING", msg: "no pending link for this action"}
)

type domainError struct {
	code string
	msg  string
}

func (e *domainError) Error() string { return e.msg }

// Code returns a stable identifier picked up by handler summary logging.
func (e *domainError) Code() string { return e.code }

// PersistenceError wraps a storage I/O failure. It is retryable from the
// caller's point of view: the mutation either completed or did not happen.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Code returns a stable identifier picked up by handler summary logging.
func (e *PersistenceError) Code() string { return "PERSISTENCE" }

// IsPersistence reports whether err is (or wraps) a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
