package bot

import (
	"context"
	"errors"
	"log/slog"

	coreconfig "postledger/core/config"
	"postledger/core/logger"
	"postledger/ledger"
	"postledger/links"
)

// Prompt describes the question to ask after a link was taken pending.
type Prompt struct {
	Link string
	// Duplicate is true when the link is already stored.
	Duplicate bool
	// OfferDelete is true when the duplicate branch should offer deleting
	// the stored record (duplicate_policy: offer_delete).
	OfferDelete bool
}

// Commit reports a record appended to the ledger.
type Commit struct {
	Number int
	Link   string
	Status string
}

// Flow is the transport-free conversation engine: it owns the session table
// and translates user events into ledger operations. All errors it returns
// are the typed ledger errors, converted to user messages by the handlers.
type Flow struct {
	store       ledger.Store
	sessions    *Sessions
	offerDelete bool
}

// NewFlow builds a Flow over store with the given duplicate policy
// (coreconfig.DuplicateOfferDelete or DuplicateForceNewOnly).
func NewFlow(store ledger.Store, sessions *Sessions, duplicatePolicy string) *Flow {
	return &Flow{
		store:       store,
		sessions:    sessions,
		offerDelete: duplicatePolicy != coreconfig.DuplicateForceNewOnly,
	}
}

// Sessions exposes the underlying session table.
func (f *Flow) Sessions() *Sessions { return f.sessions }

// HandleText extracts a link from raw message text and takes it pending.
// Returns ledger.ErrNoLink when no post reference is present; the session is
// not touched in that case.
func (f *Flow) HandleText(ctx context.Context, userID int64, text string) (Prompt, error) {
	link := links.Extract(text)
	if link == "" {
		return Prompt{}, ledger.ErrNoLink
	}
	return f.HandleLink(ctx, userID, link)
}

// HandleLink stores link as the user's pending link and decides the prompt:
// a status question for a new link, a duplicate choice otherwise.
func (f *Flow) HandleLink(ctx context.Context, userID int64, link string) (Prompt, error) {
	if err := f.store.EnsureExists(ctx, userID); err != nil {
		return Prompt{}, err
	}
	exists, err := f.store.Exists(ctx, userID, link)
	if err != nil {
		return Prompt{}, err
	}

	mode := ModeNew
	if exists {
		mode = ModeDuplicate
	}
	f.sessions.SetPending(userID, link, mode)

	logger.Debug(ctx, "ledger", "link.pending",
		slog.Int64("user_id", userID),
		slog.String("link", link),
		slog.Bool("duplicate", exists),
	)
	return Prompt{Link: link, Duplicate: exists, OfferDelete: exists && f.offerDelete}, nil
}

// CommitStatus consumes the pending link and appends it with status.
// A replayed callback finds no pending link and gets ledger.ErrStalePending;
// an Add that loses a duplicate race gets ledger.ErrDuplicateLink with the
// session restored in duplicate mode so the follow-up buttons still work.
func (f *Flow) CommitStatus(ctx context.Context, userID int64, status string) (Commit, error) {
	link, ok := f.sessions.TakePending(userID)
	if !ok {
		return Commit{}, ledger.ErrStalePending
	}

	number, err := f.store.Add(ctx, userID, link, status)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateLink) {
			f.sessions.SetPending(userID, link, ModeDuplicate)
		}
		return Commit{}, err
	}
	return Commit{Number: number, Link: link, Status: status}, nil
}

// RequestCustomStatus switches the session to AwaitingStatusText so the next
// text message is used verbatim as the status.
func (f *Flow) RequestCustomStatus(userID int64) error {
	if !f.sessions.AwaitStatus(userID) {
		return ledger.ErrStalePending
	}
	return nil
}

// DeletePending consumes the pending link and removes its record. deleted is
// false when the record is already gone.
func (f *Flow) DeletePending(ctx context.Context, userID int64) (link string, deleted bool, err error) {
	link, ok := f.sessions.TakePending(userID)
	if !ok {
		return "", false, ledger.ErrStalePending
	}
	deleted, err = f.store.Delete(ctx, userID, link)
	return link, deleted, err
}

// Cancel discards any pending link without touching the ledger.
func (f *Flow) Cancel(userID int64) {
	f.sessions.Clear(userID)
}

// OfferDelete reports whether the duplicate branch offers deletion.
func (f *Flow) OfferDelete() bool { return f.offerDelete }
