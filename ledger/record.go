// Package ledger defines the per-user post ledger: an ordered, deduplicated,
// densely numbered collection of link records.
package ledger

import "time"

// TimeFormat is the timestamp layout stored in the "Дата добавления" column.
const TimeFormat = "2006-01-02 15:04:05"

// Fixed arrival-timing statuses offered by the conversation keyboard.
// Free-text statuses are also allowed; these are only the quick options.
var ArrivalStatuses = []string{
	"Вышли первыми",
	"Вышли в течение часа",
	"Вышли в течение 2-3 часов",
	"Вышли больше, чем через 3 часа",
}

// Record is one tracked post.
type Record struct {
	// Number is the 1-based position of the record within the ledger.
	// It is dense and contiguous: the Nth record always has Number == N.
	Number int
	// Link is the canonical post reference, unique within a ledger.
	Link string
	// Status is an optional classification label; empty means unset.
	Status string
	// AddedAt is the insertion time, immutable once set.
	AddedAt time.Time
}
