// Package callstore persists the pending state of durable continuation
// calls. A stored call survives process suspension: the peer writes it
// before the request frame is sent, and a later peer sharing the same store
// completes it when the response arrives.
//
// Stores are synchronous and transactional per call: Save must be visible
// to a subsequent Get on the same store before it returns.
package callstore

import "sort"

// A Call is one durable pending call. Params hold the codec-encoded call
// parameters; SentAt and TimeoutAt are wall-clock milliseconds.
type Call struct {
	ID        string
	Method    string
	Params    string
	Callback  string
	SentAt    int64
	TimeoutAt int64
}

// A Store holds pending durable calls keyed by id.
type Store interface {
	// Save inserts or replaces the call by id. The write is visible to any
	// subsequent Get before Save returns.
	Save(call Call) error

	// Get reports the stored call. The returned value does not alias the
	// stored representation.
	Get(id string) (Call, bool, error)

	// Delete removes the call and reports whether it existed.
	Delete(id string) (bool, error)

	// ListExpired reports every call with TimeoutAt <= beforeMs, sorted
	// ascending by TimeoutAt.
	ListExpired(beforeMs int64) ([]Call, error)

	// ListAll reports every call, sorted ascending by SentAt.
	ListAll() ([]Call, error)

	// Clear removes every call.
	Clear() error
}

// sortByTimeout orders calls ascending by TimeoutAt, breaking ties by id so
// listings are stable.
func sortByTimeout(calls []Call) {
	sort.Slice(calls, func(i, j int) bool {
		if calls[i].TimeoutAt != calls[j].TimeoutAt {
			return calls[i].TimeoutAt < calls[j].TimeoutAt
		}
		return calls[i].ID < calls[j].ID
	})
}

// sortBySent orders calls ascending by SentAt, breaking ties by id.
func sortBySent(calls []Call) {
	sort.Slice(calls, func(i, j int) bool {
		if calls[i].SentAt != calls[j].SentAt {
			return calls[i].SentAt < calls[j].SentAt
		}
		return calls[i].ID < calls[j].ID
	})
}
