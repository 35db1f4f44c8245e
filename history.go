package horunner

import (
	"sync"
)

//////
// Const, vars, types.
//////

// History is the ordered, append-only trial history.
//
// Insert is the single point of mutation: it assigns sequence indices and
// appends under a write lock, so Len, OK and Snapshot never observe a
// partially inserted batch. Records are deep-copied on the way in and on the
// way out, which makes every Snapshot an isolated value.
//
// Invariants:
// - Len is monotonically non-decreasing
// - Indices are unique and contiguous from 0
// - Insertion order is completion order, not proposal order
type History struct {
	mu     sync.RWMutex
	trials []TrialRecord
}

//////
// Methods.
//////

// Len returns the number of records.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.trials)
}

// Insert appends records in the given order, assigning each the next
// sequence index. Indices carried by the input are ignored and results are
// normalized, so a NaN loss is stored as a failure.
func (h *History) Insert(records ...TrialRecord) {
	if len(records) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, r := range records {
		c := r.clone()
		c.Index = len(h.trials)
		c.Result = c.Result.normalize()
		h.trials = append(h.trials, c)
	}
}

// Snapshot returns a deep copy of all records.
func (h *History) Snapshot() []TrialRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]TrialRecord, len(h.trials))
	for i, t := range h.trials {
		out[i] = t.clone()
	}

	return out
}

// OK returns a copy of the records with status ok. It is computed on every
// call.
func (h *History) OK() []TrialRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return okTrials(h.trials)
}

// Best returns the ok record with the lowest loss.
func (h *History) Best() (TrialRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return bestTrial(h.trials)
}

//////
// Helpers.
//////

func okTrials(trials []TrialRecord) []TrialRecord {
	out := make([]TrialRecord, 0, len(trials))

	for _, t := range trials {
		if t.Result.usable() {
			out = append(out, t.clone())
		}
	}

	return out
}

func bestTrial(trials []TrialRecord) (TrialRecord, bool) {
	var (
		best  TrialRecord
		found bool
	)

	for _, t := range trials {
		if !t.Result.usable() {
			continue
		}

		if !found || *t.Result.Loss < *best.Result.Loss {
			best = t
			found = true
		}
	}

	if !found {
		return TrialRecord{}, false
	}

	return best.clone(), true
}

//////
// Factory.
//////

// NewHistory creates a History seeded with prior records, e.g. a loaded
// checkpoint. The records are re-indexed from 0 in the given order.
func NewHistory(initial ...TrialRecord) *History {
	h := &History{}
	h.Insert(initial...)

	return h
}
