// Package ledger is the append-only record of what each session did.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ShayCichocki/marathon/pkg/models"
)

// ErrOutOfOrder is returned when an entry does not advance the session index.
var ErrOutOfOrder = errors.New("ledger entry out of order")

// Ledger appends to the entry slice of a RunState. The caller persists the
// state; the ledger only enforces ordering.
type Ledger struct {
	state *models.RunState
	now   func() time.Time
}

// New returns a ledger over the run state's entries.
func New(state *models.RunState) *Ledger {
	return &Ledger{state: state, now: func() time.Time { return time.Now().UTC() }}
}

// Append adds an entry. Session indices must strictly increase.
func (l *Ledger) Append(e models.ProgressEntry) error {
	if n := len(l.state.Ledger); n > 0 {
		last := l.state.Ledger[n-1].SessionIndex
		if e.SessionIndex <= last {
			return fmt.Errorf("%w: session %d after %d", ErrOutOfOrder, e.SessionIndex, last)
		}
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	l.state.Ledger = append(l.state.Ledger, e)
	return nil
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return len(l.state.Ledger)
}

// Tail returns a copy of the last n entries, oldest first.
func (l *Ledger) Tail(n int) []models.ProgressEntry {
	entries := l.state.Ledger
	if n <= 0 {
		return nil
	}
	if n > len(entries) {
		n = len(entries)
	}
	return append([]models.ProgressEntry(nil), entries[len(entries)-n:]...)
}

// Entries returns a copy of every entry.
func (l *Ledger) Entries() []models.ProgressEntry {
	return append([]models.ProgressEntry(nil), l.state.Ledger...)
}

// LastFor returns the most recent entry for a work item.
func (l *Ledger) LastFor(itemID int) (models.ProgressEntry, bool) {
	for i := len(l.state.Ledger) - 1; i >= 0; i-- {
		if l.state.Ledger[i].WorkItemID == itemID {
			return l.state.Ledger[i], true
		}
	}
	return models.ProgressEntry{}, false
}

// HasSuccess reports whether a success entry exists for the item.
func (l *Ledger) HasSuccess(itemID int) bool {
	for _, e := range l.state.Ledger {
		if e.WorkItemID == itemID && e.Outcome == models.OutcomeSuccess {
			return true
		}
	}
	return false
}

// Synopsis summarizes the last window entries. It is recomputed on every
// call and never cached.
func (l *Ledger) Synopsis(window int) string {
	return Summarize(l.Tail(window))
}

// Summarize renders a short deterministic synopsis of a run of entries.
func Summarize(entries []models.ProgressEntry) string {
	if len(entries) == 0 {
		return ""
	}

	var succeeded, failed int
	passed := make(map[int]bool)
	failing := make(map[int]models.ProgressEntry)
	for _, e := range entries {
		if e.Outcome == models.OutcomeSuccess {
			succeeded++
			passed[e.WorkItemID] = true
			delete(failing, e.WorkItemID)
			continue
		}
		failed++
		failing[e.WorkItemID] = e
	}

	var sb strings.Builder
	first, last := entries[0].SessionIndex, entries[len(entries)-1].SessionIndex
	if first == last {
		fmt.Fprintf(&sb, "Session %d: %d succeeded, %d failed.", first, succeeded, failed)
	} else {
		fmt.Fprintf(&sb, "Sessions %d-%d: %d succeeded, %d failed.", first, last, succeeded, failed)
	}

	if len(passed) > 0 {
		sb.WriteString(" Passed: ")
		sb.WriteString(joinIDs(sortedKeys(passed)))
		sb.WriteString(".")
	}
	if len(failing) > 0 {
		ids := make([]int, 0, len(failing))
		for id := range failing {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		parts := make([]string, 0, len(ids))
		for _, id := range ids {
			e := failing[id]
			kind := e.ErrorKind
			if kind == "" {
				kind = string(e.Outcome)
			}
			parts = append(parts, fmt.Sprintf("#%d (%s, attempt %d)", id, kind, e.Attempt))
		}
		sb.WriteString(" Still failing: ")
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString(".")
	}
	return sb.String()
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("#%d", id)
	}
	return strings.Join(parts, ", ")
}
