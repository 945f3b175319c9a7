// Package workitem owns the work item backlog: eligibility selection,
// lifecycle transitions and the retry ceiling.
package workitem

import (
	"fmt"
	"sort"
	"time"

	"github.com/ShayCichocki/marathon/internal/graph"
	"github.com/ShayCichocki/marathon/pkg/models"
)

// PersistFunc durably writes the run state after a mutation.
type PersistFunc func(*models.RunState) error

// Selection is the outcome of NextEligible.
type Selection int

const (
	// SelectionEligible means an item was returned.
	SelectionEligible Selection = iota
	// SelectionExhausted means no pending items remain.
	SelectionExhausted
	// SelectionBlocked means pending items remain but none has all dependencies passed.
	SelectionBlocked
)

func (s Selection) String() string {
	switch s {
	case SelectionEligible:
		return "eligible"
	case SelectionExhausted:
		return "exhausted"
	case SelectionBlocked:
		return "blocked"
	default:
		return fmt.Sprintf("selection(%d)", int(s))
	}
}

type edge struct {
	from, to models.ItemStatus
}

var allowed = map[edge]bool{
	{models.ItemPending, models.ItemInProgress}: true,
	{models.ItemInProgress, models.ItemPassed}:  true,
	{models.ItemInProgress, models.ItemPending}: true,
	{models.ItemInProgress, models.ItemFailed}:  true,
	{models.ItemPending, models.ItemSkipped}:    true,
	{models.ItemFailed, models.ItemPending}:     true,
	{models.ItemSkipped, models.ItemPending}:    true,
}

// Store mutates the work items of a RunState. It is not safe for concurrent
// use; the run controller is its only writer.
type Store struct {
	state       *models.RunState
	persist     PersistFunc
	maxAttempts int
	graph       *graph.DependencyGraph
	now         func() time.Time
}

// NewStore validates the backlog (duplicate IDs, unknown dependencies, cycles,
// unknown statuses) and returns a store over it. persist may be nil.
func NewStore(state *models.RunState, persist PersistFunc, maxAttempts int) (*Store, error) {
	if state == nil {
		return nil, fmt.Errorf("nil run state")
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be at least 1, got %d", maxAttempts)
	}
	for _, it := range state.WorkItems {
		if !it.Status.Valid() {
			return nil, fmt.Errorf("work item %d has invalid status %q", it.ID, it.Status)
		}
	}
	g, err := graph.Build(state.WorkItems)
	if err != nil {
		return nil, fmt.Errorf("validate backlog: %w", err)
	}
	sort.Slice(state.WorkItems, func(i, j int) bool { return state.WorkItems[i].ID < state.WorkItems[j].ID })

	return &Store{
		state:       state,
		persist:     persist,
		maxAttempts: maxAttempts,
		graph:       g,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// MaxAttempts returns the retry ceiling.
func (s *Store) MaxAttempts() int {
	return s.maxAttempts
}

// NextEligible returns the lowest-ID pending item whose dependencies are all passed.
// An item left in_progress counts as remaining work, so it yields SelectionBlocked
// rather than SelectionExhausted until it is reconciled.
func (s *Store) NextEligible() (*models.WorkItem, Selection) {
	remaining := false
	for i := range s.state.WorkItems {
		it := &s.state.WorkItems[i]
		switch it.Status {
		case models.ItemPending:
			remaining = true
			if s.depsPassed(it) {
				c := it.Clone()
				return &c, SelectionEligible
			}
		case models.ItemInProgress:
			remaining = true
		}
	}
	if remaining {
		return nil, SelectionBlocked
	}
	return nil, SelectionExhausted
}

// Blockers returns the dependencies of id that are not yet passed.
func (s *Store) Blockers(id int) []int {
	it := s.state.Item(id)
	if it == nil {
		return nil
	}
	var out []int
	for _, dep := range it.DependsOn {
		if d := s.state.Item(dep); d != nil && d.Status != models.ItemPassed {
			out = append(out, dep)
		}
	}
	sort.Ints(out)
	return out
}

// Dependents returns every item that transitively depends on id.
func (s *Store) Dependents(id int) []int {
	return s.graph.Dependents(id)
}

func (s *Store) depsPassed(it *models.WorkItem) bool {
	for _, dep := range it.DependsOn {
		d := s.state.Item(dep)
		if d == nil || d.Status != models.ItemPassed {
			return false
		}
	}
	return true
}

// Mark moves an item to a new status. Leaving in_progress for anything other
// than passed counts as a failed attempt. cause, when non-nil, becomes the
// item's last error. The state is persisted after every successful change;
// if persisting fails the in-memory change is rolled back.
func (s *Store) Mark(id int, to models.ItemStatus, cause error) error {
	it := s.state.Item(id)
	if it == nil {
		return fmt.Errorf("%w: %d", ErrUnknownItem, id)
	}
	from := it.Status
	if !allowed[edge{from, to}] {
		return &TransitionError{ItemID: id, From: from, To: to}
	}
	if from == models.ItemPending && to == models.ItemInProgress && !s.depsPassed(it) {
		return &TransitionError{ItemID: id, From: from, To: to,
			Reason: fmt.Sprintf("dependencies not passed: %v", s.Blockers(id))}
	}
	if from == models.ItemInProgress && to == models.ItemPending && it.AttemptCount+1 >= s.maxAttempts {
		return &TransitionError{ItemID: id, From: from, To: to,
			Reason: fmt.Sprintf("retry ceiling %d reached", s.maxAttempts)}
	}

	before := it.Clone()

	switch {
	case from == models.ItemInProgress && to != models.ItemPassed:
		it.AttemptCount++
	case from == models.ItemFailed || from == models.ItemSkipped:
		it.AttemptCount = 0
	}
	switch {
	case cause != nil:
		it.LastError = cause.Error()
	case to == models.ItemPassed:
		it.LastError = ""
	}

	tr := models.Transition{From: from, To: to, At: s.now()}
	if cause != nil {
		tr.Error = cause.Error()
	}
	it.Status = to
	it.History = append(it.History, tr)

	if err := s.save(); err != nil {
		*it = before
		return err
	}
	return nil
}

// RecordFailure applies the retry ceiling to a failed attempt of an
// in-progress item. The item returns to pending, or becomes failed once its
// attempt count reaches the ceiling. It returns the resulting status.
func (s *Store) RecordFailure(id int, cause error) (models.ItemStatus, error) {
	it := s.state.Item(id)
	if it == nil {
		return "", fmt.Errorf("%w: %d", ErrUnknownItem, id)
	}
	next := models.ItemPending
	if it.AttemptCount+1 >= s.maxAttempts {
		next = models.ItemFailed
	}
	if err := s.Mark(id, next, cause); err != nil {
		return "", err
	}
	return next, nil
}

// Reset is the operator action returning a failed or skipped item to pending
// with a fresh attempt count. History is kept.
func (s *Store) Reset(id int) error {
	return s.Mark(id, models.ItemPending, nil)
}

// Skip is the operator action removing a pending item from the run.
func (s *Store) Skip(id int) error {
	return s.Mark(id, models.ItemSkipped, nil)
}

// Get returns a copy of the item.
func (s *Store) Get(id int) (models.WorkItem, bool) {
	it := s.state.Item(id)
	if it == nil {
		return models.WorkItem{}, false
	}
	return it.Clone(), true
}

// Items returns copies of all items in ID order.
func (s *Store) Items() []models.WorkItem {
	out := make([]models.WorkItem, len(s.state.WorkItems))
	for i, it := range s.state.WorkItems {
		out[i] = it.Clone()
	}
	return out
}

// Counts tallies items per status.
func (s *Store) Counts() map[models.ItemStatus]int {
	return s.state.CountByStatus()
}

func (s *Store) save() error {
	if s.persist == nil {
		return nil
	}
	return s.persist(s.state)
}
