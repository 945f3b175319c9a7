package workitem

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/ShayCichocki/marathon/pkg/models"
)

func newTestStore(t *testing.T, maxAttempts int, items ...models.WorkItem) (*Store, *int) {
	t.Helper()
	saves := 0
	st := models.NewRunState("test-run", items)
	s, err := NewStore(st, func(*models.RunState) error {
		saves++
		return nil
	}, maxAttempts)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s, &saves
}

func item(id int, deps ...int) models.WorkItem {
	return models.WorkItem{ID: id, Description: "item", DependsOn: deps}
}

func TestNewStore_RejectsBadBacklog(t *testing.T) {
	tests := []struct {
		name  string
		items []models.WorkItem
	}{
		{"cycle", []models.WorkItem{item(1, 2), item(2, 1)}},
		{"unknown dependency", []models.WorkItem{item(1, 5)}},
		{"duplicate id", []models.WorkItem{item(1), item(1)}},
		{"bad status", []models.WorkItem{{ID: 1, Status: "weird"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &models.RunState{WorkItems: tt.items}
			if _, err := NewStore(st, nil, 3); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := NewStore(models.NewRunState("r", nil), nil, 0); err == nil {
		t.Error("expected error for zero max attempts")
	}
}

func TestNextEligible(t *testing.T) {
	s, _ := newTestStore(t, 3, item(3), item(1), item(2, 1))

	got, sel := s.NextEligible()
	if sel != SelectionEligible || got.ID != 1 {
		t.Fatalf("NextEligible = %v, %v; want item 1", got, sel)
	}

	// Item 2 waits on 1; item 3 is independent and next by ID after 1.
	if err := s.Mark(1, models.ItemInProgress, nil); err != nil {
		t.Fatal(err)
	}
	got, sel = s.NextEligible()
	if sel != SelectionEligible || got.ID != 3 {
		t.Fatalf("NextEligible = %v, %v; want item 3", got, sel)
	}

	if err := s.Mark(1, models.ItemPassed, nil); err != nil {
		t.Fatal(err)
	}
	got, _ = s.NextEligible()
	if got.ID != 2 {
		t.Fatalf("NextEligible = %d; want 2 once its dependency passed", got.ID)
	}
}

func TestNextEligible_ExhaustedAndBlocked(t *testing.T) {
	s, _ := newTestStore(t, 1, item(1), item(2, 1))

	if err := s.Mark(1, models.ItemInProgress, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordFailure(1, errors.New("boom")); err != nil {
		t.Fatal(err)
	}

	_, sel := s.NextEligible()
	if sel != SelectionBlocked {
		t.Fatalf("selection = %v, want blocked", sel)
	}
	if b := s.Blockers(2); len(b) != 1 || b[0] != 1 {
		t.Errorf("Blockers(2) = %v, want [1]", b)
	}

	if err := s.Skip(2); err != nil {
		t.Fatal(err)
	}
	_, sel = s.NextEligible()
	if sel != SelectionExhausted {
		t.Fatalf("selection = %v, want exhausted", sel)
	}
}

func TestMark_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    models.ItemStatus
		to      models.ItemStatus
		wantErr bool
	}{
		{"pending to in_progress", models.ItemPending, models.ItemInProgress, false},
		{"pending to skipped", models.ItemPending, models.ItemSkipped, false},
		{"pending to passed", models.ItemPending, models.ItemPassed, true},
		{"pending to failed", models.ItemPending, models.ItemFailed, true},
		{"in_progress to passed", models.ItemInProgress, models.ItemPassed, false},
		{"in_progress to pending", models.ItemInProgress, models.ItemPending, false},
		{"in_progress to failed", models.ItemInProgress, models.ItemFailed, false},
		{"in_progress to skipped", models.ItemInProgress, models.ItemSkipped, true},
		{"passed to pending", models.ItemPassed, models.ItemPending, true},
		{"passed to in_progress", models.ItemPassed, models.ItemInProgress, true},
		{"failed to pending", models.ItemFailed, models.ItemPending, false},
		{"failed to in_progress", models.ItemFailed, models.ItemInProgress, true},
		{"skipped to pending", models.ItemSkipped, models.ItemPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, saves := newTestStore(t, 5, models.WorkItem{ID: 1, Description: "x", Status: tt.from})
			err := s.Mark(1, tt.to, nil)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				var te *TransitionError
				if !errors.As(err, &te) || te.From != tt.from || te.To != tt.to {
					t.Errorf("expected TransitionError %s->%s, got %v", tt.from, tt.to, err)
				}
				if *saves != 0 {
					t.Errorf("rejected transition persisted %d times", *saves)
				}
				return
			}
			if err != nil {
				t.Fatalf("Mark: %v", err)
			}
			got, _ := s.Get(1)
			if got.Status != tt.to {
				t.Errorf("status = %s, want %s", got.Status, tt.to)
			}
			if len(got.History) != 1 || got.History[0].From != tt.from {
				t.Errorf("history = %+v", got.History)
			}
			if *saves != 1 {
				t.Errorf("saves = %d, want 1", *saves)
			}
		})
	}
}

func TestMark_DependenciesMustPass(t *testing.T) {
	s, _ := newTestStore(t, 3, item(1), item(2, 1))
	err := s.Mark(2, models.ItemInProgress, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMark_UnknownItem(t *testing.T) {
	s, _ := newTestStore(t, 3, item(1))
	if err := s.Mark(42, models.ItemInProgress, nil); !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("expected ErrUnknownItem, got %v", err)
	}
}

func TestMark_RollsBackOnPersistFailure(t *testing.T) {
	persistErr := errors.New("disk full")
	st := models.NewRunState("r", []models.WorkItem{item(1)})
	s, err := NewStore(st, func(*models.RunState) error { return persistErr }, 3)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Mark(1, models.ItemInProgress, nil); !errors.Is(err, persistErr) {
		t.Fatalf("expected persist error, got %v", err)
	}
	got, _ := s.Get(1)
	if got.Status != models.ItemPending || len(got.History) != 0 {
		t.Errorf("change not rolled back: %+v", got)
	}
}

func TestRecordFailure_AttemptCeiling(t *testing.T) {
	const maxAttempts = 3
	s, _ := newTestStore(t, maxAttempts, item(1))

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.Mark(1, models.ItemInProgress, nil); err != nil {
			t.Fatalf("attempt %d: Mark in_progress: %v", attempt, err)
		}
		status, err := s.RecordFailure(1, errors.New("tests failed"))
		if err != nil {
			t.Fatalf("attempt %d: RecordFailure: %v", attempt, err)
		}
		want := models.ItemPending
		if attempt == maxAttempts {
			want = models.ItemFailed
		}
		if status != want {
			t.Errorf("attempt %d: status = %s, want %s", attempt, status, want)
		}
		got, _ := s.Get(1)
		if got.AttemptCount != attempt {
			t.Errorf("attempt %d: AttemptCount = %d", attempt, got.AttemptCount)
		}
		if got.LastError != "tests failed" {
			t.Errorf("LastError = %q", got.LastError)
		}
	}

	got, _ := s.Get(1)
	if got.AttemptCount > maxAttempts {
		t.Errorf("AttemptCount %d exceeds ceiling %d", got.AttemptCount, maxAttempts)
	}
	if err := s.Mark(1, models.ItemInProgress, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("failed item re-entered in_progress: %v", err)
	}
}

func TestMark_RetryPastCeilingRejected(t *testing.T) {
	s, _ := newTestStore(t, 1, item(1))
	if err := s.Mark(1, models.ItemInProgress, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Mark(1, models.ItemPending, errors.New("x")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestSkip_DependentsStayBlocked(t *testing.T) {
	s, _ := newTestStore(t, 1, item(1), item(2, 1), item(3))

	if err := s.Skip(1); err != nil {
		t.Fatalf("Skip(1): %v", err)
	}
	if b := s.Blockers(2); len(b) != 1 || b[0] != 1 {
		t.Errorf("Blockers(2) = %v, want [1]", b)
	}
	if err := s.Mark(2, models.ItemInProgress, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("starting a dependent of a skipped item: got %v, want ErrInvalidTransition", err)
	}

	got, sel := s.NextEligible()
	if sel != SelectionEligible || got.ID != 3 {
		t.Fatalf("NextEligible = %v, %v; want item 3", got, sel)
	}
	s.Mark(3, models.ItemInProgress, nil)
	s.Mark(3, models.ItemPassed, nil)
	if _, sel := s.NextEligible(); sel != SelectionBlocked {
		t.Errorf("selection = %v, want blocked behind the skipped item", sel)
	}

	// Failed items must be reset before they can be skipped.
	s2, _ := newTestStore(t, 1, item(1))
	s2.Mark(1, models.ItemInProgress, nil)
	s2.RecordFailure(1, errors.New("boom"))
	if err := s2.Skip(1); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Skip of failed item: got %v, want ErrInvalidTransition", err)
	}
}

func TestReset(t *testing.T) {
	s, _ := newTestStore(t, 1, item(1))
	if err := s.Reset(1); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reset of pending item: expected ErrInvalidTransition, got %v", err)
	}

	s.Mark(1, models.ItemInProgress, nil)
	s.RecordFailure(1, errors.New("nope"))

	if err := s.Reset(1); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	got, _ := s.Get(1)
	if got.Status != models.ItemPending || got.AttemptCount != 0 {
		t.Errorf("after reset: %+v", got)
	}
	if len(got.History) != 3 {
		t.Errorf("history not kept: %d transitions", len(got.History))
	}
}

func TestPassedClearsLastError(t *testing.T) {
	s, _ := newTestStore(t, 3, item(1))
	s.Mark(1, models.ItemInProgress, nil)
	s.RecordFailure(1, errors.New("first try failed"))
	s.Mark(1, models.ItemInProgress, nil)
	if err := s.Mark(1, models.ItemPassed, nil); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(1)
	if got.LastError != "" || got.AttemptCount != 1 {
		t.Errorf("after pass: %+v", got)
	}
}

// TestDependencyInvariant_RandomDAGs drives random backlogs to completion with
// random pass/fail outcomes and checks that no item ever enters in_progress
// before all of its dependencies have passed.
func TestDependencyInvariant_RandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.Intn(15)
		var items []models.WorkItem
		for id := 1; id <= n; id++ {
			var deps []int
			for dep := 1; dep < id; dep++ {
				if rng.Intn(4) == 0 {
					deps = append(deps, dep)
				}
			}
			items = append(items, item(id, deps...))
		}

		st := models.NewRunState("prop", items)
		s, err := NewStore(st, nil, 2)
		if err != nil {
			t.Fatalf("trial %d: NewStore: %v", trial, err)
		}

		for steps := 0; steps < 10*n; steps++ {
			next, sel := s.NextEligible()
			if sel != SelectionEligible {
				break
			}
			for _, dep := range next.DependsOn {
				d, _ := s.Get(dep)
				if d.Status != models.ItemPassed {
					t.Fatalf("trial %d: item %d selected with dependency %d in %s", trial, next.ID, dep, d.Status)
				}
			}
			if err := s.Mark(next.ID, models.ItemInProgress, nil); err != nil {
				t.Fatalf("trial %d: Mark: %v", trial, err)
			}
			if rng.Intn(3) == 0 {
				if _, err := s.RecordFailure(next.ID, errors.New("random failure")); err != nil {
					t.Fatalf("trial %d: RecordFailure: %v", trial, err)
				}
			} else if err := s.Mark(next.ID, models.ItemPassed, nil); err != nil {
				t.Fatalf("trial %d: Mark passed: %v", trial, err)
			}
		}

		for _, it := range s.Items() {
			if it.AttemptCount > s.MaxAttempts() {
				t.Errorf("trial %d: item %d attempt count %d over ceiling", trial, it.ID, it.AttemptCount)
			}
			if it.Status != models.ItemPassed {
				continue
			}
			for _, dep := range it.DependsOn {
				d, _ := s.Get(dep)
				if d.Status != models.ItemPassed {
					t.Errorf("trial %d: passed item %d has unpassed dependency %d", trial, it.ID, dep)
				}
			}
		}
	}
}
