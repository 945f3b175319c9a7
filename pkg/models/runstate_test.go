package models

import "testing"

func TestNewRunState_SortsAndDefaults(t *testing.T) {
	s := NewRunState("run-1", []WorkItem{
		{ID: 3, Description: "c"},
		{ID: 1, Description: "a", Status: ItemPassed},
		{ID: 2, Description: "b"},
	})

	if s.Status != RunRunning {
		t.Errorf("Status = %q, want running", s.Status)
	}
	if s.Version != RunStateVersion {
		t.Errorf("Version = %d, want %d", s.Version, RunStateVersion)
	}
	for i, want := range []int{1, 2, 3} {
		if s.WorkItems[i].ID != want {
			t.Fatalf("WorkItems[%d].ID = %d, want %d", i, s.WorkItems[i].ID, want)
		}
	}
	if s.WorkItems[0].Status != ItemPassed {
		t.Errorf("existing status overwritten: %q", s.WorkItems[0].Status)
	}
	if s.WorkItems[1].Status != ItemPending {
		t.Errorf("empty status not defaulted: %q", s.WorkItems[1].Status)
	}
}

func TestRunState_ItemAndCounts(t *testing.T) {
	s := NewRunState("run-1", []WorkItem{
		{ID: 1, Status: ItemPassed},
		{ID: 2, Status: ItemFailed},
		{ID: 3},
	})

	if it := s.Item(2); it == nil || it.Status != ItemFailed {
		t.Fatalf("Item(2) = %+v", it)
	}
	if s.Item(42) != nil {
		t.Error("Item(42) should be nil")
	}

	s.Item(3).Status = ItemInProgress
	counts := s.CountByStatus()
	if counts[ItemPassed] != 1 || counts[ItemFailed] != 1 || counts[ItemInProgress] != 1 {
		t.Errorf("CountByStatus() = %v", counts)
	}
}

func TestRunStatus_Valid(t *testing.T) {
	for _, s := range []RunStatus{RunRunning, RunPaused, RunCompleted, RunAborted, RunBlocked} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if RunStatus("finished").Valid() {
		t.Error("unknown status should be invalid")
	}
}
