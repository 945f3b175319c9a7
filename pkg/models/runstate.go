package models

import (
	"sort"
	"time"
)

// RunStateVersion is the schema version of the persisted run state.
const RunStateVersion = 1

// RunStatus is the overall status of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunPaused    RunStatus = "paused"
	RunCompleted RunStatus = "completed"
	RunAborted   RunStatus = "aborted"
	// RunBlocked means pending items remain but none can become eligible
	// without operator intervention.
	RunBlocked RunStatus = "blocked"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunPaused, RunCompleted, RunAborted, RunBlocked:
		return true
	default:
		return false
	}
}

// RunState is the process-wide state persisted across restarts.
// It is owned by the run controller; other components receive explicit slices of it.
type RunState struct {
	Version      int             `json:"version"`
	RunID        string          `json:"run_id"`
	WorkItems    []WorkItem      `json:"work_items"`
	Ledger       []ProgressEntry `json:"ledger"`
	SessionCount int             `json:"session_count"`
	Status       RunStatus       `json:"status"`
	StatusReason string          `json:"status_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewRunState creates a running state over the given backlog, sorted by ID.
func NewRunState(runID string, items []WorkItem) *RunState {
	sorted := make([]WorkItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for i := range sorted {
		if sorted[i].Status == "" {
			sorted[i].Status = ItemPending
		}
	}
	now := time.Now().UTC()
	return &RunState{
		Version:   RunStateVersion,
		RunID:     runID,
		WorkItems: sorted,
		Status:    RunRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Item returns a pointer to the item with the given ID, or nil.
func (s *RunState) Item(id int) *WorkItem {
	for i := range s.WorkItems {
		if s.WorkItems[i].ID == id {
			return &s.WorkItems[i]
		}
	}
	return nil
}

// CountByStatus tallies items per status.
func (s *RunState) CountByStatus() map[ItemStatus]int {
	counts := make(map[ItemStatus]int)
	for _, it := range s.WorkItems {
		counts[it.Status]++
	}
	return counts
}
