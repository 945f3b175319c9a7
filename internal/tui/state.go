package tui

import (
	"time"

	"github.com/ShayCichocki/marathon/internal/ledger"
	"github.com/ShayCichocki/marathon/internal/state"
	"github.com/ShayCichocki/marathon/pkg/models"
)

// recentEntries is how many ledger entries the view lists.
const recentEntries = 8

// WatchState is the display snapshot derived from a run state.
type WatchState struct {
	RunID        string
	Status       models.RunStatus
	StatusReason string
	Total        int
	Passed       int
	Failed       int
	Skipped      int
	Pending      int
	InProgress   int
	Sessions     int
	// Current is the item a session is working on, if any.
	Current *models.WorkItem
	Recent  []models.ProgressEntry
	Blocked []ledger.BlockedItem
	// Failures lists failed items with their last error.
	Failures  []models.WorkItem
	UpdatedAt time.Time
}

// Snapshot derives a WatchState from a run state.
func Snapshot(rs *models.RunState) WatchState {
	counts := rs.CountByStatus()
	ws := WatchState{
		RunID:        rs.RunID,
		Status:       rs.Status,
		StatusReason: rs.StatusReason,
		Total:        len(rs.WorkItems),
		Passed:       counts[models.ItemPassed],
		Failed:       counts[models.ItemFailed],
		Skipped:      counts[models.ItemSkipped],
		Pending:      counts[models.ItemPending],
		InProgress:   counts[models.ItemInProgress],
		Sessions:     rs.SessionCount,
		Blocked:      ledger.BlockedItems(rs),
		UpdatedAt:    rs.UpdatedAt,
	}
	for _, it := range rs.WorkItems {
		switch it.Status {
		case models.ItemInProgress:
			if ws.Current == nil {
				c := it.Clone()
				ws.Current = &c
			}
		case models.ItemFailed:
			ws.Failures = append(ws.Failures, it.Clone())
		}
	}
	start := len(rs.Ledger) - recentEntries
	if start < 0 {
		start = 0
	}
	ws.Recent = append([]models.ProgressEntry(nil), rs.Ledger[start:]...)
	return ws
}

// Percent is the share of items in a terminal status.
func (s WatchState) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Passed+s.Failed+s.Skipped) / float64(s.Total) * 100
}

// Source loads the latest run state.
type Source func() (*models.RunState, error)

// FileSource reads run.json from a state directory.
func FileSource(stateDir string) Source {
	f := state.NewRunStateFile(stateDir)
	return f.Load
}
