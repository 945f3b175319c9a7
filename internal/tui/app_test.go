package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/marathon/internal/state"
	"github.com/ShayCichocki/marathon/pkg/models"
)

func sampleRun() *models.RunState {
	rs := models.NewRunState("run-1", []models.WorkItem{
		{ID: 1, Title: "scaffold"},
		{ID: 2, Title: "parser", DependsOn: []int{1}},
		{ID: 3, Title: "printer", DependsOn: []int{2}},
		{ID: 4, Title: "lint"},
	})
	rs.Item(1).Status = models.ItemPassed
	rs.Item(2).Status = models.ItemInProgress
	rs.Item(2).AttemptCount = 1
	rs.Item(4).Status = models.ItemFailed
	rs.Item(4).LastError = "validation failed\nstep lint"
	rs.SessionCount = 3
	rs.Ledger = []models.ProgressEntry{
		{SessionIndex: 1, WorkItemID: 1, Attempt: 1, Outcome: models.OutcomeSuccess, Summary: "added scaffold"},
		{SessionIndex: 2, WorkItemID: 4, Attempt: 1, Outcome: models.OutcomeFailure, ErrorKind: "validation", Summary: "lint failed"},
		{SessionIndex: 3, WorkItemID: 2, Attempt: 1, Outcome: models.OutcomePartial, ErrorKind: "validation", Summary: "1/2 steps"},
	}
	return rs
}

func TestSnapshot(t *testing.T) {
	ws := Snapshot(sampleRun())

	if ws.Total != 4 || ws.Passed != 1 || ws.Failed != 1 || ws.InProgress != 1 || ws.Pending != 1 {
		t.Errorf("unexpected counts: %+v", ws)
	}
	if ws.Current == nil || ws.Current.ID != 2 {
		t.Fatalf("expected current item #2, got %v", ws.Current)
	}
	if len(ws.Recent) != 3 {
		t.Errorf("expected 3 recent entries, got %d", len(ws.Recent))
	}
	if len(ws.Blocked) != 1 || ws.Blocked[0].ID != 3 {
		t.Errorf("expected #3 blocked, got %+v", ws.Blocked)
	}
	if len(ws.Failures) != 1 || ws.Failures[0].ID != 4 {
		t.Errorf("expected #4 failed, got %+v", ws.Failures)
	}
	if got := ws.Percent(); got != 50 {
		t.Errorf("Percent() = %v, want 50", got)
	}
}

func TestSnapshot_RecentWindow(t *testing.T) {
	rs := models.NewRunState("run-1", []models.WorkItem{{ID: 1}})
	for i := 1; i <= 20; i++ {
		rs.Ledger = append(rs.Ledger, models.ProgressEntry{SessionIndex: i, WorkItemID: 1})
	}
	ws := Snapshot(rs)
	if len(ws.Recent) != recentEntries {
		t.Fatalf("expected %d entries, got %d", recentEntries, len(ws.Recent))
	}
	if ws.Recent[0].SessionIndex != 13 {
		t.Errorf("expected window to start at session 13, got %d", ws.Recent[0].SessionIndex)
	}
}

func TestWatchState_PercentEmpty(t *testing.T) {
	if got := (WatchState{}).Percent(); got != 0 {
		t.Errorf("Percent() = %v, want 0", got)
	}
}

func TestWatchView_Render(t *testing.T) {
	v := NewWatchView()
	v.SetState(Snapshot(sampleRun()))
	v.SetPhase("validating", 2)

	out := v.View()
	for _, want := range []string{
		"Run run-1",
		"running",
		"validating #2",
		"#2 parser",
		"lint failed",
		"#3 waits on #2",
		"validation failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "step lint") {
		t.Error("failure detail should be limited to its first line")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 20); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate(strings.Repeat("x", 30), 12); got != strings.Repeat("x", 9)+"..." {
		t.Errorf("truncate = %q", got)
	}
}

type fakeControls struct {
	pauses, stops int
	err           error
}

func (f *fakeControls) Pause() error { f.pauses++; return f.err }
func (f *fakeControls) Stop() error  { f.stops++; return f.err }

func staticSource(rs *models.RunState, err error) Source {
	return func() (*models.RunState, error) { return rs, err }
}

func TestWatchApp_LoadsState(t *testing.T) {
	app := NewWatchApp(staticSource(sampleRun(), nil), Options{Refresh: time.Millisecond})

	if !strings.Contains(app.View(), "loading") {
		t.Error("expected loading view before first poll")
	}

	msg := app.poll()()
	_, cmd := app.Update(msg)
	if cmd == nil {
		t.Error("expected the next poll to be scheduled")
	}
	if !strings.Contains(app.View(), "Run run-1") {
		t.Errorf("expected run summary, got:\n%s", app.View())
	}
}

func TestWatchApp_NoRunYet(t *testing.T) {
	app := NewWatchApp(staticSource(nil, state.ErrNoRunState), Options{})
	app.Update(app.poll()())
	if !strings.Contains(app.View(), "no run initialized") {
		t.Errorf("unexpected view:\n%s", app.View())
	}
}

func TestWatchApp_RefreshErrorKeepsLastState(t *testing.T) {
	app := NewWatchApp(staticSource(sampleRun(), nil), Options{})
	app.Update(app.poll()())
	app.Update(stateMsg{err: errors.New("disk gone")})

	out := app.View()
	if !strings.Contains(out, "Run run-1") || !strings.Contains(out, "refresh failed: disk gone") {
		t.Errorf("unexpected view:\n%s", out)
	}
}

func TestWatchApp_ExitOnTerminal(t *testing.T) {
	rs := sampleRun()
	rs.Status = models.RunCompleted
	app := NewWatchApp(staticSource(rs, nil), Options{ExitOnTerminal: true})

	_, cmd := app.Update(app.poll()())
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestWatchApp_Controls(t *testing.T) {
	controls := &fakeControls{}
	app := NewWatchApp(staticSource(sampleRun(), nil), Options{Controls: controls})

	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if controls.pauses != 1 || controls.stops != 1 {
		t.Errorf("pauses=%d stops=%d", controls.pauses, controls.stops)
	}
	if !strings.Contains(app.View(), "stop requested") {
		t.Errorf("expected stop notice:\n%s", app.View())
	}

	controls.err = errors.New("read-only")
	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	if !strings.Contains(app.View(), "pause signal failed: read-only") {
		t.Errorf("expected failure notice:\n%s", app.View())
	}
}

func TestWatchApp_WithoutControls(t *testing.T) {
	app := NewWatchApp(staticSource(sampleRun(), nil), Options{})
	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	if strings.Contains(app.View(), "requested") {
		t.Error("p should be ignored without controls")
	}
}

func TestWatchApp_Quit(t *testing.T) {
	app := NewWatchApp(staticSource(sampleRun(), nil), Options{})
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if app.View() != "" {
		t.Error("expected empty view after quit")
	}
}

func TestWatchApp_Done(t *testing.T) {
	app := NewWatchApp(staticSource(sampleRun(), nil), Options{})
	app.Update(app.poll()())
	app.Update(PhaseMsg{Phase: "executing", ItemID: 2})
	if !strings.Contains(app.View(), "executing #2") {
		t.Errorf("expected phase in view:\n%s", app.View())
	}

	app.Update(DoneMsg{Err: errors.New("dependency deadlock")})
	out := app.View()
	if strings.Contains(out, "executing #2") {
		t.Error("phase should be cleared when the run ends")
	}
	if !strings.Contains(out, "Run ended: dependency deadlock") {
		t.Errorf("expected run error:\n%s", out)
	}
}
