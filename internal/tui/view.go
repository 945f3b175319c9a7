package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/marathon/pkg/models"
)

// WatchView renders a WatchState.
type WatchView struct {
	state WatchState
	phase string
	item  int
	width int

	headerStyle   lipgloss.Style
	labelStyle    lipgloss.Style
	valueStyle    lipgloss.Style
	progressFull  lipgloss.Style
	progressEmpty lipgloss.Style
	phaseStyle    lipgloss.Style
	successStyle  lipgloss.Style
	warningStyle  lipgloss.Style
	failureStyle  lipgloss.Style
	dimStyle      lipgloss.Style
}

// NewWatchView creates a WatchView.
func NewWatchView() *WatchView {
	return &WatchView{
		width: 80,

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")).
			MarginBottom(1),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(14),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		progressFull: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		progressEmpty: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		phaseStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true),

		successStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		warningStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),

		failureStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),

		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// SetState replaces the displayed snapshot.
func (v *WatchView) SetState(s WatchState) {
	v.state = s
}

// State returns the displayed snapshot.
func (v *WatchView) State() WatchState {
	return v.state
}

// SetPhase records the live controller phase.
func (v *WatchView) SetPhase(phase string, itemID int) {
	v.phase = phase
	v.item = itemID
}

// SetWidth sets the render width.
func (v *WatchView) SetWidth(width int) {
	if width > 0 {
		v.width = width
	}
}

// View renders the run summary.
func (v *WatchView) View() string {
	var b strings.Builder
	s := v.state

	b.WriteString(v.headerStyle.Render("Run " + s.RunID))
	b.WriteString("\n")

	b.WriteString(v.row("Status:", v.statusStyle(s.Status).Render(string(s.Status))))
	if s.StatusReason != "" {
		b.WriteString(v.row("Reason:", s.StatusReason))
	}
	b.WriteString(v.row("Sessions:", v.valueStyle.Render(fmt.Sprintf("%d", s.Sessions))))

	items := fmt.Sprintf("%s passed, %s failed, %d skipped, %d pending",
		v.successStyle.Render(fmt.Sprintf("%d", s.Passed)),
		v.failureStyle.Render(fmt.Sprintf("%d", s.Failed)),
		s.Skipped, s.Pending+s.InProgress)
	b.WriteString(v.row("Items:", items))
	b.WriteString(v.renderProgressBar(s.Percent(), 30))
	b.WriteString("\n\n")

	if v.phase != "" {
		phase := v.phaseStyle.Render(v.phase)
		if v.item > 0 {
			phase += fmt.Sprintf(" #%d", v.item)
		}
		b.WriteString(v.row("Phase:", phase))
	}
	if s.Current != nil {
		b.WriteString(v.row("Working on:", truncate(s.Current.Label(), v.width-16)))
		if s.Current.AttemptCount > 0 {
			b.WriteString(v.row("Attempt:", fmt.Sprintf("%d", s.Current.AttemptCount+1)))
		}
	}

	if len(s.Recent) > 0 {
		b.WriteString("\n")
		b.WriteString(v.labelStyle.Render("Recent:"))
		b.WriteString("\n")
		for _, e := range s.Recent {
			b.WriteString(v.renderEntry(e))
			b.WriteString("\n")
		}
	}

	if len(s.Blocked) > 0 {
		b.WriteString("\n")
		b.WriteString(v.labelStyle.Render("Blocked:"))
		b.WriteString("\n")
		for _, bl := range s.Blocked {
			ids := make([]string, len(bl.Blockers))
			for i, id := range bl.Blockers {
				ids[i] = fmt.Sprintf("#%d", id)
			}
			b.WriteString(fmt.Sprintf("  %s waits on %s\n",
				v.warningStyle.Render(fmt.Sprintf("#%d", bl.ID)), strings.Join(ids, ", ")))
		}
	}

	if len(s.Failures) > 0 {
		b.WriteString("\n")
		b.WriteString(v.labelStyle.Render("Failed:"))
		b.WriteString("\n")
		for _, it := range s.Failures {
			b.WriteString("  ")
			b.WriteString(v.failureStyle.Render(fmt.Sprintf("#%d", it.ID)))
			b.WriteString(" ")
			b.WriteString(truncate(firstLine(it.LastError), v.width-10))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func (v *WatchView) row(label, value string) string {
	return v.labelStyle.Render(label) + value + "\n"
}

func (v *WatchView) statusStyle(s models.RunStatus) lipgloss.Style {
	switch s {
	case models.RunCompleted:
		return v.successStyle.Bold(true)
	case models.RunPaused:
		return v.warningStyle.Bold(true)
	case models.RunBlocked, models.RunAborted:
		return v.failureStyle.Bold(true)
	default:
		return v.phaseStyle
	}
}

func (v *WatchView) renderEntry(e models.ProgressEntry) string {
	style := v.successStyle
	switch e.Outcome {
	case models.OutcomeFailure:
		style = v.failureStyle
	case models.OutcomePartial:
		style = v.warningStyle
	}
	outcome := string(e.Outcome)
	if e.ErrorKind != "" {
		outcome += " (" + e.ErrorKind + ")"
	}
	line := fmt.Sprintf("  %s #%-3d %s %s",
		v.dimStyle.Render(fmt.Sprintf("%4d", e.SessionIndex)),
		e.WorkItemID,
		style.Render(outcome),
		truncate(firstLine(e.Summary), v.width-40))
	return line
}

// renderProgressBar renders a progress bar.
func (v *WatchView) renderProgressBar(pct float64, width int) string {
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}

	filled := int(pct / 100 * float64(width))
	empty := width - filled

	bar := v.progressFull.Render(strings.Repeat("█", filled)) +
		v.progressEmpty.Render(strings.Repeat("░", empty))

	return fmt.Sprintf("  %s %.0f%%", bar, pct)
}

func truncate(s string, max int) string {
	if max < 10 {
		max = 10
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
