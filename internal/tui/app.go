package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/marathon/internal/state"
	"github.com/ShayCichocki/marathon/pkg/models"
)

// DefaultRefresh is the polling interval when none is configured.
const DefaultRefresh = 500 * time.Millisecond

// Controls sends operator signals to a running controller.
type Controls interface {
	Pause() error
	Stop() error
}

// Options configure a WatchApp.
type Options struct {
	// Refresh is the polling interval.
	Refresh time.Duration
	// Controls is optional; without it p and s do nothing.
	Controls Controls
	// ExitOnTerminal quits once the run leaves the running status.
	ExitOnTerminal bool
}

// PhaseMsg reports a controller phase change.
type PhaseMsg struct {
	Phase  string
	ItemID int
}

// DoneMsg is sent when an in-process run returns.
type DoneMsg struct {
	Err error
}

// refreshMsg triggers a poll.
type refreshMsg struct{}

// stateMsg carries the result of a poll.
type stateMsg struct {
	state *models.RunState
	err   error
}

// WatchApp is the bubbletea model for `marathon watch`.
type WatchApp struct {
	view    *WatchView
	source  Source
	opts    Options
	spinner spinner.Model

	loaded   bool
	loadErr  error
	notice   string
	done     bool
	runErr   error
	quitting bool

	errorStyle lipgloss.Style
	doneStyle  lipgloss.Style
	hintStyle  lipgloss.Style
}

// NewWatchApp creates the watch model over a state source.
func NewWatchApp(source Source, opts Options) *WatchApp {
	if opts.Refresh <= 0 {
		opts.Refresh = DefaultRefresh
	}
	return &WatchApp{
		view:   NewWatchView(),
		source: source,
		opts:   opts,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("205"))),
		),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		doneStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true),

		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// Init implements tea.Model.
func (a *WatchApp) Init() tea.Cmd {
	return tea.Batch(a.poll(), a.spinner.Tick)
}

func (a *WatchApp) poll() tea.Cmd {
	source := a.source
	return func() tea.Msg {
		st, err := source()
		return stateMsg{state: st, err: err}
	}
}

func (a *WatchApp) schedule() tea.Cmd {
	return tea.Tick(a.opts.Refresh, func(time.Time) tea.Msg { return refreshMsg{} })
}

// Update implements tea.Model.
func (a *WatchApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		case "p":
			a.signal("pause", func(c Controls) error { return c.Pause() })
		case "s":
			a.signal("stop", func(c Controls) error { return c.Stop() })
		}

	case tea.WindowSizeMsg:
		a.view.SetWidth(msg.Width)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case refreshMsg:
		return a, a.poll()

	case stateMsg:
		switch {
		case msg.err == nil:
			a.loaded = true
			a.loadErr = nil
			a.view.SetState(Snapshot(msg.state))
			if a.opts.ExitOnTerminal && msg.state.Status != models.RunRunning {
				return a, tea.Quit
			}
		case errors.Is(msg.err, state.ErrNoRunState):
			a.loadErr = fmt.Errorf("no run initialized yet")
		default:
			a.loadErr = msg.err
		}
		return a, a.schedule()

	case PhaseMsg:
		a.view.SetPhase(msg.Phase, msg.ItemID)

	case DoneMsg:
		a.done = true
		a.runErr = msg.Err
		a.view.SetPhase("", 0)
		return a, a.poll()
	}

	return a, nil
}

func (a *WatchApp) signal(name string, send func(Controls) error) {
	if a.opts.Controls == nil {
		return
	}
	if err := send(a.opts.Controls); err != nil {
		a.notice = fmt.Sprintf("%s signal failed: %v", name, err)
		return
	}
	a.notice = name + " requested; takes effect after the current session"
}

// View implements tea.Model.
func (a *WatchApp) View() string {
	if a.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Render("=== marathon ==="))
	b.WriteString("\n\n")

	switch {
	case a.loaded:
		b.WriteString(a.view.View())
	case a.loadErr != nil:
		b.WriteString(a.errorStyle.Render(a.loadErr.Error()))
		b.WriteString("\n")
	default:
		b.WriteString(a.spinner.View() + " loading run state...\n")
	}
	if a.loaded && a.loadErr != nil {
		b.WriteString("\n")
		b.WriteString(a.errorStyle.Render("refresh failed: " + a.loadErr.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if a.notice != "" {
		b.WriteString(a.hintStyle.Render(a.notice))
		b.WriteString("\n")
	}
	switch {
	case a.done && a.runErr != nil:
		b.WriteString(a.errorStyle.Render(fmt.Sprintf("Run ended: %v", a.runErr)))
	case a.done:
		b.WriteString(a.doneStyle.Render("Run finished. Press q to exit."))
	case a.loaded && a.view.State().Status == models.RunRunning:
		b.WriteString(a.spinner.View() + " " + a.hintStyle.Render(a.hints()))
	default:
		b.WriteString(a.hintStyle.Render(a.hints()))
	}
	b.WriteString("\n")
	return b.String()
}

func (a *WatchApp) hints() string {
	if a.opts.Controls == nil {
		return "q quit"
	}
	return "p pause  s stop  q quit"
}

// NewWatchProgram creates a Bubbletea program for the watch view.
func NewWatchProgram(source Source, opts Options) (*tea.Program, *WatchApp) {
	app := NewWatchApp(source, opts)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}
