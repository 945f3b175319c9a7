package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/marathon/internal/budget"
	"github.com/ShayCichocki/marathon/internal/checkpoint"
	"github.com/ShayCichocki/marathon/internal/config"
	"github.com/ShayCichocki/marathon/internal/contextpack"
	"github.com/ShayCichocki/marathon/internal/controller"
	"github.com/ShayCichocki/marathon/internal/git"
	"github.com/ShayCichocki/marathon/internal/logging"
	"github.com/ShayCichocki/marathon/internal/protect"
	"github.com/ShayCichocki/marathon/internal/session"
	"github.com/ShayCichocki/marathon/internal/signals"
	"github.com/ShayCichocki/marathon/internal/state"
	"github.com/ShayCichocki/marathon/internal/tui"
	"github.com/ShayCichocki/marathon/internal/validation"
	"github.com/ShayCichocki/marathon/pkg/models"
)

var (
	runTUI         bool
	runMaxSessions int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run or resume the current run",
	Long: `Run sessions until every work item is resolved, the run is blocked on
failed dependencies, or it is paused.

A run resumes from .marathon/run.json. An item left in progress by a crash
is recovered from its checkpoint commit when one exists, otherwise the
interrupted session counts as a failed attempt.

The run pauses between sessions when:
  - 'marathon pause' or 'marathon stop' is issued from another terminal
  - --max-sessions (or session.max_sessions) sessions have run
  - the process receives Ctrl+C or SIGTERM

Exit status is non-zero when the run is blocked or aborted.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the live run view")
	runCmd.Flags().IntVar(&runMaxSessions, "max-sessions", 0, "Pause after this many sessions (overrides session.max_sessions)")
}

func runRun(cmd *cobra.Command, args []string) error {
	ws, err := newWorkspace(cfg)
	if err != nil {
		return err
	}
	rs, err := ws.loadRun()
	if err != nil {
		return err
	}

	logger, restore, err := setupLogging(cfg, ws, runTUI)
	if err != nil {
		return err
	}
	defer restore()

	maxSessions := cfg.Session.MaxSessions
	if cmd.Flags().Changed("max-sessions") {
		maxSessions = runMaxSessions
	}

	var program *tea.Program
	opts := controller.Options{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		MaxSessions:    maxSessions,
		ProgressWindow: cfg.Context.ProgressWindow,
		RetryDelay:     cfg.Retry.Delay,
		ReportPath:     ws.reportPath(),
	}
	if runTUI {
		program, _ = tui.NewWatchProgram(tui.FileSource(ws.stateDir), tui.Options{
			Refresh:  cfg.TUI.RefreshRate,
			Controls: signalControls{stateDir: ws.stateDir},
		})
		opts.OnPhase = func(p controller.Phase, itemID int) {
			program.Send(tui.PhaseMsg{Phase: string(p), ItemID: itemID})
		}
	}

	r, err := newRunner(cfg, ws, rs, logger, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("[run] starting run %s in %s", rs.RunID, ws.root)
	var res *controller.Result
	if program != nil {
		res, err = runWithTUI(ctx, r.ctrl, program)
	} else {
		res, err = r.ctrl.Run(ctx)
	}
	if res != nil {
		printResult(res)
	}
	return err
}

// runner owns the resources of one controller run.
type runner struct {
	ctrl    *controller.Controller
	db      *state.DB
	watcher *signals.Watcher
}

func newRunner(c *config.Config, ws workspace, rs *models.RunState, logger *logging.DebugLogger, opts controller.Options) (*runner, error) {
	keep := ws.keepPaths(c)
	vcs := git.NewRunner(ws.root).WithAllowEmpty(c.Checkpoint.AllowEmpty).WithKeep(keep...)
	if !vcs.IsRepo() {
		return nil, fmt.Errorf("%s is not a git repository; checkpoints need git", ws.root)
	}
	if err := checkWorkTree(vcs, rs, keep); err != nil {
		return nil, err
	}

	w, err := buildWorker(c, ws.root, vcs)
	if err != nil {
		return nil, err
	}
	gov, err := budget.New(c.Budget.HardLimit, c.Budget.ReserveFraction)
	if err != nil {
		return nil, err
	}
	ign, err := contextpack.LoadIgnore(ws.root)
	if err != nil {
		return nil, err
	}
	asm, err := contextpack.New(ws.root, gov, contextpack.Options{
		ProgressWindow:   c.Context.ProgressWindow,
		MaxFeedbackChars: c.Context.MaxFeedbackChars,
		MaxAttempts:      c.Retry.MaxAttempts,
		Ignore:           contextpack.MatchAny(ign, protect.New(c.Context.Protected...)),
	})
	if err != nil {
		return nil, err
	}

	if err := state.EnsureDir(ws.stateDir); err != nil {
		return nil, err
	}
	db, err := state.OpenMigrated(ws.stateDir)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	cps := checkpoint.New(vcs, db).WithRun(rs.RunID)
	if err := cps.Verify(); err != nil {
		log.Printf("[run] warning: %v", err)
	}

	if err := signals.Clear(ws.stateDir); err != nil {
		log.Printf("[run] warning: clear stale signals: %v", err)
	}
	watcher, err := signals.NewWatcher(ws.stateDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("watch signals: %w", err)
	}

	ctrl, err := controller.New(controller.Deps{
		State:       rs,
		Saver:       ws.runFile(),
		Assembler:   asm,
		Executor:    session.New(w, c.Session.Timeout),
		Validator:   validation.New(ws.root, nil),
		Checkpoints: cps,
		Sessions:    db,
		Signals:     watcher,
		Logger:      logger,
	}, opts)
	if err != nil {
		watcher.Close()
		db.Close()
		return nil, err
	}
	return &runner{ctrl: ctrl, db: db, watcher: watcher}, nil
}

var (
	errNoCommits = errors.New("repository has no commits; make an initial commit before running")
	errDirtyTree = errors.New("working tree has uncommitted changes")
)

// checkWorkTree refuses to start when a failed attempt would throw away the
// operator's own uncommitted work. Changes are only expected when a crash
// left an item in progress; recovery discards those.
func checkWorkTree(vcs git.Runner, rs *models.RunState, keep []string) error {
	if !vcs.HasCommits() {
		return errNoCommits
	}
	for _, it := range rs.WorkItems {
		if it.Status == models.ItemInProgress {
			return nil
		}
	}
	files, err := vcs.ChangedFiles()
	if err != nil {
		return fmt.Errorf("inspect working tree: %w", err)
	}
	var dirty []string
	for _, f := range files {
		if !underAny(f, keep) {
			dirty = append(dirty, f)
		}
	}
	if len(dirty) == 0 {
		return nil
	}
	if len(dirty) > 5 {
		dirty = append(dirty[:5], fmt.Sprintf("and %d more", len(dirty)-5))
	}
	return fmt.Errorf("%w (%s); commit or stash them first, failed attempts are reset to the last commit",
		errDirtyTree, strings.Join(dirty, ", "))
}

func underAny(path string, dirs []string) bool {
	for _, d := range dirs {
		if path == d || strings.HasPrefix(path, d+"/") {
			return true
		}
	}
	return false
}

func (r *runner) Close() {
	r.watcher.Close()
	r.db.Close()
}

// runWithTUI runs the controller behind the live view. Quitting the view
// interrupts the run.
func runWithTUI(ctx context.Context, ctrl *controller.Controller, program *tea.Program) (*controller.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		res *controller.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := ctrl.Run(ctx)
		done <- outcome{res: res, err: err}
		program.Send(tui.DoneMsg{Err: err})
	}()

	_, tuiErr := program.Run()
	cancel()
	out := <-done
	if tuiErr != nil && out.err == nil {
		return out.res, fmt.Errorf("tui: %w", tuiErr)
	}
	return out.res, out.err
}

// setupLogging opens the run log and routes the standard logger through it.
// In quiet mode nothing is written to the terminal.
func setupLogging(c *config.Config, ws workspace, quiet bool) (*logging.DebugLogger, func(), error) {
	var echo io.Writer
	if c.Log.Debug && !quiet {
		echo = os.Stderr
	}
	logger, err := logging.NewDebugLogger(logging.Options{
		Path:       ws.logPath(c),
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Echo:       echo,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}

	prev := log.Writer()
	if quiet || echo != nil {
		log.SetOutput(logger)
	} else {
		log.SetOutput(io.MultiWriter(os.Stderr, logger))
	}
	return logger, func() {
		log.SetOutput(prev)
		logger.Close()
	}, nil
}

// printResult prints the outcome of a Run call.
func printResult(res *controller.Result) {
	fmt.Println()
	switch res.Status {
	case models.RunCompleted:
		printStatus("✓", "Run completed: "+res.Reason, color.FgGreen)
	case models.RunPaused:
		printStatus("⏸", "Run paused: "+res.Reason, color.FgYellow)
	default:
		printStatus("✗", fmt.Sprintf("Run %s: %s", res.Status, res.Reason), color.FgRed)
	}
	fmt.Printf("  sessions: %d  passed: %d  failed: %d  pending: %d  skipped: %d\n",
		res.Sessions, res.Passed, res.Failed, res.Pending, res.Skipped)

	for _, id := range sortedIDs(res.Failures) {
		fmt.Printf("  %s #%d: %s\n", color.RedString("failed"), id, firstLine(res.Failures[id]))
	}
	for _, b := range res.Blocked {
		fmt.Printf("  %s #%d waits on %s\n", color.YellowString("blocked"), b.ID, joinIDs(b.Blockers))
	}
	if res.Status == models.RunBlocked {
		fmt.Println("\nUse 'marathon reset <id>' or 'marathon skip <id>' to unblock, then 'marathon run'.")
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
