// Package controller drives the run: it selects work items, runs one bounded
// session per attempt, validates and checkpoints the result, and records
// progress, persisting the run state after every session.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/ShayCichocki/marathon/internal/contextpack"
	"github.com/ShayCichocki/marathon/internal/ledger"
	"github.com/ShayCichocki/marathon/internal/logging"
	"github.com/ShayCichocki/marathon/internal/session"
	"github.com/ShayCichocki/marathon/internal/state"
	"github.com/ShayCichocki/marathon/internal/validation"
	"github.com/ShayCichocki/marathon/internal/workitem"
	"github.com/ShayCichocki/marathon/pkg/models"
)

// ErrDependencyDeadlock is returned when pending items remain but none can
// become eligible without operator action.
var ErrDependencyDeadlock = errors.New("dependency deadlock")

// errInterrupted marks an attempt cut short by a crash or cancellation.
var errInterrupted = errors.New("interrupted")

// Assembler builds a session's context package.
type Assembler interface {
	Build(item models.WorkItem, entries []models.ProgressEntry) (*models.SessionContextPackage, error)
}

// SessionRunner runs one session.
type SessionRunner interface {
	Run(ctx context.Context, pkg *models.SessionContextPackage) session.Result
}

// Validator judges a session's result.
type Validator interface {
	Validate(ctx context.Context, item models.WorkItem, result *session.Result) validation.Outcome
}

// Checkpointer makes validated work durable.
type Checkpointer interface {
	Commit(ctx context.Context, item models.WorkItem) (models.Checkpoint, error)
	Find(ctx context.Context, id int) (*models.Checkpoint, error)
	List() ([]models.Checkpoint, error)
	// Discard drops the working tree changes of a failed attempt.
	Discard() error
}

// Saver persists the run state.
type Saver interface {
	Save(s *models.RunState) error
}

// Signals reports operator requests. It is only consulted between sessions.
type Signals interface {
	ShouldPause() bool
	ShouldStop() bool
}

// Deps are the controller's collaborators.
type Deps struct {
	State       *models.RunState
	Saver       Saver
	Assembler   Assembler
	Executor    SessionRunner
	Validator   Validator
	Checkpoints Checkpointer
	// Sessions receives one audit row per session. Optional.
	Sessions state.SessionStore
	// Signals is optional.
	Signals Signals
	// Logger is optional.
	Logger *logging.DebugLogger
}

// Options tune the run loop.
type Options struct {
	// MaxAttempts is the per-item retry ceiling. Defaults to 3.
	MaxAttempts int
	// MaxSessions pauses the run after this many sessions in one Run call.
	// Zero means unlimited.
	MaxSessions int
	// ProgressWindow is how many ledger entries are offered to the assembler.
	ProgressWindow int
	// RetryDelay is waited before retrying a failed item.
	RetryDelay time.Duration
	// ReportPath, when set, receives the Markdown progress report after every session.
	ReportPath string
	// OnPhase observes phase transitions. itemID is zero outside an attempt.
	OnPhase func(phase Phase, itemID int)
}

// Result summarizes a Run call.
type Result struct {
	Status   models.RunStatus
	Reason   string
	Sessions int
	Passed   int
	Failed   int
	Pending  int
	Skipped  int
	// Failures maps failed items to their last error.
	Failures map[int]string
	Blocked  []ledger.BlockedItem
}

// Controller is the single writer of a RunState.
type Controller struct {
	deps   Deps
	opts   Options
	st     *models.RunState
	store  *workitem.Store
	ledger *ledger.Ledger
	log    *logging.DebugLogger
	phase  Phase

	sessionsThisRun int
	retryID         int
	ctxDone         <-chan struct{}
}

// New validates the collaborators and the backlog.
func New(deps Deps, opts Options) (*Controller, error) {
	switch {
	case deps.State == nil:
		return nil, fmt.Errorf("run state is required")
	case deps.Saver == nil:
		return nil, fmt.Errorf("state saver is required")
	case deps.Assembler == nil:
		return nil, fmt.Errorf("context assembler is required")
	case deps.Executor == nil:
		return nil, fmt.Errorf("session executor is required")
	case deps.Validator == nil:
		return nil, fmt.Errorf("validator is required")
	case deps.Checkpoints == nil:
		return nil, fmt.Errorf("checkpoint manager is required")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.ProgressWindow <= 0 {
		opts.ProgressWindow = 8
	}

	c := &Controller{
		deps:   deps,
		opts:   opts,
		st:     deps.State,
		ledger: ledger.New(deps.State),
		log:    deps.Logger,
		phase:  PhaseIdle,
	}
	store, err := workitem.NewStore(deps.State, c.persist, opts.MaxAttempts)
	if err != nil {
		return nil, err
	}
	c.store = store
	return c, nil
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

func (c *Controller) setPhase(p Phase, itemID int) {
	c.phase = p
	c.log.Log("[controller] phase=%s item=%d", p, itemID)
	if c.opts.OnPhase != nil {
		c.opts.OnPhase(p, itemID)
	}
}

func (c *Controller) persist(s *models.RunState) error {
	return c.deps.Saver.Save(s)
}

// Run recovers from any interrupted session, then runs sessions until the
// backlog is finished, the run is blocked or paused, or an unrecoverable
// error aborts it. Blocked runs return ErrDependencyDeadlock; aborted runs
// return the cause.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	c.setPhase(PhaseIdle, 0)
	c.sessionsThisRun = 0
	c.retryID = 0
	c.ctxDone = ctx.Done()
	c.st.Status = models.RunRunning
	c.st.StatusReason = ""

	if err := c.recoverState(ctx); err != nil {
		return c.abort(err)
	}

	for {
		if status, reason, stop := c.checkStop(ctx); stop {
			return c.finish(status, reason, nil)
		}

		item, err := c.selectItem()
		if err != nil {
			if errors.Is(err, ErrDependencyDeadlock) {
				return c.finish(models.RunBlocked, err.Error(), err)
			}
			return c.abort(err)
		}
		if item == nil {
			return c.finish(models.RunCompleted, "all work items resolved", nil)
		}

		if err := c.attempt(ctx, *item); err != nil {
			if errors.Is(err, errInterrupted) {
				return c.finish(models.RunPaused, "interrupted during a session", nil)
			}
			return c.abort(err)
		}
	}
}

// checkStop applies the between-session stop conditions.
func (c *Controller) checkStop(ctx context.Context) (models.RunStatus, string, bool) {
	if err := ctx.Err(); err != nil {
		return models.RunPaused, "interrupted: " + err.Error(), true
	}
	if c.deps.Signals != nil {
		if c.deps.Signals.ShouldStop() {
			return models.RunPaused, "stop requested by operator", true
		}
		if c.deps.Signals.ShouldPause() {
			return models.RunPaused, "paused by operator", true
		}
	}
	if c.opts.MaxSessions > 0 && c.sessionsThisRun >= c.opts.MaxSessions {
		return models.RunPaused, fmt.Sprintf("session budget of %d exhausted", c.opts.MaxSessions), true
	}
	return "", "", false
}

// selectItem returns the next item, nil when the backlog is finished, or
// ErrDependencyDeadlock.
func (c *Controller) selectItem() (*models.WorkItem, error) {
	if c.retryID != 0 {
		id := c.retryID
		c.retryID = 0
		if it, ok := c.store.Get(id); ok && it.Status == models.ItemPending && len(c.store.Blockers(id)) == 0 {
			return &it, nil
		}
	}

	c.setPhase(PhaseSelecting, 0)
	item, sel := c.store.NextEligible()
	switch sel {
	case workitem.SelectionEligible:
		return item, nil
	case workitem.SelectionExhausted:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrDependencyDeadlock, describeBlocked(ledger.BlockedItems(c.st)))
	}
}

// attempt runs one session for item. Per-attempt failures are recorded and
// return nil; a non-nil error stops the run.
func (c *Controller) attempt(ctx context.Context, item models.WorkItem) error {
	if err := c.store.Mark(item.ID, models.ItemInProgress, nil); err != nil {
		return err
	}
	current, _ := c.store.Get(item.ID)
	attemptNo := current.AttemptCount + 1
	index := c.st.SessionCount + 1
	c.sessionsThisRun++
	c.log.Log("[controller] session %d: %s attempt %d/%d", index, current.Label(), attemptNo, c.opts.MaxAttempts)

	rec := sessionRecord{index: index, item: current, attempt: attemptNo, started: time.Now().UTC()}

	c.setPhase(PhaseAssembling, item.ID)
	pkg, err := c.deps.Assembler.Build(current, c.ledger.Tail(c.opts.ProgressWindow))
	if err != nil {
		kind, summary := assemblyKind(err)
		return c.fail(rec, kind, err, models.OutcomeFailure, summary)
	}
	rec.packageSize = pkg.EstimatedSize

	c.setPhase(PhaseExecuting, item.ID)
	res := c.deps.Executor.Run(ctx, pkg)
	rec.result = &res
	if res.Err != nil {
		if ctx.Err() != nil && !errors.Is(res.Err, session.ErrTimeout) {
			if err := c.fail(rec, KindInterrupted, fmt.Errorf("%w: %v", errInterrupted, res.Err), models.OutcomeFailure, "session interrupted"); err != nil {
				return err
			}
			return errInterrupted
		}
		kind := KindWorker
		if errors.Is(res.Err, session.ErrTimeout) {
			kind = KindTimeout
		}
		return c.fail(rec, kind, res.Err, models.OutcomeFailure, summaryOr(res.Summary, "worker did not finish"))
	}

	c.setPhase(PhaseValidating, item.ID)
	outcome := c.deps.Validator.Validate(ctx, current, &res)
	if !outcome.Passed {
		kind := KindValidation
		if outcome.Structural != nil {
			kind = KindStructural
		}
		entryOutcome := models.OutcomeFailure
		if outcome.Partial() {
			entryOutcome = models.OutcomePartial
		}
		cause := outcome.Err()
		if fb := outcome.Feedback(); fb != "" {
			cause = fmt.Errorf("%w\n%s", cause, fb)
		}
		return c.fail(rec, kind, cause, entryOutcome, outcome.Summary())
	}

	c.setPhase(PhaseCommitting, item.ID)
	cp, err := c.deps.Checkpoints.Commit(ctx, current)
	if err != nil {
		return c.fail(rec, KindCommit, err, models.OutcomeFailure, "validated but not committed")
	}
	if err := c.store.Mark(item.ID, models.ItemPassed, nil); err != nil {
		return err
	}

	c.setPhase(PhaseRecording, item.ID)
	summary := fmt.Sprintf("%s; committed %s", summaryOr(res.Summary, "completed"), shortRef(cp.CommitReference))
	if err := c.record(rec, models.OutcomeSuccess, "", summary); err != nil {
		return err
	}
	if err := c.persist(c.st); err != nil {
		return err
	}
	c.afterSession(rec, models.OutcomeSuccess, "")
	log.Printf("[controller] %s passed (session %d)", current.Label(), index)
	return nil
}

// assemblyKind classifies an assembler error.
func assemblyKind(err error) (string, string) {
	switch {
	case errors.Is(err, contextpack.ErrContextOverflow):
		return KindContextOverflow, "context package does not fit the budget"
	case errors.Is(err, contextpack.ErrUnscopedRequest):
		return KindUnscoped, "item names files outside an explicit scope"
	default:
		return KindAssembly, "context package could not be assembled"
	}
}

// fail discards the attempt's changes, records the failure and applies the
// retry ceiling. If the failure cannot be persisted the ledger entry is
// withdrawn with it, so a restart charges the session once.
func (c *Controller) fail(rec sessionRecord, kind string, cause error, outcome models.Outcome, summary string) error {
	c.setPhase(PhaseRecording, rec.item.ID)
	if err := c.deps.Checkpoints.Discard(); err != nil {
		return fmt.Errorf("restore working tree after %s: %w", rec.item.Label(), err)
	}

	entries, sessions := len(c.st.Ledger), c.st.SessionCount
	if err := c.record(rec, outcome, kind, summary+": "+firstLine(cause.Error())); err != nil {
		return err
	}
	next, err := c.store.RecordFailure(rec.item.ID, cause)
	if err != nil {
		c.st.Ledger = c.st.Ledger[:entries]
		c.st.SessionCount = sessions
		return err
	}
	c.afterSession(rec, outcome, kind)
	log.Printf("[controller] %s attempt %d failed (%s): %s", rec.item.Label(), rec.attempt, kind, firstLine(cause.Error()))

	if next == models.ItemPending && !errors.Is(cause, errInterrupted) {
		c.setPhase(PhaseRetrying, rec.item.ID)
		c.retryID = rec.item.ID
		c.wait(c.opts.RetryDelay)
	}
	return nil
}

// wait sleeps for d unless the run context ends first.
func (c *Controller) wait(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-c.ctxDone:
	}
}

// record appends the ledger entry and advances the session count. The
// caller persists.
func (c *Controller) record(rec sessionRecord, outcome models.Outcome, kind, summary string) error {
	err := c.ledger.Append(models.ProgressEntry{
		SessionIndex: rec.index,
		WorkItemID:   rec.item.ID,
		Attempt:      rec.attempt,
		Summary:      summary,
		Outcome:      outcome,
		ErrorKind:    kind,
	})
	if err != nil {
		return err
	}
	c.st.SessionCount = rec.index
	return nil
}

type sessionRecord struct {
	index       int
	item        models.WorkItem
	attempt     int
	packageSize int
	started     time.Time
	result      *session.Result
}

// afterSession writes the audit row and the report. Neither is part of the
// resume state, so failures are logged and the run continues.
func (c *Controller) afterSession(rec sessionRecord, outcome models.Outcome, kind string) {
	if c.deps.Sessions != nil {
		row := &state.SessionRecord{
			RunID:        c.st.RunID,
			SessionIndex: rec.index,
			WorkItemID:   rec.item.ID,
			Attempt:      rec.attempt,
			Outcome:      string(outcome),
			ErrorKind:    kind,
			PackageSize:  rec.packageSize,
			StartedAt:    rec.started,
			Duration:     time.Since(rec.started),
		}
		if rec.result != nil {
			row.TokensIn = rec.result.TokensIn
			row.TokensOut = rec.result.TokensOut
		}
		if err := c.deps.Sessions.CreateSessionRecord(row); err != nil {
			log.Printf("[controller] warning: session audit row not written: %v", err)
		}
	}
	c.writeReport()
}

func (c *Controller) writeReport() {
	if c.opts.ReportPath == "" {
		return
	}
	cps, err := c.deps.Checkpoints.List()
	if err != nil {
		log.Printf("[controller] warning: list checkpoints for report: %v", err)
	}
	if err := ledger.WriteReport(c.opts.ReportPath, c.st, cps); err != nil {
		log.Printf("[controller] warning: write progress report: %v", err)
	}
}

// finish records a terminal status and returns the run result.
func (c *Controller) finish(status models.RunStatus, reason string, runErr error) (*Result, error) {
	switch status {
	case models.RunCompleted:
		c.setPhase(PhaseCompleted, 0)
	case models.RunBlocked:
		c.setPhase(PhaseBlocked, 0)
	default:
		c.setPhase(PhasePaused, 0)
	}
	c.st.Status = status
	c.st.StatusReason = reason
	if err := c.persist(c.st); err != nil {
		return c.abort(err)
	}
	c.writeReport()
	log.Printf("[controller] run %s: %s", status, reason)
	return c.result(), runErr
}

// abort stops the run on an invalid transition or persistence failure.
func (c *Controller) abort(cause error) (*Result, error) {
	c.setPhase(PhaseAborted, 0)
	c.st.Status = models.RunAborted
	c.st.StatusReason = cause.Error()
	if err := c.persist(c.st); err != nil {
		log.Printf("[controller] warning: could not persist aborted status: %v", err)
	}
	c.writeReport()
	log.Printf("[controller] run aborted: %v", cause)
	return c.result(), cause
}

func (c *Controller) result() *Result {
	counts := c.st.CountByStatus()
	r := &Result{
		Status:   c.st.Status,
		Reason:   c.st.StatusReason,
		Sessions: c.st.SessionCount,
		Passed:   counts[models.ItemPassed],
		Failed:   counts[models.ItemFailed],
		Pending:  counts[models.ItemPending] + counts[models.ItemInProgress],
		Skipped:  counts[models.ItemSkipped],
		Failures: make(map[int]string),
		Blocked:  ledger.BlockedItems(c.st),
	}
	for _, it := range c.st.WorkItems {
		if it.Status == models.ItemFailed {
			r.Failures[it.ID] = it.LastError
		}
	}
	return r
}

func describeBlocked(blocked []ledger.BlockedItem) string {
	if len(blocked) == 0 {
		return "no eligible work items"
	}
	parts := make([]string, 0, len(blocked))
	for _, b := range blocked {
		ids := make([]string, 0, len(b.Blockers))
		for _, id := range b.Blockers {
			ids = append(ids, fmt.Sprintf("#%d", id))
		}
		parts = append(parts, fmt.Sprintf("#%d waits on %s", b.ID, strings.Join(ids, ", ")))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func summaryOr(s, fallback string) string {
	s = firstLine(s)
	if s == "" {
		return fallback
	}
	return models.Truncate(s, 200)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func shortRef(ref string) string {
	if len(ref) > 12 {
		return ref[:12]
	}
	return ref
}
