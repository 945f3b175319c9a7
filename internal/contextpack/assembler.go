// Package contextpack assembles the bounded input for a single session.
package contextpack

import (
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/marathon/internal/budget"
	"github.com/ShayCichocki/marathon/internal/ledger"
	"github.com/ShayCichocki/marathon/pkg/models"
)

// ErrContextOverflow is returned when even the minimal package does not fit the ceiling.
var ErrContextOverflow = errors.New("context overflow")

const (
	// DefaultProgressWindow is how many recent ledger entries a package carries at most.
	DefaultProgressWindow = 8
	// DefaultMaxFeedbackChars caps the previous attempt's failure detail.
	DefaultMaxFeedbackChars = 4000
)

// Options configures an Assembler.
type Options struct {
	// ProgressWindow is K, the number of recent entries considered.
	ProgressWindow int
	// MaxFeedbackChars caps last_error in the prompt.
	MaxFeedbackChars int
	// MaxAttempts is shown to the worker alongside feedback. Zero omits it.
	MaxAttempts int
	// Ignore filters the scoped view. Nil means no filtering.
	Ignore IgnoreMatcher
	// Now stamps BuiltAt. Defaults to time.Now.
	Now func() time.Time
}

// Assembler builds session context packages. It holds no per-session state.
type Assembler struct {
	root string
	gov  budget.Governor
	opts Options
}

// New returns an assembler for the repository at root.
func New(root string, gov budget.Governor, opts Options) (*Assembler, error) {
	if root == "" {
		return nil, fmt.Errorf("repository root is required")
	}
	if gov.Ceiling() <= 0 {
		return nil, fmt.Errorf("budget ceiling must be positive")
	}
	if opts.ProgressWindow <= 0 {
		opts.ProgressWindow = DefaultProgressWindow
	}
	if opts.MaxFeedbackChars <= 0 {
		opts.MaxFeedbackChars = DefaultMaxFeedbackChars
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Assembler{root: root, gov: gov, opts: opts}, nil
}

// Ceiling returns the budget the assembler packs against.
func (a *Assembler) Ceiling() int {
	return a.gov.Ceiling()
}

// Build assembles the package for item from the recent ledger entries.
//
// The package always contains the item and, when present, its last error.
// Recent entries are added next, dropping the oldest until the package fits.
// Scoped files are added last in relevance order; the first file that does
// not fit and every file after it are left out. If the minimal package does
// not fit, Build fails with ErrContextOverflow and nothing is handed to a worker.
func (a *Assembler) Build(item models.WorkItem, entries []models.ProgressEntry) (*models.SessionContextPackage, error) {
	files, err := ResolveScope(a.root, item.Files, a.opts.Ignore)
	if err != nil {
		return nil, err
	}

	in := renderInput{
		item:        item,
		maxAttempts: a.opts.MaxAttempts,
		feedback:    truncateFeedback(item.LastError, a.opts.MaxFeedbackChars),
	}

	prompt := render(in)
	size := budget.EstimateTokens(prompt)
	if !a.gov.Fits(size) {
		return nil, fmt.Errorf("%w: item %d needs %d tokens with no history or files, ceiling is %d",
			ErrContextOverflow, item.ID, size, a.gov.Ceiling())
	}

	window := entries
	if len(window) > a.opts.ProgressWindow {
		window = window[len(window)-a.opts.ProgressWindow:]
	}
	for len(window) > 0 {
		in.entries = window
		p := render(in)
		if s := budget.EstimateTokens(p); a.gov.Fits(s) {
			prompt, size = p, s
			break
		}
		window = window[1:]
	}
	in.entries = window

	var kept []models.ScopedFile
	for _, f := range files {
		in.files = append(kept, f)
		p := render(in)
		s := budget.EstimateTokens(p)
		if !a.gov.Fits(s) {
			break
		}
		kept = in.files
		prompt, size = p, s
	}
	in.files = kept

	pkg := &models.SessionContextPackage{
		WorkItem:       item.Clone(),
		RecentProgress: append([]models.ProgressEntry(nil), window...),
		ScopedView:     append([]models.ScopedFile(nil), kept...),
		Prompt:         prompt,
		EstimatedSize:  size,
		Ceiling:        a.gov.Ceiling(),
		BuiltAt:        a.opts.Now(),
	}
	if len(window) > 0 {
		pkg.Synopsis = ledger.Summarize(window)
	}
	return pkg, nil
}
