// Package validation runs a work item's acceptance checks against the repository.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ShayCichocki/marathon/internal/exec"
	"github.com/ShayCichocki/marathon/internal/session"
	"github.com/ShayCichocki/marathon/pkg/models"
)

// DefaultStepTimeout bounds a step without its own timeout.
const DefaultStepTimeout = 2 * time.Minute

// maxFailureOutput is how much of a failing step's output is kept.
const maxFailureOutput = 1500

var (
	// ErrValidationFailed means at least one step ran and did not meet its expectation.
	ErrValidationFailed = errors.New("validation failed")
	// ErrStructural means a step could not be executed at all.
	ErrStructural = errors.New("validation step could not run")
)

// StepResult is the record of one executed step.
type StepResult struct {
	Name     string
	Command  string
	Expect   string
	ExitCode int
	Output   string
	Passed   bool
	Duration time.Duration
}

// StepFailure describes a step that ran but did not pass.
type StepFailure struct {
	Name     string
	Command  string
	Expect   string
	ExitCode int
	Output   string
	Reason   string
}

func (f StepFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.Name, f.Reason)
}

// Outcome is the result of validating one session.
type Outcome struct {
	Passed   bool
	Results  []StepResult
	Failures []StepFailure
	// Structural wraps ErrStructural when a step could not run.
	Structural error
}

// Err returns nil when the outcome passed, otherwise an error wrapping
// ErrStructural or ErrValidationFailed.
func (o Outcome) Err() error {
	if o.Passed {
		return nil
	}
	if o.Structural != nil {
		return o.Structural
	}
	names := make([]string, 0, len(o.Failures))
	for _, f := range o.Failures {
		names = append(names, f.Name)
	}
	return fmt.Errorf("%w: %d of %d steps failed (%s)",
		ErrValidationFailed, len(o.Failures), len(o.Results), strings.Join(names, ", "))
}

// Partial reports whether some steps passed and some failed.
func (o Outcome) Partial() bool {
	if o.Passed || len(o.Failures) == 0 {
		return false
	}
	return len(o.Failures) < len(o.Results)
}

// Summary is a one-line description for logs and ledger entries.
func (o Outcome) Summary() string {
	if o.Structural != nil {
		return o.Structural.Error()
	}
	passed := len(o.Results) - len(o.Failures)
	if len(o.Results) == 0 {
		return "no validation steps"
	}
	return fmt.Sprintf("%d/%d validation steps passed", passed, len(o.Results))
}

// Feedback renders the failure detail handed to the next attempt.
func (o Outcome) Feedback() string {
	if o.Passed {
		return ""
	}
	var sb strings.Builder
	if o.Structural != nil {
		fmt.Fprintf(&sb, "A validation step could not run: %v\n", o.Structural)
	}
	for _, f := range o.Failures {
		fmt.Fprintf(&sb, "Step %q failed: %s\n", f.Name, f.Reason)
		fmt.Fprintf(&sb, "  command: %s\n", f.Command)
		if out := strings.TrimSpace(f.Output); out != "" {
			fmt.Fprintf(&sb, "  output:\n%s\n", indent(out, "    "))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Validator runs validation steps at the repository root.
type Validator struct {
	root   string
	runner exec.CommandRunner
}

// New creates a validator. A nil runner runs steps through the shell with
// exec.NonInteractiveEnv set.
func New(root string, runner exec.CommandRunner) *Validator {
	if runner == nil {
		runner = exec.NewRunner().WithEnv(exec.NonInteractiveEnv...)
	}
	return &Validator{root: root, runner: runner}
}

// Validate runs every step of item in order. All steps run so the feedback
// is complete; a step that cannot run stops validation.
func (v *Validator) Validate(ctx context.Context, item models.WorkItem, result *session.Result) Outcome {
	var out Outcome
	if result != nil {
		log.Printf("[validation] %s: %d steps, %d files modified",
			item.Label(), len(item.ValidationSteps), len(result.ModifiedFiles))
	}

	for _, step := range item.ValidationSteps {
		res, failure, structural := v.runStep(ctx, step)
		if structural != nil {
			out.Structural = structural
			return out
		}
		out.Results = append(out.Results, res)
		if failure != nil {
			out.Failures = append(out.Failures, *failure)
		}
	}
	out.Passed = len(out.Failures) == 0
	return out
}

func (v *Validator) runStep(ctx context.Context, step models.ValidationStep) (StepResult, *StepFailure, error) {
	name := step.DisplayName()
	expect, err := ParseExpectation(step.Expect)
	if err != nil {
		return StepResult{}, nil, fmt.Errorf("%w: step %q: %v", ErrStructural, name, err)
	}
	if strings.TrimSpace(step.Command) == "" {
		return StepResult{}, nil, fmt.Errorf("%w: step %q has no command", ErrStructural, name)
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	output, runErr := v.runner.RunShell(stepCtx, v.root, step.Command)
	res := StepResult{
		Name:     name,
		Command:  step.Command,
		Expect:   expect.String(),
		Output:   string(output),
		Duration: time.Since(start),
	}

	if ctx.Err() != nil {
		return res, nil, fmt.Errorf("%w: step %q: %v", ErrStructural, name, ctx.Err())
	}
	if runErr != nil {
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			res.ExitCode = -1
			return res, v.failure(res, fmt.Sprintf("timed out after %v", timeout)), nil
		}
		code, ok := exec.ExitCode(runErr)
		if !ok {
			return res, nil, fmt.Errorf("%w: step %q: %v", ErrStructural, name, runErr)
		}
		if code == 126 || code == 127 {
			return res, nil, fmt.Errorf("%w: step %q: command not executable (exit %d): %s",
				ErrStructural, name, code, truncate(strings.TrimSpace(res.Output), 300))
		}
		res.ExitCode = code
	}

	if expect.Check(res.ExitCode, res.Output) {
		res.Passed = true
		return res, nil, nil
	}
	reason := fmt.Sprintf("expected %s, got exit %d", expect, res.ExitCode)
	if expect.Kind != ExpectExit {
		reason = fmt.Sprintf("expected %s (exit %d)", expect, res.ExitCode)
	}
	return res, v.failure(res, reason), nil
}

func (v *Validator) failure(res StepResult, reason string) *StepFailure {
	return &StepFailure{
		Name:     res.Name,
		Command:  res.Command,
		Expect:   res.Expect,
		ExitCode: res.ExitCode,
		Output:   tailOutput(res.Output, maxFailureOutput),
		Reason:   reason,
	}
}

func tailOutput(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "...\n" + models.Tail(s, n)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return models.Head(s, n) + "..."
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
