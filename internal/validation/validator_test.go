package validation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/marathon/internal/exec"
	"github.com/ShayCichocki/marathon/internal/session"
	"github.com/ShayCichocki/marathon/pkg/models"
)

// recordingRunner wraps the real runner and records shell commands.
type recordingRunner struct {
	inner    exec.CommandRunner
	commands []string
	startErr error
}

func (r *recordingRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	return r.inner.Run(ctx, dir, name, args...)
}

func (r *recordingRunner) RunShell(ctx context.Context, dir, command string) ([]byte, error) {
	r.commands = append(r.commands, command)
	if r.startErr != nil {
		return nil, r.startErr
	}
	return r.inner.RunShell(ctx, dir, command)
}

func newValidator(t *testing.T) (*Validator, *recordingRunner) {
	t.Helper()
	r := &recordingRunner{inner: exec.NewRunner()}
	return New(t.TempDir(), r), r
}

func item(steps ...models.ValidationStep) models.WorkItem {
	return models.WorkItem{ID: 1, Title: "add", ValidationSteps: steps}
}

func TestValidate_AllPass(t *testing.T) {
	v, r := newValidator(t)
	out := v.Validate(context.Background(), item(
		models.ValidationStep{Name: "true", Command: "true"},
		models.ValidationStep{Name: "echo", Command: "echo hello", Expect: "output contains hello"},
		models.ValidationStep{Name: "exit", Command: "exit 4", Expect: "exit 4"},
	), &session.Result{ModifiedFiles: []string{"a.go"}})

	if !out.Passed {
		t.Fatalf("expected pass, got %+v", out)
	}
	if out.Err() != nil {
		t.Errorf("Err() = %v", out.Err())
	}
	if len(r.commands) != 3 {
		t.Errorf("ran %d commands", len(r.commands))
	}
	if out.Feedback() != "" {
		t.Errorf("Feedback = %q", out.Feedback())
	}
	if out.Summary() != "3/3 validation steps passed" {
		t.Errorf("Summary = %q", out.Summary())
	}
}

func TestValidate_NoSteps(t *testing.T) {
	v, _ := newValidator(t)
	out := v.Validate(context.Background(), item(), nil)
	if !out.Passed {
		t.Error("item without steps should pass")
	}
}

func TestValidate_FailureRunsAllSteps(t *testing.T) {
	v, r := newValidator(t)
	out := v.Validate(context.Background(), item(
		models.ValidationStep{Name: "first", Command: "echo broken; exit 1"},
		models.ValidationStep{Name: "second", Command: "true"},
	), nil)

	if out.Passed {
		t.Fatal("expected failure")
	}
	if len(r.commands) != 2 {
		t.Errorf("all steps should run, ran %d", len(r.commands))
	}
	if len(out.Failures) != 1 || out.Failures[0].Name != "first" || out.Failures[0].ExitCode != 1 {
		t.Errorf("Failures = %+v", out.Failures)
	}
	if !errors.Is(out.Err(), ErrValidationFailed) {
		t.Errorf("Err() = %v", out.Err())
	}
	if errors.Is(out.Err(), ErrStructural) {
		t.Error("ordinary failure must not be structural")
	}
	if !out.Partial() {
		t.Error("expected partial outcome")
	}
	fb := out.Feedback()
	for _, want := range []string{`Step "first" failed`, "expected exit 0, got exit 1", "broken"} {
		if !strings.Contains(fb, want) {
			t.Errorf("feedback missing %q:\n%s", want, fb)
		}
	}
}

func TestValidate_NotPartialWhenAllFail(t *testing.T) {
	v, _ := newValidator(t)
	out := v.Validate(context.Background(), item(
		models.ValidationStep{Command: "false"},
	), nil)
	if out.Passed || out.Partial() {
		t.Errorf("Passed=%v Partial=%v", out.Passed, out.Partial())
	}
}

func TestValidate_Structural(t *testing.T) {
	tests := []struct {
		name string
		step models.ValidationStep
	}{
		{"bad expectation", models.ValidationStep{Name: "x", Command: "true", Expect: "works"}},
		{"command not found", models.ValidationStep{Name: "x", Command: "definitely-not-a-command-xyz"}},
		{"empty command", models.ValidationStep{Name: "x", Command: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, r := newValidator(t)
			out := v.Validate(context.Background(), item(tt.step,
				models.ValidationStep{Name: "after", Command: "true"}), nil)
			if out.Passed {
				t.Fatal("expected failure")
			}
			if !errors.Is(out.Err(), ErrStructural) {
				t.Errorf("Err() = %v, want ErrStructural", out.Err())
			}
			for _, c := range r.commands {
				if c == "true" && tt.step.Command != "true" {
					t.Error("validation should stop at a structural error")
				}
			}
		})
	}
}

func TestValidate_StartError(t *testing.T) {
	v, r := newValidator(t)
	r.startErr = errors.New("fork failed")
	out := v.Validate(context.Background(), item(models.ValidationStep{Command: "true"}), nil)
	if !errors.Is(out.Err(), ErrStructural) {
		t.Errorf("Err() = %v, want ErrStructural", out.Err())
	}
}

func TestValidate_StepTimeout(t *testing.T) {
	v, _ := newValidator(t)
	out := v.Validate(context.Background(), item(
		models.ValidationStep{Name: "slow", Command: "sleep 5", Timeout: 50 * time.Millisecond},
	), nil)
	if out.Passed {
		t.Fatal("expected failure")
	}
	if out.Structural != nil {
		t.Errorf("timeout should be a step failure, got structural %v", out.Structural)
	}
	if len(out.Failures) != 1 || !strings.Contains(out.Failures[0].Reason, "timed out") {
		t.Errorf("Failures = %+v", out.Failures)
	}
}

func TestValidate_RunsAtRoot(t *testing.T) {
	v, _ := newValidator(t)
	out := v.Validate(context.Background(), item(
		models.ValidationStep{Command: "touch marker && test -f marker"},
	), nil)
	if !out.Passed {
		t.Errorf("expected pass: %s", out.Feedback())
	}
}
