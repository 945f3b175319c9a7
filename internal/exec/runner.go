package exec

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"time"
)

// waitDelay bounds how long a cancelled command may keep its output pipes
// open through orphaned children.
const waitDelay = 5 * time.Second

// NonInteractiveEnv keeps unattended commands from waiting on a prompt.
var NonInteractiveEnv = []string{
	"CI=true",
	"GIT_TERMINAL_PROMPT=0",
	"GIT_EDITOR=true",
}

// ExecRunner runs commands with os/exec. Stdin is always empty.
type ExecRunner struct {
	env []string
}

// NewRunner creates a runner that inherits the process environment.
func NewRunner() *ExecRunner {
	return &ExecRunner{}
}

// WithEnv adds KEY=VALUE pairs on top of the inherited environment.
// Later pairs win over earlier ones and over the inherited values.
func (r *ExecRunner) WithEnv(kv ...string) *ExecRunner {
	r.env = append(r.env, kv...)
	return r
}

func (r *ExecRunner) Run(ctx context.Context, workDir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}
	cmd.WaitDelay = waitDelay
	return cmd.CombinedOutput()
}

func (r *ExecRunner) RunShell(ctx context.Context, workDir, command string) ([]byte, error) {
	return r.Run(ctx, workDir, "sh", "-c", command)
}

// ExitCode extracts the exit status from an error returned by Run or
// RunShell. ok is false when the command never produced an exit status
// (it failed to start, or err is nil).
func ExitCode(err error) (code int, ok bool) {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return 0, false
}

var _ CommandRunner = (*ExecRunner)(nil)
