// Package exec runs external commands on behalf of validation steps.
package exec

import "context"

// CommandRunner runs commands in a working directory and returns their
// combined output. Tests substitute fakes.
type CommandRunner interface {
	Run(ctx context.Context, workDir, name string, args ...string) ([]byte, error)

	// RunShell runs command through "sh -c". A command that exited non-zero
	// returns its output with an error from which ExitCode recovers the status.
	RunShell(ctx context.Context, workDir, command string) ([]byte, error)
}
