// Package worker provides the code-generation backends a session invokes:
// the claude CLI and the Anthropic Messages API.
package worker

import (
	"context"
	"sort"
)

// Output is what one invocation produced. It is captured, not interpreted.
type Output struct {
	// ModifiedFiles are repository-relative paths changed during the invocation.
	ModifiedFiles []string
	// Transcript is a readable log of the invocation.
	Transcript string
	// Summary is the worker's final message.
	Summary   string
	TokensIn  int64
	TokensOut int64
}

// Worker performs one session's work against the repository.
type Worker interface {
	// Invoke runs the worker once. files are the paths in the session's
	// scoped view, most relevant first.
	Invoke(ctx context.Context, prompt string, files []string) (Output, error)
}

// ChangeDetector lists files changed in the working tree.
type ChangeDetector interface {
	ChangedFiles() ([]string, error)
}

func mergeFiles(sets ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, set := range sets {
		for _, f := range set {
			if f != "" && !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	sort.Strings(out)
	return out
}
