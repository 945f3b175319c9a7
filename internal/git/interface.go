// Package git provides the version-control operations marathon needs:
// staging and committing a session's work and reading history back.
package git

// StatusOperations defines the interface for working tree inspection.
type StatusOperations interface {
	// Status returns the output of git status --porcelain.
	Status() (string, error)
	// HasChanges returns true if there are uncommitted changes.
	HasChanges() (bool, error)
	// ChangedFiles returns the paths of modified, added, deleted and untracked files.
	ChangedFiles() ([]string, error)
}

// CommitOperations defines the interface for recording work.
type CommitOperations interface {
	// Commit stages every change and commits it, returning the new HEAD sha.
	Commit(message string) (string, error)
	// Discard resets tracked files to HEAD and deletes untracked files.
	Discard() error
}

// HistoryOperations defines the interface for reading history.
type HistoryOperations interface {
	// Log returns commit shas reachable from HEAD, newest first.
	// An empty repository has an empty log.
	Log() ([]string, error)
	// Message returns the full message of a commit.
	Message(id string) (string, error)
	// FindByTrailer returns shas of commits whose message has a line
	// "key: value", newest first.
	FindByTrailer(key, value string) ([]string, error)
}

// Runner defines the complete interface for git operations.
type Runner interface {
	StatusOperations
	CommitOperations
	HistoryOperations
	// IsRepo reports whether the runner's path is inside a work tree.
	IsRepo() bool
	// HasCommits reports whether HEAD points at a commit.
	HasCommits() bool
	// Run executes an arbitrary git command with the given arguments.
	Run(args ...string) (string, error)
}
