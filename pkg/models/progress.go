package models

import "time"

// Outcome is the result of one session as recorded in the ledger.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	// OutcomePartial marks an attempt where some validation steps passed but not all.
	// It is still a failed attempt.
	OutcomePartial Outcome = "partial"
)

// ProgressEntry records what happened in one session.
type ProgressEntry struct {
	// SessionIndex increases monotonically across the whole run.
	SessionIndex int `json:"session_index"`
	// WorkItemID is the item the session worked on.
	WorkItemID int `json:"work_item_id"`
	// Attempt is the 1-indexed attempt number for the item.
	Attempt int `json:"attempt"`
	// Summary is a short description of the session.
	Summary string `json:"summary"`
	// Outcome is the session result.
	Outcome Outcome `json:"outcome"`
	// ErrorKind classifies failures (context_overflow, unscoped_request, timeout, validation, commit, worker...).
	ErrorKind string `json:"error_kind,omitempty"`
	// Timestamp is when the entry was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Checkpoint marks a work item as durably completed.
type Checkpoint struct {
	WorkItemID      int       `json:"work_item_id"`
	CommitReference string    `json:"commit_reference"`
	CreatedAt       time.Time `json:"created_at"`
}

// ScopedFile is one explicitly named file in a session's repository view.
type ScopedFile struct {
	// Path is relative to the repository root.
	Path string `json:"path"`
	// Content is the file content at assembly time; empty for files that do not exist yet.
	Content string `json:"content,omitempty"`
	// Missing is true when the file does not exist yet.
	Missing bool `json:"missing,omitempty"`
}

// SessionContextPackage is the bounded input assembled for a single session.
type SessionContextPackage struct {
	WorkItem       WorkItem        `json:"work_item"`
	RecentProgress []ProgressEntry `json:"recent_progress"`
	Synopsis       string          `json:"synopsis"`
	ScopedView     []ScopedFile    `json:"scoped_view"`
	// Prompt is the rendered text handed to the worker.
	Prompt string `json:"prompt"`
	// EstimatedSize is the token estimate of Prompt.
	EstimatedSize int `json:"estimated_size"`
	// Ceiling is the budget the package was assembled against.
	Ceiling int       `json:"ceiling"`
	BuiltAt time.Time `json:"built_at"`
}

// FilePaths returns the paths in the scoped view.
func (p *SessionContextPackage) FilePaths() []string {
	paths := make([]string, 0, len(p.ScopedView))
	for _, f := range p.ScopedView {
		paths = append(paths, f.Path)
	}
	return paths
}
