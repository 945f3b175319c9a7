// Package models defines the data shared between marathon's components.
package models

import (
	"strconv"
	"strings"
	"time"
)

// ItemStatus represents the current state of a work item.
type ItemStatus string

const (
	// ItemPending indicates the item has not been attempted, or is waiting for a retry.
	ItemPending ItemStatus = "pending"
	// ItemInProgress indicates a session is working on the item.
	ItemInProgress ItemStatus = "in_progress"
	// ItemPassed indicates the item was validated and checkpointed.
	ItemPassed ItemStatus = "passed"
	// ItemFailed indicates the item exhausted its retries.
	ItemFailed ItemStatus = "failed"
	// ItemSkipped indicates an operator removed the item from the run.
	ItemSkipped ItemStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemPending, ItemInProgress, ItemPassed, ItemFailed, ItemSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true for statuses the controller never moves an item out of.
// Only an operator reset leaves failed or skipped.
func (s ItemStatus) Terminal() bool {
	return s == ItemPassed || s == ItemFailed || s == ItemSkipped
}

// ValidationStep is one externally executable check attached to a work item.
type ValidationStep struct {
	// Name identifies the step in reports.
	Name string `json:"name" yaml:"name"`
	// Command is run through the shell at the repository root.
	Command string `json:"command" yaml:"command"`
	// Expect defines what "pass" means. Supported formats:
	//   - "exit N" (default "exit 0")
	//   - "output contains X"
	//   - "output matches /regex/"
	Expect string `json:"expect,omitempty" yaml:"expect,omitempty"`
	// Timeout bounds the command (default 2m).
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DisplayName returns the step name, falling back to the command.
func (s ValidationStep) DisplayName() string {
	if strings.TrimSpace(s.Name) != "" {
		return s.Name
	}
	return s.Command
}

// Transition records one status change of a work item.
type Transition struct {
	From  ItemStatus `json:"from"`
	To    ItemStatus `json:"to"`
	At    time.Time  `json:"at"`
	Error string     `json:"error,omitempty"`
}

// WorkItem is one atomic, independently validatable unit of progress.
type WorkItem struct {
	// ID is stable and immutable.
	ID int `json:"id"`
	// Category is a free-form tag (e.g. "functional", "style").
	Category string `json:"category,omitempty"`
	// Title is the short description of the item.
	Title string `json:"title,omitempty"`
	// Description is the full statement of work handed to the worker.
	Description string `json:"description"`
	// ValidationSteps must all pass before the item is accepted.
	ValidationSteps []ValidationStep `json:"validation_steps,omitempty"`
	// DependsOn lists item IDs that must be passed first.
	DependsOn []int `json:"depends_on,omitempty"`
	// Files lists the repository-relative files the item names, most relevant first.
	Files []string `json:"files,omitempty"`
	// Status is the current lifecycle state.
	Status ItemStatus `json:"status"`
	// AttemptCount counts failed attempts.
	AttemptCount int `json:"attempt_count"`
	// LastError holds the most recent failure detail.
	LastError string `json:"last_error,omitempty"`
	// History is the audit trail of status transitions.
	History []Transition `json:"history,omitempty"`
}

// Label returns a short human-readable identifier for logs and reports.
func (w WorkItem) Label() string {
	if w.Title != "" {
		return "#" + strconv.Itoa(w.ID) + " " + w.Title
	}
	return "#" + strconv.Itoa(w.ID) + " " + Truncate(w.Description, 60)
}

// Clone returns a deep copy of the item.
func (w WorkItem) Clone() WorkItem {
	c := w
	c.ValidationSteps = append([]ValidationStep(nil), w.ValidationSteps...)
	c.DependsOn = append([]int(nil), w.DependsOn...)
	c.Files = append([]string(nil), w.Files...)
	c.History = append([]Transition(nil), w.History...)
	return c
}
