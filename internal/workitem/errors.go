package workitem

import (
	"errors"
	"fmt"

	"github.com/ShayCichocki/marathon/pkg/models"
)

var (
	// ErrInvalidTransition is returned for any status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid work item transition")
	// ErrUnknownItem is returned when an operation names an ID not in the backlog.
	ErrUnknownItem = errors.New("unknown work item")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	ItemID int
	From   models.ItemStatus
	To     models.ItemStatus
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("work item %d: %s -> %s", e.ItemID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap lets callers match with errors.Is(err, ErrInvalidTransition).
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
