// Package budget computes the per-session input ceiling and estimates the
// size of rendered context against it.
package budget

import (
	"fmt"
	"math"
)

const (
	// DefaultHardLimit is the worker's input limit in tokens.
	DefaultHardLimit = 200000
	// DefaultReserveFraction is the share of the hard limit held back for
	// the worker's own output and tool traffic.
	DefaultReserveFraction = 0.25
	// DefaultWarningThreshold is the share of the ceiling at which a package is reported as tight.
	DefaultWarningThreshold = 0.80
)

// Status classifies a package size against the ceiling.
type Status int

const (
	// StatusOK indicates the size is below the warning threshold.
	StatusOK Status = iota
	// StatusWarning indicates the size fits but is close to the ceiling.
	StatusWarning
	// StatusExceeded indicates the size does not fit.
	StatusExceeded
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "Warning"
	case StatusExceeded:
		return "Exceeded"
	default:
		return "Unknown"
	}
}

// Governor is pure and stateless; copies are interchangeable.
type Governor struct {
	hardLimit       int
	reserveFraction float64
}

// New returns a governor for the given hard limit and reserve fraction.
// The reserve must lie strictly between 0 and 1.
func New(hardLimit int, reserveFraction float64) (Governor, error) {
	if hardLimit <= 0 {
		return Governor{}, fmt.Errorf("hard limit must be positive, got %d", hardLimit)
	}
	if reserveFraction <= 0 || reserveFraction >= 1 || math.IsNaN(reserveFraction) {
		return Governor{}, fmt.Errorf("reserve fraction must be in (0, 1), got %v", reserveFraction)
	}
	return Governor{hardLimit: hardLimit, reserveFraction: reserveFraction}, nil
}

// Default returns the governor for the default limit and reserve.
func Default() Governor {
	return Governor{hardLimit: DefaultHardLimit, reserveFraction: DefaultReserveFraction}
}

// HardLimit returns the configured hard limit.
func (g Governor) HardLimit() int {
	return g.hardLimit
}

// Ceiling returns floor(hardLimit * (1 - reserveFraction)).
func (g Governor) Ceiling() int {
	return int(math.Floor(float64(g.hardLimit) * (1 - g.reserveFraction)))
}

// Fits reports whether size is within the ceiling.
func (g Governor) Fits(size int) bool {
	return size <= g.Ceiling()
}

// Status classifies size against the ceiling.
func (g Governor) Status(size int) Status {
	ceiling := g.Ceiling()
	switch {
	case size > ceiling:
		return StatusExceeded
	case float64(size) >= float64(ceiling)*DefaultWarningThreshold:
		return StatusWarning
	default:
		return StatusOK
	}
}
