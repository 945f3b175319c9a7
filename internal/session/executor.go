// Package session runs one bounded worker invocation per context package.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ShayCichocki/marathon/internal/worker"
	"github.com/ShayCichocki/marathon/pkg/models"
)

// DefaultTimeout bounds a session when none is configured.
const DefaultTimeout = 20 * time.Minute

// ErrTimeout is returned when a session exceeds its time limit.
var ErrTimeout = errors.New("session timed out")

// Result is everything a session produced. Output is captured, not interpreted.
type Result struct {
	ModifiedFiles []string
	Transcript    string
	Summary       string
	// Err is ErrTimeout, the parent context error, or the worker's error.
	Err       error
	Duration  time.Duration
	TokensIn  int64
	TokensOut int64
}

// Executor invokes a worker exactly once per Run.
type Executor struct {
	worker  worker.Worker
	timeout time.Duration
}

// New creates an executor. A non-positive timeout uses DefaultTimeout.
func New(w worker.Worker, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{worker: w, timeout: timeout}
}

// Timeout returns the per-session time limit.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

type invokeResult struct {
	out worker.Output
	err error
}

// Run hands the package to the worker and waits for it, the deadline, or
// the parent context. A worker that ignores cancellation is abandoned once
// the deadline passes.
func (e *Executor) Run(ctx context.Context, pkg *models.SessionContextPackage) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan invokeResult, 1)
	go func() {
		out, err := e.worker.Invoke(ctx, pkg.Prompt, pkg.FilePaths())
		done <- invokeResult{out: out, err: err}
	}()

	select {
	case r := <-done:
		res := Result{
			ModifiedFiles: r.out.ModifiedFiles,
			Transcript:    r.out.Transcript,
			Summary:       r.out.Summary,
			Err:           r.err,
			Duration:      time.Since(start),
			TokensIn:      r.out.TokensIn,
			TokensOut:     r.out.TokensOut,
		}
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.Err = fmt.Errorf("%w after %v: %v", ErrTimeout, e.timeout, r.err)
		}
		return res
	case <-ctx.Done():
		elapsed := time.Since(start)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Printf("[session] work item #%d timed out after %v", pkg.WorkItem.ID, elapsed.Round(time.Second))
			return Result{Err: fmt.Errorf("%w after %v", ErrTimeout, e.timeout), Duration: elapsed}
		}
		return Result{Err: ctx.Err(), Duration: elapsed}
	}
}
