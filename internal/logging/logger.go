// Package logging provides the run's file-backed debug log.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the log file and its rotation.
type Options struct {
	// Path is the log file. Empty means no file.
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Echo, when set, also receives every line.
	Echo io.Writer
}

// DebugLogger writes timestamped lines to a rotating file.
// A nil *DebugLogger is a valid no-op logger.
type DebugLogger struct {
	mu   sync.Mutex
	file *lumberjack.Logger
	out  io.Writer
}

// NewDebugLogger opens a rotating log at opts.Path. An empty path returns
// a logger that only writes to opts.Echo, if set.
func NewDebugLogger(opts Options) (*DebugLogger, error) {
	l := &DebugLogger{}
	var writers []io.Writer

	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		l.file = &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		writers = append(writers, l.file)
	}
	if opts.Echo != nil {
		writers = append(writers, opts.Echo)
	}
	switch len(writers) {
	case 0:
		return l, nil
	case 1:
		l.out = writers[0]
	default:
		l.out = io.MultiWriter(writers...)
	}

	l.Log("=== marathon log started at %s ===", time.Now().Format(time.RFC3339))
	return l, nil
}

// NopLogger returns a logger that discards everything.
func NopLogger() *DebugLogger {
	return &DebugLogger{}
}

// Log writes a timestamped message.
func (l *DebugLogger) Log(format string, args ...interface{}) {
	if l == nil || l.out == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.out, "[%s] %s\n", time.Now().Format("15:04:05.000"), msg)
}

// Write lets the logger back a standard library *log.Logger.
func (l *DebugLogger) Write(p []byte) (int, error) {
	if l == nil || l.out == nil {
		return len(p), nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Write(p)
}

// Close closes the log file. Safe on a nil or no-op logger.
func (l *DebugLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
