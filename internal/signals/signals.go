// Package signals lets an operator pause or stop a run from another process
// by dropping files into the state directory.
package signals

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Signal file names under <state>/signals.
const (
	PauseFile = "pause"
	StopFile  = "stop"
)

// Dir returns the signals directory for a state directory.
func Dir(stateDir string) string {
	return filepath.Join(stateDir, "signals")
}

// Watcher tracks the pause and stop files. The fsnotify goroutine only
// sets flags; the run controller reads them between sessions.
type Watcher struct {
	dir string

	mu    sync.RWMutex
	pause bool
	stop  bool

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// NewWatcher creates the signals directory and starts watching it. If
// fsnotify is unavailable the watcher falls back to checking the files
// whenever it is asked.
func NewWatcher(stateDir string) (*Watcher, error) {
	dir := Dir(stateDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	w := &Watcher{dir: dir, done: make(chan struct{})}
	w.refresh()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return w, nil
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return w, nil
	}
	w.watcher = fw
	go w.watch()
	return w, nil
}

func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			base := filepath.Base(event.Name)
			if base != PauseFile && base != StopFile {
				continue
			}
			w.refresh()
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// refresh re-reads both flags from the filesystem.
func (w *Watcher) refresh() {
	pause := exists(filepath.Join(w.dir, PauseFile))
	stop := exists(filepath.Join(w.dir, StopFile))
	w.mu.Lock()
	w.pause, w.stop = pause, stop
	w.mu.Unlock()
}

// ShouldPause reports whether the pause file is present.
func (w *Watcher) ShouldPause() bool {
	if w.watcher == nil {
		w.refresh()
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pause
}

// ShouldStop reports whether the stop file is present.
func (w *Watcher) ShouldStop() bool {
	if w.watcher == nil {
		w.refresh()
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stop
}

// Close stops the watcher goroutine.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.watcher != nil {
			err = w.watcher.Close()
		}
	})
	return err
}

// SendPause writes the pause file.
func SendPause(stateDir string) error {
	return send(stateDir, PauseFile)
}

// SendStop writes the stop file.
func SendStop(stateDir string) error {
	return send(stateDir, StopFile)
}

// Clear removes both signal files.
func Clear(stateDir string) error {
	var errs []error
	for _, name := range []string{PauseFile, StopFile} {
		if err := os.Remove(filepath.Join(Dir(stateDir), name)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pending reports which signal files exist without starting a watcher.
func Pending(stateDir string) (pause, stop bool) {
	dir := Dir(stateDir)
	return exists(filepath.Join(dir, PauseFile)), exists(filepath.Join(dir, StopFile))
}

func send(stateDir, name string) error {
	dir := Dir(stateDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), []byte(time.Now().UTC().Format(time.RFC3339)), 0644)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
