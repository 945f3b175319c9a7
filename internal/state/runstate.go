package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ShayCichocki/marathon/pkg/models"
)

var (
	// ErrPersist is returned when the run state cannot be durably written or read back.
	ErrPersist = errors.New("run state persistence failed")
	// ErrNoRunState is returned by Load when no run has been initialized.
	ErrNoRunState = errors.New("no run state found")
)

// RunStateFile is the single JSON document a run resumes from.
type RunStateFile struct {
	path string
}

// NewRunStateFile returns the run state file inside a state directory.
func NewRunStateFile(stateDir string) *RunStateFile {
	return &RunStateFile{path: filepath.Join(stateDir, "run.json")}
}

// Path returns the file path.
func (f *RunStateFile) Path() string {
	return f.path
}

// Exists reports whether a run state has been written.
func (f *RunStateFile) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// Save stamps UpdatedAt and writes the state atomically. A reader never sees
// a torn file: either the previous document or the new one.
func (f *RunStateFile) Save(s *models.RunState) error {
	s.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrPersist, err)
	}
	data = append(data, '\n')
	if err := WriteFileAtomic(f.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

// Load reads and validates the run state. Unknown fields are rejected so a
// file from an incompatible version is not silently misread.
func (f *RunStateFile) Load() (*models.RunState, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoRunState
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrPersist, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var s models.RunState
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrPersist, f.path, err)
	}
	if s.Version != models.RunStateVersion {
		return nil, fmt.Errorf("%w: unsupported run state version %d", ErrPersist, s.Version)
	}
	if !s.Status.Valid() {
		return nil, fmt.Errorf("%w: invalid run status %q", ErrPersist, s.Status)
	}
	for _, it := range s.WorkItems {
		if !it.Status.Valid() {
			return nil, fmt.Errorf("%w: work item %d has invalid status %q", ErrPersist, it.ID, it.Status)
		}
	}
	return &s, nil
}

// WriteFileAtomic writes data to a temp file in the target directory, fsyncs
// it, renames it over path and fsyncs the directory.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
