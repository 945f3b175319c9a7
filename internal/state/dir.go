package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates the state directory with a .gitignore that keeps its
// contents out of checkpoint commits.
func EnsureDir(stateDir string) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	ignore := filepath.Join(stateDir, ".gitignore")
	if _, err := os.Stat(ignore); err == nil {
		return nil
	}
	if err := os.WriteFile(ignore, []byte("*\n"), 0o644); err != nil {
		return fmt.Errorf("write state .gitignore: %w", err)
	}
	return nil
}
