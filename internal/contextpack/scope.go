package contextpack

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/ShayCichocki/marathon/pkg/models"
)

// ErrUnscopedRequest is returned when an item names something other than an
// explicit file inside the repository.
var ErrUnscopedRequest = errors.New("unscoped repository request")

// IgnoreMatcher reports whether a slash-separated repository path is ignored.
type IgnoreMatcher interface {
	MatchesPath(path string) bool
}

var _ IgnoreMatcher = (*ignore.GitIgnore)(nil)

type anyMatcher []IgnoreMatcher

func (m anyMatcher) MatchesPath(path string) bool {
	for _, ign := range m {
		if ign.MatchesPath(path) {
			return true
		}
	}
	return false
}

// MatchAny ignores a path when any of the given matchers does. Nil matchers are skipped.
func MatchAny(matchers ...IgnoreMatcher) IgnoreMatcher {
	out := make(anyMatcher, 0, len(matchers))
	for _, m := range matchers {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// builtinIgnores are never shown to a worker.
var builtinIgnores = []string{".git/", ".marathon/"}

// LoadIgnore compiles the repository's .gitignore together with the built-in rules.
func LoadIgnore(root string) (*ignore.GitIgnore, error) {
	lines := append([]string(nil), builtinIgnores...)
	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	switch {
	case err == nil:
		lines = append(lines, strings.Split(string(data), "\n")...)
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read .gitignore: %w", err)
	}
	return ignore.CompileIgnoreLines(lines...), nil
}

// ResolveScope turns an item's file list into a scoped view. Paths must be
// explicit repository-relative files: empty paths, ".", absolute paths, paths
// leaving the root, globs and directories are rejected with ErrUnscopedRequest.
// Ignored paths are dropped. Files that do not exist yet are returned with
// Missing set. Order is preserved and duplicates removed.
func ResolveScope(root string, paths []string, ign IgnoreMatcher) ([]models.ScopedFile, error) {
	seen := make(map[string]bool, len(paths))
	out := make([]models.ScopedFile, 0, len(paths))

	for _, p := range paths {
		clean, err := checkPath(p)
		if err != nil {
			return nil, err
		}
		if seen[clean] {
			continue
		}
		seen[clean] = true

		if ign != nil && ign.MatchesPath(clean) {
			continue
		}

		full := filepath.Join(root, filepath.FromSlash(clean))
		info, err := os.Stat(full)
		if errors.Is(err, os.ErrNotExist) {
			out = append(out, models.ScopedFile{Path: clean, Missing: true})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", clean, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: %q is a directory", ErrUnscopedRequest, p)
		}

		data, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", clean, err)
		}
		out = append(out, models.ScopedFile{Path: clean, Content: string(data)})
	}
	return out, nil
}

func checkPath(p string) (string, error) {
	trimmed := strings.TrimSpace(p)
	switch {
	case trimmed == "":
		return "", fmt.Errorf("%w: empty path", ErrUnscopedRequest)
	case strings.ContainsAny(trimmed, "*?["):
		return "", fmt.Errorf("%w: %q is a glob", ErrUnscopedRequest, p)
	case filepath.IsAbs(trimmed) || strings.HasPrefix(trimmed, "/"):
		return "", fmt.Errorf("%w: %q is absolute", ErrUnscopedRequest, p)
	}

	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(trimmed)))
	switch {
	case clean == ".":
		return "", fmt.Errorf("%w: %q names the repository root", ErrUnscopedRequest, p)
	case clean == ".." || strings.HasPrefix(clean, "../"):
		return "", fmt.Errorf("%w: %q leaves the repository", ErrUnscopedRequest, p)
	case strings.HasSuffix(trimmed, "/"):
		return "", fmt.Errorf("%w: %q is a directory", ErrUnscopedRequest, p)
	}
	return clean, nil
}
