package git

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrNoCommits is returned by Discard in a repository without a first commit.
var ErrNoCommits = errors.New("repository has no commits")

// ExecRunner implements Runner using exec.Command.
type ExecRunner struct {
	repoPath   string
	allowEmpty bool
	keep       []string
}

// NewRunner creates a new git runner for the repository at the given path.
func NewRunner(repoPath string) *ExecRunner {
	return &ExecRunner{repoPath: repoPath}
}

// WithAllowEmpty makes Commit succeed when there is nothing to commit.
func (r *ExecRunner) WithAllowEmpty(allow bool) *ExecRunner {
	r.allowEmpty = allow
	return r
}

// WithKeep names repository-relative paths that Commit never stages and
// Discard never removes, such as marathon's own state directory.
func (r *ExecRunner) WithKeep(paths ...string) *ExecRunner {
	for _, p := range paths {
		p = strings.Trim(filepath.ToSlash(filepath.Clean(p)), "/")
		if p == "" || p == "." || strings.HasPrefix(p, "../") || p == ".." {
			continue
		}
		r.keep = append(r.keep, p)
	}
	return r
}

// run executes a git command and returns its trimmed output.
func (r *ExecRunner) run(args ...string) (string, error) {
	out, err := r.runRaw(args...)
	return strings.TrimSpace(out), err
}

// runRaw keeps leading whitespace, which porcelain formats depend on.
func (r *ExecRunner) runRaw(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.repoPath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// runSilent executes a git command and ignores output.
func (r *ExecRunner) runSilent(args ...string) error {
	_, err := r.run(args...)
	return err
}

// Run executes an arbitrary git command with the given arguments.
func (r *ExecRunner) Run(args ...string) (string, error) {
	return r.run(args...)
}

// Init creates a repository at the runner's path.
func (r *ExecRunner) Init() error {
	return r.runSilent("init", "--quiet")
}

// IsRepo reports whether the runner's path is inside a work tree.
func (r *ExecRunner) IsRepo() bool {
	out, err := r.run("rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// Status returns the output of git status --porcelain.
func (r *ExecRunner) Status() (string, error) {
	out, err := r.runRaw("status", "--porcelain", "--untracked-files=all")
	return strings.TrimRight(out, "\n"), err
}

// HasChanges returns true if there are uncommitted changes.
func (r *ExecRunner) HasChanges() (bool, error) {
	status, err := r.Status()
	if err != nil {
		return false, err
	}
	return len(status) > 0, nil
}

// ChangedFiles returns the paths listed by git status, renames reported by
// their new path.
func (r *ExecRunner) ChangedFiles() ([]string, error) {
	status, err := r.Status()
	if err != nil {
		return nil, err
	}
	return parsePorcelain(status), nil
}

func parsePorcelain(status string) []string {
	var files []string
	for _, line := range strings.Split(status, "\n") {
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		files = append(files, strings.Trim(path, `"`))
	}
	return files
}

// Commit stages every change and commits it, returning the new HEAD sha.
func (r *ExecRunner) Commit(message string) (string, error) {
	add := []string{"add", "-A"}
	if len(r.keep) > 0 {
		add = append(add, "--", ".")
		for _, p := range r.keep {
			add = append(add, ":(exclude)"+p)
		}
	}
	if err := r.runSilent(add...); err != nil {
		return "", err
	}
	args := []string{"commit", "--quiet", "-m", message}
	if r.allowEmpty {
		args = append(args, "--allow-empty")
	}
	if err := r.runSilent(args...); err != nil {
		return "", err
	}
	return r.run("rev-parse", "HEAD")
}

// Discard drops every uncommitted change: tracked files return to HEAD and
// untracked files are deleted. Ignored files and kept paths survive.
func (r *ExecRunner) Discard() error {
	if !r.hasHead() {
		return ErrNoCommits
	}
	if err := r.runSilent("reset", "--hard", "--quiet"); err != nil {
		return err
	}
	args := []string{"clean", "-f", "-d", "--quiet"}
	for _, p := range r.keep {
		args = append(args, "--exclude=/"+p)
	}
	return r.runSilent(args...)
}

// HasCommits reports whether HEAD points at a commit.
func (r *ExecRunner) HasCommits() bool {
	return r.hasHead()
}

func (r *ExecRunner) hasHead() bool {
	return r.runSilent("rev-parse", "--verify", "--quiet", "HEAD") == nil
}

// Log returns commit shas reachable from HEAD, newest first.
func (r *ExecRunner) Log() ([]string, error) {
	if !r.hasHead() {
		return nil, nil
	}
	out, err := r.run("log", "--format=%H")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// Message returns the full message of a commit.
func (r *ExecRunner) Message(id string) (string, error) {
	return r.run("log", "-1", "--format=%B", id)
}

// FindByTrailer returns shas of commits with a "key: value" message line.
func (r *ExecRunner) FindByTrailer(key, value string) ([]string, error) {
	if !r.hasHead() {
		return nil, nil
	}
	pattern := "^" + regexp.QuoteMeta(key) + ": " + regexp.QuoteMeta(value) + "$"
	out, err := r.run("log", "--format=%H", "--extended-regexp", "--grep="+pattern)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func splitLines(out string) []string {
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)
