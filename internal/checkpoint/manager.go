// Package checkpoint turns a validated work item into a durable commit and
// keeps the registry of which items have one.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/ShayCichocki/marathon/internal/state"
	"github.com/ShayCichocki/marathon/pkg/models"
)

const (
	// TrailerKey is the commit message trailer that links a commit to its work item.
	TrailerKey = "Marathon-Work-Item"
	// RunTrailerKey links a commit to the run that made it.
	RunTrailerKey = "Marathon-Run"
)

var (
	// ErrCommitFailed is returned when a checkpoint could not be made durable.
	ErrCommitFailed = errors.New("checkpoint commit failed")
	// ErrCheckpointMissing is returned by Verify when a registered commit is
	// no longer in the history.
	ErrCheckpointMissing = errors.New("checkpoint commit missing from history")
)

// VCS is the version-control collaborator.
type VCS interface {
	Commit(message string) (string, error)
	// Discard returns the working tree to the last commit.
	Discard() error
	Log() ([]string, error)
	Message(id string) (string, error)
}

// TrailerSearcher is implemented by VCS backends that can search history
// for a trailer without reading every message.
type TrailerSearcher interface {
	FindByTrailer(key, value string) ([]string, error)
}

// Manager creates and looks up checkpoints.
type Manager struct {
	vcs      VCS
	registry state.CheckpointStore
	runID    string
	now      func() time.Time
}

// New creates a checkpoint manager.
func New(vcs VCS, registry state.CheckpointStore) *Manager {
	return &Manager{
		vcs:      vcs,
		registry: registry,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithRun scopes the manager to one run: commits carry the run trailer and
// history recovery ignores commits made by other runs.
func (m *Manager) WithRun(runID string) *Manager {
	m.runID = runID
	return m
}

// Trailer returns the trailer line for a work item.
func Trailer(id int) string {
	return TrailerKey + ": " + strconv.Itoa(id)
}

// CommitMessage builds the commit message for a work item.
func CommitMessage(item models.WorkItem) string {
	subject := item.Title
	if subject == "" {
		subject = firstLine(item.Description)
	}
	subject = models.Truncate(subject, 72)
	var sb strings.Builder
	fmt.Fprintf(&sb, "marathon: %s\n\n", subject)
	if body := strings.TrimSpace(item.Description); body != "" && body != subject {
		sb.WriteString(body)
		sb.WriteString("\n\n")
	}
	sb.WriteString(Trailer(item.ID))
	sb.WriteString("\n")
	return sb.String()
}

func (m *Manager) message(item models.WorkItem) string {
	msg := CommitMessage(item)
	if m.runID != "" {
		msg += RunTrailerKey + ": " + m.runID + "\n"
	}
	return msg
}

// Commit makes item's work durable. An item that already has a checkpoint,
// or whose commit exists in history but was never registered, is not
// committed again.
func (m *Manager) Commit(ctx context.Context, item models.WorkItem) (models.Checkpoint, error) {
	existing, err := m.Find(ctx, item.ID)
	if err != nil {
		return models.Checkpoint{}, err
	}
	if existing != nil {
		return *existing, nil
	}
	if err := ctx.Err(); err != nil {
		return models.Checkpoint{}, fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}

	sha, err := m.vcs.Commit(m.message(item))
	if err != nil {
		return models.Checkpoint{}, fmt.Errorf("%w: work item %d: %v", ErrCommitFailed, item.ID, err)
	}
	cp := models.Checkpoint{WorkItemID: item.ID, CommitReference: sha, CreatedAt: m.now()}
	if err := m.register(&cp); err != nil {
		return models.Checkpoint{}, err
	}
	log.Printf("[checkpoint] %s committed as %s", item.Label(), shortRef(sha))
	return cp, nil
}

// Discard drops the uncommitted changes of a failed attempt so the next
// session starts from the last checkpoint.
func (m *Manager) Discard() error {
	if err := m.vcs.Discard(); err != nil {
		return fmt.Errorf("discard uncommitted changes: %w", err)
	}
	return nil
}

// Find returns the checkpoint for id from the registry, or recovers it from
// history when a commit carries the item's trailer. It returns nil when
// neither exists.
func (m *Manager) Find(ctx context.Context, id int) (*models.Checkpoint, error) {
	cp, err := m.registry.GetCheckpoint(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	if cp != nil {
		return cp, nil
	}

	sha, err := m.searchHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: search history for work item %d: %v", ErrCommitFailed, id, err)
	}
	if sha == "" {
		return nil, nil
	}
	recovered := models.Checkpoint{WorkItemID: id, CommitReference: sha, CreatedAt: m.now()}
	if err := m.register(&recovered); err != nil {
		return nil, err
	}
	log.Printf("[checkpoint] recovered work item #%d from commit %s", id, shortRef(sha))
	return &recovered, nil
}

func (m *Manager) register(cp *models.Checkpoint) error {
	err := m.registry.CreateCheckpoint(cp)
	if errors.Is(err, state.ErrCheckpointExists) {
		existing, getErr := m.registry.GetCheckpoint(cp.WorkItemID)
		if getErr == nil && existing != nil {
			*cp = *existing
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("%w: register work item %d: %v", ErrCommitFailed, cp.WorkItemID, err)
	}
	return nil
}

func (m *Manager) searchHistory(ctx context.Context, id int) (string, error) {
	var (
		candidates []string
		err        error
	)
	s, searched := m.vcs.(TrailerSearcher)
	if searched {
		candidates, err = s.FindByTrailer(TrailerKey, strconv.Itoa(id))
	} else {
		candidates, err = m.vcs.Log()
	}
	if err != nil {
		return "", err
	}

	for _, sha := range candidates {
		if searched && m.runID == "" {
			return sha, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		msg, err := m.vcs.Message(sha)
		if err != nil {
			return "", err
		}
		if m.matches(msg, id) {
			return sha, nil
		}
	}
	return "", nil
}

// matches reports whether a commit message carries the item trailer and,
// for a run-scoped manager, the run trailer.
func (m *Manager) matches(msg string, id int) bool {
	wantItem := Trailer(id)
	wantRun := RunTrailerKey + ": " + m.runID
	var item, run bool
	for _, line := range strings.Split(msg, "\n") {
		switch strings.TrimSpace(line) {
		case wantItem:
			item = true
		case wantRun:
			run = true
		}
	}
	return item && (run || m.runID == "")
}

// Get returns the registered checkpoint for id, or nil.
func (m *Manager) Get(id int) (*models.Checkpoint, error) {
	return m.registry.GetCheckpoint(id)
}

// List returns every registered checkpoint ordered by work item ID.
func (m *Manager) List() ([]models.Checkpoint, error) {
	return m.registry.ListCheckpoints()
}

// Verify checks that every registered checkpoint's commit is still in history.
func (m *Manager) Verify() error {
	cps, err := m.registry.ListCheckpoints()
	if err != nil {
		return fmt.Errorf("list checkpoints: %w", err)
	}
	if len(cps) == 0 {
		return nil
	}
	shas, err := m.vcs.Log()
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	inLog := make(map[string]bool, len(shas))
	for _, s := range shas {
		inLog[s] = true
	}
	var missing []string
	for _, cp := range cps {
		if !inLog[cp.CommitReference] {
			missing = append(missing, fmt.Sprintf("#%d (%s)", cp.WorkItemID, shortRef(cp.CommitReference)))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrCheckpointMissing, strings.Join(missing, ", "))
	}
	return nil
}

func shortRef(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
