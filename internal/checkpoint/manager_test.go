package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"testing"

	"github.com/ShayCichocki/marathon/internal/git"
	"github.com/ShayCichocki/marathon/internal/state"
	"github.com/ShayCichocki/marathon/pkg/models"
)

// fakeVCS keeps an in-memory history, newest first.
type fakeVCS struct {
	shas       []string
	messages   map[string]string
	commits    int
	discards   int
	commitErr  error
	discardErr error
}

func newFakeVCS() *fakeVCS {
	return &fakeVCS{messages: make(map[string]string)}
}

func (f *fakeVCS) Commit(message string) (string, error) {
	if f.commitErr != nil {
		return "", f.commitErr
	}
	f.commits++
	sha := fmt.Sprintf("%040d", len(f.shas)+1)
	f.shas = append([]string{sha}, f.shas...)
	f.messages[sha] = message
	return sha, nil
}

func (f *fakeVCS) Discard() error {
	f.discards++
	return f.discardErr
}

func (f *fakeVCS) Log() ([]string, error) {
	return append([]string(nil), f.shas...), nil
}

func (f *fakeVCS) Message(id string) (string, error) {
	msg, ok := f.messages[id]
	if !ok {
		return "", errors.New("unknown commit")
	}
	return msg, nil
}

func setupRegistry(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.OpenMigrated(t.TempDir())
	if err != nil {
		t.Fatalf("OpenMigrated: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testItem(id int) models.WorkItem {
	return models.WorkItem{ID: id, Title: "implement add", Description: "Add two numbers."}
}

func mustCommit(t *testing.T, m *Manager, item models.WorkItem) models.Checkpoint {
	t.Helper()
	cp, err := m.Commit(context.Background(), item)
	if err != nil {
		t.Fatalf("Commit(%d): %v", item.ID, err)
	}
	return cp
}

func TestCommit_CreatesAndRegisters(t *testing.T) {
	vcs := newFakeVCS()
	m := New(vcs, setupRegistry(t))

	cp := mustCommit(t, m, testItem(3))

	if cp.WorkItemID != 3 {
		t.Errorf("WorkItemID = %d, want 3", cp.WorkItemID)
	}
	if cp.CommitReference != vcs.shas[0] {
		t.Errorf("CommitReference = %q, want %q", cp.CommitReference, vcs.shas[0])
	}
	if vcs.commits != 1 {
		t.Errorf("commits = %d, want 1", vcs.commits)
	}
	if !strings.Contains(vcs.messages[cp.CommitReference], "Marathon-Work-Item: 3") {
		t.Errorf("message lacks trailer: %q", vcs.messages[cp.CommitReference])
	}

	got, err := m.Get(3)
	if err != nil || got == nil {
		t.Fatalf("Get(3) = %v, %v", got, err)
	}
	if got.CommitReference != cp.CommitReference {
		t.Errorf("registered %q, want %q", got.CommitReference, cp.CommitReference)
	}
}

func TestCommit_Idempotent(t *testing.T) {
	vcs := newFakeVCS()
	m := New(vcs, setupRegistry(t))

	first := mustCommit(t, m, testItem(1))
	second := mustCommit(t, m, testItem(1))

	if first.CommitReference != second.CommitReference {
		t.Errorf("second commit %q differs from first %q", second.CommitReference, first.CommitReference)
	}
	if vcs.commits != 1 {
		t.Errorf("commits = %d, want 1 (no duplicate commit)", vcs.commits)
	}
	cps, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(cps) != 1 {
		t.Errorf("List = %v, want one checkpoint", cps)
	}
}

func TestCommit_RecoversUnregisteredCommit(t *testing.T) {
	vcs := newFakeVCS()
	// A commit made before a crash, never registered.
	sha, err := vcs.Commit(CommitMessage(testItem(5)))
	if err != nil {
		t.Fatal(err)
	}

	m := New(vcs, setupRegistry(t))
	cp := mustCommit(t, m, testItem(5))

	if cp.CommitReference != sha {
		t.Errorf("CommitReference = %q, want %q", cp.CommitReference, sha)
	}
	if vcs.commits != 1 {
		t.Errorf("commits = %d, want 1 (recovered, not recommitted)", vcs.commits)
	}
}

func TestCommit_TrailerMustMatchExactly(t *testing.T) {
	vcs := newFakeVCS()
	if _, err := vcs.Commit(CommitMessage(testItem(12))); err != nil {
		t.Fatal(err)
	}

	m := New(vcs, setupRegistry(t))
	cp, err := m.Find(context.Background(), 1)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if cp != nil {
		t.Errorf("item 1 matched the trailer of item 12: %+v", cp)
	}
}

func TestWithRun_IgnoresOtherRuns(t *testing.T) {
	vcs := newFakeVCS()
	old := New(vcs, setupRegistry(t)).WithRun("run-old")
	mustCommit(t, old, testItem(2))

	m := New(vcs, setupRegistry(t)).WithRun("run-new")
	cp, err := m.Find(context.Background(), 2)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if cp != nil {
		t.Fatalf("a commit from another run was adopted: %+v", cp)
	}

	created := mustCommit(t, m, testItem(2))
	if vcs.commits != 2 {
		t.Errorf("commits = %d, want 2", vcs.commits)
	}
	if !strings.Contains(vcs.messages[created.CommitReference], "Marathon-Run: run-new") {
		t.Errorf("message lacks run trailer: %q", vcs.messages[created.CommitReference])
	}

	// A fresh registry for the same run recovers its own commit.
	again := New(vcs, setupRegistry(t)).WithRun("run-new")
	found, err := again.Find(context.Background(), 2)
	if err != nil || found == nil {
		t.Fatalf("Find = %v, %v", found, err)
	}
	if found.CommitReference != created.CommitReference {
		t.Errorf("recovered %q, want %q", found.CommitReference, created.CommitReference)
	}
}

func TestCommit_Failure(t *testing.T) {
	vcs := newFakeVCS()
	vcs.commitErr = errors.New("nothing to commit, working tree clean")
	m := New(vcs, setupRegistry(t))

	_, err := m.Commit(context.Background(), testItem(2))
	if !errors.Is(err, ErrCommitFailed) {
		t.Fatalf("err = %v, want ErrCommitFailed", err)
	}
	if !strings.Contains(err.Error(), "nothing to commit") {
		t.Errorf("err = %v, want the VCS detail", err)
	}

	cp, err := m.Get(2)
	if err != nil || cp != nil {
		t.Errorf("Get(2) = %v, %v; want nothing registered", cp, err)
	}
}

func TestCommit_CancelledContext(t *testing.T) {
	vcs := newFakeVCS()
	m := New(vcs, setupRegistry(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.Commit(ctx, testItem(2)); !errors.Is(err, ErrCommitFailed) {
		t.Errorf("err = %v, want ErrCommitFailed", err)
	}
	if vcs.commits != 0 {
		t.Errorf("commits = %d, want 0", vcs.commits)
	}
}

func TestDiscard(t *testing.T) {
	vcs := newFakeVCS()
	m := New(vcs, setupRegistry(t))

	if err := m.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if vcs.discards != 1 {
		t.Errorf("discards = %d, want 1", vcs.discards)
	}

	vcs.discardErr = errors.New("index.lock exists")
	err := m.Discard()
	if err == nil || !strings.Contains(err.Error(), "index.lock") {
		t.Errorf("Discard = %v, want the VCS error", err)
	}
}

func TestVerify(t *testing.T) {
	vcs := newFakeVCS()
	reg := setupRegistry(t)
	m := New(vcs, reg)

	mustCommit(t, m, testItem(1))
	if err := m.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if err := reg.CreateCheckpoint(&models.Checkpoint{WorkItemID: 9, CommitReference: "deadbeefdeadbeef"}); err != nil {
		t.Fatal(err)
	}
	err := m.Verify()
	if !errors.Is(err, ErrCheckpointMissing) {
		t.Fatalf("Verify = %v, want ErrCheckpointMissing", err)
	}
	if !strings.Contains(err.Error(), "#9") {
		t.Errorf("Verify = %v, want the missing item named", err)
	}
}

func TestCommitMessage(t *testing.T) {
	msg := CommitMessage(models.WorkItem{ID: 4, Description: "Fix parser\nmore detail"})
	if first := strings.Split(msg, "\n")[0]; first != "marathon: Fix parser" {
		t.Errorf("subject = %q", first)
	}
	if !strings.HasSuffix(msg, "Marathon-Work-Item: 4\n") {
		t.Errorf("message does not end with the trailer: %q", msg)
	}

	long := CommitMessage(models.WorkItem{ID: 5, Title: strings.Repeat("é", 50)})
	subject := strings.TrimPrefix(strings.Split(long, "\n")[0], "marathon: ")
	if len(subject) > 72 || !strings.HasSuffix(subject, "...") {
		t.Errorf("subject = %q (%d bytes)", subject, len(subject))
	}
	if !strings.HasPrefix(subject, "éé") || strings.ContainsRune(subject, '�') {
		t.Errorf("subject split a character: %q", subject)
	}
}

func TestCommit_WithGit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	r := git.NewRunner(dir)
	if err := r.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, kv := range [][2]string{{"user.name", "Test"}, {"user.email", "test@example.com"}, {"commit.gpgsign", "false"}} {
		if _, err := r.Run("config", kv[0], kv[1]); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := r.WithAllowEmpty(true).Commit(CommitMessage(testItem(7))); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	m := New(r, setupRegistry(t))
	cp, err := m.Find(context.Background(), 7)
	if err != nil || cp == nil {
		t.Fatalf("Find = %v, %v", cp, err)
	}

	log, err := r.Log()
	if err != nil {
		t.Fatal(err)
	}
	if log[0] != cp.CommitReference {
		t.Errorf("CommitReference = %q, want %q", cp.CommitReference, log[0])
	}
	if err := m.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
}
