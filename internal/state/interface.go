package state

import (
	"io"

	"github.com/ShayCichocki/marathon/pkg/models"
)

// CheckpointStore handles checkpoint persistence.
type CheckpointStore interface {
	CreateCheckpoint(cp *models.Checkpoint) error
	GetCheckpoint(workItemID int) (*models.Checkpoint, error)
	ListCheckpoints() ([]models.Checkpoint, error)
}

// SessionStore handles per-session audit records.
type SessionStore interface {
	CreateSessionRecord(r *SessionRecord) error
	ListSessionRecords(runID string, limit int) ([]SessionRecord, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Registry is the SQLite-backed side of marathon's state.
type Registry interface {
	io.Closer
	Migrator
	CheckpointStore
	SessionStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Registry        = (*DB)(nil)
	_ CheckpointStore = (*DB)(nil)
	_ SessionStore    = (*DB)(nil)
)
