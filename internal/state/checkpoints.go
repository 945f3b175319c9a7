package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ShayCichocki/marathon/pkg/models"
)

// ErrCheckpointExists is returned when a work item already has a checkpoint.
var ErrCheckpointExists = errors.New("checkpoint already exists")

// CreateCheckpoint records a checkpoint. Checkpoints are immutable: a second
// checkpoint for the same work item fails with ErrCheckpointExists.
func (db *DB) CreateCheckpoint(cp *models.Checkpoint) error {
	_, err := db.Exec(`
		INSERT INTO checkpoints (work_item_id, commit_ref, created_at)
		VALUES (?, ?, ?)
	`, cp.WorkItemID, cp.CommitReference, formatTime(cp.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: work item %d", ErrCheckpointExists, cp.WorkItemID)
	}
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint returns the checkpoint for a work item, or nil if none exists.
func (db *DB) GetCheckpoint(workItemID int) (*models.Checkpoint, error) {
	row := db.QueryRow(`
		SELECT work_item_id, commit_ref, created_at
		FROM checkpoints WHERE work_item_id = ?
	`, workItemID)

	var cp models.Checkpoint
	var createdAt string
	err := row.Scan(&cp.WorkItemID, &cp.CommitReference, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	cp.CreatedAt, _ = parseTime(createdAt)
	return &cp, nil
}

// ListCheckpoints returns all checkpoints ordered by work item ID.
func (db *DB) ListCheckpoints() ([]models.Checkpoint, error) {
	rows, err := db.Query(`
		SELECT work_item_id, commit_ref, created_at
		FROM checkpoints ORDER BY work_item_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []models.Checkpoint
	for rows.Next() {
		var cp models.Checkpoint
		var createdAt string
		if err := rows.Scan(&cp.WorkItemID, &cp.CommitReference, &createdAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp.CreatedAt, _ = parseTime(createdAt)
		out = append(out, cp)
	}
	return out, rows.Err()
}
