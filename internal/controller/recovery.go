package controller

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/marathon/pkg/models"
)

// recoverState reconciles a state left behind by a crash. An in_progress
// item either has a checkpoint (registered, or found in history) and is
// passed, or takes a failed attempt. Every passed item without a success
// entry in the ledger gets a recovered one.
func (c *Controller) recoverState(ctx context.Context) error {
	changed := false

	for _, it := range c.store.Items() {
		if it.Status != models.ItemInProgress {
			continue
		}
		changed = true
		cp, err := c.deps.Checkpoints.Find(ctx, it.ID)
		if err != nil {
			return err
		}
		if cp != nil {
			c.log.Log("[controller] recovery: %s already committed as %s", it.Label(), shortRef(cp.CommitReference))
			if err := c.store.Mark(it.ID, models.ItemPassed, nil); err != nil {
				return err
			}
			continue
		}

		c.log.Log("[controller] recovery: %s was interrupted mid-session", it.Label())
		if err := c.deps.Checkpoints.Discard(); err != nil {
			return fmt.Errorf("restore working tree after interrupted %s: %w", it.Label(), err)
		}
		entries, sessions := len(c.st.Ledger), c.st.SessionCount
		index := c.st.SessionCount + 1
		if err := c.ledger.Append(models.ProgressEntry{
			SessionIndex: index,
			WorkItemID:   it.ID,
			Attempt:      it.AttemptCount + 1,
			Summary:      "session interrupted before it finished",
			Outcome:      models.OutcomeFailure,
			ErrorKind:    KindInterrupted,
		}); err != nil {
			return err
		}
		c.st.SessionCount = index
		if _, err := c.store.RecordFailure(it.ID, errInterrupted); err != nil {
			c.st.Ledger = c.st.Ledger[:entries]
			c.st.SessionCount = sessions
			return err
		}
	}

	for _, it := range c.store.Items() {
		if it.Status != models.ItemPassed || c.ledger.HasSuccess(it.ID) {
			continue
		}
		changed = true
		summary := "recovered after restart"
		cp, err := c.deps.Checkpoints.Find(ctx, it.ID)
		if err != nil {
			return err
		}
		if cp != nil {
			summary = fmt.Sprintf("recovered after restart; committed %s", shortRef(cp.CommitReference))
		}
		index := c.st.SessionCount + 1
		if err := c.ledger.Append(models.ProgressEntry{
			SessionIndex: index,
			WorkItemID:   it.ID,
			Attempt:      it.AttemptCount + 1,
			Summary:      summary,
			Outcome:      models.OutcomeSuccess,
		}); err != nil {
			return err
		}
		c.st.SessionCount = index
	}

	if !changed {
		return nil
	}
	c.log.Log("[controller] recovery complete")
	return c.persist(c.st)
}
