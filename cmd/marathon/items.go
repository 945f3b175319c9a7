package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/marathon/internal/workitem"
	"github.com/ShayCichocki/marathon/pkg/models"
)

var resetCmd = &cobra.Command{
	Use:   "reset <id>",
	Short: "Return a failed or skipped work item to pending",
	Long: `Reset a failed or skipped work item so the next 'marathon run' retries it
with a fresh attempt count. Its history is kept.

Use this after fixing whatever made the item fail, or to unblock a run whose
remaining items depend on it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runItemAction(args[0], "reset", (*workitem.Store).Reset)
	},
}

var skipCmd = &cobra.Command{
	Use:   "skip <id>",
	Short: "Remove a pending work item from the run",
	Long: `Mark a pending work item as skipped. Items that depend on it stay blocked
until it is reset, so skip the dependents too or reset it later.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runItemAction(args[0], "skip", (*workitem.Store).Skip)
	},
}

func runItemAction(arg, name string, action func(*workitem.Store, int) error) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	ws, err := newWorkspace(cfg)
	if err != nil {
		return err
	}
	it, err := changeItem(ws, id, cfg.Retry.MaxAttempts, action)
	if err != nil {
		printStatus("✗", fmt.Sprintf("%s #%d: %v", name, id, err), color.FgRed)
		return err
	}
	printStatus("✓", fmt.Sprintf("%s is now %s", it.Label(), it.Status), color.FgGreen)
	return nil
}

// changeItem applies an operator action to one item and persists the run.
func changeItem(ws workspace, id, maxAttempts int, action func(*workitem.Store, int) error) (models.WorkItem, error) {
	file := ws.runFile()
	rs, err := ws.loadRun()
	if err != nil {
		return models.WorkItem{}, err
	}
	store, err := workitem.NewStore(rs, file.Save, maxAttempts)
	if err != nil {
		return models.WorkItem{}, err
	}
	if err := action(store, id); err != nil {
		return models.WorkItem{}, err
	}
	it, _ := store.Get(id)
	return it, nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid work item id %q", s)
	}
	return id, nil
}
