package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/marathon/internal/git"
	"github.com/ShayCichocki/marathon/internal/state"
	"github.com/ShayCichocki/marathon/internal/validation"
	"github.com/ShayCichocki/marathon/internal/workitem"
	"github.com/ShayCichocki/marathon/pkg/models"
)

var (
	initBacklog string
	initForce   bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Start a new run from a backlog file",
	Long: `Create .marathon/run.json from a YAML backlog.

The backlog is validated before anything is written: IDs must be unique,
dependencies must exist and must not form a cycle, and every validation
step needs a command with a known expectation.

Backlog format:
  items:
    - id: 1
      title: Add the parser
      description: Parse the input format into an AST.
      files: [parser.go, parser_test.go]
      validation:
        - name: tests
          command: go test ./...
    - id: 2
      description: Pretty-print the AST.
      depends_on: [1]

Examples:
  marathon init --backlog backlog.yaml
  marathon init --backlog backlog.yaml --force  # discard the existing run`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initBacklog, "backlog", "", "YAML backlog file (required)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Replace an existing run and its checkpoint registry")
	_ = initCmd.MarkFlagRequired("backlog")
}

func runInit(cmd *cobra.Command, args []string) error {
	ws, err := newWorkspace(cfg)
	if err != nil {
		return err
	}

	if _, err := exec.LookPath("git"); err != nil {
		printStatus("✗", "Git not found", color.FgRed)
		return fmt.Errorf("git is required: %w", err)
	}
	if !git.NewRunner(ws.root).IsRepo() {
		printStatus("⚠", "Not a git repository; run 'git init' before 'marathon run'", color.FgYellow)
	} else {
		printStatus("✓", "Git repository found", color.FgGreen)
	}

	rs, err := initRun(ws, initBacklog, initForce, cfg.Retry.MaxAttempts)
	if err != nil {
		printStatus("✗", err.Error(), color.FgRed)
		return err
	}
	printStatus("✓", fmt.Sprintf("Loaded %d work items from %s", len(rs.WorkItems), initBacklog), color.FgGreen)
	printStatus("✓", "Created "+ws.runFile().Path(), color.FgGreen)

	fmt.Printf("\n%s Run %s initialized. Start it with 'marathon run'.\n", color.GreenString("✓"), rs.RunID)
	return nil
}

// errRunExists is returned by initRun when a run is already initialized.
var errRunExists = errors.New("a run is already initialized")

// initRun validates the backlog and writes a fresh run state. With force,
// an existing run and its checkpoint registry are replaced.
func initRun(ws workspace, backlogPath string, force bool, maxAttempts int) (*models.RunState, error) {
	file := ws.runFile()
	if file.Exists() && !force {
		return nil, fmt.Errorf("%w in %s (use --force to replace it)", errRunExists, ws.stateDir)
	}

	items, err := workitem.LoadBacklog(backlogPath)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		for _, step := range it.ValidationSteps {
			if _, err := validation.ParseExpectation(step.Expect); err != nil {
				return nil, fmt.Errorf("backlog item %d, step %q: %w", it.ID, step.DisplayName(), err)
			}
		}
	}
	rs := models.NewRunState(uuid.New().String(), items)
	if _, err := workitem.NewStore(rs, nil, maxAttempts); err != nil {
		return nil, err
	}

	if err := state.EnsureDir(ws.stateDir); err != nil {
		return nil, err
	}
	if force {
		if err := removeRegistry(ws.stateDir); err != nil {
			return nil, err
		}
	}
	db, err := state.OpenMigrated(ws.stateDir)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("close registry: %w", err)
	}
	if err := file.Save(rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// removeRegistry deletes the SQLite registry and its WAL files.
func removeRegistry(stateDir string) error {
	base := state.DBPath(stateDir)
	for _, p := range []string{base, base + "-wal", base + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove registry: %w", err)
		}
	}
	return nil
}
