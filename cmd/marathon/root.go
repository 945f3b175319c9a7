package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/marathon/internal/config"
	"github.com/ShayCichocki/marathon/internal/state"
	"github.com/ShayCichocki/marathon/pkg/models"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "marathon",
	Short: "Checkpointed, resumable long-running coding runs",
	Long: `Marathon works through a backlog of work items one bounded session at a time.

Each session gets a context package sized to a fixed budget, runs a coding
worker, validates the result with the item's own commands and commits it as a
checkpoint. Everything needed to resume lives in .marathon/run.json, so a run
can be stopped, crash or hit its session limit and pick up where it left off.

Typical flow:
  marathon init --backlog backlog.yaml
  marathon run
  marathon status`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user config merged with .marathon.yaml)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(skipCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeSignalCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// workspace locates the repository and its state directory.
type workspace struct {
	root     string
	stateDir string
}

func newWorkspace(c *config.Config) (workspace, error) {
	root, err := os.Getwd()
	if err != nil {
		return workspace{}, fmt.Errorf("get working directory: %w", err)
	}
	return workspaceAt(root, c), nil
}

func workspaceAt(root string, c *config.Config) workspace {
	dir := c.State.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return workspace{root: root, stateDir: dir}
}

func (w workspace) runFile() *state.RunStateFile {
	return state.NewRunStateFile(w.stateDir)
}

func (w workspace) reportPath() string {
	return filepath.Join(w.stateDir, "progress.md")
}

func (w workspace) logPath(c *config.Config) string {
	if filepath.IsAbs(c.Log.File) {
		return c.Log.File
	}
	return filepath.Join(w.root, c.Log.File)
}

// keepPaths are the repository-relative paths marathon writes itself. They
// are never committed or discarded.
func (w workspace) keepPaths(c *config.Config) []string {
	keep := []string{config.ProjectConfigName}
	for _, p := range []string{w.stateDir, filepath.Dir(w.logPath(c))} {
		rel, err := filepath.Rel(w.root, p)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		keep = append(keep, filepath.ToSlash(rel))
	}
	return keep
}

// loadRun reads the run state with a hint when no run exists yet.
func (w workspace) loadRun() (*models.RunState, error) {
	rs, err := w.runFile().Load()
	if errors.Is(err, state.ErrNoRunState) {
		return nil, fmt.Errorf("%w in %s; run 'marathon init --backlog <file>' first", err, w.stateDir)
	}
	return rs, err
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
