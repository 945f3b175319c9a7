package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/marathon/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Display the configuration marathon would run with.

Values come from, highest precedence first:
  - environment variables (MARATHON_SECTION_KEY, ANTHROPIC_API_KEY)
  - .marathon.yaml in the current directory or a parent
  - ~/.config/marathon/config.yaml
  - built-in defaults`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		displayAllConfig(cfg)
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(c *config.Config) {
	fmt.Printf("user config: %s\n", config.GetUserConfigPath())
	if p := config.GetProjectConfigPath(); p != "" {
		fmt.Printf("project config: %s\n", p)
	} else {
		fmt.Printf("project config: (none)\n")
	}
	if configPath != "" {
		fmt.Printf("config file: %s\n", configPath)
	}
	fmt.Println()

	key, _ := config.GetAPIKey(c)
	fmt.Printf("budget.hard_limit: %d\n", c.Budget.HardLimit)
	fmt.Printf("budget.reserve_fraction: %g\n", c.Budget.ReserveFraction)
	fmt.Printf("context.progress_window: %d\n", c.Context.ProgressWindow)
	fmt.Printf("context.max_feedback_chars: %d\n", c.Context.MaxFeedbackChars)
	fmt.Printf("context.protected: %s\n", valueOr(strings.Join(c.Context.Protected, ", "), "(defaults only)"))
	fmt.Printf("retry.max_attempts: %d\n", c.Retry.MaxAttempts)
	fmt.Printf("retry.delay: %s\n", c.Retry.Delay)
	fmt.Printf("session.timeout: %s\n", c.Session.Timeout)
	fmt.Printf("session.max_sessions: %d\n", c.Session.MaxSessions)
	fmt.Printf("worker.kind: %s\n", c.Worker.Kind)
	fmt.Printf("worker.cli_path: %s\n", c.Worker.CLIPath)
	fmt.Printf("worker.model: %s\n", valueOr(c.Worker.Model, "(default)"))
	fmt.Printf("worker.max_iterations: %d\n", c.Worker.MaxIterations)
	fmt.Printf("worker.api_key: %s (source: %s)\n", config.MaskAPIKey(key), config.GetAPIKeySource(c))
	fmt.Printf("worker.bedrock.enabled: %t\n", c.Worker.Bedrock.Enabled)
	if c.Worker.Bedrock.Enabled {
		fmt.Printf("worker.bedrock.region: %s\n", valueOr(c.Worker.Bedrock.Region, "(aws default)"))
		fmt.Printf("worker.bedrock.profile: %s\n", valueOr(c.Worker.Bedrock.Profile, "(aws default)"))
	}
	fmt.Printf("checkpoint.allow_empty: %t\n", c.Checkpoint.AllowEmpty)
	fmt.Printf("state.dir: %s\n", c.State.Dir)
	fmt.Printf("log.file: %s\n", c.Log.File)
	fmt.Printf("log.max_size_mb: %d\n", c.Log.MaxSizeMB)
	fmt.Printf("log.max_backups: %d\n", c.Log.MaxBackups)
	fmt.Printf("log.max_age_days: %d\n", c.Log.MaxAgeDays)
	fmt.Printf("log.debug: %t\n", c.Log.Debug)
	fmt.Printf("tui.refresh_rate: %s\n", c.TUI.RefreshRate)
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
