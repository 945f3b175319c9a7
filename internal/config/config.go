// Package config handles configuration loading for marathon.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProjectConfigName is the project-level config file looked up from the
// working directory upwards.
const ProjectConfigName = ".marathon.yaml"

// Worker kinds.
const (
	WorkerCLI = "cli"
	WorkerAPI = "api"
)

// Config holds all configuration for marathon.
type Config struct {
	Budget     BudgetConfig     `mapstructure:"budget"`
	Context    ContextConfig    `mapstructure:"context"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Session    SessionConfig    `mapstructure:"session"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	State      StateConfig      `mapstructure:"state"`
	Log        LogConfig        `mapstructure:"log"`
	TUI        TUIConfig        `mapstructure:"tui"`
}

// BudgetConfig bounds the size of a session's context package.
type BudgetConfig struct {
	HardLimit       int     `mapstructure:"hard_limit"`
	ReserveFraction float64 `mapstructure:"reserve_fraction"`
}

// ContextConfig tunes the context assembler.
type ContextConfig struct {
	ProgressWindow   int `mapstructure:"progress_window"`
	MaxFeedbackChars int `mapstructure:"max_feedback_chars"`
	// Protected adds patterns to the built-in list of files withheld from workers.
	Protected []string `mapstructure:"protected"`
}

// RetryConfig holds the per-item retry policy.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

// SessionConfig bounds individual sessions and the run.
type SessionConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxSessions pauses a run after this many sessions. Zero is unlimited.
	MaxSessions int `mapstructure:"max_sessions"`
}

// WorkerConfig selects and configures the code-generation backend.
type WorkerConfig struct {
	Kind          string        `mapstructure:"kind"`
	CLIPath       string        `mapstructure:"cli_path"`
	Model         string        `mapstructure:"model"`
	MaxIterations int           `mapstructure:"max_iterations"`
	APIKey        string        `mapstructure:"api_key"`
	Bedrock       BedrockConfig `mapstructure:"bedrock"`
}

// BedrockConfig routes API calls through AWS Bedrock.
type BedrockConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Region  string `mapstructure:"region"`
	Profile string `mapstructure:"profile"`
}

// CheckpointConfig controls commits.
type CheckpointConfig struct {
	AllowEmpty bool `mapstructure:"allow_empty"`
}

// StateConfig locates the state directory.
type StateConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogConfig holds log file and rotation settings.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Debug      bool   `mapstructure:"debug"`
}

// TUIConfig holds watch display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (MARATHON_SECTION_KEY, ANTHROPIC_API_KEY)
// 2. Project config (.marathon.yaml in current directory or parent)
// 3. User config (~/.config/marathon/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file over the defaults.
// Environment variables still take precedence.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("MARATHON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("worker.api_key", "MARATHON_WORKER_API_KEY", "ANTHROPIC_API_KEY")
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Worker.APIKey = expandEnv(cfg.Worker.APIKey)
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.State.Dir, "logs", "marathon.log")
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Budget.HardLimit <= 0 {
		errs = append(errs, fmt.Errorf("budget.hard_limit must be positive, got %d", c.Budget.HardLimit))
	}
	if c.Budget.ReserveFraction < 0 || c.Budget.ReserveFraction >= 1 {
		errs = append(errs, fmt.Errorf("budget.reserve_fraction must be in [0, 1), got %v", c.Budget.ReserveFraction))
	}
	if c.Context.ProgressWindow < 0 {
		errs = append(errs, fmt.Errorf("context.progress_window must not be negative"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.Delay < 0 {
		errs = append(errs, fmt.Errorf("retry.delay must not be negative"))
	}
	if c.Session.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("session.timeout must be positive"))
	}
	if c.Session.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("session.max_sessions must not be negative"))
	}
	switch c.Worker.Kind {
	case WorkerCLI, WorkerAPI:
	default:
		errs = append(errs, fmt.Errorf("worker.kind must be %q or %q, got %q", WorkerCLI, WorkerAPI, c.Worker.Kind))
	}
	if c.State.Dir == "" {
		errs = append(errs, fmt.Errorf("state.dir must be set"))
	}
	return errors.Join(errs...)
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("budget.hard_limit", 200000)
	v.SetDefault("budget.reserve_fraction", 0.25)

	v.SetDefault("context.progress_window", 8)
	v.SetDefault("context.max_feedback_chars", 4000)
	v.SetDefault("context.protected", []string{})

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.delay", "0s")

	v.SetDefault("session.timeout", "20m")
	v.SetDefault("session.max_sessions", 0)

	v.SetDefault("worker.kind", WorkerCLI)
	v.SetDefault("worker.cli_path", "claude")
	v.SetDefault("worker.model", "")
	v.SetDefault("worker.max_iterations", 50)
	v.SetDefault("worker.api_key", "")
	v.SetDefault("worker.bedrock.enabled", false)
	v.SetDefault("worker.bedrock.region", "")
	v.SetDefault("worker.bedrock.profile", "")

	v.SetDefault("checkpoint.allow_empty", false)

	v.SetDefault("state.dir", ".marathon")

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.debug", false)

	v.SetDefault("tui.refresh_rate", "500ms")
}

// getUserConfigDir returns the XDG config directory for marathon.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "marathon")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "marathon")
	}
	return filepath.Join(home, ".config", "marathon")
}

// findProjectConfig searches for .marathon.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Budget:  BudgetConfig{HardLimit: 200000, ReserveFraction: 0.25},
		Context: ContextConfig{ProgressWindow: 8, MaxFeedbackChars: 4000},
		Retry:   RetryConfig{MaxAttempts: 3},
		Session: SessionConfig{Timeout: 20 * time.Minute},
		Worker: WorkerConfig{
			Kind:          WorkerCLI,
			CLIPath:       "claude",
			MaxIterations: 50,
		},
		State: StateConfig{Dir: ".marathon"},
		Log: LogConfig{
			File:       filepath.Join(".marathon", "logs", "marathon.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		TUI: TUIConfig{RefreshRate: 500 * time.Millisecond},
	}
}
