package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Budget.HardLimit != 200000 {
		t.Errorf("expected hard limit 200000, got %d", cfg.Budget.HardLimit)
	}
	if cfg.Budget.ReserveFraction != 0.25 {
		t.Errorf("expected reserve 0.25, got %v", cfg.Budget.ReserveFraction)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected max attempts 3, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Session.Timeout != 20*time.Minute {
		t.Errorf("expected session timeout 20m, got %v", cfg.Session.Timeout)
	}
	if cfg.Worker.Kind != WorkerCLI {
		t.Errorf("expected cli worker, got %q", cfg.Worker.Kind)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadFromPath(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	path := writeConfig(t, t.TempDir(), "config.yaml", `
budget:
  hard_limit: 50000
  reserve_fraction: 0.5
retry:
  max_attempts: 5
  delay: 2s
session:
  timeout: 5m
  max_sessions: 12
worker:
  kind: api
  model: claude-sonnet-4-20250514
  bedrock:
    enabled: true
    region: us-west-2
state:
  dir: .state
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Budget.HardLimit != 50000 || cfg.Budget.ReserveFraction != 0.5 {
		t.Errorf("budget = %+v", cfg.Budget)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.Delay != 2*time.Second {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Session.Timeout != 5*time.Minute || cfg.Session.MaxSessions != 12 {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Worker.Kind != WorkerAPI || !cfg.Worker.Bedrock.Enabled || cfg.Worker.Bedrock.Region != "us-west-2" {
		t.Errorf("worker = %+v", cfg.Worker)
	}
	if cfg.Context.ProgressWindow != 8 {
		t.Errorf("unset values keep defaults, got progress window %d", cfg.Context.ProgressWindow)
	}
	if cfg.Log.File != filepath.Join(".state", "logs", "marathon.log") {
		t.Errorf("log file should follow state dir, got %q", cfg.Log.File)
	}
}

func TestLoadFromPath_EnvOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", "retry:\n  max_attempts: 5\n")
	t.Setenv("MARATHON_RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-env-123456")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Retry.MaxAttempts != 7 {
		t.Errorf("env should win, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Worker.APIKey != "sk-ant-from-env-123456" {
		t.Errorf("api key = %q", cfg.Worker.APIKey)
	}
}

func TestLoadFromPath_Missing(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_ProjectOverridesUser(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	if err := os.MkdirAll(filepath.Join(xdg, "marathon"), 0755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, filepath.Join(xdg, "marathon"), "config.yaml", "retry:\n  max_attempts: 4\nsession:\n  max_sessions: 9\n")

	project := t.TempDir()
	writeConfig(t, project, ProjectConfigName, "retry:\n  max_attempts: 6\n")
	sub := filepath.Join(project, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(sub)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Retry.MaxAttempts != 6 {
		t.Errorf("project config should win, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Session.MaxSessions != 9 {
		t.Errorf("user config should apply, got %d", cfg.Session.MaxSessions)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero hard limit", func(c *Config) { c.Budget.HardLimit = 0 }, "budget.hard_limit"},
		{"reserve too large", func(c *Config) { c.Budget.ReserveFraction = 1 }, "budget.reserve_fraction"},
		{"no attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"negative delay", func(c *Config) { c.Retry.Delay = -time.Second }, "retry.delay"},
		{"no timeout", func(c *Config) { c.Session.Timeout = 0 }, "session.timeout"},
		{"unknown worker", func(c *Config) { c.Worker.Kind = "gpt" }, "worker.kind"},
		{"no state dir", func(c *Config) { c.State.Dir = "" }, "state.dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")
	if got := expandEnv("prefix-${TEST_VAR}-suffix"); got != "prefix-expanded-value-suffix" {
		t.Errorf("expandEnv = %q", got)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if dir := getUserConfigDir(); dir != "/custom/config/marathon" {
		t.Errorf("expected /custom/config/marathon, got %q", dir)
	}
}
