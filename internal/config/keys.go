package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when the api worker has no key to use.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// KeySource says where an API key was found.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// ResolveAPIKey looks for the key in ANTHROPIC_API_KEY, then in
// worker.api_key. A config value that still reads "${VAR}" after expansion
// refers to an unset variable and does not count.
func ResolveAPIKey(cfg *Config) (string, KeySource) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, KeySourceEnv
	}
	if cfg == nil {
		return "", KeySourceNone
	}
	key := strings.TrimSpace(os.ExpandEnv(cfg.Worker.APIKey))
	if key == "" || strings.HasPrefix(key, "${") {
		return "", KeySourceNone
	}
	return key, KeySourceConfig
}

// GetAPIKey returns the resolved key or ErrNoAPIKey.
func GetAPIKey(cfg *Config) (string, error) {
	key, src := ResolveAPIKey(cfg)
	if src == KeySourceNone {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// GetAPIKeySource returns where the key would be loaded from.
func GetAPIKeySource(cfg *Config) KeySource {
	_, src := ResolveAPIKey(cfg)
	return src
}

// MaskAPIKey keeps the "sk-ant-" prefix and the last four characters.
func MaskAPIKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 15:
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
