package main

import (
	"fmt"
	"os/exec"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/marathon/internal/config"
	"github.com/ShayCichocki/marathon/internal/worker"
)

// buildWorker creates the configured code-generation backend for the
// repository at root.
func buildWorker(c *config.Config, root string, changes worker.ChangeDetector) (worker.Worker, error) {
	switch c.Worker.Kind {
	case config.WorkerCLI:
		if err := checkCLI(c.Worker.CLIPath); err != nil {
			return nil, err
		}
		return worker.NewCLIWorker(worker.CLIConfig{
			Path:     c.Worker.CLIPath,
			Model:    c.Worker.Model,
			RepoRoot: root,
			Changes:  changes,
		}), nil

	case config.WorkerAPI:
		clientCfg := worker.ClientConfig{
			Model:         anthropic.Model(c.Worker.Model),
			UseAWSBedrock: c.Worker.Bedrock.Enabled,
			AWSRegion:     c.Worker.Bedrock.Region,
			AWSProfile:    c.Worker.Bedrock.Profile,
		}
		if !clientCfg.UseAWSBedrock {
			key, err := config.GetAPIKey(c)
			if err != nil {
				return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY or worker.api_key", err)
			}
			clientCfg.APIKey = key
		}
		client, err := worker.NewClient(clientCfg)
		if err != nil {
			return nil, fmt.Errorf("create API client: %w", err)
		}
		return worker.NewAPIWorker(worker.APIConfig{
			Client:        client,
			RepoRoot:      root,
			MaxIterations: c.Worker.MaxIterations,
			Changes:       changes,
		})

	default:
		return nil, fmt.Errorf("unknown worker kind %q", c.Worker.Kind)
	}
}

// checkCLI verifies that the claude CLI is available.
// Returns an error with installation instructions if not found.
func checkCLI(path string) error {
	if path == "" {
		path = worker.DefaultCLIPath
	}
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("%s not found in PATH\n\n"+
			"The cli worker requires the Claude Code CLI. Install it with:\n"+
			"  npm install -g @anthropic-ai/claude-code\n\n"+
			"or set worker.kind to \"api\" to use the Anthropic API directly", path)
	}
	return nil
}
