package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// DefaultMaxIterations bounds the request/tool cycle of one invocation.
const DefaultMaxIterations = 50

const apiSystemPrompt = `You are a careful software engineer working inside a git repository.
Use the tools to read, edit and test code. Paths are relative to the repository root.
Stop when the work item is done and reply with a short summary.`

// APIConfig configures an APIWorker.
type APIConfig struct {
	Client        *Client
	RepoRoot      string
	MaxIterations int
	// MaxTokens caps each response. Defaults to 8192.
	MaxTokens int64
	// Changes is consulted after the loop to catch files changed through Bash.
	Changes ChangeDetector
}

// APIWorker drives the Messages API with a repository-confined tool set.
type APIWorker struct {
	cfg APIConfig
}

// NewAPIWorker creates an API-backed worker.
func NewAPIWorker(cfg APIConfig) (*APIWorker, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("api worker requires a client")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	return &APIWorker{cfg: cfg}, nil
}

// Invoke runs the request/tool loop until the model ends its turn.
func (w *APIWorker) Invoke(ctx context.Context, prompt string, files []string) (Output, error) {
	tools := NewToolExecutor(w.cfg.RepoRoot)
	var out Output
	var transcript strings.Builder

	finish := func() {
		out.Transcript = transcript.String()
		changed := tools.Written()
		if w.cfg.Changes != nil {
			if detected, err := w.cfg.Changes.ChangedFiles(); err == nil {
				changed = mergeFiles(changed, detected)
			}
		}
		out.ModifiedFiles = changed
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	}

	for iteration := 1; iteration <= w.cfg.MaxIterations; iteration++ {
		resp, err := w.cfg.Client.messages().New(ctx, anthropic.MessageNewParams{
			Model:     w.cfg.Client.Model(),
			MaxTokens: w.cfg.MaxTokens,
			System: []anthropic.TextBlockParam{
				{Text: apiSystemPrompt},
			},
			Messages: messages,
			Tools:    ToolDefinitions(),
		})
		if err != nil {
			finish()
			return out, fmt.Errorf("API call failed: %w", err)
		}

		out.TokensIn += resp.Usage.InputTokens
		out.TokensOut += resp.Usage.OutputTokens

		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResultBlocks []anthropic.ContentBlockParamUnion
		var text strings.Builder

		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				text.WriteString(variant.Text)
				fmt.Fprintf(&transcript, "assistant: %s\n", variant.Text)
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))

			case anthropic.ToolUseBlock:
				fmt.Fprintf(&transcript, "tool: %s\n", FormatToolAction(variant.Name, variant.Input))
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))

				result := tools.Execute(ctx, variant.Name, variant.Input)
				toolResultBlocks = append(toolResultBlocks,
					anthropic.NewToolResultBlock(variant.ID, result.Content, result.IsError))
			}
		}

		if resp.StopReason == anthropic.StopReasonEndTurn || len(toolResultBlocks) == 0 {
			out.Summary = text.String()
			finish()
			return out, nil
		}

		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		messages = append(messages, anthropic.NewUserMessage(toolResultBlocks...))
	}

	finish()
	return out, fmt.Errorf("max iterations (%d) reached", w.cfg.MaxIterations)
}

var _ Worker = (*APIWorker)(nil)
