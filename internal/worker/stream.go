package worker

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ShayCichocki/marathon/pkg/models"
)

// StreamEventType represents the type of stream event from the claude CLI.
type StreamEventType string

const (
	StreamEventSystem    StreamEventType = "system"
	StreamEventAssistant StreamEventType = "assistant"
	StreamEventUser      StreamEventType = "user"
	StreamEventResult    StreamEventType = "result"
	StreamEventError     StreamEventType = "error"
)

// StreamEvent is one parsed line of --output-format stream-json.
type StreamEvent struct {
	Type StreamEventType
	// Text is the assistant text, the final result, or the error message.
	Text string
	// ToolActions describe tool calls in an assistant message (e.g. "Editing calc.go").
	ToolActions []string
	// IsError is set on a result event that reports failure.
	IsError   bool
	TokensIn  int64
	TokensOut int64
}

type rawStreamLine struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
	Result  string          `json:"result"`
	IsError bool            `json:"is_error"`
	Error   string          `json:"error"`
	Usage   *struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

type rawMessage struct {
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
}

// parseStreamEvent parses a JSON line into a StreamEvent.
func parseStreamEvent(data []byte) (StreamEvent, error) {
	var raw rawStreamLine
	if err := json.Unmarshal(data, &raw); err != nil {
		return StreamEvent{}, fmt.Errorf("unmarshal json: %w", err)
	}

	event := StreamEvent{Type: StreamEventType(raw.Type)}
	switch event.Type {
	case StreamEventSystem, StreamEventAssistant, StreamEventUser:
		var s string
		if err := json.Unmarshal(raw.Message, &s); err == nil {
			event.Text = s
			break
		}
		var msg rawMessage
		if err := json.Unmarshal(raw.Message, &msg); err == nil {
			var texts []string
			for _, block := range msg.Content {
				switch block.Type {
				case "text":
					texts = append(texts, block.Text)
				case "tool_use":
					event.ToolActions = append(event.ToolActions, FormatToolAction(block.Name, block.Input))
				}
			}
			event.Text = strings.Join(texts, "")
		}
	case StreamEventResult:
		event.Text = raw.Result
		event.IsError = raw.IsError
		if raw.Usage != nil {
			event.TokensIn = raw.Usage.InputTokens
			event.TokensOut = raw.Usage.OutputTokens
		}
	case StreamEventError:
		event.Text = raw.Error
		if event.Text == "" {
			_ = json.Unmarshal(raw.Message, &event.Text)
		}
	}
	return event, nil
}

// FormatToolAction returns a human-readable description of a tool call.
func FormatToolAction(name string, input json.RawMessage) string {
	var p struct {
		FilePath    string `json:"file_path"`
		Command     string `json:"command"`
		Description string `json:"description"`
	}
	_ = json.Unmarshal(input, &p)

	switch name {
	case "Read":
		return "Reading " + filepath.Base(p.FilePath)
	case "Write":
		return "Writing " + filepath.Base(p.FilePath)
	case "Edit":
		return "Editing " + filepath.Base(p.FilePath)
	case "Bash":
		if p.Description != "" {
			return p.Description
		}
		cmd := strings.Fields(p.Command)
		if len(cmd) == 0 {
			return "Running command"
		}
		return "Running " + models.Truncate(cmd[0], 20)
	default:
		return name
	}
}
