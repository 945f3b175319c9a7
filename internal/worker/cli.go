package worker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultCLIPath is the claude binary looked up on PATH.
const DefaultCLIPath = "claude"

// CLIConfig configures a CLIWorker.
type CLIConfig struct {
	// Path is the claude executable. Defaults to DefaultCLIPath.
	Path string
	// Model is passed with --model when set.
	Model string
	// RepoRoot is the working directory of the process.
	RepoRoot string
	// Changes lists modified files after the process exits.
	Changes ChangeDetector
}

// CLIWorker runs the claude CLI in print mode and reads its stream-json output.
type CLIWorker struct {
	cfg CLIConfig
}

// NewCLIWorker creates a CLI-backed worker.
func NewCLIWorker(cfg CLIConfig) *CLIWorker {
	if cfg.Path == "" {
		cfg.Path = DefaultCLIPath
	}
	return &CLIWorker{cfg: cfg}
}

func (w *CLIWorker) args(prompt string) []string {
	args := []string{
		"--output-format", "stream-json",
		"--print",
		"--verbose",
		"--allowedTools", "Read,Write,Edit,Bash",
	}
	if w.cfg.Model != "" {
		args = append(args, "--model", w.cfg.Model)
	}
	return append(args, "-p", prompt)
}

// Invoke starts the process, collects the transcript and waits for exit.
func (w *CLIWorker) Invoke(ctx context.Context, prompt string, files []string) (Output, error) {
	cmd := exec.CommandContext(ctx, w.cfg.Path, w.args(prompt)...)
	cmd.Dir = w.cfg.RepoRoot
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Output{}, fmt.Errorf("create stdout pipe: %w", err)
	}
	var stderr lockedBuffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Output{}, fmt.Errorf("start %s: %w", w.cfg.Path, err)
	}

	out, readErr := readStream(stdout)
	waitErr := cmd.Wait()

	if w.cfg.Changes != nil {
		changed, err := w.cfg.Changes.ChangedFiles()
		if err == nil {
			out.ModifiedFiles = mergeFiles(changed)
		}
	}

	if waitErr != nil {
		msg := fmt.Sprintf("claude exited: %v", waitErr)
		if ctx.Err() != nil {
			msg += fmt.Sprintf(" (context: %v)", ctx.Err())
		}
		if s := strings.TrimSpace(stderr.String()); s != "" {
			msg += "; stderr: " + tail(s, 2000)
		}
		return out.Output, fmt.Errorf("%s", msg)
	}
	if readErr != nil {
		return out.Output, readErr
	}
	if out.failed {
		return out.Output, fmt.Errorf("claude reported an error: %s", tail(out.Summary, 2000))
	}
	return out.Output, nil
}

type streamOutput struct {
	Output
	failed bool
}

// readStream consumes stream-json lines until EOF.
func readStream(r io.Reader) (streamOutput, error) {
	var out streamOutput
	var transcript strings.Builder

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		event, err := parseStreamEvent(line)
		if err != nil {
			fmt.Fprintf(&transcript, "[unparsed] %s\n", tail(string(line), 200))
			continue
		}
		switch event.Type {
		case StreamEventAssistant:
			if event.Text != "" {
				fmt.Fprintf(&transcript, "assistant: %s\n", event.Text)
			}
			for _, action := range event.ToolActions {
				fmt.Fprintf(&transcript, "tool: %s\n", action)
			}
		case StreamEventResult:
			out.Summary = event.Text
			out.TokensIn += event.TokensIn
			out.TokensOut += event.TokensOut
			out.failed = event.IsError
			fmt.Fprintf(&transcript, "result: %s\n", event.Text)
		case StreamEventError:
			fmt.Fprintf(&transcript, "error: %s\n", event.Text)
		}
	}
	out.Transcript = transcript.String()
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("read stream: %w", err)
	}
	return out, nil
}

// lockedBuffer is written by the exec copier goroutine and read after Wait.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

var _ Worker = (*CLIWorker)(nil)
