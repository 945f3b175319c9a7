package contextpack

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/marathon/internal/ledger"
	"github.com/ShayCichocki/marathon/pkg/models"
)

// sessionPreamble opens every prompt.
const sessionPreamble = `You are one session in a long-running, checkpointed build.
You have no memory of earlier sessions: everything you need is in this message.
`

// entrySummaryLimit caps each progress line in the prompt.
const entrySummaryLimit = 240

type renderInput struct {
	item        models.WorkItem
	maxAttempts int
	feedback    string
	entries     []models.ProgressEntry
	files       []models.ScopedFile
}

func render(in renderInput) string {
	var sb strings.Builder
	sb.WriteString(sessionPreamble)

	it := in.item
	fmt.Fprintf(&sb, "\n## Work item #%d", it.ID)
	if it.Title != "" {
		sb.WriteString(": ")
		sb.WriteString(it.Title)
	}
	sb.WriteString("\n\n")
	if it.Category != "" {
		fmt.Fprintf(&sb, "Category: %s\n\n", it.Category)
	}
	sb.WriteString(strings.TrimSpace(it.Description))
	sb.WriteString("\n")

	if len(it.ValidationSteps) > 0 {
		sb.WriteString("\n## Acceptance checks\n\n")
		sb.WriteString("The item is accepted only when every check passes:\n\n")
		for _, st := range it.ValidationSteps {
			expect := st.Expect
			if expect == "" {
				expect = "exit 0"
			}
			fmt.Fprintf(&sb, "- %s: `%s` (expect %s)\n", st.DisplayName(), st.Command, expect)
		}
	}

	if in.feedback != "" {
		attempt := it.AttemptCount + 1
		if in.maxAttempts > 0 {
			fmt.Fprintf(&sb, "\n## Feedback from the previous attempt (this is attempt %d of %d)\n\n", attempt, in.maxAttempts)
		} else {
			fmt.Fprintf(&sb, "\n## Feedback from the previous attempt (this is attempt %d)\n\n", attempt)
		}
		sb.WriteString("```\n")
		sb.WriteString(in.feedback)
		sb.WriteString("\n```\n")
		sb.WriteString("Address these issues first.\n")
	}

	if len(in.entries) > 0 {
		sb.WriteString("\n## Recent progress\n\n")
		sb.WriteString(ledger.Summarize(in.entries))
		sb.WriteString("\n\n")
		for _, e := range in.entries {
			line := fmt.Sprintf("- Session %d, item #%d, attempt %d: %s", e.SessionIndex, e.WorkItemID, e.Attempt, e.Outcome)
			if e.ErrorKind != "" {
				line += " [" + e.ErrorKind + "]"
			}
			if s := strings.Join(strings.Fields(e.Summary), " "); s != "" {
				line += ": " + models.Truncate(s, entrySummaryLimit)
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	if len(in.files) > 0 {
		sb.WriteString("\n## Files in scope\n\n")
		for _, f := range in.files {
			if f.Missing {
				fmt.Fprintf(&sb, "### %s (new file)\n\nThis file does not exist yet. Create it.\n\n", f.Path)
				continue
			}
			fmt.Fprintf(&sb, "### %s\n\n```\n", f.Path)
			sb.WriteString(f.Content)
			if !strings.HasSuffix(f.Content, "\n") {
				sb.WriteString("\n")
			}
			sb.WriteString("```\n\n")
		}
	}

	sb.WriteString("\n## Instructions\n\n")
	sb.WriteString("Complete only this work item. Work within the files listed above and any new files the item requires; ")
	sb.WriteString("do not survey the rest of the repository. Do not commit: the orchestrator validates and commits your changes. ")
	sb.WriteString("When finished, reply with a one-paragraph summary of what you changed.\n")

	return sb.String()
}

// truncateFeedback keeps the head of long failure output.
func truncateFeedback(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 {
		return s
	}
	return models.TruncateWith(s, max, "\n... [truncated]")
}
