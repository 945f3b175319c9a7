package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ShayCichocki/marathon/internal/state"
	"github.com/ShayCichocki/marathon/pkg/models"
)

// reportRecent is how many sessions the report lists.
const reportRecent = 15

// BlockedItem is a pending item waiting on dependencies that are not passed.
type BlockedItem struct {
	ID       int
	Blockers []int
}

// BlockedItems lists pending items with unpassed dependencies, in ID order.
func BlockedItems(st *models.RunState) []BlockedItem {
	var out []BlockedItem
	for _, it := range st.WorkItems {
		if it.Status != models.ItemPending {
			continue
		}
		var blockers []int
		for _, dep := range it.DependsOn {
			if d := st.Item(dep); d != nil && d.Status != models.ItemPassed {
				blockers = append(blockers, dep)
			}
		}
		if len(blockers) > 0 {
			sort.Ints(blockers)
			out = append(out, BlockedItem{ID: it.ID, Blockers: blockers})
		}
	}
	return out
}

// RenderReport renders the Markdown progress report.
func RenderReport(st *models.RunState, checkpoints []models.Checkpoint) string {
	commits := make(map[int]string, len(checkpoints))
	for _, cp := range checkpoints {
		commits[cp.WorkItemID] = cp.CommitReference
	}

	var sb strings.Builder
	sb.WriteString("# Marathon progress\n\n")
	fmt.Fprintf(&sb, "- Run: `%s`\n", st.RunID)
	status := string(st.Status)
	if st.StatusReason != "" {
		status += " (" + st.StatusReason + ")"
	}
	fmt.Fprintf(&sb, "- Status: %s\n", status)
	fmt.Fprintf(&sb, "- Sessions: %d\n", st.SessionCount)
	fmt.Fprintf(&sb, "- Updated: %s\n\n", st.UpdatedAt.UTC().Format(time.RFC3339))

	counts := st.CountByStatus()
	sb.WriteString("## Summary\n\n| Status | Count |\n|---|---|\n")
	for _, s := range []models.ItemStatus{models.ItemPassed, models.ItemPending, models.ItemInProgress, models.ItemFailed, models.ItemSkipped} {
		fmt.Fprintf(&sb, "| %s | %d |\n", s, counts[s])
	}

	sb.WriteString("\n## Work items\n\n| ID | Title | Status | Attempts | Checkpoint | Last error |\n|---|---|---|---|---|---|\n")
	for _, it := range st.WorkItems {
		title := it.Title
		if title == "" {
			title = it.Label()
		}
		fmt.Fprintf(&sb, "| %d | %s | %s | %d | %s | %s |\n",
			it.ID, cell(title, 60), it.Status, it.AttemptCount, shortRef(commits[it.ID]), cell(it.LastError, 80))
	}

	if blocked := BlockedItems(st); len(blocked) > 0 {
		sb.WriteString("\n## Blocked\n\n")
		for _, b := range blocked {
			parts := make([]string, len(b.Blockers))
			for i, dep := range b.Blockers {
				parts[i] = fmt.Sprintf("#%d (%s)", dep, st.Item(dep).Status)
			}
			fmt.Fprintf(&sb, "- #%d waits on %s\n", b.ID, strings.Join(parts, ", "))
		}
	}

	if n := len(st.Ledger); n > 0 {
		sb.WriteString("\n## Recent sessions\n\n")
		start := 0
		if n > reportRecent {
			start = n - reportRecent
		}
		for _, e := range st.Ledger[start:] {
			line := fmt.Sprintf("- Session %d: item #%d attempt %d, %s", e.SessionIndex, e.WorkItemID, e.Attempt, e.Outcome)
			if e.ErrorKind != "" {
				line += " [" + e.ErrorKind + "]"
			}
			if e.Summary != "" {
				line += ": " + oneLine(e.Summary, 120)
			}
			sb.WriteString(line + "\n")
		}
	}

	return sb.String()
}

// WriteReport renders the report and writes it atomically to path.
func WriteReport(path string, st *models.RunState, checkpoints []models.Checkpoint) error {
	if err := state.WriteFileAtomic(path, []byte(RenderReport(st, checkpoints)), 0o644); err != nil {
		return fmt.Errorf("write progress report: %w", err)
	}
	return nil
}

func shortRef(ref string) string {
	if len(ref) > 12 {
		return ref[:12]
	}
	return ref
}

func cell(s string, max int) string {
	return strings.ReplaceAll(oneLine(s, max), "|", "\\|")
}

func oneLine(s string, max int) string {
	return models.Truncate(strings.Join(strings.Fields(s), " "), max)
}
