package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/marathon/internal/ledger"
	"github.com/ShayCichocki/marathon/internal/signals"
	"github.com/ShayCichocki/marathon/internal/state"
	"github.com/ShayCichocki/marathon/pkg/models"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the current run",
	Long: `Display the current run.

Shows:
  - Run status, session count and token usage
  - Every work item with its status, attempts and checkpoint commit
  - Items blocked on unpassed dependencies
  - Pending operator signals
  - The most recent sessions`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the status as JSON")
}

// statusReport is the machine-readable run summary.
type statusReport struct {
	RunID          string                 `json:"run_id"`
	Status         models.RunStatus       `json:"status"`
	Reason         string                 `json:"reason,omitempty"`
	Sessions       int                    `json:"sessions"`
	Counts         map[string]int         `json:"counts"`
	TokensIn       int64                  `json:"tokens_in"`
	TokensOut      int64                  `json:"tokens_out"`
	PauseRequested bool                   `json:"pause_requested"`
	StopRequested  bool                   `json:"stop_requested"`
	Items          []itemStatus           `json:"items"`
	Recent         []models.ProgressEntry `json:"recent"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

type itemStatus struct {
	ID        int               `json:"id"`
	Label     string            `json:"label"`
	Status    models.ItemStatus `json:"status"`
	Attempts  int               `json:"attempts"`
	LastError string            `json:"last_error,omitempty"`
	Commit    string            `json:"commit,omitempty"`
	BlockedOn []int             `json:"blocked_on,omitempty"`
}

// statusRecent is how many ledger entries status shows.
const statusRecent = 5

func buildStatus(ws workspace) (*statusReport, error) {
	rs, err := ws.loadRun()
	if err != nil {
		return nil, err
	}

	rep := &statusReport{
		RunID:     rs.RunID,
		Status:    rs.Status,
		Reason:    rs.StatusReason,
		Sessions:  rs.SessionCount,
		Counts:    make(map[string]int),
		UpdatedAt: rs.UpdatedAt,
	}
	for status, n := range rs.CountByStatus() {
		rep.Counts[string(status)] = n
	}
	rep.PauseRequested, rep.StopRequested = signals.Pending(ws.stateDir)

	commits := make(map[int]string)
	if _, err := os.Stat(state.DBPath(ws.stateDir)); err == nil {
		db, err := state.OpenMigrated(ws.stateDir)
		if err != nil {
			return nil, fmt.Errorf("open registry: %w", err)
		}
		defer db.Close()
		cps, err := db.ListCheckpoints()
		if err != nil {
			return nil, err
		}
		for _, cp := range cps {
			commits[cp.WorkItemID] = cp.CommitReference
		}
		if rep.TokensIn, rep.TokensOut, err = db.TokenTotals(rs.RunID); err != nil {
			return nil, err
		}
	}

	blocked := make(map[int][]int)
	for _, b := range ledger.BlockedItems(rs) {
		blocked[b.ID] = b.Blockers
	}
	for _, it := range rs.WorkItems {
		rep.Items = append(rep.Items, itemStatus{
			ID:        it.ID,
			Label:     it.Label(),
			Status:    it.Status,
			Attempts:  it.AttemptCount,
			LastError: it.LastError,
			Commit:    commits[it.ID],
			BlockedOn: blocked[it.ID],
		})
	}

	start := len(rs.Ledger) - statusRecent
	if start < 0 {
		start = 0
	}
	rep.Recent = append([]models.ProgressEntry{}, rs.Ledger[start:]...)
	return rep, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ws, err := newWorkspace(cfg)
	if err != nil {
		return err
	}
	rep, err := buildStatus(ws)
	if err != nil {
		if errors.Is(err, state.ErrNoRunState) && !statusJSON {
			fmt.Println("No run initialized. Run 'marathon init --backlog <file>' to start.")
			return nil
		}
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	displayStatus(rep)
	return nil
}

func displayStatus(rep *statusReport) {
	fmt.Printf("Run: %s\n", rep.RunID)
	fmt.Printf("  Status: %s", statusColor(rep.Status).Sprint(rep.Status))
	if rep.Reason != "" {
		fmt.Printf(" (%s)", rep.Reason)
	}
	fmt.Println()
	fmt.Printf("  Sessions: %d\n", rep.Sessions)
	if rep.TokensIn+rep.TokensOut > 0 {
		fmt.Printf("  Tokens: %s in / %s out\n", formatNumber(rep.TokensIn), formatNumber(rep.TokensOut))
	}
	fmt.Printf("  Updated: %s ago\n", formatDuration(time.Since(rep.UpdatedAt)))
	if rep.PauseRequested {
		fmt.Printf("  %s\n", color.YellowString("Pause requested"))
	}
	if rep.StopRequested {
		fmt.Printf("  %s\n", color.YellowString("Stop requested"))
	}

	fmt.Printf("\nWork items (%d passed, %d failed, %d pending, %d skipped):\n",
		rep.Counts[string(models.ItemPassed)], rep.Counts[string(models.ItemFailed)],
		rep.Counts[string(models.ItemPending)]+rep.Counts[string(models.ItemInProgress)],
		rep.Counts[string(models.ItemSkipped)])
	for _, it := range rep.Items {
		line := fmt.Sprintf("  %-11s %s", itemColor(it.Status).Sprint(it.Status), it.Label)
		if it.Attempts > 0 {
			line += fmt.Sprintf(" [%d attempts]", it.Attempts)
		}
		if it.Commit != "" {
			line += " " + color.HiBlackString(shortRef(it.Commit))
		}
		fmt.Println(line)
		if len(it.BlockedOn) > 0 {
			fmt.Printf("              waits on %s\n", joinIDs(it.BlockedOn))
		}
		if it.Status == models.ItemFailed && it.LastError != "" {
			fmt.Printf("              %s\n", color.RedString(firstLine(it.LastError)))
		}
	}

	if len(rep.Recent) > 0 {
		fmt.Println("\nRecent sessions:")
		for _, e := range rep.Recent {
			outcome := string(e.Outcome)
			if e.ErrorKind != "" {
				outcome += " (" + e.ErrorKind + ")"
			}
			fmt.Printf("  %4d  #%-3d %-28s %s\n", e.SessionIndex, e.WorkItemID, outcome, firstLine(e.Summary))
		}
	}
}

func statusColor(s models.RunStatus) *color.Color {
	switch s {
	case models.RunCompleted:
		return color.New(color.FgGreen, color.Bold)
	case models.RunPaused, models.RunRunning:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func itemColor(s models.ItemStatus) *color.Color {
	switch s {
	case models.ItemPassed:
		return color.New(color.FgGreen)
	case models.ItemFailed:
		return color.New(color.FgRed)
	case models.ItemInProgress:
		return color.New(color.FgCyan)
	case models.ItemSkipped:
		return color.New(color.FgHiBlack)
	default:
		return color.New(color.FgWhite)
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, mins)
}

// formatNumber formats a number with thousand separators.
func formatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func shortRef(ref string) string {
	if len(ref) > 10 {
		return ref[:10]
	}
	return ref
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = "#" + strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}

func sortedIDs(m map[int]string) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
