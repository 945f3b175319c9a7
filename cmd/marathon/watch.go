package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/marathon/internal/tui"
)

var watchExit bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a run from another terminal",
	Long: `Open a live view of .marathon/run.json. The view refreshes every
tui.refresh_rate and works while 'marathon run' is active in another terminal.

Keys: p pause, s stop, q quit the view (the run keeps going).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := newWorkspace(cfg)
		if err != nil {
			return err
		}
		program, _ := tui.NewWatchProgram(tui.FileSource(ws.stateDir), tui.Options{
			Refresh:        cfg.TUI.RefreshRate,
			Controls:       signalControls{stateDir: ws.stateDir},
			ExitOnTerminal: watchExit,
		})
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("tui: %w", err)
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchExit, "exit", false, "Exit once the run is no longer running")
}
