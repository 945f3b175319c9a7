package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/marathon/internal/signals"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Ask a running marathon to pause after the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := newWorkspace(cfg)
		if err != nil {
			return err
		}
		if err := signals.SendPause(ws.stateDir); err != nil {
			return err
		}
		printStatus("✓", "Pause requested; the run stops after its current session", color.FgGreen)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running marathon to stop after the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := newWorkspace(cfg)
		if err != nil {
			return err
		}
		if err := signals.SendStop(ws.stateDir); err != nil {
			return err
		}
		printStatus("✓", "Stop requested; the run stops after its current session", color.FgGreen)
		return nil
	},
}

var resumeSignalCmd = &cobra.Command{
	Use:   "resume-signal",
	Short: "Withdraw a pending pause or stop request",
	Long: `Remove the pause and stop signal files. A run that already paused is
resumed with 'marathon run'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := newWorkspace(cfg)
		if err != nil {
			return err
		}
		if err := signals.Clear(ws.stateDir); err != nil {
			return err
		}
		printStatus("✓", "Pending signals cleared", color.FgGreen)
		return nil
	},
}

// signalControls lets the live view send operator signals.
type signalControls struct {
	stateDir string
}

func (c signalControls) Pause() error { return signals.SendPause(c.stateDir) }
func (c signalControls) Stop() error  { return signals.SendStop(c.stateDir) }
