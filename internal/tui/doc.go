// Package tui provides the read-only terminal view of a marathon run.
//
// The view polls the run state file, so it works both inside `marathon run --tui`
// and from a second terminal with `marathon watch` while a run is in progress.
// It shows:
//   - Run status and work item counts with a progress bar
//   - The item currently in progress and the controller phase when known
//   - The most recent ledger entries
//   - Items blocked on unpassed dependencies
//
// Usage:
//
//	app := tui.NewWatchApp(tui.FileSource(stateDir), tui.Options{Refresh: time.Second})
//	program := tea.NewProgram(app, tea.WithAltScreen())
//
//	// Optional live phase updates from an in-process controller
//	program.Send(tui.PhaseMsg{Phase: "executing", ItemID: 3})
//
//	// Signal completion
//	program.Send(tui.DoneMsg{Err: err})
//
// Keys: p writes the pause signal, s writes the stop signal, q quits the view.
package tui
