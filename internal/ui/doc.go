// Package ui provides the terminal console for the security-services desk.
//
// The UI is a Bubble Tea program. Its view is never read from the backend
// directly: the poll orchestrator runs checks in the background and writes
// results to state.Store, and the model copies a snapshot on every tick.
// Writes (claim, complete) and forced refreshes run as tea.Cmds so the event
// loop never blocks on the network. Before a write the request is re-read,
// and a claim on a request that is closed or owned by someone else is refused.
//
// # Views
//
//   - Queue: request table with a detail pane, filtered by f (all, new,
//     in progress, mine) and sorted by priority, status and age
//   - Logs: tail of the console's own JSON log, rendered through logtail
//
// # Notifications
//
// Sink is the notify.Sink the dispatcher writes to. Notifications cross into
// the event loop as messages and are shown as toasts under the header for
// ToastLifetime. m mutes the dispatcher and persists the choice in prefs.
//
// # Focus
//
// Terminal focus reports (tea.FocusMsg, tea.BlurMsg) feed Options.Focus, which
// the orchestrator uses as its visibility signal: checks pause while the
// terminal is in the background and a settled refocus triggers one.
//
// # Key Bindings
//
//   - q / l: Queue and log views
//   - j/k, g/G, ctrl+d/u: Navigate
//   - c: Claim the selected request
//   - x: Complete the selected request
//   - r: Force a refresh
//   - f: Cycle filter
//   - m: Mute or unmute notifications
//   - Space: Toggle log auto-tail
//   - T: Cycle theme
//   - h or ?: Help
//   - e or Ctrl+C: Exit
package ui
