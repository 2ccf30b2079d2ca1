// Package state provides thread-safe state shared between the background
// checker and the console UI.
//
// # Overview
//
// The checker writes the latest open requests, desk counters and error
// state after every poll; the UI reads an independent copy on each refresh
// tick. Notifications that were actually shown are pushed into a short
// history so the UI can render a toast strip.
//
//	Checker (poll goroutine)           UI (bubbletea)
//	  Update(requests, stats, err)  →  Snapshot() → render
//	  PushNotifications(shown)      →
//
// # Update Semantics
//
// A successful Update replaces requests and stats, clears LastError and
// resets ConsecutiveFailures. A failed Update keeps the previous data,
// records the error and increments ConsecutiveFailures. IsOffline reports
// true after two consecutive failures.
//
// # Notifications
//
// PushNotifications keeps the most recent MaxNotifications entries, newest
// first. Within a batch the last element is treated as newest.
//
// # Copying
//
// Snapshot deep-copies request slices, the stats maps and the notification
// history, and wraps LastError in a fresh value, so readers may mutate what
// they get. The zero Store is ready to use.
package state
