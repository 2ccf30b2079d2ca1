// Package app is the composition root of the security-services console.
//
// Run wires the layers together:
//
//	┌──────────────┐
//	│   Run()      │
//	└──────┬───────┘
//	       ├─────> config.Load()         TOML, .env, environment
//	       ├─────> logging.New()         JSON log file
//	       ├─────> portal.NewClient()    REST client
//	       ├─────> requestqueue.New()    bounded, coalescing admission
//	       ├─────> respcache.New()       TTL cache over the queue
//	       ├─────> portal.NewService()   cached reads, invalidating writes
//	       ├─────> notify.NewDispatcher() rate limited, grouped toasts
//	       ├─────> poll.New().Start()    Checker.Check on a visibility-aware timer
//	       └─────> ui.Run()              TUI (blocks)
//
// Checker is the update check. Each run lists open requests and fetches desk
// stats concurrently, writes the result to state.Store, and compares the list
// with the previous successful run to raise new-request, status-change and
// assignment events. A request that drops out of the open list is reported
// as a status change once. The first run only records a baseline.
//
// Check failures are recorded in the store and the next tick retries; the
// previous data and baseline are kept. A check cancelled because it was
// superseded or the poller stopped leaves everything untouched.
package app
