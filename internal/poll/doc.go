// Package poll drives periodic update checks for the console.
//
// # Overview
//
// An Orchestrator owns the timers around an application-supplied CheckFunc.
// After Start it waits StartupDelay before the first check so that a fresh
// launch does not immediately hit the backend, then checks every Interval.
//
// # Gating
//
// A check runs only when all of these hold:
//
//   - the console is visible (Visibility, fed from terminal focus events)
//   - no other check is in flight, forced or not
//   - Throttle has elapsed since the previous check, unless forced
//
// Becoming visible schedules a forced check after VisibilitySettle. Manual
// refreshes call Trigger(true).
//
// # Cancellation
//
// Each check gets its own context. Stop cancels it, clears the startup,
// interval and settle timers, and drops the visibility subscription. A check
// that returns after being cancelled leaves the orchestrator's state alone,
// and its cancellation is logged at debug level only. Until such a check
// actually returns, no new check starts, even after a restart. Genuine
// failures are logged and never stop the timer loop.
//
//	idle ──tick──> checking ──done──> idle
//	  └────────── Stop ──────────> cancelled
package poll
