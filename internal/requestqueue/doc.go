// Package requestqueue limits how many backend requests run at once and
// collapses duplicate requests for the same logical key.
//
// # Overview
//
// Every outbound portal call made on behalf of the console goes through a
// single Queue. Callers identify a request by key; while a request for a key
// is waiting or in flight, further calls with that key attach to it and
// receive the same result or error. The underlying operation runs once.
//
// # Admission
//
// At most MaxConcurrent operations run at a time (default 3). Calls that
// arrive at capacity join a FIFO waiting list and start strictly in arrival
// order as slots free up. When an operation settles the next waiting entry
// starts immediately; if more remain, the following admission attempt is
// deferred by ProcessingDelay (default 300ms) on the injected scheduler.
//
//	Do(key) ──> joined? ──yes──> wait for shared result
//	             │no
//	             ├─ slot free ──> run ──> settle ──> start next waiting
//	             └─ at capacity ─> waiting list (FIFO)
//
// # Failures and cancellation
//
// Operation errors are returned unchanged to every caller sharing the key.
// The queue never retries and a failure never stalls other work. Panics are
// recovered and returned as errors wrapping ErrPanicked.
//
// The operation receives a context that keeps the creating caller's values
// but not its cancellation. Any caller whose own context ends stops waiting
// with ctx.Err() and leaves the shared operation to the others. Only when
// the last waiter leaves is the operation's context cancelled (cooperatively:
// the operation must honour ctx) and the key released, so a later caller
// starts a fresh operation. An entry abandoned while still waiting for a
// slot is dropped without running.
//
// # Usage
//
//	q := requestqueue.New(requestqueue.Config{MaxConcurrent: 3}, clock.Real{}, logger)
//	items, err := requestqueue.Enqueue(ctx, q, "requests:open", func(ctx context.Context) ([]portal.ServiceRequest, error) {
//		return client.ListRequests(ctx, filter)
//	})
package requestqueue
