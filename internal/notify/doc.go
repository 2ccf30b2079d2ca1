// Package notify keeps update notifications from flooding the operator.
//
// RateLimiter applies two independent throttles: a global cap on how many
// notifications appear in any rolling minute, and a per-tag cooldown so a
// single recurring subject cannot nag. It also tracks when recent volume
// for a tag prefix is high enough that new events should be grouped.
//
// Dispatcher sits between an update check and the display Sink. It prunes
// old records, collapses busy kinds into a single "You have N ..." entry,
// consults the limiter and records only what the sink actually displayed.
// A sink that reports ErrUnavailable is treated as a normal condition.
package notify
