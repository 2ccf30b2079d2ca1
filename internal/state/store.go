package state

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/bigschom/ssportal/internal/notify"
	"github.com/bigschom/ssportal/internal/portal"
)

// MaxNotifications bounds the recent-notification history.
const MaxNotifications = 20

// Snapshot represents the latest data available to the UI.
type Snapshot struct {
	Requests            []portal.ServiceRequest
	Stats               portal.DeskStats
	HasStats            bool
	Notifications       []notify.Notification // most recent first
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive check failures
}

// IsOffline returns true when the API has been unreachable for multiple checks.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Update replaces the stored requests and stats. When err is non-nil the
// previous data is kept but the error is recorded for visibility.
func (s *Store) Update(requests []portal.ServiceRequest, stats *portal.DeskStats, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.LastUpdated = time.Now()
		s.snapshot.ConsecutiveFailures++
		return
	}

	s.snapshot.Requests = cloneRequests(requests)
	if stats != nil {
		s.snapshot.Stats = cloneStats(*stats)
		s.snapshot.HasStats = true
	} else {
		s.snapshot.HasStats = false
	}
	s.snapshot.LastError = nil
	s.snapshot.LastUpdated = time.Now()
	s.snapshot.ConsecutiveFailures = 0
}

// PushNotifications prepends shown notifications to the history, newest
// first, keeping at most MaxNotifications.
func (s *Store) PushNotifications(shown []notify.Notification) {
	if len(shown) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]notify.Notification, 0, len(shown)+len(s.snapshot.Notifications))
	for i := len(shown) - 1; i >= 0; i-- {
		merged = append(merged, shown[i])
	}
	merged = append(merged, s.snapshot.Notifications...)
	if len(merged) > MaxNotifications {
		merged = merged[:MaxNotifications]
	}
	s.snapshot.Notifications = merged
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Requests = cloneRequests(s.snapshot.Requests)
	snap.Stats = cloneStats(s.snapshot.Stats)
	if len(s.snapshot.Notifications) > 0 {
		snap.Notifications = append([]notify.Notification(nil), s.snapshot.Notifications...)
	}
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func cloneRequests(items []portal.ServiceRequest) []portal.ServiceRequest {
	if len(items) == 0 {
		return nil
	}
	dup := make([]portal.ServiceRequest, len(items))
	copy(dup, items)
	return dup
}

func cloneStats(stats portal.DeskStats) portal.DeskStats {
	stats.ByStatus = maps.Clone(stats.ByStatus)
	stats.ByServiceType = maps.Clone(stats.ByServiceType)
	return stats
}
