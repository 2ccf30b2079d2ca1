package portal

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/bigschom/ssportal/internal/respcache"
)

const (
	requestsKeyPrefix = "requests:"
	requestKeyPrefix  = "request:"
	statsKey          = "stats"
	statsTTL          = time.Minute
)

// Service is the cached access layer used by the console. Reads go through
// the response cache (and therefore the request queue); writes go straight
// to the backend and invalidate what they affect.
type Service struct {
	fetcher Fetcher
	cache   *respcache.Cache
	log     *zap.SugaredLogger
}

// NewService wraps fetcher with cache.
func NewService(fetcher Fetcher, cache *respcache.Cache, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{fetcher: fetcher, cache: cache, log: log}
}

// ListRequests returns requests matching filter.
func (s *Service) ListRequests(ctx context.Context, filter RequestFilter) ([]ServiceRequest, error) {
	return respcache.Get(ctx, s.cache, requestsKeyPrefix+filter.Key(), func(ctx context.Context) ([]ServiceRequest, error) {
		return s.fetcher.ListRequests(ctx, filter)
	})
}

// GetRequest returns a single request.
func (s *Service) GetRequest(ctx context.Context, id int64) (*ServiceRequest, error) {
	return respcache.Get(ctx, s.cache, requestKey(id), func(ctx context.Context) (*ServiceRequest, error) {
		return s.fetcher.GetRequest(ctx, id)
	})
}

// Stats returns desk counters, cached longer than request lists.
func (s *Service) Stats(ctx context.Context) (*DeskStats, error) {
	return respcache.GetWithTTL(ctx, s.cache, statsKey, statsTTL, func(ctx context.Context) (*DeskStats, error) {
		return s.fetcher.FetchStats(ctx)
	})
}

// UpdateStatus writes a status change and drops cached views of it.
func (s *Service) UpdateStatus(ctx context.Context, id int64, update StatusUpdate) (*ServiceRequest, error) {
	updated, err := s.fetcher.UpdateStatus(ctx, id, update)
	if err != nil {
		return nil, fmt.Errorf("update request %d: %w", id, err)
	}
	s.cache.Invalidate(requestKey(id))
	s.Refresh()
	s.log.Infow("request updated", "id", id, "status", update.Status, "assigned_to", update.AssignedTo)
	return updated, nil
}

// Refresh drops cached lists and stats so the next read hits the backend.
func (s *Service) Refresh() {
	s.cache.InvalidatePrefix(requestsKeyPrefix)
	s.cache.Invalidate(statsKey)
}

func requestKey(id int64) string {
	return requestKeyPrefix + strconv.FormatInt(id, 10)
}
