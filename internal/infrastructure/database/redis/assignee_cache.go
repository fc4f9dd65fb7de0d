package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/prometheus"
)

const (
	assigneeKeyFormat = "assignees:%d"
	assigneeCacheName = "assignees"

	// assigneeTTL keeps the picker reasonably fresh; newly indexed
	// assignees appear on the next expiry.
	assigneeTTL = 5 * time.Minute
)

// AssigneeCache caches the distinct-assignee listing in front of a
// patent store.  The listing backs the filter picker, so it is read far
// more often than the underlying data changes.
type AssigneeCache struct {
	inner   patent.AssigneeDirectory
	cache   Cache
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

var _ patent.AssigneeDirectory = (*AssigneeCache)(nil)

// NewAssigneeCache wraps inner with cache.
func NewAssigneeCache(inner patent.AssigneeDirectory, cache Cache, metrics *prometheus.AppMetrics, logger logging.Logger) *AssigneeCache {
	return &AssigneeCache{
		inner:   inner,
		cache:   cache,
		metrics: metrics,
		logger:  logger.Named("cache.assignees"),
	}
}

// Assignees implements patent.AssigneeDirectory.  A cache infrastructure
// failure falls back to the store; a store failure is authoritative.
func (a *AssigneeCache) Assignees(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = patent.DefaultAssigneeLimit
	}

	key := fmt.Sprintf(assigneeKeyFormat, limit)
	loaded := false
	var names []string
	err := a.cache.GetOrSet(ctx, key, &names, assigneeTTL, func(ctx context.Context) (interface{}, error) {
		loaded = true
		return a.inner.Assignees(ctx, limit)
	})

	a.metrics.RecordCacheAccess(assigneeCacheName, err == nil && !loaded)

	if err != nil {
		if loaded {
			return nil, err
		}
		a.logger.Warn("assignee cache unavailable, querying store directly", logging.Err(err))
		return a.inner.Assignees(ctx, limit)
	}
	return names, nil
}
