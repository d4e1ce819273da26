package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/loan-desk-api/internal/dto"
	appErrors "github.com/noah-isme/loan-desk-api/pkg/errors"
)

type quotaCacheStore interface {
	Get(ctx context.Context, userID, slot string, dest interface{}) error
	Set(ctx context.Context, userID, slot string, value interface{}, ttl time.Duration) error
	Forget(ctx context.Context, userID string) error
}

// QuotaCache memoises quota status per user and trimester. Failures are logged
// and treated as misses; the request counter stays the source of truth.
type QuotaCache struct {
	store   quotaCacheStore
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
}

// NewQuotaCache constructs the cache. A nil store disables caching.
func NewQuotaCache(store quotaCacheStore, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *QuotaCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuotaCache{store: store, metrics: metrics, ttl: ttl, logger: logger}
}

// Enabled reports whether a backing store is configured.
func (c *QuotaCache) Enabled() bool {
	return c != nil && c.store != nil
}

// Load fills dest and returns true on a hit.
func (c *QuotaCache) Load(ctx context.Context, userID, slot string, dest *dto.QuotaStatus) bool {
	if !c.Enabled() {
		return false
	}
	start := time.Now()
	err := c.store.Get(ctx, userID, slot, dest)
	hit := err == nil
	if c.metrics != nil {
		c.metrics.RecordCacheOperation(hit, time.Since(start))
	}
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		c.logger.Warn("quota cache read failed", zap.String("user_id", userID), zap.String("slot", slot), zap.Error(err))
	}
	return hit
}

// Store saves a snapshot for the slot.
func (c *QuotaCache) Store(ctx context.Context, userID, slot string, status *dto.QuotaStatus) {
	if !c.Enabled() {
		return
	}
	start := time.Now()
	err := c.store.Set(ctx, userID, slot, status, c.ttl)
	if c.metrics != nil {
		c.metrics.ObserveCacheWrite(time.Since(start))
	}
	if err != nil {
		c.logger.Warn("quota cache write failed", zap.String("user_id", userID), zap.String("slot", slot), zap.Error(err))
	}
}

// Forget drops every snapshot of the user.
func (c *QuotaCache) Forget(ctx context.Context, userID string) {
	if !c.Enabled() {
		return
	}
	if err := c.store.Forget(ctx, userID); err != nil {
		c.logger.Warn("quota cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}
