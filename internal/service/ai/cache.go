package ai

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"convanalyzer/internal/logging"
	"convanalyzer/internal/models"
	"convanalyzer/internal/redis"
)

const (
	cacheKeyPrefix  = "convanalyzer:classification:"
	defaultCacheTTL = 7 * 24 * time.Hour
)

// ResultCache keeps validated classifications in redis keyed by prompt fingerprint.
// Every failure is logged and reported as a miss.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewResultCache(client *redis.Client, ttl time.Duration, logger *logging.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &ResultCache{client: client, ttl: ttl, logger: logger}
}

func (c *ResultCache) Load(ctx context.Context, fingerprint string) (*models.Classification, bool) {
	if c == nil || c.client == nil || fingerprint == "" {
		return nil, false
	}
	raw, err := c.client.Get(ctx, cacheKeyPrefix+fingerprint)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			c.logger.Warnw("classification cache load failed", "error", err)
		}
		return nil, false
	}
	var cls models.Classification
	if err := json.Unmarshal([]byte(raw), &cls); err != nil {
		c.logger.Warnw("classification cache decode failed", "error", err)
		return nil, false
	}
	if err := cls.Validate(); err != nil {
		c.logger.Warnw("classification cache entry invalid", "error", err)
		return nil, false
	}
	return &cls, true
}

func (c *ResultCache) Store(ctx context.Context, fingerprint string, cls *models.Classification) {
	if c == nil || c.client == nil || fingerprint == "" || cls == nil {
		return
	}
	data, err := json.Marshal(cls)
	if err != nil {
		c.logger.Warnw("classification cache marshal failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+fingerprint, data, c.ttl); err != nil {
		c.logger.Warnw("classification cache store failed", "error", err)
	}
}

func (c *ResultCache) Invalidate(ctx context.Context, fingerprint string) {
	if c == nil || c.client == nil || fingerprint == "" {
		return
	}
	if err := c.client.Del(ctx, cacheKeyPrefix+fingerprint); err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		c.logger.Warnw("classification cache invalidate failed", "error", err)
	}
}
