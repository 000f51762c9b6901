package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/studiodesk/pkg/observability"
)

// CachedProfileStore keeps recently used profiles in an expiring in-process
// LRU in front of another ProfileStore
type CachedProfileStore struct {
	next    ProfileStore
	cache   *lru.LRU[string, Profile]
	metrics *observability.Metrics
}

// NewCachedProfileStore wraps next. metrics may be nil.
func NewCachedProfileStore(next ProfileStore, size int, ttl time.Duration, metrics *observability.Metrics) *CachedProfileStore {
	if size <= 0 {
		size = 1024
	}
	return &CachedProfileStore{
		next:    next,
		cache:   lru.NewLRU[string, Profile](size, nil, ttl),
		metrics: metrics,
	}
}

// GetProfile implements ProfileStore
func (c *CachedProfileStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	if profile, ok := c.cache.Get(userID); ok {
		c.record(true)
		return &profile, nil
	}
	c.record(false)

	profile, err := c.next.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(userID, *profile)
	return profile, nil
}

// Invalidate drops a cached profile
func (c *CachedProfileStore) Invalidate(userID string) {
	c.cache.Remove(userID)
}

func (c *CachedProfileStore) record(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.ProfileCacheHitsTotal.WithLabelValues("memory").Inc()
	} else {
		c.metrics.ProfileCacheMissesTotal.WithLabelValues("memory").Inc()
	}
}

// RedisProfileStore shares cached profiles between replicas. Redis errors
// degrade to a direct lookup on next.
type RedisProfileStore struct {
	next    ProfileStore
	client  *redis.Client
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRedisProfileStore wraps next. logger and metrics may be nil.
func NewRedisProfileStore(next ProfileStore, client *redis.Client, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *RedisProfileStore {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RedisProfileStore{next: next, client: client, ttl: ttl, logger: logger, metrics: metrics}
}

func profileKey(userID string) string {
	return "studiodesk:profile:" + userID
}

// GetProfile implements ProfileStore
func (r *RedisProfileStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	key := profileKey(userID)

	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var profile Profile
		if jsonErr := json.Unmarshal(data, &profile); jsonErr == nil {
			r.record(true)
			return &profile, nil
		}
		r.client.Del(ctx, key)
	case errors.Is(err, redis.Nil):
	default:
		r.logger.WithContext(ctx).WithError(err).Warn("profile cache read failed")
	}
	r.record(false)

	profile, err := r.next.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(profile); err == nil {
		if err := r.client.Set(ctx, key, encoded, r.ttl).Err(); err != nil {
			r.logger.WithContext(ctx).WithError(err).Warn("profile cache write failed")
		}
	}
	return profile, nil
}

func (r *RedisProfileStore) record(hit bool) {
	if r.metrics == nil {
		return
	}
	if hit {
		r.metrics.ProfileCacheHitsTotal.WithLabelValues("redis").Inc()
	} else {
		r.metrics.ProfileCacheMissesTotal.WithLabelValues("redis").Inc()
	}
}
