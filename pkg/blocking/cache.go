package blocking

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// CandidateCache stores pre-fetched candidate slices by query fingerprint.
// A miss returns (nil, false, nil).
type CandidateCache interface {
	Get(ctx context.Context, key string) ([]models.CandidateListing, bool, error)
	Set(ctx context.Context, key string, candidates []models.CandidateListing) error
}

const (
	DefaultCacheTTL    = 5 * time.Minute
	defaultCachePrefix = "clover:candidates:"
)

// KeyValueStore is the subset of the Redis client the cache needs
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache is a CandidateCache backed by Redis with a fixed TTL
type RedisCache struct {
	store  KeyValueStore
	ttl    time.Duration
	prefix string
	logger ectologger.Logger
}

// NewRedisCache creates a candidate cache. A non-positive ttl uses DefaultCacheTTL.
func NewRedisCache(store KeyValueStore, ttl time.Duration, logger ectologger.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{
		store:  store,
		ttl:    ttl,
		prefix: defaultCachePrefix,
		logger: logger,
	}
}

// Get returns the cached candidates for key
func (c *RedisCache) Get(ctx context.Context, key string) ([]models.CandidateListing, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "blocking.RedisCache.Get")
	defer span.End()

	raw, err := c.store.Get(ctx, c.prefix+key)
	if errors.Is(err, redis.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var candidates []models.CandidateListing
	if err := json.Unmarshal(raw, &candidates); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("key", key).Warn("Discarding unreadable cached candidates")
		return nil, false, nil
	}

	return candidates, true, nil
}

// Set stores candidates under key with the cache TTL
func (c *RedisCache) Set(ctx context.Context, key string, candidates []models.CandidateListing) error {
	ctx, span := tracing.StartSpan(ctx, "blocking.RedisCache.Set")
	defer span.End()

	raw, err := json.Marshal(candidates)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.prefix+key, raw, c.ttl)
}
