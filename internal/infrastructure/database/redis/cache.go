package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

var ErrCacheMiss = errors.New(errors.ErrCodeNotFound, "cache miss")

// Cache stores JSON values under the client prefix. Concurrent misses on
// one key share a single loader call.
type Cache struct {
	client     *Client
	logger     logging.Logger
	namespace  string
	defaultTTL time.Duration
	group      singleflight.Group
}

var _ ports.CachePort = (*Cache)(nil)

type CacheOption func(*Cache)

// WithNamespace inserts ns between the client prefix and every key.
func WithNamespace(ns string) CacheOption {
	return func(c *Cache) { c.namespace = ns }
}

func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.defaultTTL = ttl }
}

func NewCache(client *Client, log logging.Logger, opts ...CacheOption) *Cache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &Cache{
		client:     client,
		logger:     log.Named("cache"),
		namespace:  "cache",
		defaultTTL: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) fullKey(key string) string {
	return c.client.Key(c.namespace, key)
}

// jitterTTL spreads expiry by +/-10%.
func jitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl + time.Duration(float64(ttl)*0.1*(rand.Float64()*2-1))
}

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	rdb, err := c.client.Underlying()
	if err != nil {
		return err
	}
	data, err := rdb.Get(ctx, c.fullKey(key)).Bytes()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to read cache")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode cached value")
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	rdb, err := c.client.Underlying()
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode cache value")
	}
	if err := rdb.Set(ctx, c.fullKey(key), data, jitterTTL(ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to write cache")
	}
	return nil
}

// GetOrSet fills dest from the cache, or from loader on a miss. A cache that
// cannot be read or written degrades to calling loader; loader errors are
// returned as is.
func (c *Cache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error {
	err := c.Get(ctx, key, dest)
	if err == nil {
		return nil
	}
	if err != ErrCacheMiss {
		c.logger.Warn("cache read failed, loading directly", logging.String("key", key), logging.Err(err))
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode loaded value")
		}
		if err := c.Set(ctx, key, json.RawMessage(data), ttl); err != nil {
			c.logger.Warn("failed to populate cache", logging.String("key", key), logging.Err(err))
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(val.([]byte), dest); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode loaded value")
	}
	return nil
}

// DeleteByPrefix removes every key starting with prefix and returns the
// number deleted.
func (c *Cache) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	rdb, err := c.client.Underlying()
	if err != nil {
		return 0, err
	}
	var (
		deleted int64
		cursor  uint64
	)
	match := c.fullKey(prefix) + "*"
	for {
		keys, next, err := rdb.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "failed to scan cache keys")
		}
		if len(keys) > 0 {
			n, err := rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete cache keys")
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
