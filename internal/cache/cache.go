package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	GetCrashGroup(ctx context.Context, groupID uuid.UUID) ([]byte, bool, error)
	CrashGroupGeneration(ctx context.Context, groupID uuid.UUID) (int64, error)
	SetCrashGroup(ctx context.Context, groupID uuid.UUID, generation int64, body []byte, ttl time.Duration) (bool, error)
	InvalidateCrashGroup(ctx context.Context, groupID uuid.UUID) error
}

// generationTTL bounds how long an invalidation counter outlives its last
// bump. It must exceed the longest store read a cache fill can span.
const generationTTL = 24 * time.Hour

var errStaleFill = errors.New("crash group changed since read")

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) GetCrashGroup(ctx context.Context, groupID uuid.UUID) ([]byte, bool, error) {
	return c.Get(ctx, CrashGroupKey(groupID))
}

// CrashGroupGeneration returns the invalidation counter of a group. Read it
// before loading the group from the store and hand it to SetCrashGroup.
func (c *RedisCache) CrashGroupGeneration(ctx context.Context, groupID uuid.UUID) (int64, error) {
	gen, err := c.client.Get(ctx, CrashGroupGenerationKey(groupID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetCrashGroup stores the rendered JSON of one crash group, but only while the
// group's generation still equals generation. Returns false when an
// invalidation happened in between and the body was dropped.
func (c *RedisCache) SetCrashGroup(ctx context.Context, groupID uuid.UUID, generation int64, body []byte, ttl time.Duration) (bool, error) {
	genKey := CrashGroupGenerationKey(groupID)
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, CrashGroupKey(groupID), body, ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, errStaleFill) || errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InvalidateCrashGroup drops the cached view of a group after it changed and
// bumps its generation so that in-flight fills are discarded.
func (c *RedisCache) InvalidateCrashGroup(ctx context.Context, groupID uuid.UUID) error {
	genKey := CrashGroupGenerationKey(groupID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, CrashGroupKey(groupID))
		return nil
	})
	return err
}
