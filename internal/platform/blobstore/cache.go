package blobstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// URLCache is the key/value slice of Redis the presign cache needs.
type URLCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type redisURLCache struct {
	client redis.Cmdable
}

// NewRedisURLCache adapts a go-redis client to URLCache.
func NewRedisURLCache(client redis.Cmdable) URLCache {
	return &redisURLCache{client: client}
}

func (r *redisURLCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *redisURLCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisURLCache) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// CachedStore memoises presigned URLs. A cached URL is kept for half its
// lifetime so callers always receive a link with at least ttl/2 remaining.
// Cache failures fall through to the underlying store.
type CachedStore struct {
	Store
	cache  URLCache
	logger zerolog.Logger
}

func NewCachedStore(store Store, cache URLCache, logger zerolog.Logger) *CachedStore {
	return &CachedStore{Store: store, cache: cache, logger: logger}
}

func cacheKey(key string) string {
	return "claimdesk:presign:" + key
}

func (s *CachedStore) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	ck := cacheKey(key)
	if u, ok, err := s.cache.Get(ctx, ck); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("presign cache read failed")
	} else if ok {
		return u, nil
	}

	u, err := s.Store.PresignedURL(ctx, key, ttl)
	if err != nil {
		return "", err
	}
	if keep := ttl / 2; keep > 0 {
		if err := s.cache.Set(ctx, ck, u, keep); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("presign cache write failed")
		}
	}
	return u, nil
}

// Delete removes the object and its cached link.
func (s *CachedStore) Delete(ctx context.Context, key string) error {
	if err := s.Store.Delete(ctx, key); err != nil {
		return err
	}
	if err := s.cache.Del(ctx, cacheKey(key)); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("presign cache delete failed")
	}
	return nil
}
