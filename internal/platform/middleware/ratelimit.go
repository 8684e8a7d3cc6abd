package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
	}
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	RetryAfter int
}

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// ---------------------------------------------------------------------------
// In-process token buckets
// ---------------------------------------------------------------------------

type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: time.Now(),
	}
}

func (b *tokenBucket) take() Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens = math.Min(b.maxTokens, b.tokens+now.Sub(b.lastRefill).Seconds()*b.refillRate)
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return Decision{Allowed: true}
	}
	if b.refillRate <= 0 {
		return Decision{RetryAfter: 1}
	}
	return Decision{RetryAfter: int((1-b.tokens)/b.refillRate) + 1}
}

// MemoryLimiter keeps one token bucket per key in process memory.
type MemoryLimiter struct {
	cfg     RateLimitConfig
	mu      sync.RWMutex
	buckets map[string]*tokenBucket
}

func NewMemoryLimiter(cfg RateLimitConfig) *MemoryLimiter {
	return &MemoryLimiter{cfg: cfg, buckets: make(map[string]*tokenBucket)}
}

func (m *MemoryLimiter) bucket(key string) *tokenBucket {
	m.mu.RLock()
	b, ok := m.buckets[key]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buckets[key]; ok {
		return b
	}
	b = newTokenBucket(m.cfg.RequestsPerSecond, m.cfg.BurstSize)
	m.buckets[key] = b
	return b
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	return m.bucket(key).take(), nil
}

// ---------------------------------------------------------------------------
// Redis fixed window
// ---------------------------------------------------------------------------

// RedisLimiter counts requests per key in one-second Redis windows so that
// every replica shares the same budget. When Redis is unreachable it
// degrades to the local fallback.
type RedisLimiter struct {
	client   redis.Cmdable
	limit    int64
	window   time.Duration
	prefix   string
	fallback Limiter
	logger   zerolog.Logger
	now      func() time.Time
}

func NewRedisLimiter(client redis.Cmdable, cfg RateLimitConfig, logger zerolog.Logger) *RedisLimiter {
	limit := int64(cfg.BurstSize)
	if limit <= 0 {
		limit = int64(math.Ceil(cfg.RequestsPerSecond))
	}
	return &RedisLimiter{
		client:   client,
		limit:    limit,
		window:   time.Second,
		prefix:   "claimdesk:ratelimit:",
		fallback: NewMemoryLimiter(cfg),
		logger:   logger,
		now:      time.Now,
	}
}

func (r *RedisLimiter) windowKey(key string) string {
	slot := r.now().UnixNano() / int64(r.window)
	return r.prefix + key + ":" + strconv.FormatInt(slot, 10)
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	k := r.windowKey(key)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, 2*r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("redis rate limiter unavailable, using local buckets")
		return r.fallback.Allow(ctx, key)
	}

	if incr.Val() > r.limit {
		return Decision{RetryAfter: int(math.Ceil(r.window.Seconds()))}, nil
	}
	return Decision{Allowed: true}, nil
}

// RateLimit rejects callers over budget with 429. Authenticated callers are
// keyed by actor, anonymous ones by address.
func RateLimit(limiter Limiter, cfg RateLimitConfig) echo.MiddlewareFunc {
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "ip:" + c.RealIP()
			if actorID, ok := c.Get("actor_id").(string); ok && actorID != "" {
				key = "actor:" + actorID
			}

			d, err := limiter.Allow(c.Request().Context(), key)
			if err != nil {
				return err
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)
			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(d.RetryAfter))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
