package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"

	"github.com/redis/go-redis/v9"
)

// redisLimiter keeps fixed-window counters in Redis so decisions survive
// daemon restarts. Keys carry a prefix so several workbenches can share
// one Redis instance without stepping on each other's windows.
type redisLimiter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// RedisOptions mirrors the REDIS_* config block.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Now      func() time.Time
}

// One round trip per decision: bump the counter and arm the window TTL
// on the first hit.
var allowWindow = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {hits, redis.call("PTTL", KEYS[1])}
`)

func NewRedisLimiter(opts RedisOptions) (domain.RateLimiter, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Prefix == "" {
		opts.Prefix = "ratelimit"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &redisLimiter{client: client, prefix: opts.Prefix, now: opts.Now}, nil
}

func (r *redisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	if window <= 0 {
		window = time.Second
	}
	values, err := allowWindow.Run(ctx, r.client, []string{r.prefix + ":" + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("redis rate limit: %w", err)
	}
	if len(values) != 2 {
		return domain.RateLimitDecision{}, fmt.Errorf("redis rate limit: unexpected reply of %d values", len(values))
	}
	hits, ttlMillis := values[0], values[1]
	decision := domain.RateLimitDecision{
		Allowed: hits <= int64(limit),
		Limit:   limit,
		ResetAt: r.now(),
	}
	if ttlMillis > 0 {
		decision.ResetAt = decision.ResetAt.Add(time.Duration(ttlMillis) * time.Millisecond)
	}
	if remaining := limit - int(hits); remaining > 0 {
		decision.Remaining = remaining
	}
	return decision, nil
}
