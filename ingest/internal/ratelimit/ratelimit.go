package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimiter admits at most a fixed number of calls per key inside a
// sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

// MemoryRateLimiter keeps one sliding window per key in process memory. The
// number of tracked keys is bounded; the least recently seen key is evicted.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows *lru.Cache[string, []time.Time]
	limit   int
	window  time.Duration
	now     func() time.Time
}

// NewMemoryRateLimiter creates a limiter admitting limit calls per window for
// up to maxKeys distinct keys.
func NewMemoryRateLimiter(limit int, window time.Duration, maxKeys int) (*MemoryRateLimiter, error) {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	cache, err := lru.New[string, []time.Time](maxKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to create window cache: %w", err)
	}
	return &MemoryRateLimiter{
		windows: cache,
		limit:   limit,
		window:  window,
		now:     time.Now,
	}, nil
}

func (m *MemoryRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.window)

	hits, _ := m.windows.Get(key)
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]

	if len(hits) >= m.limit {
		m.windows.Add(key, hits)
		return false, nil
	}

	m.windows.Add(key, append(hits, now))
	return true, nil
}

func (m *MemoryRateLimiter) Close() error {
	m.windows.Purge()
	return nil
}

const slidingWindowScript = `
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local member = ARGV[4]
	local ttl = tonumber(ARGV[5])

	redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

	local current = redis.call('ZCARD', key)

	if current < limit then
		redis.call('ZADD', key, now, member)
		redis.call('EXPIRE', key, ttl)
		return 1
	else
		return 0
	end
`

// RedisRateLimiter shares sliding windows between gate replicas through
// Redis sorted sets.
type RedisRateLimiter struct {
	client *redis.Client
	script *redis.Script
	prefix string
	limit  int64
	window time.Duration
	seq    atomic.Uint64
}

// NewRedisRateLimiter builds a limiter on an existing client. Keys are
// namespaced with prefix so agent and global windows do not collide.
func NewRedisRateLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		script: redis.NewScript(slidingWindowScript),
		prefix: prefix,
		limit:  int64(limit),
		window: window,
	}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixNano()
	windowStart := now - r.window.Nanoseconds()
	member := fmt.Sprintf("%d-%d", now, r.seq.Add(1))
	ttl := int64(r.window.Seconds()) + 1

	result, err := r.script.Run(ctx, r.client,
		[]string{"ratelimit:" + r.prefix + ":" + key},
		now, windowStart, r.limit, member, ttl,
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return result == 1, nil
}

// Close is a no-op; the client is owned by the caller.
func (r *RedisRateLimiter) Close() error {
	return nil
}

// NoOpRateLimiter always allows requests.
type NoOpRateLimiter struct{}

func (n *NoOpRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return true, nil
}

func (n *NoOpRateLimiter) Close() error {
	return nil
}
