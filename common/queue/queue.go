// Package queue is the list-based broker shared by the gate (producer) and the
// worker (consumer).
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the list events are pushed to.
const DefaultKey = "events"

// ErrEmpty is returned by Pop when the wait elapsed without a message.
var ErrEmpty = errors.New("queue empty")

// Broker pushes to the head of a list and pops from its tail.
type Broker interface {
	// Push prepends payloads in order with a single command.
	Push(ctx context.Context, payloads ...[]byte) error
	// Pop blocks until a payload is available. A zero timeout waits forever.
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

// RedisBroker implements Broker with LPUSH and BRPOP.
type RedisBroker struct {
	client *redis.Client
	key    string
}

// NewRedisBroker connects to the Redis URL (redis://host:port/db). Blocking
// pops are interrupted when their context is cancelled.
func NewRedisBroker(redisURL, key string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	opts.ContextTimeoutEnabled = true
	return NewRedisBrokerWithClient(redis.NewClient(opts), key), nil
}

// NewRedisBrokerWithClient wraps an existing client.
func NewRedisBrokerWithClient(client *redis.Client, key string) *RedisBroker {
	if key == "" {
		key = DefaultKey
	}
	return &RedisBroker{client: client, key: key}
}

// Key returns the list name.
func (b *RedisBroker) Key() string {
	return b.key
}

func (b *RedisBroker) Push(ctx context.Context, payloads ...[]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	values := make([]interface{}, len(payloads))
	for i, p := range payloads {
		values[i] = p
	}
	if err := b.client.LPush(ctx, b.key, values...).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", b.key, err)
	}
	return nil
}

func (b *RedisBroker) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := b.client.BRPop(ctx, timeout, b.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("brpop %s: %w", b.key, err)
	}
	// res is [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("brpop %s: unexpected reply length %d", b.key, len(res))
	}
	return []byte(res[1]), nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
