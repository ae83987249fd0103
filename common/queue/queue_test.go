package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T) (*RedisBroker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewRedisBrokerWithClient(client, "")
	t.Cleanup(func() { _ = b.Close() })
	return b, mr
}

func TestRedisBroker_FIFO(t *testing.T) {
	b, mr := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.Push(ctx, []byte("one")))
	require.NoError(t, b.Push(ctx, []byte("two"), []byte("three")))

	list, err := mr.List(DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"three", "two", "one"}, list)

	for _, want := range []string{"one", "two", "three"} {
		got, err := b.Pop(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}

func TestRedisBroker_PushNothing(t *testing.T) {
	b, mr := newTestBroker(t)
	require.NoError(t, b.Push(context.Background()))
	assert.False(t, mr.Exists(DefaultKey))
}

func TestRedisBroker_PopTimeout(t *testing.T) {
	b, _ := newTestBroker(t)
	_, err := b.Pop(context.Background(), 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRedisBroker_Unavailable(t *testing.T) {
	b, mr := newTestBroker(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, b.Push(ctx, []byte("x")))
	assert.Error(t, b.Ping(ctx))
}

func TestNewRedisBroker(t *testing.T) {
	mr := miniredis.RunT(t)
	b, err := NewRedisBroker("redis://"+mr.Addr()+"/0", "custom")
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, "custom", b.Key())
	require.NoError(t, b.Ping(context.Background()))

	_, err = NewRedisBroker("://bad", "")
	assert.Error(t, err)
}
