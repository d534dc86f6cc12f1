package redis_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/rollout/pkg/eventlog"
	"github.com/dmitrymomot/rollout/pkg/feature"
	"github.com/dmitrymomot/rollout/pkg/redis"
)

// connect starts an in-process Redis server and returns a storage bound to it.
func connect(t *testing.T) (*miniredis.Miniredis, *redis.Storage) {
	t.Helper()

	m := miniredis.RunT(t)
	client, err := redis.Connect(context.Background(), redis.Config{
		ConnectionURL:  "redis://" + m.Addr() + "/0",
		RetryAttempts:  1,
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	s := redis.NewStorage(client)
	t.Cleanup(func() { _ = s.Close() })
	return m, s
}

func TestStorage(t *testing.T) {
	_, s := connect(t)
	ctx := context.Background()
	prefix := "rollout-test:"

	t.Run("get missing key", func(t *testing.T) {
		_, ok, err := s.Get(ctx, prefix+"missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, prefix+"feature", "20|1||"))
		v, ok, err := s.Get(ctx, prefix+"feature")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "20|1||", v)
	})

	t.Run("sorted set", func(t *testing.T) {
		key := prefix + "events"
		require.NoError(t, s.ZAdd(ctx, key, -3, "c"))
		require.NoError(t, s.ZAdd(ctx, key, -1, "a"))
		require.NoError(t, s.ZAdd(ctx, key, -2, "b"))
		require.NoError(t, s.ZRemRangeByRank(ctx, key, 2, -1))

		zs, err := s.ZRangeWithScores(ctx, key, 0, -1)
		require.NoError(t, err)
		require.Len(t, zs, 2)
		assert.Equal(t, "c", zs[0].Member)
		assert.Equal(t, float64(-3), zs[0].Score)
		assert.Equal(t, "b", zs[1].Member)
	})

	t.Run("sets", func(t *testing.T) {
		key := prefix + "users"
		require.NoError(t, s.SAdd(ctx, key, "1", "2", "2"))
		got, err := s.SMembers(ctx, key)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"1", "2"}, got)
	})

	t.Run("empty sadd is a no-op", func(t *testing.T) {
		require.NoError(t, s.SAdd(ctx, prefix+"nobody"))
		got, err := s.SMembers(ctx, prefix+"nobody")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("wrong type", func(t *testing.T) {
		require.NoError(t, s.ZAdd(ctx, prefix+"zset", 1, "a"))
		_, _, err := s.Get(ctx, prefix+"zset")
		assert.Error(t, err)
	})
}

func TestEventLogOverRedis(t *testing.T) {
	_, s := connect(t)
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	log := eventlog.NewLogger(s,
		eventlog.WithHistoryLength(2),
		eventlog.WithClock(func() time.Time {
			now = now.Add(time.Second)
			return now
		}),
	)

	f := feature.New("chat")
	for _, p := range []int{10, 20, 30} {
		next := f.Clone()
		next.SetPercentage(p)
		require.NoError(t, log.Update(ctx, f, next))
		f = next
	}

	events, err := log.Events(ctx, "chat")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, eventlog.Fields{"percentage": 30}, events[0].Data.After)
	assert.Equal(t, eventlog.Fields{"percentage": 20}, events[1].Data.After)
	assert.True(t, events[0].CreatedAt.Equal(now))
}

func TestHealthcheck(t *testing.T) {
	m, s := connect(t)
	check := redis.Healthcheck(s.Conn())

	require.NoError(t, check(context.Background()))

	m.Close()
	assert.ErrorIs(t, check(context.Background()), redis.ErrHealthcheckFailed)
}

func TestConnect(t *testing.T) {
	t.Parallel()

	t.Run("empty url", func(t *testing.T) {
		t.Parallel()
		_, err := redis.Connect(context.Background(), redis.Config{})
		assert.ErrorIs(t, err, redis.ErrEmptyConnectionURL)
	})

	t.Run("invalid url", func(t *testing.T) {
		t.Parallel()
		_, err := redis.Connect(context.Background(), redis.Config{ConnectionURL: "http://nope"})
		assert.ErrorIs(t, err, redis.ErrFailedToParseRedisConnString)
	})

	t.Run("unreachable server", func(t *testing.T) {
		t.Parallel()
		_, err := redis.Connect(context.Background(), redis.Config{
			ConnectionURL:  "redis://127.0.0.1:1/0",
			RetryAttempts:  2,
			RetryInterval:  10 * time.Millisecond,
			ConnectTimeout: 2 * time.Second,
		})
		assert.ErrorIs(t, err, redis.ErrRedisNotReady)
	})
}
