package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/rollout/pkg/storage"
)

// Storage implements storage.Store on top of a go-redis client.
// Commands map one to one (GET, SET, ZADD, ZREMRANGEBYRANK, ZRANGE WITHSCORES,
// SADD, SMEMBERS), so the data stays readable by any other client sharing the
// same key layout.
type Storage struct {
	db redis.UniversalClient
}

var _ storage.Store = (*Storage)(nil)

// NewStorage wraps a connected client.
func NewStorage(client redis.UniversalClient) *Storage {
	return &Storage{db: client}
}

// Get returns ok=false for missing keys (redis.Nil is not an error here).
func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.db.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set stores the value without expiration.
func (s *Storage) Set(ctx context.Context, key, value string) error {
	return s.db.Set(ctx, key, value, 0).Err()
}

func (s *Storage) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return s.db.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (s *Storage) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	return s.db.ZRemRangeByRank(ctx, key, start, stop).Err()
}

func (s *Storage) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]storage.Z, error) {
	zs, err := s.db.ZRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}

	result := make([]storage.Z, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		result = append(result, storage.Z{Member: member, Score: z.Score})
	}
	return result, nil
}

func (s *Storage) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.db.SAdd(ctx, key, args...).Err()
}

func (s *Storage) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.db.SMembers(ctx, key).Result()
}

// Close terminates the Redis connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Conn returns the underlying Redis client for advanced operations.
func (s *Storage) Conn() redis.UniversalClient {
	return s.db
}
