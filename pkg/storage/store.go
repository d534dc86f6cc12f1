package storage

import "context"

// Z is a sorted-set member with its score.
type Z struct {
	Member string
	Score  float64
}

// Store is the key-value and sorted-set contract the rollout engine needs.
// Rank arguments follow Redis semantics: ranges are inclusive and negative
// ranks count from the end, so (0, -1) addresses every member.
// Members of a sorted set are ordered by ascending score, ties broken by the
// member bytes.
type Store interface {
	// Get returns the value stored at key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// ZAdd inserts member with score, or updates the score of an existing member.
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRemRangeByRank removes the members whose rank is within [start, stop].
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error

	// ZRangeWithScores returns the members whose rank is within [start, stop].
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Z, error)

	// SAdd adds members to the set stored at key.
	SAdd(ctx context.Context, key string, members ...string) error

	// SMembers returns every member of the set stored at key, in no particular order.
	SMembers(ctx context.Context, key string) ([]string, error)
}

// rankRange converts inclusive Redis ranks over a collection of size n into
// a half-open slice range. ok is false when the range selects nothing.
func rankRange(start, stop int64, n int) (lo, hi int, ok bool) {
	size := int64(n)
	if start < 0 {
		start += size
	}
	if stop < 0 {
		stop += size
	}
	if start < 0 {
		start = 0
	}
	if stop >= size {
		stop = size - 1
	}
	if start > stop || start >= size {
		return 0, 0, false
	}
	return int(start), int(stop) + 1, true
}
