package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketStrings = []byte("strings")
	bucketZSets   = []byte("zsets")
	bucketSets    = []byte("sets")

	// Sub-buckets of every sorted set
	bucketScores = []byte("scores")
	bucketIndex  = []byte("index")
)

// BoltStore implements Store on top of a single BoltDB file.
//
// Each sorted set is a bucket holding two sub-buckets: "scores" maps a member
// to its encoded score, and "index" holds keys made of the order-preserving
// score encoding followed by the member, so a cursor walks members in rank
// order.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Join(ErrOpenFailed, err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Join(ErrOpenFailed, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketStrings, bucketZSets, bucketSets} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Join(ErrOpenFailed, err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		if holdsCollection(tx, key) {
			return ErrWrongType
		}
		if v := tx.Bucket(bucketStrings).Get([]byte(key)); v != nil {
			value, found = string(v), true
		}
		return nil
	})
	return value, found, s.wrap(err)
}

func (s *BoltStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.wrap(s.db.Update(func(tx *bolt.Tx) error {
		k := []byte(key)
		for _, name := range [][]byte{bucketZSets, bucketSets} {
			if tx.Bucket(name).Bucket(k) != nil {
				if err := tx.Bucket(name).DeleteBucket(k); err != nil {
					return err
				}
			}
		}
		return tx.Bucket(bucketStrings).Put(k, []byte(value))
	}))
}

func (s *BoltStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.wrap(s.db.Update(func(tx *bolt.Tx) error {
		k := []byte(key)
		if tx.Bucket(bucketStrings).Get(k) != nil || tx.Bucket(bucketSets).Bucket(k) != nil {
			return ErrWrongType
		}

		z, err := tx.Bucket(bucketZSets).CreateBucketIfNotExists(k)
		if err != nil {
			return err
		}
		scores, err := z.CreateBucketIfNotExists(bucketScores)
		if err != nil {
			return err
		}
		index, err := z.CreateBucketIfNotExists(bucketIndex)
		if err != nil {
			return err
		}

		m := []byte(member)
		if old := scores.Get(m); old != nil {
			if err := index.Delete(indexKey(old, m)); err != nil {
				return err
			}
		}
		encoded := encodeScore(score)
		if err := scores.Put(m, encoded); err != nil {
			return err
		}
		return index.Put(indexKey(encoded, m), nil)
	}))
}

func (s *BoltStore) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.wrap(s.db.Update(func(tx *bolt.Tx) error {
		k := []byte(key)
		if tx.Bucket(bucketStrings).Get(k) != nil {
			return ErrWrongType
		}
		z := tx.Bucket(bucketZSets).Bucket(k)
		if z == nil {
			return nil
		}

		entries := collectIndex(z.Bucket(bucketIndex))
		lo, hi, ok := rankRange(start, stop, len(entries))
		if !ok {
			return nil
		}

		scores, index := z.Bucket(bucketScores), z.Bucket(bucketIndex)
		for _, e := range entries[lo:hi] {
			if err := index.Delete(e); err != nil {
				return err
			}
			if err := scores.Delete(e[8:]); err != nil {
				return err
			}
		}
		if len(entries) == hi-lo {
			return tx.Bucket(bucketZSets).DeleteBucket(k)
		}
		return nil
	}))
}

func (s *BoltStore) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Z, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := []Z{}
	err := s.db.View(func(tx *bolt.Tx) error {
		k := []byte(key)
		if tx.Bucket(bucketStrings).Get(k) != nil {
			return ErrWrongType
		}
		z := tx.Bucket(bucketZSets).Bucket(k)
		if z == nil {
			return nil
		}

		entries := collectIndex(z.Bucket(bucketIndex))
		lo, hi, ok := rankRange(start, stop, len(entries))
		if !ok {
			return nil
		}
		result = make([]Z, 0, hi-lo)
		for _, e := range entries[lo:hi] {
			result = append(result, Z{Member: string(e[8:]), Score: decodeScore(e[:8])})
		}
		return nil
	})
	if err != nil {
		return nil, s.wrap(err)
	}
	return result, nil
}

func (s *BoltStore) SAdd(ctx context.Context, key string, members ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.wrap(s.db.Update(func(tx *bolt.Tx) error {
		k := []byte(key)
		if tx.Bucket(bucketStrings).Get(k) != nil || tx.Bucket(bucketZSets).Bucket(k) != nil {
			return ErrWrongType
		}
		set, err := tx.Bucket(bucketSets).CreateBucketIfNotExists(k)
		if err != nil {
			return err
		}
		for _, m := range members {
			if err := set.Put([]byte(m), nil); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (s *BoltStore) SMembers(ctx context.Context, key string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	members := []string{}
	err := s.db.View(func(tx *bolt.Tx) error {
		k := []byte(key)
		if tx.Bucket(bucketStrings).Get(k) != nil {
			return ErrWrongType
		}
		set := tx.Bucket(bucketSets).Bucket(k)
		if set == nil {
			return nil
		}
		return set.ForEach(func(m, _ []byte) error {
			members = append(members, string(m))
			return nil
		})
	})
	if err != nil {
		return nil, s.wrap(err)
	}
	return members, nil
}

func (s *BoltStore) wrap(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return errors.Join(ErrStoreClosed, err)
	}
	return err
}

func holdsCollection(tx *bolt.Tx, key string) bool {
	k := []byte(key)
	return tx.Bucket(bucketZSets).Bucket(k) != nil || tx.Bucket(bucketSets).Bucket(k) != nil
}

// collectIndex copies the index keys in rank order. Keys returned by bolt are
// only valid for the life of the transaction, and deleting while iterating a
// cursor is not allowed, hence the copy.
func collectIndex(index *bolt.Bucket) [][]byte {
	var entries [][]byte
	c := index.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		entries = append(entries, bytes.Clone(k))
	}
	return entries
}

func indexKey(score, member []byte) []byte {
	key := make([]byte, 0, len(score)+len(member))
	key = append(key, score...)
	return append(key, member...)
}

// encodeScore maps a float64 to 8 bytes whose byte order matches numeric order.
func encodeScore(score float64) []byte {
	bits := math.Float64bits(score)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bits)
	return buf
}

func decodeScore(b []byte) float64 {
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}
