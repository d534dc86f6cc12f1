package storage

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-memory Store. It is useful for tests, embedded use and
// single-process deployments. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	strings map[string]string
	zsets   map[string]map[string]float64
	sets    map[string]map[string]struct{}
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strings: make(map[string]string),
		zsets:   make(map[string]map[string]float64),
		sets:    make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx); err != nil {
		return "", false, err
	}
	if s.holdsCollection(key) {
		return "", false, ErrWrongType
	}
	v, ok := s.strings[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}
	// SET replaces whatever the key held before.
	delete(s.zsets, key)
	delete(s.sets, key)
	s.strings[key] = value
	return nil
}

func (s *MemoryStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.strings[key]; ok {
		return ErrWrongType
	}
	if _, ok := s.sets[key]; ok {
		return ErrWrongType
	}

	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (s *MemoryStore) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.strings[key]; ok {
		return ErrWrongType
	}

	z, ok := s.zsets[key]
	if !ok {
		return nil
	}
	sorted := sortZ(z)
	lo, hi, ok := rankRange(start, stop, len(sorted))
	if !ok {
		return nil
	}
	for _, m := range sorted[lo:hi] {
		delete(z, m.Member)
	}
	if len(z) == 0 {
		delete(s.zsets, key)
	}
	return nil
}

func (s *MemoryStore) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Z, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if _, ok := s.strings[key]; ok {
		return nil, ErrWrongType
	}

	sorted := sortZ(s.zsets[key])
	lo, hi, ok := rankRange(start, stop, len(sorted))
	if !ok {
		return []Z{}, nil
	}
	return slices.Clone(sorted[lo:hi]), nil
}

func (s *MemoryStore) SAdd(ctx context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.strings[key]; ok {
		return ErrWrongType
	}
	if _, ok := s.zsets[key]; ok {
		return ErrWrongType
	}

	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{}, len(members))
		s.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) SMembers(ctx context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if _, ok := s.strings[key]; ok {
		return nil, ErrWrongType
	}

	members := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		members = append(members, m)
	}
	return members, nil
}

// Close marks the store as closed. Subsequent operations return ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// check must be called with the lock held.
func (s *MemoryStore) check(ctx context.Context) error {
	if s.closed {
		return ErrStoreClosed
	}
	return ctx.Err()
}

func (s *MemoryStore) holdsCollection(key string) bool {
	if _, ok := s.zsets[key]; ok {
		return true
	}
	_, ok := s.sets[key]
	return ok
}

func sortZ(z map[string]float64) []Z {
	sorted := make([]Z, 0, len(z))
	for member, score := range z {
		sorted = append(sorted, Z{Member: member, Score: score})
	}
	slices.SortFunc(sorted, func(a, b Z) int {
		if c := cmp.Compare(a.Score, b.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Member, b.Member)
	})
	return sorted
}
