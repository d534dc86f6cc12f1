// Package legacy reads feature state written in the pre-serialization layout,
// where every rule lived under its own key:
//
//	feature:<name>:percentage  string holding the percentage
//	feature:<name>:users       set of user ids
//	feature:<name>:groups      set of group names
//
// It is only consulted when the current record of a feature is missing, once,
// after which the migrated state is persisted in the current format.
package legacy

import (
	"context"
	"slices"
	"strconv"
	"strings"
)

// Store is the part of storage.Store the reader needs.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)
}

// Info is the feature state found in the legacy layout.
type Info struct {
	Percentage int
	Users      []string
	Groups     []string
}

// Reader reads legacy feature state.
type Reader struct {
	store Store
}

// NewReader creates a reader over store.
func NewReader(store Store) *Reader {
	if store == nil {
		panic("legacy: store cannot be nil")
	}
	return &Reader{store: store}
}

// Info returns whatever the legacy layout holds for name. A feature that was
// never written yields the zero Info with empty lists.
func (r *Reader) Info(ctx context.Context, name string) (Info, error) {
	info := Info{Users: []string{}, Groups: []string{}}

	raw, ok, err := r.store.Get(ctx, key(name, "percentage"))
	if err != nil {
		return Info{}, err
	}
	if ok {
		// Malformed values count as zero, as they always did.
		info.Percentage, _ = strconv.Atoi(strings.TrimSpace(raw))
	}

	if info.Users, err = r.members(ctx, key(name, "users")); err != nil {
		return Info{}, err
	}
	if info.Groups, err = r.members(ctx, key(name, "groups")); err != nil {
		return Info{}, err
	}
	return info, nil
}

// members returns the set sorted, so migrated records are deterministic.
func (r *Reader) members(ctx context.Context, key string) ([]string, error) {
	m, err := r.store.SMembers(ctx, key)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return []string{}, nil
	}
	slices.Sort(m)
	return m, nil
}

func key(name, field string) string {
	return "feature:" + name + ":" + field
}
