package feature

import (
	"context"
	"slices"
	"sync"
)

// GroupAll is pre-registered in every registry and matches every actor.
const GroupAll = "all"

// Predicate decides whether an actor belongs to a group.
// A returned error is a bug in host code and aborts evaluation.
type Predicate func(ctx context.Context, actor Actor) (bool, error)

// Match adapts an infallible check into a Predicate.
func Match(fn func(actor Actor) bool) Predicate {
	return func(_ context.Context, actor Actor) (bool, error) {
		return fn(actor), nil
	}
}

// GroupEvaluator resolves group membership by name.
type GroupEvaluator interface {
	Evaluate(ctx context.Context, name string, actor Actor) (bool, error)
}

// GroupRegistry maps group names to predicates. It is safe for concurrent use.
type GroupRegistry struct {
	mu     sync.RWMutex
	groups map[string]Predicate
}

// NewGroupRegistry returns a registry holding only the "all" group.
func NewGroupRegistry() *GroupRegistry {
	return &GroupRegistry{
		groups: map[string]Predicate{
			GroupAll: Match(func(Actor) bool { return true }),
		},
	}
}

// Define registers or replaces the predicate for name.
func (r *GroupRegistry) Define(name string, p Predicate) error {
	if name == "" {
		return ErrEmptyGroupName
	}
	if p == nil {
		return ErrNilPredicate
	}

	r.mu.Lock()
	r.groups[name] = p
	r.mu.Unlock()
	return nil
}

// Evaluate runs the predicate registered under name.
// Unknown groups are not satisfied and do not produce an error.
func (r *GroupRegistry) Evaluate(ctx context.Context, name string, actor Actor) (bool, error) {
	r.mu.RLock()
	p, ok := r.groups[name]
	r.mu.RUnlock()

	if !ok {
		return false, nil
	}
	return p(ctx, actor)
}

// Defined reports whether a predicate is registered under name.
func (r *GroupRegistry) Defined(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.groups[name]
	return ok
}

// Names returns the registered group names in sorted order.
func (r *GroupRegistry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}
