package feature

import (
	"context"
	"errors"
	"fmt"
)

// ActiveFor reports whether the feature is on for actor.
//
// A nil actor, or a typed nil pointer wrapped in Actor, is anonymous and
// only captured by a 100% rollout. Otherwise the actor is
// active when its bucket falls under the percentage, when it is allow-listed,
// or when any referenced group's predicate accepts it. A failing predicate
// aborts evaluation with ErrGroupPredicate.
func (f *Feature) ActiveFor(ctx context.Context, groups GroupEvaluator, actor Actor) (bool, error) {
	if Anonymous(actor) {
		return f.Percentage == 100, nil
	}

	id := actor.ID()
	if Bucket(id) < f.Percentage {
		return true, nil
	}
	if f.HasUser(id) {
		return true, nil
	}
	return f.inAnyGroup(ctx, groups, actor)
}

// ActiveForIP reports whether the feature is on for an IP address.
// Groups do not apply to IPs. An empty ip is treated as anonymous.
func (f *Feature) ActiveForIP(ip string) bool {
	if ip == "" {
		return f.Percentage == 100
	}
	return BucketIP(ip) < f.Percentage || f.HasIP(ip)
}

func (f *Feature) inAnyGroup(ctx context.Context, groups GroupEvaluator, actor Actor) (bool, error) {
	if groups == nil {
		return false, nil
	}
	for _, name := range f.Groups {
		ok, err := groups.Evaluate(ctx, name, actor)
		if err != nil {
			return false, errors.Join(ErrGroupPredicate, fmt.Errorf("group %q: %w", name, err))
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
