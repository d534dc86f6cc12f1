// Package feature implements the activation model of a rollout feature flag.
//
// A Feature combines four rules: a global percentage, an allow-list of user
// identifiers, a list of group names and an allow-list of IP literals. The
// state is small enough to be persisted as a single pipe-delimited record:
//
//	percentage|user1,user2|group1,group2|ip1,ip2
//
// # Evaluation
//
// Actors are hashed into one of 100 buckets. Users use the IEEE CRC-32 of
// their identifier, IPs fold their dotted segments as base-256 digits. An
// actor is active when its bucket is lower than the percentage, when it is
// allow-listed, or (users only) when any referenced group accepts it:
//
//	groups := feature.NewGroupRegistry()
//	groups.Define("admins", feature.Match(func(a feature.Actor) bool {
//		u, ok := a.(*User)
//		return ok && u.Admin
//	}))
//
//	f := feature.Parse("chat", "20||admins|")
//	active, err := f.ActiveFor(ctx, groups, currentUser)
//
// Anonymous actors (a nil Actor, a typed nil pointer, or an empty IP) are only active at 100%.
//
// Groups referenced by a feature but never defined are simply not satisfied.
// A predicate that returns an error aborts evaluation with ErrGroupPredicate.
//
// Bucketing is cheap and reproducible, not unpredictable: anyone who knows an
// identifier can compute its bucket.
//
// # Concurrency
//
// Feature values are plain data and must not be mutated concurrently.
// GroupRegistry is safe for concurrent use.
package feature
