// Package rollout manages feature flags persisted in a key-value store.
//
// A Rollout loads the state of a feature, applies a mutation, saves it back
// and notifies observers. The audit event log (package eventlog) and the
// metrics collector are both observers:
//
//	store := storage.NewMemoryStore()
//	events := eventlog.NewLogger(store)
//	r := rollout.New(store,
//		rollout.WithEventLog(events),
//		rollout.WithLogger(log),
//	)
//
//	_ = r.DefineGroup("admins", feature.Match(isAdmin))
//	_ = r.ActivateGroup(ctx, "chat", "admins")
//	_ = r.ActivatePercentage(ctx, "chat", 20)
//
//	active, err := r.IsActive(ctx, "chat", feature.UserID("42"))
//
// # Storage layout
//
// Each feature lives under "feature:<name>" as the record produced by
// feature.Feature.String. The names of every feature ever saved are kept in
// "feature:__features__" as a comma-separated list, which is why feature names
// cannot contain commas.
//
// # Legacy migration
//
// With WithLegacy, reading a feature that has no record falls back to the
// legacy per-rule keys. The migrated state is saved immediately, so the
// fallback runs at most once per feature. Migration does not notify observers.
//
// # Consistency
//
// Mutations are not atomic. Two concurrent writers of the same feature race
// and the later save wins. Observer failures never roll back a save: the state
// is persisted and the error is returned wrapped in ErrObserverFailed.
package rollout
