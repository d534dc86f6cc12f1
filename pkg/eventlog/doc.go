// Package eventlog records feature state transitions as a bounded audit log.
//
// Every feature owns one sorted set, "feature:<name>:logging:events". Members
// are JSON payloads ({"id", "name", "data"}) and scores are the negated
// creation time in microseconds, so ascending rank order is most recent first
// and the newest event is always rank 0. After each append the set is trimmed
// to the configured history length (50 by default), dropping the oldest
// events.
//
// An update event carries only the fields that changed:
//
//	{"id":"…","name":"update","data":{"before":{"percentage":0},"after":{"percentage":100}}}
//
// Updates with no changes are still recorded; the log tracks that an update
// happened, not only what it changed.
//
// # Usage
//
//	log := eventlog.NewLogger(store, eventlog.WithHistoryLength(100))
//
//	before := f.Clone()
//	f.SetPercentage(100)
//	if err := log.Log(ctx, eventlog.KindUpdate, before, f); err != nil {
//	    return err
//	}
//
//	events, err := log.Events(ctx, "chat") // most recent first
//
// Log dispatches by kind through a fixed table: unknown kinds fail with
// ErrInvalidEventKind and a wrong number of states with
// ErrInvalidArgumentCount. Reading back a payload of an unknown kind also
// fails with ErrInvalidEventKind, naming the feature.
//
// The log adds no locking: concurrent writers to the same feature interleave
// at the storage level.
package eventlog
