package rollout

import (
	"log/slog"

	"github.com/dmitrymomot/rollout/pkg/eventlog"
	"github.com/dmitrymomot/rollout/pkg/feature"
)

// Option configures a Rollout.
type Option func(*Rollout)

// WithLogger sets the structured logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(r *Rollout) {
		if l != nil {
			r.log = l
		}
	}
}

// WithGroupRegistry shares an existing registry instead of a fresh one.
func WithGroupRegistry(g *feature.GroupRegistry) Option {
	return func(r *Rollout) {
		if g != nil {
			r.groups = g
		}
	}
}

// WithObserver registers an observer notified after every saved mutation.
func WithObserver(o Observer) Option {
	return func(r *Rollout) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithEventLog records every mutation in the audit log and exposes it via EventLog.
func WithEventLog(l *eventlog.Logger) Option {
	return func(r *Rollout) {
		if l != nil {
			r.events = l
			r.observers = append(r.observers, l)
		}
	}
}

// WithEvaluationObserver registers an observer notified of every evaluation.
func WithEvaluationObserver(o EvaluationObserver) Option {
	return func(r *Rollout) {
		if o != nil {
			r.evaluations = append(r.evaluations, o)
		}
	}
}

// WithLegacy enables one-shot migration from the legacy layout for features
// that have no current record.
func WithLegacy(src LegacySource) Option {
	return func(r *Rollout) {
		r.legacy = src
	}
}
