package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/rollout/pkg/feature"
	"github.com/dmitrymomot/rollout/pkg/logger"
	"github.com/dmitrymomot/rollout/pkg/storage"
)

// DefaultHistoryLength is the number of events kept per feature.
const DefaultHistoryLength = 50

// Store is the part of storage.Store the event log needs.
type Store interface {
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]storage.Z, error)
}

// Logger keeps a bounded, most-recent-first log of audit events per feature.
//
// Events are ordered by their microsecond timestamp. Update stamps events
// strictly increasing per Logger, so updates made through one Logger never
// tie even when the clock does. Events written by separate processes within
// the same microsecond have no defined order.
type Logger struct {
	store         Store
	historyLength int
	now           func() time.Time
	log           *slog.Logger

	mu   sync.Mutex
	last int64
}

// Option configures a Logger.
type Option func(*Logger)

// WithHistoryLength sets how many events are kept per feature.
// Non-positive values are ignored.
func WithHistoryLength(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.historyLength = n
		}
	}
}

// WithClock replaces the wall clock used to timestamp diffs.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the structured logger. Nil is ignored.
func WithLogger(log *slog.Logger) Option {
	return func(l *Logger) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLogger creates an event log over store.
func NewLogger(store Store, opts ...Option) *Logger {
	if store == nil {
		panic("eventlog: store cannot be nil")
	}

	l := &Logger{
		store:         store,
		historyLength: DefaultHistoryLength,
		now:           time.Now,
		log:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// HistoryLength returns the number of events kept per feature.
func (l *Logger) HistoryLength() int {
	return l.historyLength
}

// Key returns the sorted-set key holding the events of a feature.
func Key(featureName string) string {
	return "feature:" + featureName + ":logging:events"
}

// Update records the difference between two states of the same feature.
// The event is stored under after's name.
func (l *Logger) Update(ctx context.Context, before, after *feature.Feature) error {
	if before == nil || after == nil {
		return ErrNilState
	}
	return l.Append(ctx, after.Name, Diff(before, after, l.stamp()))
}

// stamp returns the current time, moved one microsecond past the previous
// stamp when the clock has not advanced.
func (l *Logger) stamp() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	us := l.now().UnixMicro()
	if us <= l.last {
		us = l.last + 1
	}
	l.last = us
	return time.UnixMicro(us)
}

// Append stores event and trims the log down to the history length.
func (l *Logger) Append(ctx context.Context, featureName string, event Event) error {
	payload, err := event.Marshal()
	if err != nil {
		return err
	}

	key := Key(featureName)
	if err := l.store.ZAdd(ctx, key, event.Score(), payload); err != nil {
		return err
	}
	if err := l.store.ZRemRangeByRank(ctx, key, int64(l.historyLength), -1); err != nil {
		return err
	}

	l.log.DebugContext(ctx, "audit event appended",
		logger.Feature(featureName),
		logger.Event(string(event.Kind)),
		slog.Int("changed_fields", len(event.Data.After)),
	)
	return nil
}

// Last returns the most recent event of a feature, or ok=false if there is none.
func (l *Logger) Last(ctx context.Context, featureName string) (Event, bool, error) {
	events, err := l.rangeEvents(ctx, featureName, 0, 0)
	if err != nil || len(events) == 0 {
		return Event{}, false, err
	}
	return events[0], true, nil
}

// Events returns every retained event of a feature, most recent first.
func (l *Logger) Events(ctx context.Context, featureName string) ([]Event, error) {
	return l.rangeEvents(ctx, featureName, 0, -1)
}

// UpdatedAt returns the time of the most recent event, or ok=false if there is none.
func (l *Logger) UpdatedAt(ctx context.Context, featureName string) (time.Time, bool, error) {
	e, ok, err := l.Last(ctx, featureName)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return e.CreatedAt, true, nil
}

func (l *Logger) rangeEvents(ctx context.Context, featureName string, start, stop int64) ([]Event, error) {
	zs, err := l.store.ZRangeWithScores(ctx, Key(featureName), start, stop)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(zs))
	for _, z := range zs {
		e, err := Unmarshal(z.Member, z.Score)
		if err != nil {
			return nil, errors.Join(err, fmt.Errorf("feature %q", featureName))
		}
		events = append(events, e)
	}
	return events, nil
}
