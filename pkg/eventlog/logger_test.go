package eventlog_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/rollout/pkg/eventlog"
	"github.com/dmitrymomot/rollout/pkg/feature"
	"github.com/dmitrymomot/rollout/pkg/storage"
)

// tickingClock returns a clock that advances by one millisecond per call.
func tickingClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}
}

func TestUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("records only changed fields", func(t *testing.T) {
		t.Parallel()
		log := eventlog.NewLogger(storage.NewMemoryStore())

		before := feature.New("chat")
		after := before.Clone()
		after.SetPercentage(100)
		require.NoError(t, log.Update(ctx, before, after))

		e, ok, err := log.Last(ctx, "chat")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, eventlog.KindUpdate, e.Kind)
		assert.Equal(t, eventlog.Fields{"percentage": 0}, e.Data.Before)
		assert.Equal(t, eventlog.Fields{"percentage": 100}, e.Data.After)
	})

	t.Run("list fields survive the round trip", func(t *testing.T) {
		t.Parallel()
		log := eventlog.NewLogger(storage.NewMemoryStore())

		before := feature.New("chat")
		after := before.Clone()
		after.AddUserID("1")
		after.AddGroup("admins")
		require.NoError(t, log.Update(ctx, before, after))

		e, ok, err := log.Last(ctx, "chat")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, eventlog.Fields{"users": []string{}, "groups": []string{}}, e.Data.Before)
		assert.Equal(t, eventlog.Fields{"users": []string{"1"}, "groups": []string{"admins"}}, e.Data.After)
	})

	t.Run("empty diff is still recorded", func(t *testing.T) {
		t.Parallel()
		log := eventlog.NewLogger(storage.NewMemoryStore())

		f := feature.New("chat")
		require.NoError(t, log.Update(ctx, f, f.Clone()))

		events, err := log.Events(ctx, "chat")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.True(t, events[0].Data.Empty())
	})

	t.Run("nil states", func(t *testing.T) {
		t.Parallel()
		log := eventlog.NewLogger(storage.NewMemoryStore())
		assert.ErrorIs(t, log.Update(ctx, nil, feature.New("chat")), eventlog.ErrNilState)
	})
}

func TestHistoryBound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	const history = 5
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	log := eventlog.NewLogger(storage.NewMemoryStore(),
		eventlog.WithHistoryLength(history),
		eventlog.WithClock(tickingClock(start)),
	)
	assert.Equal(t, history, log.HistoryLength())

	f := feature.New("chat")
	for i := 1; i <= history+3; i++ {
		before := f.Clone()
		f.SetPercentage(i)
		require.NoError(t, log.Update(ctx, before, f))
	}

	events, err := log.Events(ctx, "chat")
	require.NoError(t, err)
	require.Len(t, events, history)

	for i, e := range events {
		// most recent first: 8, 7, 6, 5, 4
		assert.Equal(t, history+3-i, e.Data.After["percentage"])
		if i > 0 {
			assert.True(t, e.CreatedAt.Before(events[i-1].CreatedAt))
		}
	}

	updatedAt, ok, err := log.UpdatedAt(ctx, "chat")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, start.Add((history+3)*time.Millisecond).UnixMicro(), updatedAt.UnixMicro())
}

func TestFrozenClockKeepsOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	const history = 3
	log := eventlog.NewLogger(storage.NewMemoryStore(),
		eventlog.WithHistoryLength(history),
		eventlog.WithClock(func() time.Time { return at }),
	)

	f := feature.New("chat")
	for i := 1; i <= 10; i++ {
		before := f.Clone()
		f.SetPercentage(i)
		require.NoError(t, log.Update(ctx, before, f))

		last, ok, err := log.Last(ctx, "chat")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, i, last.Data.After["percentage"])
	}

	events, err := log.Events(ctx, "chat")
	require.NoError(t, err)
	require.Len(t, events, history)
	for i, e := range events {
		assert.Equal(t, 10-i, e.Data.After["percentage"])
	}
	assert.Equal(t, at.Add(9*time.Microsecond).UnixMicro(), events[0].CreatedAt.UnixMicro())
}

func TestDefaultHistoryLength(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	log := eventlog.NewLogger(storage.NewMemoryStore(),
		eventlog.WithClock(tickingClock(time.Now())),
		eventlog.WithHistoryLength(0),
	)
	assert.Equal(t, eventlog.DefaultHistoryLength, log.HistoryLength())

	f := feature.New("chat")
	for range eventlog.DefaultHistoryLength + 10 {
		require.NoError(t, log.Update(ctx, f, f))
	}

	events, err := log.Events(ctx, "chat")
	require.NoError(t, err)
	assert.Len(t, events, eventlog.DefaultHistoryLength)
}

func TestEmptyLog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := eventlog.NewLogger(storage.NewMemoryStore())

	_, ok, err := log.Last(ctx, "chat")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = log.UpdatedAt(ctx, "chat")
	require.NoError(t, err)
	assert.False(t, ok)

	events, err := log.Events(ctx, "chat")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFeaturesAreIndependent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := eventlog.NewLogger(storage.NewMemoryStore(), eventlog.WithHistoryLength(2))

	for i := range 3 {
		f := feature.New(fmt.Sprintf("f%d", i))
		require.NoError(t, log.Update(ctx, f, f))
	}
	for i := range 3 {
		events, err := log.Events(ctx, fmt.Sprintf("f%d", i))
		require.NoError(t, err)
		assert.Len(t, events, 1)
	}
}

func TestUnknownStoredKind(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	log := eventlog.NewLogger(store)

	require.NoError(t, store.ZAdd(ctx, eventlog.Key("chat"), -1, `{"id":"x","name":"explode","data":{"before":{},"after":{}}}`))

	_, err := log.Events(ctx, "chat")
	require.Error(t, err)
	assert.ErrorIs(t, err, eventlog.ErrInvalidEventKind)
	assert.Contains(t, err.Error(), `"chat"`)

	_, _, err = log.Last(ctx, "chat")
	assert.ErrorIs(t, err, eventlog.ErrInvalidEventKind)
}

func TestCorruptPayload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	log := eventlog.NewLogger(store)

	require.NoError(t, store.ZAdd(ctx, eventlog.Key("chat"), -1, `not json`))

	_, err := log.Events(ctx, "chat")
	assert.ErrorIs(t, err, eventlog.ErrDecodeEvent)
}

func TestKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "feature:chat:logging:events", eventlog.Key("chat"))
}
