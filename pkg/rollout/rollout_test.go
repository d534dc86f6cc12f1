package rollout_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/rollout/pkg/eventlog"
	"github.com/dmitrymomot/rollout/pkg/feature"
	"github.com/dmitrymomot/rollout/pkg/legacy"
	"github.com/dmitrymomot/rollout/pkg/rollout"
	"github.com/dmitrymomot/rollout/pkg/storage"
)

type user struct {
	id    string
	admin bool
}

func (u user) ID() string { return u.id }

type sessionUser struct{ id string }

func (u *sessionUser) ID() string { return u.id }

func isAdmin(a feature.Actor) bool {
	u, ok := a.(user)
	return ok && u.admin
}

type failingObserver struct{}

func (failingObserver) Log(context.Context, eventlog.Kind, ...*feature.Feature) error {
	return errors.New("boom")
}

type recordingObserver struct {
	mu    sync.Mutex
	calls [][2]*feature.Feature
}

func (o *recordingObserver) Log(_ context.Context, kind eventlog.Kind, states ...*feature.Feature) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if kind == eventlog.KindUpdate && len(states) == 2 {
		o.calls = append(o.calls, [2]*feature.Feature{states[0], states[1]})
	}
	return nil
}

type evaluation struct {
	feature string
	active  bool
	err     error
}

type recordingEvaluations struct {
	mu   sync.Mutex
	seen []evaluation
}

func (o *recordingEvaluations) Evaluated(_ context.Context, name string, active bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, evaluation{name, active, err})
}

func TestNew(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { rollout.New(nil) })

	r := rollout.New(storage.NewMemoryStore())
	assert.NotNil(t, r.Groups())
	assert.True(t, r.Groups().Defined(feature.GroupAll))
	assert.Nil(t, r.EventLog())
}

func TestGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("missing feature is cleared", func(t *testing.T) {
		t.Parallel()
		r := rollout.New(storage.NewMemoryStore())

		f, err := r.Get(ctx, "chat")
		require.NoError(t, err)
		assert.Equal(t, feature.New("chat"), f)

		names, err := r.Features(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("parses the stored record", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		require.NoError(t, store.Set(ctx, "feature:chat", "20|1,2|admins|10.0.0.1"))

		f, err := rollout.New(store).Get(ctx, "chat")
		require.NoError(t, err)
		assert.Equal(t, 20, f.Percentage)
		assert.Equal(t, []string{"1", "2"}, f.Users)
		assert.Equal(t, []string{"admins"}, f.Groups)
		assert.Equal(t, []string{"10.0.0.1"}, f.IPs)
	})

	t.Run("rejects invalid names", func(t *testing.T) {
		t.Parallel()
		r := rollout.New(storage.NewMemoryStore())

		_, err := r.Get(ctx, "")
		assert.ErrorIs(t, err, rollout.ErrEmptyFeatureName)

		err = r.Activate(ctx, "a,b")
		assert.ErrorIs(t, err, rollout.ErrInvalidFeatureName)
	})

	t.Run("store errors are returned", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		require.NoError(t, store.Close())

		_, err := rollout.New(store).Get(ctx, "chat")
		assert.ErrorIs(t, err, storage.ErrStoreClosed)
	})
}

func TestMutations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("activate and deactivate", func(t *testing.T) {
		t.Parallel()
		r := rollout.New(storage.NewMemoryStore())

		require.NoError(t, r.Activate(ctx, "chat"))
		active, err := r.IsActive(ctx, "chat", feature.UserID("anyone"))
		require.NoError(t, err)
		assert.True(t, active)

		active, err = r.IsActive(ctx, "chat", nil)
		require.NoError(t, err)
		assert.True(t, active)

		require.NoError(t, r.ActivateUser(ctx, "chat", feature.UserID("1")))
		require.NoError(t, r.Deactivate(ctx, "chat"))

		f, err := r.Get(ctx, "chat")
		require.NoError(t, err)
		assert.Equal(t, feature.New("chat"), f)

		names, err := r.Features(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"chat"}, names)
	})

	t.Run("users", func(t *testing.T) {
		t.Parallel()
		r := rollout.New(storage.NewMemoryStore())

		require.NoError(t, r.ActivateUser(ctx, "chat", feature.UserID("42")))
		require.NoError(t, r.ActivateUser(ctx, "chat", feature.UserID("42")))

		f, err := r.Get(ctx, "chat")
		require.NoError(t, err)
		assert.Equal(t, []string{"42"}, f.Users)

		active, err := r.IsActive(ctx, "chat", feature.UserID("42"))
		require.NoError(t, err)
		assert.True(t, active)

		active, err = r.IsActive(ctx, "chat", feature.UserID("43"))
		require.NoError(t, err)
		assert.False(t, active)

		require.NoError(t, r.DeactivateUser(ctx, "chat", feature.UserID("42")))
		active, err = r.IsActive(ctx, "chat", feature.UserID("42"))
		require.NoError(t, err)
		assert.False(t, active)

		require.NoError(t, r.ActivateUserID(ctx, "chat", "7"))
		require.NoError(t, r.ActivateUser(ctx, "chat", nil))
		f, err = r.Get(ctx, "chat")
		require.NoError(t, err)
		assert.Equal(t, []string{"7"}, f.Users)

		require.NoError(t, r.DeactivateUserID(ctx, "chat", "7"))
		f, err = r.Get(ctx, "chat")
		require.NoError(t, err)
		assert.Empty(t, f.Users)
	})

	t.Run("groups", func(t *testing.T) {
		t.Parallel()
		r := rollout.New(storage.NewMemoryStore())
		require.NoError(t, r.DefineGroup("admins", feature.Match(isAdmin)))

		require.NoError(t, r.ActivateGroup(ctx, "chat", "admins"))

		active, err := r.IsActive(ctx, "chat", user{id: "1", admin: true})
		require.NoError(t, err)
		assert.True(t, active)

		active, err = r.IsActive(ctx, "chat", user{id: "2"})
		require.NoError(t, err)
		assert.False(t, active)

		require.NoError(t, r.DeactivateGroup(ctx, "chat", "admins"))
		active, err = r.IsActive(ctx, "chat", user{id: "1", admin: true})
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("all group", func(t *testing.T) {
		t.Parallel()
		r := rollout.New(storage.NewMemoryStore())
		require.NoError(t, r.ActivateGroup(ctx, "chat", feature.GroupAll))

		active, err := r.IsActive(ctx, "chat", feature.UserID("5"))
		require.NoError(t, err)
		assert.True(t, active)

		// Anonymous actors only pass at 100%.
		active, err = r.IsActive(ctx, "chat", nil)
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("undefined group is not satisfied", func(t *testing.T) {
		t.Parallel()
		r := rollout.New(storage.NewMemoryStore())
		require.NoError(t, r.ActivateGroup(ctx, "chat", "ghosts"))

		active, err := r.IsActive(ctx, "chat", feature.UserID("5"))
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("group predicate errors", func(t *testing.T) {
		t.Parallel()
		r := rollout.New(storage.NewMemoryStore())
		require.NoError(t, r.DefineGroup("broken", func(context.Context, feature.Actor) (bool, error) {
			return false, errors.New("db down")
		}))
		require.NoError(t, r.ActivateGroup(ctx, "chat", "broken"))

		_, err := r.IsActive(ctx, "chat", feature.UserID("5"))
		assert.ErrorIs(t, err, feature.ErrGroupPredicate)
	})

	t.Run("ips", func(t *testing.T) {
		t.Parallel()
		r := rollout.New(storage.NewMemoryStore())

		require.NoError(t, r.ActivateIP(ctx, "chat", "192.168.1.1"))
		require.NoError(t, r.ActivateIP(ctx, "chat", "not-an-ip"))

		f, err := r.Get(ctx, "chat")
		require.NoError(t, err)
		assert.Equal(t, []string{"192.168.1.1"}, f.IPs)

		active, err := r.IsActiveIP(ctx, "chat", "192.168.1.1")
		require.NoError(t, err)
		assert.True(t, active)

		active, err = r.IsActiveIP(ctx, "chat", "192.168.1.2")
		require.NoError(t, err)
		assert.False(t, active)

		require.NoError(t, r.DeactivateIP(ctx, "chat", "192.168.1.1"))
		active, err = r.IsActiveIP(ctx, "chat", "192.168.1.1")
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("members with record delimiters are rejected", func(t *testing.T) {
		t.Parallel()
		r := rollout.New(storage.NewMemoryStore())
		require.NoError(t, r.ActivateUserID(ctx, "chat", "42"))

		assert.ErrorIs(t, r.ActivateUserID(ctx, "chat", "42|all"), rollout.ErrInvalidMember)
		assert.ErrorIs(t, r.ActivateUserID(ctx, "chat", "1,2"), rollout.ErrInvalidMember)
		assert.ErrorIs(t, r.ActivateUserID(ctx, "chat", ""), rollout.ErrInvalidMember)
		assert.ErrorIs(t, r.ActivateUser(ctx, "chat", user{id: "7|100"}), rollout.ErrInvalidMember)
		assert.ErrorIs(t, r.ActivateGroup(ctx, "chat", "admins|all"), rollout.ErrInvalidMember)
		assert.ErrorIs(t, r.ActivateGroup(ctx, "chat", "a,b"), rollout.ErrInvalidMember)

		f, err := r.Get(ctx, "chat")
		require.NoError(t, err)
		assert.Equal(t, 0, f.Percentage)
		assert.Equal(t, []string{"42"}, f.Users)
		assert.Empty(t, f.Groups)

		active, err := r.IsActive(ctx, "chat", feature.UserID("stranger"))
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("typed nil actor is anonymous", func(t *testing.T) {
		t.Parallel()
		r := rollout.New(storage.NewMemoryStore())
		var u *sessionUser

		require.NoError(t, r.ActivateUser(ctx, "chat", u))
		require.NoError(t, r.ActivateGroup(ctx, "chat", feature.GroupAll))
		active, err := r.IsActive(ctx, "chat", u)
		require.NoError(t, err)
		assert.False(t, active)

		require.NoError(t, r.Activate(ctx, "chat"))
		active, err = r.IsActive(ctx, "chat", u)
		require.NoError(t, err)
		assert.True(t, active)

		f, err := r.Get(ctx, "chat")
		require.NoError(t, err)
		assert.Empty(t, f.Users)
	})

	t.Run("percentage is clamped", func(t *testing.T) {
		t.Parallel()
		r := rollout.New(storage.NewMemoryStore())

		require.NoError(t, r.ActivatePercentage(ctx, "chat", 150))
		f, err := r.Get(ctx, "chat")
		require.NoError(t, err)
		assert.Equal(t, 100, f.Percentage)

		require.NoError(t, r.ActivatePercentage(ctx, "chat", -5))
		f, err = r.Get(ctx, "chat")
		require.NoError(t, err)
		assert.Equal(t, 0, f.Percentage)
	})

	t.Run("deactivate percentage keeps the allow-lists", func(t *testing.T) {
		t.Parallel()
		r := rollout.New(storage.NewMemoryStore())

		require.NoError(t, r.ActivateUser(ctx, "chat", feature.UserID("1")))
		require.NoError(t, r.ActivatePercentage(ctx, "chat", 50))
		require.NoError(t, r.DeactivatePercentage(ctx, "chat"))

		f, err := r.Get(ctx, "chat")
		require.NoError(t, err)
		assert.Equal(t, 0, f.Percentage)
		assert.Equal(t, []string{"1"}, f.Users)
	})
}

func TestPercentageRollout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := rollout.New(storage.NewMemoryStore())
	require.NoError(t, r.ActivatePercentage(ctx, "chat", 20))

	active := 0
	for i := 1; i <= 120; i++ {
		ok, err := r.IsActive(ctx, "chat", feature.UserID(strconv.Itoa(i)))
		require.NoError(t, err)
		if ok {
			active++
		}
	}
	assert.InDelta(t, 24, active, 5)

	// Raising the percentage never deactivates anyone.
	for _, id := range []string{"4", "9", "13"} {
		require.NoError(t, r.ActivatePercentage(ctx, "chat", 10))
		ok, err := r.IsActive(ctx, "chat", feature.UserID(id))
		require.NoError(t, err)
		assert.True(t, ok, id)

		require.NoError(t, r.ActivatePercentage(ctx, "chat", 50))
		ok, err = r.IsActive(ctx, "chat", feature.UserID(id))
		require.NoError(t, err)
		assert.True(t, ok, id)
	}
}

func TestFeatures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("keeps insertion order without duplicates", func(t *testing.T) {
		t.Parallel()
		r := rollout.New(storage.NewMemoryStore())

		require.NoError(t, r.Activate(ctx, "chat"))
		require.NoError(t, r.Activate(ctx, "video"))
		require.NoError(t, r.Deactivate(ctx, "chat"))

		names, err := r.Features(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"chat", "video"}, names)
	})

	t.Run("tolerates duplicates already stored", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		require.NoError(t, store.Set(ctx, "feature:__features__", "chat,video,chat,"))

		names, err := rollout.New(store).Features(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"chat", "video"}, names)
	})
}

func TestObservers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("receive before and after", func(t *testing.T) {
		t.Parallel()
		obs := &recordingObserver{}
		r := rollout.New(storage.NewMemoryStore(), rollout.WithObserver(obs))

		require.NoError(t, r.ActivatePercentage(ctx, "chat", 30))
		require.NoError(t, r.ActivateUser(ctx, "chat", feature.UserID("7")))

		require.Len(t, obs.calls, 2)
		assert.Equal(t, 0, obs.calls[0][0].Percentage)
		assert.Equal(t, 30, obs.calls[0][1].Percentage)
		assert.Empty(t, obs.calls[1][0].Users)
		assert.Equal(t, []string{"7"}, obs.calls[1][1].Users)
	})

	t.Run("failures do not roll back the save", func(t *testing.T) {
		t.Parallel()
		obs := &recordingObserver{}
		r := rollout.New(storage.NewMemoryStore(),
			rollout.WithObserver(failingObserver{}),
			rollout.WithObserver(obs),
		)

		err := r.Activate(ctx, "chat")
		assert.ErrorIs(t, err, rollout.ErrObserverFailed)
		assert.Len(t, obs.calls, 1)

		f, err := r.Get(ctx, "chat")
		require.NoError(t, err)
		assert.Equal(t, 100, f.Percentage)
	})

	t.Run("evaluations", func(t *testing.T) {
		t.Parallel()
		evals := &recordingEvaluations{}
		r := rollout.New(storage.NewMemoryStore(), rollout.WithEvaluationObserver(evals))

		require.NoError(t, r.Activate(ctx, "chat"))
		_, err := r.IsActive(ctx, "chat", feature.UserID("1"))
		require.NoError(t, err)
		_, err = r.IsActiveIP(ctx, "video", "10.0.0.1")
		require.NoError(t, err)
		_, err = r.IsActive(ctx, "", nil)
		require.Error(t, err)

		require.Len(t, evals.seen, 3)
		assert.Equal(t, evaluation{"chat", true, nil}, evals.seen[0])
		assert.Equal(t, evaluation{"video", false, nil}, evals.seen[1])
		assert.ErrorIs(t, evals.seen[2].err, rollout.ErrEmptyFeatureName)
	})
}

func TestEventLog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := eventlog.NewLogger(store, eventlog.WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	r := rollout.New(store, rollout.WithEventLog(events))
	require.Same(t, events, r.EventLog())

	require.NoError(t, r.ActivateGroup(ctx, "chat", "admins"))
	require.NoError(t, r.ActivatePercentage(ctx, "chat", 20))

	got, err := r.EventLog().Events(ctx, "chat")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, eventlog.Fields{"percentage": 0}, got[0].Data.Before)
	assert.Equal(t, eventlog.Fields{"percentage": 20}, got[0].Data.After)
	assert.Equal(t, eventlog.Fields{"groups": []string{"admins"}}, got[1].Data.After)
}

func TestLegacyMigration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("migrates once", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		require.NoError(t, store.Set(ctx, "feature:chat:percentage", "12"))
		require.NoError(t, store.SAdd(ctx, "feature:chat:users", "2", "1"))
		require.NoError(t, store.SAdd(ctx, "feature:chat:groups", "admins"))

		obs := &recordingObserver{}
		r := rollout.New(store,
			rollout.WithLegacy(legacy.NewReader(store)),
			rollout.WithObserver(obs),
		)

		f, err := r.Get(ctx, "chat")
		require.NoError(t, err)
		assert.Equal(t, 12, f.Percentage)
		assert.Equal(t, []string{"1", "2"}, f.Users)
		assert.Equal(t, []string{"admins"}, f.Groups)
		assert.Empty(t, obs.calls)

		raw, ok, err := store.Get(ctx, "feature:chat")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "12|1,2|admins|", raw)

		// Later legacy writes are ignored once a record exists.
		require.NoError(t, store.Set(ctx, "feature:chat:percentage", "99"))
		f, err = r.Get(ctx, "chat")
		require.NoError(t, err)
		assert.Equal(t, 12, f.Percentage)

		names, err := r.Features(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"chat"}, names)
	})

	t.Run("without legacy data", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		r := rollout.New(store, rollout.WithLegacy(legacy.NewReader(store)))

		f, err := r.Get(ctx, "chat")
		require.NoError(t, err)
		assert.Equal(t, feature.New("chat"), f)
	})
}
