package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/rollout/pkg/feature"
	"github.com/dmitrymomot/rollout/pkg/metrics"
	"github.com/dmitrymomot/rollout/pkg/rollout"
	"github.com/dmitrymomot/rollout/pkg/storage"
)

func TestNew(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := metrics.New(reg)
	require.NoError(t, err)

	_, err = metrics.New(reg)
	assert.ErrorIs(t, err, metrics.ErrRegister)
	assert.Panics(t, func() { metrics.MustNew(reg) })
}

func TestObservers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := metrics.MustNew(prometheus.NewRegistry())
	r := rollout.New(storage.NewMemoryStore(),
		rollout.WithObserver(m),
		rollout.WithEvaluationObserver(m),
	)

	require.NoError(t, r.ActivatePercentage(ctx, "chat", 30))
	require.NoError(t, r.Activate(ctx, "chat"))

	_, err := r.IsActive(ctx, "chat", feature.UserID("1"))
	require.NoError(t, err)
	_, err = r.IsActiveIP(ctx, "video", "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, r.DefineGroup("broken", func(context.Context, feature.Actor) (bool, error) {
		return false, errors.New("boom")
	}))
	require.NoError(t, r.ActivateGroup(ctx, "search", "broken"))
	_, err = r.IsActive(ctx, "search", feature.UserID("1"))
	require.Error(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Updates.WithLabelValues("chat")))
	assert.Equal(t, float64(100), testutil.ToFloat64(m.Percentage.WithLabelValues("chat")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Evaluations.WithLabelValues("chat", "true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Evaluations.WithLabelValues("video", "false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EvaluationErrors.WithLabelValues("search")))
}

func TestLogIgnoresIncompleteEvents(t *testing.T) {
	t.Parallel()

	m := metrics.MustNew(prometheus.NewRegistry())
	require.NoError(t, m.Log(context.Background(), "update"))
	require.NoError(t, m.Log(context.Background(), "update", nil))
	assert.Equal(t, 0, testutil.CollectAndCount(m.Updates))
}

func TestCollector(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := storage.NewMemoryStore()
	r := rollout.New(store)
	require.NoError(t, r.ActivatePercentage(ctx, "chat", 25))
	require.NoError(t, r.Activate(ctx, "video"))

	m := metrics.MustNew(prometheus.NewRegistry())
	c := metrics.NewCollector(r, m, time.Hour, nil)

	c.Collect(ctx)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FeaturesTotal))
	assert.Equal(t, float64(25), testutil.ToFloat64(m.Percentage.WithLabelValues("chat")))
	assert.Equal(t, float64(100), testutil.ToFloat64(m.Percentage.WithLabelValues("video")))

	t.Run("start collects immediately", func(t *testing.T) {
		m := metrics.MustNew(prometheus.NewRegistry())
		c := metrics.NewCollector(r, m, time.Hour, nil)
		c.Start(ctx)
		assert.Eventually(t, func() bool {
			return testutil.ToFloat64(m.FeaturesTotal) == 2
		}, time.Second, 10*time.Millisecond)
		c.Stop()
		c.Stop()
	})

	t.Run("store errors keep previous values", func(t *testing.T) {
		closed := storage.NewMemoryStore()
		require.NoError(t, closed.Close())

		c := metrics.NewCollector(rollout.New(closed), m, 0, nil)
		c.Collect(ctx)
		assert.Equal(t, float64(2), testutil.ToFloat64(m.FeaturesTotal))
	})
}

func TestHandler(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.MustNew(reg)
	m.Evaluated(context.Background(), "chat", true, nil)

	srv := httptest.NewServer(metrics.Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `rollout_evaluations_total{feature="chat",result="true"} 1`)
}
