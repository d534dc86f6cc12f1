package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/rollout/pkg/eventlog"
	"github.com/dmitrymomot/rollout/pkg/feature"
)

const namespace = "rollout"

// Metrics holds the rollout counters and gauges. It satisfies both
// rollout.Observer and rollout.EvaluationObserver.
type Metrics struct {
	Evaluations      *prometheus.CounterVec
	EvaluationErrors *prometheus.CounterVec
	Updates          *prometheus.CounterVec
	FeaturesTotal    prometheus.Gauge
	Percentage       *prometheus.GaugeVec
}

// New creates the metrics and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of feature evaluations by feature and result",
			},
			[]string{"feature", "result"},
		),
		EvaluationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluation_errors_total",
				Help:      "Total number of failed feature evaluations by feature",
			},
			[]string{"feature"},
		),
		Updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "updates_total",
				Help:      "Total number of saved feature mutations by feature",
			},
			[]string{"feature"},
		),
		FeaturesTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "features_total",
				Help:      "Total number of known features",
			},
		),
		Percentage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "feature_percentage",
				Help:      "Rollout percentage of each feature",
			},
			[]string{"feature"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.Evaluations,
		m.EvaluationErrors,
		m.Updates,
		m.FeaturesTotal,
		m.Percentage,
	} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Join(ErrRegister, err)
		}
	}
	return m, nil
}

// MustNew is like New but panics on registration errors.
func MustNew(reg prometheus.Registerer) *Metrics {
	m, err := New(reg)
	if err != nil {
		panic(err)
	}
	return m
}

// Log counts a saved mutation. Only the final state is inspected.
func (m *Metrics) Log(_ context.Context, kind eventlog.Kind, states ...*feature.Feature) error {
	if kind != eventlog.KindUpdate || len(states) == 0 {
		return nil
	}
	after := states[len(states)-1]
	if after == nil {
		return nil
	}
	m.Updates.WithLabelValues(after.Name).Inc()
	m.Percentage.WithLabelValues(after.Name).Set(float64(after.Percentage))
	return nil
}

// Evaluated counts an activation decision.
func (m *Metrics) Evaluated(_ context.Context, featureName string, active bool, err error) {
	if err != nil {
		m.EvaluationErrors.WithLabelValues(featureName).Inc()
		return
	}
	m.Evaluations.WithLabelValues(featureName, strconv.FormatBool(active)).Inc()
}

// Handler returns the Prometheus HTTP handler for g.
// A nil g serves the default registry.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
