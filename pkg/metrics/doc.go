// Package metrics exposes feature flag activity as Prometheus metrics.
//
// Metrics plugs into the rollout manager as both a mutation observer and an
// evaluation observer:
//
//	m := metrics.MustNew(prometheus.DefaultRegisterer)
//	r := rollout.New(store,
//		rollout.WithObserver(m),
//		rollout.WithEvaluationObserver(m),
//	)
//	http.Handle("/metrics", metrics.Handler(nil))
//
// Exported series:
//
//	rollout_evaluations_total{feature,result}
//	rollout_evaluation_errors_total{feature}
//	rollout_updates_total{feature}
//	rollout_features_total
//	rollout_feature_percentage{feature}
//
// The gauges follow mutations made through the observed manager. A Collector
// refreshes them periodically so changes made by other processes sharing the
// same store show up too.
package metrics
