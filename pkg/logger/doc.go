// Package logger builds the slog.Logger used across rollout.
//
// New creates a *slog.Logger configured by Option functions:
//
//   - WithEnvironment – per-environment defaults (text/debug for development,
//     JSON/info for staging and production) plus service/env attributes.
//   - WithFormat / WithTextFormatter / WithJSONFormatter – output format.
//   - WithLevel / WithLevelName – minimum level.
//   - WithAttr – static attributes.
//   - WithContextExtractors / WithContextValue – attributes pulled from the
//     context of every record.
//
// Attribute helpers (Feature, Actor, IP, FeatureGroup, Percentage, Error, ...)
// keep key names consistent between packages:
//
//	log := logger.New(logger.WithEnvironment(cfg.Env, "rollout"))
//	log.InfoContext(ctx, "feature activated",
//	    logger.Feature("chat"),
//	    logger.Percentage(20),
//	)
//
// Error and Errors return an empty attribute for nil errors, so they can be
// passed unconditionally. Nop returns a logger that discards everything and is
// the default for library types that accept an optional logger.
package logger
