// Package api exposes a rollout manager over HTTP.
//
// NewRouter returns a chi router with read endpoints (list, get, activation
// checks, audit events) and mutation endpoints mirroring the manager
// operations. Responses are JSON envelopes:
//
//	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
//
// Server runs the router with graceful shutdown:
//
//	srv := api.NewServer(cfg, log)
//	err := srv.Run(ctx, api.NewRouter(r,
//		api.WithLogger(log),
//		api.WithMetricsHandler(metrics.Handler(nil)),
//	))
//
// The API has no authentication. Bind it to a private interface or put it
// behind an authenticating proxy.
package api
