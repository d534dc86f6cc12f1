// Package redis connects the rollout engine to a Redis server.
//
// The package wraps the go-redis client and adds:
//
//   - Connect, which pings the server with retries using the supplied Config.
//   - Storage, an implementation of storage.Store backed by plain Redis
//     strings, sorted sets and sets. Feature records, the feature name list
//     and the audit event logs use the same keys as every other rollout
//     client, so existing data can be shared.
//   - Healthcheck, a probe suitable for readiness endpoints.
//
// Configuration is described by the Config struct whose fields can be
// populated from environment variables via github.com/caarlos0/env.
//
// # Usage
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    // handle error, probably terminate the application
//	}
//	defer client.Close()
//
//	r := rollout.New(redis.NewStorage(client))
//
// # Errors
//
// Sentinel errors (ErrRedisNotReady, ErrHealthcheckFailed, ...) are joined with
// the underlying go-redis errors using errors.Join, so errors.Is works on both.
// Errors returned by Storage are the go-redis errors unchanged.
package redis
