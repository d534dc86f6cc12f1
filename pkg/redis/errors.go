package redis

import "errors"

var (
	// ErrFailedToParseRedisConnString indicates a REDIS_URL that go-redis cannot parse.
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")

	// ErrRedisNotReady indicates that Connect ran out of retries before the
	// server answered a ping.
	ErrRedisNotReady = errors.New("redis did not become ready within the given time period")

	// ErrEmptyConnectionURL indicates a Config without a connection URL.
	ErrEmptyConnectionURL = errors.New("empty redis connection URL")

	// ErrHealthcheckFailed wraps the ping error returned by a Healthcheck probe.
	ErrHealthcheckFailed = errors.New("redis healthcheck failed")
)
