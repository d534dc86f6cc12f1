// Package config loads application configuration from environment variables.
//
// It wraps github.com/joho/godotenv, which reads .env files into the process
// environment, and github.com/caarlos0/env/v11, which parses the environment
// into structs annotated with env tags:
//
//	var cfg config.Rollout
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//
// Every configuration type is parsed once per process and cached. Tests that
// change the environment can call Reload or ResetCache.
//
// The package defines sentinel errors that can be compared with errors.Is:
// ErrParsingConfig, ErrLoadingEnvFile, ErrNilPointer and ErrInvalidConfig.
package config
