package api

import "errors"

var (
	// ErrStart indicates that the server failed to start.
	ErrStart = errors.New("api: failed to start HTTP server")
	// ErrShutdown indicates that graceful shutdown failed.
	ErrShutdown = errors.New("api: failed to shutdown HTTP server gracefully")
	// ErrAlreadyRunning is returned by Run when the server is already serving.
	ErrAlreadyRunning = errors.New("api: server already running")
)
