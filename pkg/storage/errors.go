package storage

import "errors"

var (
	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("storage: store is closed")

	// ErrWrongType is returned when a key holds a value of another kind,
	// e.g. a sorted-set operation against a plain string key.
	ErrWrongType = errors.New("storage: operation against a key holding the wrong kind of value")

	// ErrOpenFailed is returned when a persistent store cannot be opened.
	ErrOpenFailed = errors.New("storage: failed to open store")
)
