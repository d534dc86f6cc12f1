package eventlog

import "errors"

var (
	// ErrInvalidEventKind indicates an event kind the log cannot interpret,
	// either when logging or when replaying a stored payload.
	ErrInvalidEventKind = errors.New("invalid log event kind")

	// ErrInvalidArgumentCount indicates that an event was dispatched with the
	// wrong number of feature states for its kind.
	ErrInvalidArgumentCount = errors.New("invalid number of arguments for log event")

	// ErrDecodeEvent indicates a stored payload that is not a valid event.
	ErrDecodeEvent = errors.New("failed to decode log event")

	// ErrNilState indicates a nil feature state passed to the log.
	ErrNilState = errors.New("feature state cannot be nil")
)
