package feature

import "errors"

// Predefined errors for the feature package.
var (
	// ErrGroupPredicate indicates that a registered group predicate failed.
	// The predicate's own error is joined to it.
	ErrGroupPredicate = errors.New("feature group predicate failed")

	// ErrEmptyGroupName indicates an attempt to define a group without a name.
	ErrEmptyGroupName = errors.New("feature group name cannot be empty")

	// ErrNilPredicate indicates an attempt to define a group without a predicate.
	ErrNilPredicate = errors.New("feature group predicate cannot be nil")
)
