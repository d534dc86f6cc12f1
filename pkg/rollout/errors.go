package rollout

import "errors"

var (
	// ErrEmptyFeatureName indicates an operation on a feature without a name.
	ErrEmptyFeatureName = errors.New("rollout: feature name cannot be empty")

	// ErrInvalidFeatureName indicates a name that cannot be stored in the
	// comma-separated feature list.
	ErrInvalidFeatureName = errors.New("rollout: feature name cannot contain ','")

	// ErrInvalidMember indicates a user id or group name that is empty or
	// contains a record delimiter ('|' or ',').
	ErrInvalidMember = errors.New("rollout: invalid user or group")

	// ErrObserverFailed indicates that the state was saved but at least one
	// observer failed to record the change.
	ErrObserverFailed = errors.New("rollout: observer failed")
)
