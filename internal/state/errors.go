package state

import "errors"

var (
	// ErrNotFound indicates the requested directory, plan, or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates a status change that the lifecycle does not
	// permit from the directory's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)
