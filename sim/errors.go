package sim

import "errors"

// Sentinel errors for the scheduling layer. Callers match them with errors.Is;
// returned errors wrap them with context about the objects involved.
var (
	// Registry errors
	ErrDuplicateID       = errors.New("duplicate object id")
	ErrAlreadyRegistered = errors.New("object already registered")
	ErrUnregistered      = errors.New("object not registered with this simulator")
	ErrNotValidated      = errors.New("dependency graph not validated")

	// Run errors
	ErrConvergenceFailure = errors.New("dependency cycle did not converge")
	ErrCausalityViolation = errors.New("object updated before its dependencies")
	ErrTimeReversal       = errors.New("update time precedes object time")
)
