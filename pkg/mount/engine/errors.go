package engine

import "errors"

var (
	// ErrConfiguration means the remote rejected the very first write.
	// Bad credentials or an unreachable endpoint will not fix
	// themselves, so no retry is attempted.
	ErrConfiguration = errors.New("could not connect to remote")

	// ErrMountTimeout means the mount point did not come up within
	// its readiness budget.
	ErrMountTimeout = errors.New("could not mount on time")

	// ErrRestartLimit means the engine kept failing after the allowed
	// number of consecutive restarts. Not recoverable.
	ErrRestartLimit = errors.New("restart limit reached")

	// ErrUnmount means the local path was still mounted after the
	// unmount budget ran out.
	ErrUnmount = errors.New("could not unmount")
)
