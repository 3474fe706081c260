package mount

import (
	"errors"

	"github.com/marmos91/tether/pkg/mount/engine"
)

// Sentinel errors for the session lifecycle. The engine-level sentinels are
// re-exported here so callers match against a single package; all of them
// come back wrapped with the mount path or remote involved.
var (
	// ErrConfiguration means the remote rejected the connection check that
	// precedes every mount. The configuration is wrong or the remote is
	// unreachable; retrying without changing either will not help.
	ErrConfiguration = engine.ErrConfiguration

	// ErrMountTimeout means the mount did not start serving data within the
	// session timeout.
	ErrMountTimeout = engine.ErrMountTimeout

	// ErrRestartLimit means the supervisor exhausted its engine restart
	// budget and gave up on the mount.
	ErrRestartLimit = engine.ErrRestartLimit

	// ErrUnmount means the local path could not be detached.
	ErrUnmount = engine.ErrUnmount

	// ErrMountProcessDied means the supervisor process exited without
	// acknowledging a shutdown request. The mount is gone and nothing is
	// watching it.
	ErrMountProcessDied = errors.New("mount process is dead")

	// ErrAlreadyMounted means a supervisor for this session is still
	// running. Unmount first.
	ErrAlreadyMounted = errors.New("already mounted")
)
