package mount

import (
	"errors"
	"time"

	"github.com/marmos91/tether/internal/bytesize"
	"github.com/marmos91/tether/pkg/mount/engine"
	"github.com/marmos91/tether/pkg/mount/probe"
	"github.com/marmos91/tether/pkg/mount/supervisor"
	"github.com/marmos91/tether/pkg/remote"
)

// Tuning groups the supervision knobs. Zero values take the defaults noted
// on each field.
type Tuning struct {
	// MissedHeartbeats is how many consecutive failed probes the supervisor
	// tolerates before it restarts the engine. Default 3.
	MissedHeartbeats int

	// RestartLimit is how many consecutive engine restarts are allowed
	// before the supervisor gives up on the mount. Default 1.
	RestartLimit int

	// MountRetries is how many probe rounds a single mount attempt gets
	// before it counts as failed. Default 5.
	MountRetries int
}

// Config describes one mount session.
type Config struct {
	// Local is the directory the remote is mounted on. Created if missing.
	Local string

	// Remote is the storage backend to mount.
	Remote remote.Remote

	// RemotePath is the directory on the remote to expose, empty for the
	// remote root.
	RemotePath string

	// RefreshInterval is the heartbeat period. Default 10s.
	RefreshInterval time.Duration

	// Timeout bounds every lifecycle operation: mount readiness, unmount
	// acknowledgment, engine commands. Default 30s.
	Timeout time.Duration

	// Verbose forwards engine output into the session log.
	Verbose bool

	// CacheMaxSize caps the engine's on-disk write cache. Zero means no
	// cap.
	CacheMaxSize bytesize.ByteSize

	Tuning Tuning
}

func (c *Config) applyDefaults() {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = engine.DefaultRefreshInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = engine.DefaultTimeout
	}
	if c.Tuning.MissedHeartbeats <= 0 {
		c.Tuning.MissedHeartbeats = supervisor.DefaultMissedHeartbeats
	}
	if c.Tuning.RestartLimit <= 0 {
		c.Tuning.RestartLimit = engine.DefaultRestartLimit
	}
	if c.Tuning.MountRetries <= 0 {
		c.Tuning.MountRetries = engine.DefaultMountRetries
	}
}

func (c *Config) validate() error {
	if c.Local == "" {
		return errors.New("local mount path is required")
	}
	if c.Remote == nil {
		return errors.New("remote configuration is required")
	}
	return c.Remote.Validate()
}

// Option customizes a Session beyond what Config covers.
type Option func(*Session)

// WithOnError installs a callback invoked once if the supervisor process
// dies without acknowledging a shutdown. Without it the session records
// ErrMountProcessDied instead, surfaced by Wait and Refresh.
func WithOnError(fn func()) Option {
	return func(s *Session) { s.onError = fn }
}

// WithStateDir pins the session state directory instead of a per-session
// temp directory. The CLI uses this to find sessions across processes.
func WithStateDir(dir string) Option {
	return func(s *Session) { s.stateDir = dir }
}

// WithSupervisorCommand overrides the command the session spawns as its
// supervisor process. The session appends "--state-dir <dir>". The default
// re-executes the current binary with "supervise".
func WithSupervisorCommand(argv ...string) Option {
	return func(s *Session) { s.supervisorCmd = argv }
}

// WithProbeCommand overrides the command liveness probes run in. The
// default re-executes the current binary with "probe".
func WithProbeCommand(argv ...string) Option {
	return func(s *Session) { s.prober = &probe.Prober{Argv: argv} }
}

// WithRCAddr pins the engine's remote-control address instead of
// allocating a free localhost port per mount.
func WithRCAddr(addr string) Option {
	return func(s *Session) { s.rcAddr = addr }
}

// WithLogFile redirects the supervisor process output. The default is
// supervisor.log inside the state directory.
func WithLogFile(path string) Option {
	return func(s *Session) { s.logFile = path }
}

// WithLogLevel sets the log level for the supervisor process.
func WithLogLevel(level string) Option {
	return func(s *Session) { s.logLevel = level }
}
