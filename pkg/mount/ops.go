package mount

import (
	"context"
	"errors"
	"os"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marmos91/tether/internal/logger"
	"github.com/marmos91/tether/pkg/mount/state"
)

// Unmount tears the mount down within the session timeout. See
// UnmountTimeout.
func (s *Session) Unmount(ctx context.Context) error {
	return s.UnmountTimeout(ctx, s.cfg.Timeout)
}

// UnmountTimeout tears the mount down: a last cache flush while the engine
// is still up, a quit request, then the alive flag is lowered and the
// supervisor gets timeout to acknowledge before it is killed outright.
// Whatever is left of the engine is killed too and the local path
// detached. Idempotent; returns ErrUnmount only if the path stays
// mounted.
func (s *Session) UnmountTimeout(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}
	eng := s.engine()

	// Flush pending writes while the engine can still upload them.
	fctx, fcancel := context.WithTimeout(ctx, time.Second)
	if err := eng.RefreshCache(fctx); err != nil {
		logger.Debug("final cache refresh", logger.KeyError, err)
	}
	fcancel()
	if err := eng.Quit(ctx); err != nil {
		logger.Debug("engine quit", logger.KeyError, err)
	}

	wasAlive := s.st.Alive()
	if err := s.st.ClearAlive(); err != nil {
		return err
	}
	if wasAlive {
		if graceful, err := s.st.AwaitDone(ctx, timeout); err != nil {
			logger.Warn("supervisor did not acknowledge shutdown",
				logger.KeySession, s.id, logger.KeyError, err)
		} else if !graceful {
			logger.Warn("supervisor exited ungracefully", logger.KeySession, s.id)
		}
	}
	// Mark the shutdown sanctioned before killing anything, so the exit
	// monitor and later Unmount calls never misread it.
	if err := s.st.SignalDone(true); err != nil {
		logger.Debug("record shutdown", logger.KeyError, err)
	}

	s.killSupervisor()
	eng.Kill()

	if eng.Mounted(ctx) {
		if err := eng.Unmount(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.mounted = false
	s.sup = nil
	s.mu.Unlock()

	logger.Info("unmounted", logger.KeySession, s.id, logger.KeyLocal, s.cfg.Local)
	return nil
}

// killSupervisor force-stops the supervisor process, whether this session
// spawned it or attached to it.
func (s *Session) killSupervisor() {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()

	if sup != nil && sup.Process != nil {
		if err := sup.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			logger.Debug("kill supervisor", logger.KeyError, err)
		}
		return
	}
	if pid, ok := s.st.LivePID(state.PIDSupervisor); ok {
		if err := unix.Kill(pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
			logger.Debug("kill supervisor", logger.KeyPID, pid, logger.KeyError, err)
		}
	}
}

// IsAlive probes the mount with the default liveness budget, the larger
// of the session timeout and the refresh interval.
func (s *Session) IsAlive(ctx context.Context) bool {
	return s.IsAliveTimeout(ctx, 0)
}

// IsAliveTimeout probes the mount in an isolated worker process bounded
// by timeout. Zero or negative means the default budget.
func (s *Session) IsAliveTimeout(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = s.cfg.Timeout
		if s.cfg.RefreshInterval > timeout {
			timeout = s.cfg.RefreshInterval
		}
	}
	return s.prober.Probe(ctx, s.cfg.Local, timeout)
}

// Refresh rewrites the remote liveness marker and reloads the engine's
// directory cache, forcing pending writes through. Fails fast once the
// supervisor has been declared dead.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	fatal := s.fatalErr
	s.mu.Unlock()
	if fatal != nil {
		return fatal
	}
	return s.engine().Refresh(ctx)
}

// Session lifecycle states as reported by Status.
const (
	StateActive   = "active"   // supervisor running, mount serving data
	StateDegraded = "degraded" // supervisor running, mount not responding
	StateStopped  = "stopped"  // no supervisor
	StateFailed   = "failed"   // supervisor died without acknowledgment
)

// Status is a point-in-time snapshot of a session.
type Status struct {
	State         string        `json:"state" yaml:"state"`
	Local         string        `json:"local" yaml:"local"`
	Remote        string        `json:"remote" yaml:"remote"`
	Alive         bool          `json:"alive" yaml:"alive"`
	SupervisorPID int           `json:"supervisor_pid,omitempty" yaml:"supervisor_pid,omitempty"`
	EnginePID     int           `json:"engine_pid,omitempty" yaml:"engine_pid,omitempty"`
	Restarts      int           `json:"restarts" yaml:"restarts"`
	MountedAt     time.Time     `json:"mounted_at,omitempty" yaml:"mounted_at,omitempty"`
	Uptime        time.Duration `json:"uptime,omitempty" yaml:"uptime,omitempty"`
}

// Status reports the session's current state. The liveness probe runs
// with the heartbeat budget, so a hung mount delays the snapshot rather
// than hanging it.
func (s *Session) Status(ctx context.Context) Status {
	st := Status{
		Local:  s.cfg.Local,
		Remote: s.remoteDisplay(),
	}

	supPID, supLive := s.st.LivePID(state.PIDSupervisor)
	st.SupervisorPID = supPID
	st.EnginePID, _ = s.st.LivePID(state.PIDEngine)
	st.Restarts = s.st.Restarts()

	if spec, err := s.st.ReadSpec(); err == nil && !spec.MountedAt.IsZero() {
		st.MountedAt = spec.MountedAt
		if supLive {
			st.Uptime = time.Since(spec.MountedAt).Truncate(time.Second)
		}
	}

	probeTimeout := 2 * time.Second
	if s.cfg.RefreshInterval > probeTimeout {
		probeTimeout = s.cfg.RefreshInterval
	}
	st.Alive = s.prober.Probe(ctx, s.cfg.Local, probeTimeout)

	s.mu.Lock()
	fatal := s.fatalErr
	s.mu.Unlock()

	switch {
	case fatal != nil:
		st.State = StateFailed
	case !supLive:
		st.State = StateStopped
	case st.Alive:
		st.State = StateActive
	default:
		st.State = StateDegraded
	}
	return st
}

// Wait blocks until the supervisor process exits or ctx is done. It
// returns nil after a sanctioned shutdown and ErrMountProcessDied after
// an unsanctioned one. Daemon mode parks on this.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	monitor := s.monitor
	s.mu.Unlock()
	if monitor == nil {
		return errors.New("not mounted")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-monitor:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.fatalErr
	}
}

// Close releases everything the session owns: a best-effort unmount, then
// the engine config file and the state directory. Cleanup failures are
// logged, not returned. Closing an attached session tears down the mount
// it attached to.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	runtime.SetFinalizer(s, nil)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	if err := s.UnmountTimeout(ctx, s.cfg.Timeout); err != nil {
		logger.Warn("unmount during close", logger.KeySession, s.id, logger.KeyError, err)
	}

	if err := os.Remove(s.configPath); err != nil && !os.IsNotExist(err) {
		logger.Debug("remove engine config", logger.KeyPath, s.configPath, logger.KeyError, err)
	}
	if err := s.st.Remove(); err != nil {
		logger.Debug("remove state dir", logger.KeyPath, s.stateDir, logger.KeyError, err)
	}
	logger.Debug("session closed", logger.KeySession, s.id)
	return nil
}

// Run mounts, runs fn, and always tears the session down afterwards,
// whatever fn returns. The scoped form of the lifecycle.
func Run(ctx context.Context, cfg Config, fn func(context.Context, *Session) error, opts ...Option) error {
	s, err := New(cfg, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Mount(ctx); err != nil {
		return err
	}
	return fn(ctx, s)
}
