// Package mount is the user-facing entry point for supervised remote
// mounts. A Session owns one mount end to end: it renders the remote
// configuration into an engine config file, launches the engine, spawns a
// detached supervisor process to keep the mount healthy, and tears the
// whole arrangement down again on Unmount or Close.
//
// The supervisor outlives crashes of the owning process only in the sense
// that it keeps the mount served; coordination between the two runs
// through the session state directory (flag files, PID files and the
// supervisor spec), so a Session can also be re-attached to a state
// directory written by another process.
//
// Sessions are not safe for concurrent lifecycle calls. Probing and
// status reads may run concurrently with a mount.
package mount

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/tether/internal/bytesize"
	"github.com/marmos91/tether/internal/logger"
	"github.com/marmos91/tether/pkg/mount/engine"
	"github.com/marmos91/tether/pkg/mount/probe"
	"github.com/marmos91/tether/pkg/mount/state"
	"github.com/marmos91/tether/pkg/remote"
)

// Session is a handle on one supervised mount.
type Session struct {
	cfg Config

	id         string
	remoteName string
	configPath string
	stateDir   string
	st         *state.Dir
	rcAddr     string
	rcPinned   bool

	prober        *probe.Prober
	supervisorCmd []string
	onError       func()
	logFile       string
	logLevel      string

	mu       sync.Mutex
	mounted  bool
	sup      *exec.Cmd
	monitor  chan struct{}
	fatalErr error
	closed   bool
}

// New builds a Session and writes its engine config file. The file and the
// state directory live until Close. A finalizer tears leaked sessions down
// as a last resort; rely on Close or Run, not on it.
func New(cfg Config, opts ...Option) (*Session, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:        cfg,
		id:         uuid.NewString(),
		remoteName: cfg.Remote.Name(),
		configPath: remote.NewConfigPath(),
		prober:     &probe.Prober{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rcAddr != "" {
		s.rcPinned = true
	}
	if s.stateDir == "" {
		s.stateDir = filepath.Join(os.TempDir(), "tether-"+s.id[:8])
	}
	if s.logFile == "" {
		s.logFile = filepath.Join(s.stateDir, "supervisor.log")
	}

	st, err := state.Open(s.stateDir)
	if err != nil {
		return nil, err
	}
	s.st = st

	if err := remote.WriteConfigFile(s.configPath, cfg.Remote); err != nil {
		return nil, err
	}

	runtime.SetFinalizer(s, (*Session).finalize)
	logger.Debug("session created",
		logger.KeySession, s.id,
		logger.KeyLocal, cfg.Local,
		logger.KeyRemote, cfg.Remote.Redacted())
	return s, nil
}

// Attach rebuilds a Session from a state directory written by another
// process, enough to unmount, refresh or inspect the mount it describes.
// Mount also works as long as the engine config file recorded in the spec
// still exists.
func Attach(stateDir string, opts ...Option) (*Session, error) {
	st, err := state.Open(stateDir)
	if err != nil {
		return nil, err
	}
	spec, err := st.ReadSpec()
	if err != nil {
		return nil, fmt.Errorf("no session at %s: %w", stateDir, err)
	}

	s := &Session{
		cfg: Config{
			Local:           spec.Local,
			RemotePath:      spec.RemotePath,
			RefreshInterval: spec.RefreshInterval,
			Timeout:         spec.Timeout,
			Verbose:         spec.Verbose,
			CacheMaxSize:    bytesize.ByteSize(spec.CacheMaxSize),
			Tuning: Tuning{
				MissedHeartbeats: spec.MissedHeartbeats,
				RestartLimit:     spec.RestartLimit,
				MountRetries:     spec.MountRetries,
			},
		},
		id:         spec.SessionID,
		remoteName: spec.RemoteName,
		configPath: spec.ConfigPath,
		stateDir:   stateDir,
		st:         st,
		rcAddr:     spec.RCAddr,
		prober:     &probe.Prober{},
		logFile:    spec.LogFile,
		logLevel:   spec.LogLevel,
	}
	s.cfg.applyDefaults()
	for _, opt := range opts {
		opt(s)
	}
	if s.logFile == "" {
		s.logFile = filepath.Join(stateDir, "supervisor.log")
	}
	return s, nil
}

// Mount brings the mount up: connectivity check and engine launch first
// (configuration problems surface here, synchronously), then the
// supervisor process, then a bounded wait for the first successful
// heartbeat. On readiness timeout the mount is torn back down and
// ErrMountTimeout returned.
func (s *Session) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("session is closed")
	}
	if pid, ok := s.st.LivePID(state.PIDSupervisor); ok && s.st.Alive() {
		s.mu.Unlock()
		return fmt.Errorf("%w at %s (supervisor pid %d)", ErrAlreadyMounted, s.cfg.Local, pid)
	}
	s.fatalErr = nil
	s.mu.Unlock()

	// The config file is regenerated on every mount so credential rotation
	// on the Remote takes effect without a new Session.
	if s.cfg.Remote != nil {
		if err := remote.WriteConfigFile(s.configPath, s.cfg.Remote); err != nil {
			return err
		}
	}

	if err := engine.Init(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if !s.rcPinned {
		addr, err := freeRCAddr()
		if err != nil {
			return err
		}
		s.rcAddr = addr
	}

	eng := s.engine()
	if err := eng.Start(ctx); err != nil {
		return err
	}
	if err := s.st.Reset(); err != nil {
		eng.Kill()
		return err
	}
	if err := s.st.WriteSpec(s.spec()); err != nil {
		eng.Kill()
		return err
	}
	if err := s.st.SetAlive(); err != nil {
		eng.Kill()
		return err
	}

	cmd, err := s.spawnSupervisor()
	if err != nil {
		_ = s.st.ClearAlive()
		eng.Kill()
		return err
	}

	monitor := make(chan struct{})
	s.mu.Lock()
	s.mounted = true
	s.sup = cmd
	s.monitor = monitor
	s.mu.Unlock()
	go s.watch(cmd, monitor)

	logger.Info("mounting",
		logger.KeySession, s.id,
		logger.KeyLocal, s.cfg.Local,
		logger.KeyRemote, s.remoteDisplay(),
		logger.KeyPID, cmd.Process.Pid)

	if err := s.st.AwaitReady(ctx, s.cfg.Timeout); err != nil {
		uctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		if uerr := s.UnmountTimeout(uctx, s.cfg.Timeout); uerr != nil {
			logger.Debug("unmount after failed mount", logger.KeyError, uerr)
		}
		cancel()
		if errors.Is(err, state.ErrTimeout) {
			return fmt.Errorf("%s: %w", s.cfg.Local, ErrMountTimeout)
		}
		return err
	}

	logger.Info("mounted", logger.KeySession, s.id, logger.KeyLocal, s.cfg.Local)
	return nil
}

// spec captures everything the supervisor process needs into the state
// directory.
func (s *Session) spec() *state.Spec {
	return &state.Spec{
		SessionID:        s.id,
		Local:            s.cfg.Local,
		RemoteName:       s.remoteName,
		RemotePath:       s.cfg.RemotePath,
		ConfigPath:       s.configPath,
		RCAddr:           s.rcAddr,
		RefreshInterval:  s.cfg.RefreshInterval,
		Timeout:          s.cfg.Timeout,
		Verbose:          s.cfg.Verbose,
		MissedHeartbeats: s.cfg.Tuning.MissedHeartbeats,
		RestartLimit:     s.cfg.Tuning.RestartLimit,
		MountRetries:     s.cfg.Tuning.MountRetries,
		CacheMaxSize:     uint64(s.cfg.CacheMaxSize),
		LogFile:          s.logFile,
		LogLevel:         s.logLevel,
		MountedAt:        time.Now().UTC(),
	}
}

// engine builds a Handle over the session's current engine parameters.
// Handles are cheap; one is built per operation rather than cached so
// attached sessions and remounts always see the current rc address.
func (s *Session) engine() *engine.Handle {
	return engine.New(engine.Config{
		ConfigPath:      s.configPath,
		RemoteName:      s.remoteName,
		RemotePath:      s.cfg.RemotePath,
		Local:           s.cfg.Local,
		RCAddr:          s.rcAddr,
		RefreshInterval: s.cfg.RefreshInterval,
		Timeout:         s.cfg.Timeout,
		Verbose:         s.cfg.Verbose,
		CacheMaxSize:    s.cfg.CacheMaxSize,
		MountRetries:    s.cfg.Tuning.MountRetries,
		RestartLimit:    s.cfg.Tuning.RestartLimit,
		State:           s.st,
		Prober:          s.prober,
	})
}

// spawnSupervisor launches the detached supervisor process with its output
// redirected to the session log file.
func (s *Session) spawnSupervisor() (*exec.Cmd, error) {
	argv := s.supervisorCmd
	if len(argv) == 0 {
		executable, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		argv = []string{executable, "supervise"}
	}
	argv = append(append([]string(nil), argv...), "--state-dir", s.st.Path())

	cmd := exec.Command(argv[0], argv[1:]...)

	logHandle, err := os.OpenFile(s.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open supervisor log %s: %w", s.logFile, err)
	}
	cmd.Stdout = logHandle
	cmd.Stderr = logHandle
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		_ = logHandle.Close()
		return nil, fmt.Errorf("start supervisor: %w", err)
	}
	_ = logHandle.Close()

	if err := s.st.WritePID(state.PIDSupervisor, cmd.Process.Pid); err != nil {
		logger.Warn("could not record supervisor pid", logger.KeyError, err)
	}
	return cmd, nil
}

// watch reaps the supervisor process and decides whether its exit was
// sanctioned. An exit without a graceful done flag within the session
// timeout means the mount died behind our back: the error callback fires
// once if set, otherwise ErrMountProcessDied is recorded for Wait and
// Refresh to surface.
func (s *Session) watch(cmd *exec.Cmd, monitor chan struct{}) {
	defer close(monitor)

	exitErr := cmd.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	graceful, err := s.st.AwaitDone(ctx, s.cfg.Timeout)
	cancel()

	s.mu.Lock()
	s.mounted = false
	s.sup = nil
	s.mu.Unlock()
	s.st.RemovePID(state.PIDSupervisor)

	if err == nil && graceful {
		logger.Debug("supervisor exited cleanly",
			logger.KeySession, s.id,
			logger.KeyPID, cmd.Process.Pid)
		return
	}

	logger.Error("mount process is dead",
		logger.KeySession, s.id,
		logger.KeyLocal, s.cfg.Local,
		logger.KeyPID, cmd.Process.Pid,
		logger.KeyError, exitErr)

	s.mu.Lock()
	onError := s.onError
	if onError == nil {
		s.fatalErr = fmt.Errorf("%s: %w", s.cfg.Local, ErrMountProcessDied)
	}
	s.mu.Unlock()
	if onError != nil {
		onError()
	}
}

func (s *Session) remoteDisplay() string {
	if s.cfg.Remote != nil {
		return s.cfg.Remote.Redacted()
	}
	return s.remoteName + ":" + s.cfg.RemotePath
}

// freeRCAddr asks the kernel for an unused localhost port.
func freeRCAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("allocate rc port: %w", err)
	}
	defer l.Close()
	return l.Addr().String(), nil
}

func (s *Session) finalize() {
	_ = s.Close()
}
