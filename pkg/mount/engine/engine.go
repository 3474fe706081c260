// Package engine drives the external rclone process that implements a
// mount. A Handle owns at most one engine process at a time, restarts
// it within a bounded budget when it goes unhealthy, and exposes the
// administrative commands used to keep the mount honest.
//
// A Handle is deliberately reconstructible from its Config alone: the
// engine PID is kept in the session state directory and all control
// paths go through the rclone remote-control endpoint or OS mount
// tooling, so a supervisor process can take over an engine it did not
// start.
package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"sync"
	"syscall"
	"time"

	"github.com/marmos91/tether/internal/bytesize"
	"github.com/marmos91/tether/internal/logger"
	"github.com/marmos91/tether/pkg/mount/probe"
	"github.com/marmos91/tether/pkg/mount/state"
)

const rcloneBin = "rclone"

const (
	// DefaultTimeout bounds individual engine commands and the
	// readiness wait.
	DefaultTimeout = 30 * time.Second

	// DefaultRefreshInterval is how often the engine polls the remote
	// for changes.
	DefaultRefreshInterval = 10 * time.Second

	// DefaultMountRetries is the number of readiness probe rounds
	// before a mount attempt counts as failed.
	DefaultMountRetries = 5

	// DefaultRestartLimit is the number of consecutive engine
	// restarts allowed before giving up for good.
	DefaultRestartLimit = 1
)

// Config carries everything needed to launch and control one engine.
type Config struct {
	// ConfigPath is the rclone config file holding the remote section.
	ConfigPath string

	// RemoteName is the section name inside the config file.
	RemoteName string

	// RemotePath is the directory on the remote to mount, empty for
	// the remote root.
	RemotePath string

	// Local is the mount point.
	Local string

	// RCAddr is the host:port of the engine's remote-control
	// endpoint. Allocated per session so concurrent sessions do not
	// collide.
	RCAddr string

	RefreshInterval time.Duration
	Timeout         time.Duration
	Verbose         bool

	// CacheMaxSize caps the write-back cache on disk. Zero means no
	// cap.
	CacheMaxSize bytesize.ByteSize

	MountRetries int
	RestartLimit int

	// State is the session state directory used for PID bookkeeping.
	State *state.Dir

	// Prober overrides how readiness probes run. Nil uses a worker
	// that re-executes the current binary.
	Prober *probe.Prober
}

// remote returns the rclone remote spec, e.g. "tether:backup".
func (c Config) remote() string {
	return c.RemoteName + ":" + c.RemotePath
}

// remoteFile returns the rclone spec for a file under the remote root.
func (c Config) remoteFile(name string) string {
	return c.RemoteName + ":" + path.Join(c.RemotePath, name)
}

// Handle controls one mount engine. Methods are not safe for
// concurrent use; the supervisor loop and the owning session each
// drive their own Handle sequentially.
type Handle struct {
	cfg    Config
	prober *probe.Prober

	cmd *exec.Cmd

	restarts  int
	lastError time.Time
}

// New returns a Handle for the given configuration, filling in
// defaults for unset tunables.
func New(cfg Config) *Handle {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.MountRetries <= 0 {
		cfg.MountRetries = DefaultMountRetries
	}
	if cfg.RestartLimit <= 0 {
		cfg.RestartLimit = DefaultRestartLimit
	}
	prober := cfg.Prober
	if prober == nil {
		prober = &probe.Prober{}
	}
	return &Handle{
		cfg:       cfg,
		prober:    prober,
		lastError: time.Now(),
	}
}

// Start brings up a fresh engine process. It first proves the remote
// is reachable by writing the liveness marker; a failure there is a
// configuration problem and is returned immediately without retry.
// Any stale mount at the local path is detached before launching.
func (h *Handle) Start(ctx context.Context) error {
	if err := h.WriteMarker(ctx); err != nil {
		return fmt.Errorf("%w %s: %v", ErrConfiguration, h.cfg.remote(), err)
	}

	if err := h.Unmount(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(h.cfg.Local, 0o755); err != nil {
		return fmt.Errorf("create mount dir: %w", err)
	}

	cmd := exec.Command(rcloneBin, h.mountArgs()...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("engine stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("engine stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start mount engine: %w", err)
	}
	h.cmd = cmd

	// The pipes fill up and stall the engine unless they are drained
	// continuously.
	var drains sync.WaitGroup
	drains.Add(2)
	go h.drain("stdout", stdout, &drains)
	go h.drain("stderr", stderr, &drains)
	go func() {
		drains.Wait()
		err := cmd.Wait()
		logger.Debug("mount engine exited",
			logger.KeyPID, cmd.Process.Pid,
			logger.KeyError, err)
	}()

	if h.cfg.State != nil {
		if err := h.cfg.State.WritePID(state.PIDEngine, cmd.Process.Pid); err != nil {
			logger.Warn("could not record engine pid", logger.KeyError, err)
		}
	}

	logger.Info("mount engine started",
		logger.KeyRemote, h.cfg.remote(),
		logger.KeyLocal, h.cfg.Local,
		logger.KeyPID, cmd.Process.Pid,
		logger.KeyAddr, h.cfg.RCAddr)
	return nil
}

func (h *Handle) mountArgs() []string {
	interval := fmt.Sprintf("%ds", int(h.cfg.RefreshInterval.Seconds()))
	args := []string{
		"mount",
		"--config", h.cfg.ConfigPath,
		h.cfg.remote(),
		h.cfg.Local,
		"--vfs-cache-mode", "writes",
		"--allow-non-empty",
		"--poll-interval", interval,
		"--vfs-cache-poll-interval", interval,
		"--rc",
		"--rc-addr", h.cfg.RCAddr,
	}
	if h.cfg.CacheMaxSize > 0 {
		args = append(args,
			"--vfs-cache-max-size",
			fmt.Sprintf("%dM", h.cfg.CacheMaxSize/bytesize.MiB))
	}
	if h.cfg.Verbose {
		args = append(args, "-vv")
	}
	return args
}

func (h *Handle) drain(stream string, pipe io.ReadCloser, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(pipe)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if h.cfg.Verbose {
			logger.Debug("rclone", "stream", stream, logger.KeyOutput, sc.Text())
		}
	}
}

// pid returns the live engine PID, preferring the process this Handle
// started over the one recorded in the state directory.
func (h *Handle) pid() (int, bool) {
	if h.cmd != nil && h.cmd.Process != nil {
		return h.cmd.Process.Pid, true
	}
	if h.cfg.State != nil {
		return h.cfg.State.LivePID(state.PIDEngine)
	}
	return 0, false
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
