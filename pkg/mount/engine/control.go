package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marmos91/tether/internal/logger"
	"github.com/marmos91/tether/pkg/mount/probe"
	"github.com/marmos91/tether/pkg/mount/state"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init checks that the external tools the engine shells out to are
// installed. Idempotent; call once before the first Start.
func Init(ctx context.Context) error {
	initOnce.Do(func() {
		initErr = preflight(ctx)
	})
	return initErr
}

func preflight(ctx context.Context) error {
	for _, bin := range []string{rcloneBin, "fusermount", "mountpoint"} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("required tool missing: %w", err)
		}
	}
	out, err := exec.CommandContext(ctx, rcloneBin, "version").Output()
	if err != nil {
		return fmt.Errorf("rclone version: %w", err)
	}
	version, _, _ := strings.Cut(string(out), "\n")
	logger.Debug("mount engine available", "version", version)
	return nil
}

// rc invokes an operation on the engine's remote-control endpoint.
func (h *Handle) rc(ctx context.Context, op string) error {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, rcloneBin,
		"rc", "--url", "http://"+h.cfg.RCAddr, op).CombinedOutput()
	if err != nil {
		return fmt.Errorf("rc %s: %v: %s", op, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// RefreshCache asks the engine to re-read the remote directory tree.
func (h *Handle) RefreshCache(ctx context.Context) error {
	return h.rc(ctx, "vfs/refresh")
}

// Quit asks the engine to shut down cleanly, flushing pending writes.
func (h *Handle) Quit(ctx context.Context) error {
	return h.rc(ctx, "core/quit")
}

// WriteMarker uploads a fresh timestamp to the marker file at the
// remote root. Doubles as the connectivity check: if this write does
// not land, nothing else will.
func (h *Handle) WriteMarker(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	tmp, err := os.CreateTemp("", "tether-marker-*")
	if err != nil {
		return fmt.Errorf("marker temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	now := float64(time.Now().UnixNano()) / float64(time.Second)
	if _, err := fmt.Fprintf(tmp, "%f\n", now); err != nil {
		tmp.Close()
		return fmt.Errorf("write marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}

	out, err := exec.CommandContext(ctx, rcloneBin,
		"copyto", tmp.Name(), h.cfg.remoteFile(probe.MarkerName),
		"--config", h.cfg.ConfigPath).CombinedOutput()
	if err != nil {
		return fmt.Errorf("upload marker: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Refresh rewrites the remote marker and reloads the engine's
// directory cache. The supervisor calls this every heartbeat.
func (h *Handle) Refresh(ctx context.Context) error {
	if err := h.WriteMarker(ctx); err != nil {
		return err
	}
	return h.RefreshCache(ctx)
}

// Mounted reports whether the local path is currently a mount point.
func (h *Handle) Mounted(ctx context.Context) bool {
	return probe.Mounted(ctx, h.cfg.Local)
}

// Unmount lazily detaches the local path and waits for the kernel to
// drop the mount, re-issuing the detach while the budget lasts.
// Returns ErrUnmount if the path is still mounted afterwards.
func (h *Handle) Unmount(ctx context.Context) error {
	deadline := time.Now().Add(h.cfg.Timeout)
	for {
		_ = exec.CommandContext(ctx, "fusermount", "-uz", h.cfg.Local).Run()
		for i := 0; i < 4; i++ {
			if !h.Mounted(ctx) {
				return nil
			}
			if err := sleepCtx(ctx, 250*time.Millisecond); err != nil {
				return err
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w %s", ErrUnmount, h.cfg.Local)
		}
	}
}

// Kill tears the engine down with escalating force: a best-effort
// graceful quit, then SIGKILL to the engine's process group, then a
// forced unmount. Idempotent and safe on a Handle whose engine is
// already gone.
func (h *Handle) Kill() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	if err := h.Quit(ctx); err != nil {
		logger.Debug("engine quit", logger.KeyError, err)
	}
	cancel()

	if pid, ok := h.pid(); ok {
		// The engine runs in its own process group; killing the
		// group takes its helper threads down with it.
		if err := unix.Kill(-pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
			logger.Debug("engine kill", logger.KeyPID, pid, logger.KeyError, err)
		}
	}
	if h.cfg.State != nil {
		h.cfg.State.RemovePID(state.PIDEngine)
	}

	uctx, ucancel := context.WithTimeout(context.Background(), h.cfg.Timeout)
	defer ucancel()
	if err := h.Unmount(uctx); err != nil {
		logger.Debug("unmount after kill", logger.KeyError, err)
	}
}
