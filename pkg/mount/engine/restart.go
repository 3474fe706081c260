package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/tether/internal/logger"
)

// AwaitReady waits for the mount to start serving data, probing once
// per round with a one second pause between rounds. Each probe runs
// in an isolated worker bounded by the larger of the session timeout
// and the refresh interval. Returns ErrMountTimeout when every round
// fails.
func (h *Handle) AwaitReady(ctx context.Context) error {
	timeout := h.cfg.Timeout
	if h.cfg.RefreshInterval > timeout {
		timeout = h.cfg.RefreshInterval
	}

	for attempt := 1; attempt <= h.cfg.MountRetries; attempt++ {
		if h.prober.Probe(ctx, h.cfg.Local, timeout) {
			logger.Debug("mount point ready",
				logger.KeyLocal, h.cfg.Local,
				logger.KeyAttempt, attempt)
			return nil
		}
		if err := sleepCtx(ctx, time.Second); err != nil {
			return err
		}
	}

	logger.Error("could not detect mount point", logger.KeyLocal, h.cfg.Local)
	return fmt.Errorf("%s: %w", h.cfg.Local, ErrMountTimeout)
}

// ErrorCallback is the recovery entry point for an unhealthy engine.
// It kills and relaunches the engine, tracking consecutive failures;
// once the restart ceiling is hit it unmounts and returns
// ErrRestartLimit, which callers must treat as unrecoverable.
//
// Only the supervisor loop calls this, so the failure bookkeeping
// needs no locking.
func (h *Handle) ErrorCallback(ctx context.Context) error {
	if h.restarts >= h.cfg.RestartLimit {
		uctx, cancel := context.WithTimeout(context.Background(), h.cfg.Timeout)
		defer cancel()
		if err := h.Unmount(uctx); err != nil {
			logger.Debug("unmount after restart ceiling", logger.KeyError, err)
		}
		return fmt.Errorf("failed to mount %d times in a row: %w",
			h.cfg.RestartLimit, ErrRestartLimit)
	}

	h.noteFailure(time.Now())
	if h.cfg.State != nil {
		if err := h.cfg.State.WriteRestarts(h.restarts); err != nil {
			logger.Debug("could not record restart count", logger.KeyError, err)
		}
	}
	logger.Error("mount point failure, restarting",
		logger.KeyAttempt, h.restarts,
		"limit", h.cfg.RestartLimit)

	h.Kill()
	if err := h.Start(ctx); err != nil {
		return err
	}
	if err := h.AwaitReady(ctx); err != nil {
		return h.ErrorCallback(ctx)
	}
	return nil
}

// noteFailure advances the consecutive-failure counter. Failures far
// enough apart restart the count at one: the window is sized to cover
// a full readiness wait so one slow recovery is not double counted.
func (h *Handle) noteFailure(now time.Time) {
	if now.Sub(h.lastError) < h.errorWindow() {
		h.restarts++
	} else {
		h.restarts = 1
	}
	h.lastError = now
}

func (h *Handle) errorWindow() time.Duration {
	return h.cfg.Timeout * time.Duration((h.cfg.MountRetries+3)*2)
}

// Restarts returns the consecutive-failure count.
func (h *Handle) Restarts() int {
	return h.restarts
}
