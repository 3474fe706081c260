// Package supervisor implements the heartbeat loop that watches a
// mount from a dedicated process. The loop refreshes the liveness
// marker, probes the mount, and restarts the engine through its
// recovery path when probes keep failing. Running in a separate
// process means a wedged owner cannot take supervision down with it,
// and the owner can kill supervision outright without corrupting its
// own state.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/tether/internal/logger"
	"github.com/marmos91/tether/pkg/mount/engine"
	"github.com/marmos91/tether/pkg/mount/probe"
)

// DefaultMissedHeartbeats is the number of consecutive failed probes
// tolerated before the engine is declared dead and restarted.
const DefaultMissedHeartbeats = 3

// errMountDead marks a mount that kept failing probes past the miss
// threshold.
var errMountDead = errors.New("mount process is dead")

// Engine is the slice of the engine handle the loop drives.
// *engine.Handle implements it.
type Engine interface {
	AwaitReady(ctx context.Context) error
	Refresh(ctx context.Context) error
	ErrorCallback(ctx context.Context) error
	Unmount(ctx context.Context) error
	Kill()
}

// Flags is the cross-process signaling surface shared with the owner.
// *state.Dir implements it.
type Flags interface {
	Alive() bool
	SignalReady() error
	SignalDone(graceful bool) error
}

// Config wires one supervisor loop.
type Config struct {
	Engine Engine
	Flags  Flags

	// Probe checks mount liveness. Nil uses a worker-process prober.
	Probe func(ctx context.Context, local string, timeout time.Duration) bool

	// Local is the mount point being watched.
	Local string

	// RefreshInterval paces the loop.
	RefreshInterval time.Duration

	// MissedHeartbeats is the consecutive-miss threshold. Zero means
	// DefaultMissedHeartbeats.
	MissedHeartbeats int

	// Metrics is optional; nil disables collection.
	Metrics Metrics
}

// Run executes the heartbeat loop until the owner clears the alive
// flag (graceful, returns nil), the engine becomes unrecoverable, or
// ctx is canceled. The engine must already be started; Run first
// waits for the mount to come up, then begins heartbeating.
//
// Whatever the exit path, the engine is killed and a done flag is
// signaled so the owner never waits on a silent crash.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Engine == nil || cfg.Flags == nil || cfg.Local == "" {
		return fmt.Errorf("supervisor: engine, flags and local path are required")
	}
	if cfg.MissedHeartbeats <= 0 {
		cfg.MissedHeartbeats = DefaultMissedHeartbeats
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = engine.DefaultRefreshInterval
	}
	if cfg.Probe == nil {
		prober := &probe.Prober{}
		cfg.Probe = prober.Probe
	}

	// A probe must never be declared failed faster than the marker
	// can move.
	hbTimeout := 2 * time.Second
	if cfg.RefreshInterval > hbTimeout {
		hbTimeout = cfg.RefreshInterval
	}

	h := hooks{cfg.Metrics}

	if err := cfg.Engine.AwaitReady(ctx); err != nil {
		if fatal := recoverEngine(ctx, cfg, h, err); fatal != nil {
			return fatal
		}
	}

	missed := 0
	readySignaled := false

	for cfg.Flags.Alive() && ctx.Err() == nil {
		err := cfg.Engine.Refresh(ctx)
		if err == nil {
			start := time.Now()
			alive := cfg.Probe(ctx, cfg.Local, hbTimeout)
			h.heartbeat(alive, time.Since(start))

			switch {
			case !alive && missed >= cfg.MissedHeartbeats:
				missed = 0
				h.missed(0)
				if uerr := cfg.Engine.Unmount(ctx); uerr != nil {
					logger.Debug("unmount of dead mount", logger.KeyError, uerr)
				}
				err = errMountDead

			case !alive:
				missed++
				h.missed(missed)
				logger.Warn("missed heartbeat",
					logger.KeyLocal, cfg.Local,
					logger.KeyMissed, missed,
					"threshold", cfg.MissedHeartbeats)
				// Retry immediately; the probe timeout already paced
				// this iteration.
				continue

			default:
				missed = 0
				h.missed(0)
				if !readySignaled {
					readySignaled = true
					if rerr := cfg.Flags.SignalReady(); rerr != nil {
						logger.Error("could not signal readiness", logger.KeyError, rerr)
					}
					logger.Info("mount is ready", logger.KeyLocal, cfg.Local)
				}
			}
		}

		if err != nil {
			if fatal := recoverEngine(ctx, cfg, h, err); fatal != nil {
				return fatal
			}
		}

		sleep(ctx, cfg)
	}

	cfg.Engine.Kill()

	if !cfg.Flags.Alive() {
		if err := cfg.Flags.SignalDone(true); err != nil {
			logger.Error("could not signal termination", logger.KeyError, err)
		}
		logger.Info("supervisor stopped", logger.KeyLocal, cfg.Local)
		return nil
	}

	// Canceled while the owner still wants the mount up. The missing
	// graceful flag tells the owner's monitor to react.
	_ = cfg.Flags.SignalDone(false)
	return ctx.Err()
}

// recoverEngine routes a heartbeat failure into the engine's recovery
// path. A restart-ceiling failure is fatal: the engine is killed, an
// ungraceful exit is signaled, and the error is returned for Run to
// propagate. Anything else is logged and the loop carries on.
func recoverEngine(ctx context.Context, cfg Config, h hooks, cause error) error {
	logger.Error("error during heartbeat", logger.KeyError, cause)

	err := cfg.Engine.ErrorCallback(ctx)
	if err == nil {
		h.restart()
		return nil
	}
	if errors.Is(err, engine.ErrRestartLimit) {
		cfg.Engine.Kill()
		_ = cfg.Flags.SignalDone(false)
		return err
	}
	logger.Error("error during heartbeat recovery", logger.KeyError, err)
	return nil
}

// sleep pauses for the refresh interval, waking early when the alive
// flag is cleared or ctx is done.
func sleep(ctx context.Context, cfg Config) {
	const tick = 100 * time.Millisecond

	deadline := time.Now().Add(cfg.RefreshInterval)
	for time.Now().Before(deadline) {
		if !cfg.Flags.Alive() || ctx.Err() != nil {
			return
		}
		d := time.Until(deadline)
		if d > tick {
			d = tick
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

type hooks struct {
	m Metrics
}

func (h hooks) heartbeat(alive bool, d time.Duration) {
	if h.m != nil {
		h.m.ObserveHeartbeat(alive, d)
		h.m.RecordMountState(alive)
	}
}

func (h hooks) missed(n int) {
	if h.m != nil {
		h.m.RecordMissed(n)
	}
}

func (h hooks) restart() {
	if h.m != nil {
		h.m.RecordRestart()
	}
}
