// Package probe decides whether a supervised mount is serving data.
//
// A mount counts as alive only when two independent signals agree: the
// marker file at the mount root carries a recent timestamp, and the
// kernel reports the local path as an active mount point. A path that
// is still mounted but whose marker went stale belongs to an engine
// that holds the mount without syncing, and is reported dead.
//
// Reading through a wedged FUSE mount can block forever, so callers
// that cannot afford to hang run the check through a Prober, which
// executes it in a disposable worker process killed on overrun.
package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/tether/internal/logger"
)

// MarkerName is the sentinel file kept at the mount root. It holds a
// single floating-point UNIX timestamp, rewritten on every refresh.
const MarkerName = ".tether"

// workerGrace pads the worker deadline so the child has room to exec
// and report before it is killed.
const workerGrace = time.Second

// MarkerPath returns the marker location for a mount root.
func MarkerPath(local string) string {
	return filepath.Join(local, MarkerName)
}

// Window converts a session timeout into the marker freshness window.
// A marker older than twice the timeout means at least two refresh
// attempts have already failed to land.
func Window(timeout time.Duration) time.Duration {
	return 2 * timeout
}

// MarkerFresh reports whether the marker under local was written less
// than window ago. Any read or parse failure means not fresh; a
// concurrent marker upload surfaces through the mount as an
// input/output error and is expected, so failures are logged at debug
// and never escalated.
func MarkerFresh(local string, window time.Duration) bool {
	raw, err := os.ReadFile(MarkerPath(local))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Debug("marker not readable",
				logger.KeyPath, local,
				logger.KeyError, err)
		}
		return false
	}

	ts, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		logger.Debug("marker carries no timestamp",
			logger.KeyPath, local,
			logger.KeyError, err)
		return false
	}

	age := float64(time.Now().UnixNano())/float64(time.Second) - ts
	logger.Debug("marker age",
		logger.KeyPath, local,
		"age_s", fmt.Sprintf("%.1f", age))
	return age < window.Seconds()
}

// Mounted reports whether the kernel lists local as a mount point,
// using mountpoint(1) so the answer matches what fusermount acts on.
func Mounted(ctx context.Context, local string) bool {
	err := exec.CommandContext(ctx, "mountpoint", "-q", local).Run()
	if err == nil {
		return true
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		logger.Error("mountpoint check failed",
			logger.KeyPath, local,
			logger.KeyError, err)
	}
	return false
}

// Check evaluates both liveness signals in the calling process. It
// can block on a hung filesystem; callers that need a hard bound use
// a Prober instead.
func Check(ctx context.Context, local string, timeout time.Duration) bool {
	fresh := MarkerFresh(local, Window(timeout))
	mounted := Mounted(ctx, local)
	logger.Debug("probe result",
		logger.KeyPath, local,
		"marker_fresh", fresh,
		"os_mounted", mounted)
	return fresh && mounted
}

// Prober runs Check in a worker process so a stuck filesystem call
// cannot wedge the caller. The zero value re-executes the current
// binary with its built-in probe command.
type Prober struct {
	// Argv overrides the worker command line. The worker receives
	// "--path <local> --timeout <d>" appended to it and must print
	// "true" on stdout when the mount is alive, anything else
	// otherwise.
	Argv []string
}

// Probe runs one worker against local and reports whether it
// confirmed the mount within timeout. An overrunning worker is killed
// and counts as a failed probe.
func (p *Prober) Probe(ctx context.Context, local string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout+workerGrace)
	defer cancel()

	argv, err := p.argv(local, timeout)
	if err != nil {
		logger.Error("probe worker unavailable", logger.KeyError, err)
		return false
	}

	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).Output()
	if err != nil {
		logger.Debug("probe worker failed",
			logger.KeyPath, local,
			logger.KeyError, err)
		return false
	}
	return strings.TrimSpace(string(out)) == "true"
}

func (p *Prober) argv(local string, timeout time.Duration) ([]string, error) {
	base := p.Argv
	if len(base) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		base = []string{exe, "probe"}
	}
	argv := make([]string, 0, len(base)+4)
	argv = append(argv, base...)
	return append(argv, "--path", local, "--timeout", timeout.String()), nil
}
