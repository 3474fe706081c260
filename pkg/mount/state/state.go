// Package state manages a session's runtime directory: the cross-process
// flags, PID files and supervisor spec shared between the owning process and
// the supervisor it spawns.
//
// Flags are plain files. The owner creates "alive" when mounting and removes
// it to request shutdown; the supervisor polls it once per heartbeat. The
// supervisor creates "ready" after the first successful heartbeat and writes
// "done" (graceful or ungraceful) on exit. Every wait on a flag has an
// explicit deadline.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrTimeout is returned when a flag wait exceeds its deadline.
var ErrTimeout = errors.New("timed out waiting for state flag")

// Flag and PID file names inside a session directory.
const (
	flagAlive = "alive"
	flagReady = "ready"
	fileDone  = "done"

	// PIDEngine and PIDSupervisor name the two PID files a session keeps.
	PIDEngine     = "engine"
	PIDSupervisor = "supervisor"
)

// Done flag contents.
const (
	doneGraceful   = "graceful"
	doneUngraceful = "ungraceful"
)

// pollInterval is the resolution of flag waits.
const pollInterval = 100 * time.Millisecond

// Dir is a session runtime directory.
type Dir struct {
	path string
}

// Open creates the directory if needed and returns a handle to it.
func Open(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", path, err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

// Reset clears the ready and done flags before a new mount, so a fresh
// supervisor never observes its predecessor's signals.
func (d *Dir) Reset() error {
	for _, name := range []string{flagReady, fileDone} {
		if err := os.Remove(filepath.Join(d.path, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reset %s: %w", name, err)
		}
	}
	return nil
}

// SetAlive raises the alive flag, making a supervisor loop runnable.
func (d *Dir) SetAlive() error {
	return d.touch(flagAlive)
}

// ClearAlive lowers the alive flag. This is the sole cancellation signal for
// the supervisor loop.
func (d *Dir) ClearAlive() error {
	return d.remove(flagAlive)
}

// Alive reports whether the alive flag is raised.
func (d *Dir) Alive() bool {
	return d.exists(flagAlive)
}

// SignalReady marks the first successful heartbeat.
func (d *Dir) SignalReady() error {
	return d.touch(flagReady)
}

// Ready reports whether the ready flag is raised.
func (d *Dir) Ready() bool {
	return d.exists(flagReady)
}

// AwaitReady blocks until the ready flag is raised, the timeout elapses, or
// ctx is done.
func (d *Dir) AwaitReady(ctx context.Context, timeout time.Duration) error {
	return d.await(ctx, timeout, func() bool { return d.exists(flagReady) })
}

// SignalDone records how the supervisor exited.
func (d *Dir) SignalDone(graceful bool) error {
	content := doneUngraceful
	if graceful {
		content = doneGraceful
	}
	return os.WriteFile(filepath.Join(d.path, fileDone), []byte(content), 0600)
}

// Done reports whether the supervisor has written its exit flag and whether
// the exit was graceful.
func (d *Dir) Done() (done, graceful bool) {
	data, err := os.ReadFile(filepath.Join(d.path, fileDone))
	if err != nil {
		return false, false
	}
	return true, strings.TrimSpace(string(data)) == doneGraceful
}

// AwaitDone blocks until the supervisor writes its exit flag, the timeout
// elapses, or ctx is done. Returns whether the exit was graceful.
func (d *Dir) AwaitDone(ctx context.Context, timeout time.Duration) (bool, error) {
	err := d.await(ctx, timeout, func() bool {
		done, _ := d.Done()
		return done
	})
	if err != nil {
		return false, err
	}
	_, graceful := d.Done()
	return graceful, nil
}

// WritePID records a process ID under the given name.
func (d *Dir) WritePID(name string, pid int) error {
	path := filepath.Join(d.path, name+".pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0600); err != nil {
		return fmt.Errorf("write %s pid: %w", name, err)
	}
	return nil
}

// ReadPID returns the recorded process ID, if any.
func (d *Dir) ReadPID(name string) (int, bool) {
	data, err := os.ReadFile(filepath.Join(d.path, name+".pid"))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// LivePID returns the recorded process ID if the process still exists.
// A recorded PID whose process is gone is treated as stale.
func (d *Dir) LivePID(name string) (int, bool) {
	pid, ok := d.ReadPID(name)
	if !ok {
		return 0, false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}
	return pid, true
}

// RemovePID deletes a PID file.
func (d *Dir) RemovePID(name string) {
	_ = os.Remove(filepath.Join(d.path, name+".pid"))
}

// Remove deletes the whole session directory.
func (d *Dir) Remove() error {
	return os.RemoveAll(d.path)
}

// await polls cond at pollInterval until it is true, the timeout elapses or
// ctx is done.
func (d *Dir) await(ctx context.Context, timeout time.Duration, cond func() bool) error {
	if cond() {
		return nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w after %s", ErrTimeout, timeout)
		case <-tick.C:
			if cond() {
				return nil
			}
		}
	}
}

func (d *Dir) touch(name string) error {
	if err := os.WriteFile(filepath.Join(d.path, name), nil, 0600); err != nil {
		return fmt.Errorf("raise %s flag: %w", name, err)
	}
	return nil
}

func (d *Dir) remove(name string) error {
	if err := os.Remove(filepath.Join(d.path, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lower %s flag: %w", name, err)
	}
	return nil
}

func (d *Dir) exists(name string) bool {
	_, err := os.Stat(filepath.Join(d.path, name))
	return err == nil
}
