package mount

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tether/internal/logger"
	"github.com/marmos91/tether/pkg/mount/engine"
	"github.com/marmos91/tether/pkg/mount/state"
	"github.com/marmos91/tether/pkg/remote"
)

func TestMain(m *testing.M) {
	logger.InitWithWriter(io.Discard, "error", "text")
	os.Exit(m.Run())
}

func testRemote() *remote.SFTP {
	return &remote.SFTP{
		Host:    "backup.example.com",
		User:    "archive",
		KeyFile: "/home/archive/.ssh/id_ed25519",
	}
}

// fakeProbe keeps test sessions from re-executing the test binary as a
// probe worker.
func fakeProbe(output string) Option {
	return WithProbeCommand("/bin/sh", "-c", "echo "+output, "probe")
}

func newTestSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	cfg := Config{
		Local:           filepath.Join(t.TempDir(), "mnt"),
		Remote:          testRemote(),
		RefreshInterval: 50 * time.Millisecond,
		Timeout:         time.Second,
	}
	opts = append([]Option{WithStateDir(t.TempDir()), fakeProbe("false")}, opts...)
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Remote: testRemote()})
	require.ErrorContains(t, err, "local mount path")

	_, err = New(Config{Local: "/mnt/data"})
	require.ErrorContains(t, err, "remote configuration")

	_, err = New(Config{Local: "/mnt/data", Remote: &remote.SFTP{Host: "h", User: "u"}})
	require.ErrorContains(t, err, "key_pem")
}

func TestNewWritesEngineConfig(t *testing.T) {
	s := newTestSession(t)

	data, err := os.ReadFile(s.configPath)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "[tether]")
	assert.Contains(t, content, "type = sftp")
	assert.Contains(t, content, "host = backup.example.com")
}

func TestNewAppliesDefaults(t *testing.T) {
	s, err := New(
		Config{Local: "/mnt/data", Remote: testRemote()},
		WithStateDir(t.TempDir()),
	)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, engine.DefaultTimeout, s.cfg.Timeout)
	assert.Equal(t, engine.DefaultRefreshInterval, s.cfg.RefreshInterval)
	assert.Equal(t, 3, s.cfg.Tuning.MissedHeartbeats)
	assert.Equal(t, 1, s.cfg.Tuning.RestartLimit)
	assert.Equal(t, 5, s.cfg.Tuning.MountRetries)
	assert.Equal(t, filepath.Join(s.stateDir, "supervisor.log"), s.logFile)
}

func TestOptions(t *testing.T) {
	called := false
	s := newTestSession(t,
		WithRCAddr("127.0.0.1:5572"),
		WithSupervisorCommand("/usr/local/bin/tether", "supervise"),
		WithLogFile("/tmp/tether-test.log"),
		WithOnError(func() { called = true }),
	)

	assert.Equal(t, "127.0.0.1:5572", s.rcAddr)
	assert.True(t, s.rcPinned)
	assert.Equal(t, []string{"/usr/local/bin/tether", "supervise"}, s.supervisorCmd)
	assert.Equal(t, "/tmp/tether-test.log", s.logFile)
	require.NotNil(t, s.onError)
	s.onError()
	assert.True(t, called)
}

func TestAttachRebuildsSession(t *testing.T) {
	s := newTestSession(t)
	s.rcAddr = "127.0.0.1:5573"
	require.NoError(t, s.st.WriteSpec(s.spec()))

	attached, err := Attach(s.stateDir)
	require.NoError(t, err)

	assert.Equal(t, s.id, attached.id)
	assert.Equal(t, s.cfg.Local, attached.cfg.Local)
	assert.Equal(t, "tether", attached.remoteName)
	assert.Equal(t, s.configPath, attached.configPath)
	assert.Equal(t, "127.0.0.1:5573", attached.rcAddr)
	assert.Equal(t, s.cfg.Timeout, attached.cfg.Timeout)
	assert.Equal(t, s.cfg.Tuning, attached.cfg.Tuning)
	assert.Nil(t, attached.cfg.Remote)
	assert.Equal(t, "tether:", attached.remoteDisplay())
}

func TestAttachWithoutSpec(t *testing.T) {
	_, err := Attach(t.TempDir())
	require.ErrorContains(t, err, "no session at")
}

func TestMountAlreadyMounted(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.st.WritePID(state.PIDSupervisor, os.Getpid()))
	require.NoError(t, s.st.SetAlive())
	defer s.st.ClearAlive()

	err := s.Mount(context.Background())
	require.ErrorIs(t, err, ErrAlreadyMounted)
}

func TestMountClosedSession(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Close())

	err := s.Mount(context.Background())
	require.ErrorContains(t, err, "closed")
}

func TestSpawnSupervisorRedirectsOutput(t *testing.T) {
	s := newTestSession(t, WithSupervisorCommand(
		"/bin/sh", "-c", "echo supervisor says hi", "tether-supervise"))

	cmd, err := s.spawnSupervisor()
	require.NoError(t, err)
	require.NoError(t, cmd.Wait())

	pid, ok := s.st.ReadPID(state.PIDSupervisor)
	assert.True(t, ok)
	assert.Equal(t, cmd.Process.Pid, pid)

	data, err := os.ReadFile(s.logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "supervisor says hi")
}

func TestWatchGracefulExit(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.st.SignalDone(true))

	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	monitor := make(chan struct{})
	s.watch(cmd, monitor)

	select {
	case <-monitor:
	default:
		t.Fatal("monitor channel not closed")
	}
	assert.NoError(t, s.fatalErr)
	assert.False(t, s.mounted)
}

func TestWatchSpawnedSupervisorWritesDoneFlag(t *testing.T) {
	// The fake supervisor acknowledges shutdown itself, as the real one
	// does on every exit path.
	s := newTestSession(t, WithSupervisorCommand(
		"/bin/sh", "-c", `printf graceful > "$2"/done`, "tether-supervise"))

	cmd, err := s.spawnSupervisor()
	require.NoError(t, err)
	s.watch(cmd, make(chan struct{}))

	assert.NoError(t, s.fatalErr)
}

func TestWatchUngracefulExitRecordsFatal(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.st.SignalDone(false))

	cmd := exec.Command("false")
	require.NoError(t, cmd.Start())
	monitor := make(chan struct{})
	s.monitor = monitor
	s.watch(cmd, monitor)

	require.ErrorIs(t, s.fatalErr, ErrMountProcessDied)

	err := s.Refresh(context.Background())
	require.ErrorIs(t, err, ErrMountProcessDied)

	err = s.Wait(context.Background())
	require.ErrorIs(t, err, ErrMountProcessDied)
}

func TestWatchUngracefulExitInvokesCallbackOnce(t *testing.T) {
	calls := 0
	s := newTestSession(t, WithOnError(func() { calls++ }))
	require.NoError(t, s.st.SignalDone(false))

	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	s.watch(cmd, make(chan struct{}))

	assert.Equal(t, 1, calls)
	assert.NoError(t, s.fatalErr, "callback replaces the recorded error")
}

func TestWatchMissingDoneFlagIsUngraceful(t *testing.T) {
	s := newTestSession(t)

	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	start := time.Now()
	s.watch(cmd, make(chan struct{}))

	require.ErrorIs(t, s.fatalErr, ErrMountProcessDied)
	assert.GreaterOrEqual(t, time.Since(start), s.cfg.Timeout-100*time.Millisecond,
		"a silent exit gets the full acknowledgment budget")
}

func TestUnmountWhenNotMounted(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.UnmountTimeout(context.Background(), time.Second))
	require.NoError(t, s.UnmountTimeout(context.Background(), time.Second))
}

func TestStatusStopped(t *testing.T) {
	s := newTestSession(t)

	st := s.Status(context.Background())
	assert.Equal(t, StateStopped, st.State)
	assert.False(t, st.Alive)
	assert.Equal(t, s.cfg.Local, st.Local)
	assert.Equal(t, "sftp://archive@backup.example.com:22", st.Remote)
}

func TestStatusActive(t *testing.T) {
	s := newTestSession(t, fakeProbe("true"))
	require.NoError(t, s.st.WritePID(state.PIDSupervisor, os.Getpid()))
	spec := s.spec()
	spec.MountedAt = time.Now().UTC().Add(-5 * time.Second)
	require.NoError(t, s.st.WriteSpec(spec))

	st := s.Status(context.Background())
	assert.Equal(t, StateActive, st.State)
	assert.True(t, st.Alive)
	assert.Equal(t, os.Getpid(), st.SupervisorPID)
	assert.GreaterOrEqual(t, st.Uptime, 4*time.Second)
}

func TestStatusDegraded(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.st.WritePID(state.PIDSupervisor, os.Getpid()))

	st := s.Status(context.Background())
	assert.Equal(t, StateDegraded, st.State)
}

func TestStatusFailed(t *testing.T) {
	s := newTestSession(t)
	s.fatalErr = ErrMountProcessDied

	st := s.Status(context.Background())
	assert.Equal(t, StateFailed, st.State)
}

func TestWaitBeforeMount(t *testing.T) {
	s := newTestSession(t)
	require.ErrorContains(t, s.Wait(context.Background()), "not mounted")
}

func TestCloseRemovesSessionFiles(t *testing.T) {
	s := newTestSession(t)
	configPath, stateDir := s.configPath, s.stateDir

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := os.Stat(configPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(stateDir)
	assert.True(t, os.IsNotExist(err))
}

func TestRunTearsDownOnMountFailure(t *testing.T) {
	cfg := Config{
		Local:   filepath.Join(t.TempDir(), "mnt"),
		Remote:  testRemote(),
		Timeout: time.Second,
	}
	stateDir := t.TempDir()

	var entered bool
	err := Run(context.Background(), cfg,
		func(context.Context, *Session) error {
			entered = true
			return nil
		},
		WithStateDir(stateDir), fakeProbe("false"))

	require.Error(t, err)
	assert.False(t, entered)
	_, serr := os.Stat(stateDir)
	assert.True(t, os.IsNotExist(serr), "state dir removed by the deferred close")
}

func TestProbeWorkerArgs(t *testing.T) {
	recorder := filepath.Join(t.TempDir(), "args")
	s := newTestSession(t, WithProbeCommand(
		"/bin/sh", "-c", `echo "$@" > `+recorder+`; echo true`, "probe"))

	alive := s.IsAliveTimeout(context.Background(), time.Second)
	assert.True(t, alive)

	data, err := os.ReadFile(recorder)
	require.NoError(t, err)
	args := strings.Fields(string(data))
	require.Len(t, args, 4)
	assert.Equal(t, "--path", args[0])
	assert.Equal(t, s.cfg.Local, args[1])
	assert.Equal(t, "--timeout", args[2])
	assert.Equal(t, "1s", args[3])
}
