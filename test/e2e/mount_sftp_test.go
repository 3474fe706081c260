//go:build e2e

package e2e

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tether/pkg/mount"
	"github.com/marmos91/tether/pkg/remote"
	"github.com/marmos91/tether/test/e2e/framework"
)

// TestMountUnmountRoundTrip checks the masking semantics of a mount: the
// remote's content shadows the local directory while mounted, pre-existing
// local files reappear after unmount, and files written through the mount
// land on the remote.
func TestMountUnmountRoundTrip(t *testing.T) {
	framework.SkipIfShort(t, "starts containers")
	ssh := framework.StartSSHServer(t)

	local := t.TempDir()
	localContent := []byte("local before mount\n")
	framework.WriteFile(t, filepath.Join(local, "local.txt"), localContent)

	remoteContent := framework.GenerateRandomData(t, 32*1024)
	framework.WriteFile(t, filepath.Join(ssh.DataDir, "remote.txt"), remoteContent)

	ctx := context.Background()
	session := newSession(t, sftpConfig(ssh, local))

	require.NoError(t, session.Mount(ctx))

	// Remote content is visible, local content is masked.
	assert.Equal(t, remoteContent, framework.ReadFile(t, filepath.Join(local, "remote.txt")))
	assert.False(t, framework.FileExists(filepath.Join(local, "local.txt")),
		"pre-existing local file should be masked while mounted")

	// Writes through the mount reach the remote.
	testContent := framework.GenerateRandomData(t, 16*1024)
	framework.WriteFile(t, filepath.Join(local, "test.txt"), testContent)
	require.NoError(t, session.Refresh(ctx))

	require.True(t, framework.WaitFor(testTimeout, 500*time.Millisecond, func() bool {
		data, err := os.ReadFile(filepath.Join(ssh.DataDir, "test.txt"))
		return err == nil && len(data) == len(testContent)
	}), "written file never reached the remote")
	assert.Equal(t, testContent, framework.ReadFile(t, filepath.Join(ssh.DataDir, "test.txt")))

	require.NoError(t, session.Unmount(ctx))

	// The mask lifts: local content is back, remote content is gone.
	assert.Equal(t, localContent, framework.ReadFile(t, filepath.Join(local, "local.txt")))
	assert.False(t, framework.FileExists(filepath.Join(local, "remote.txt")))
	assert.Equal(t, remoteContent, framework.ReadFile(t, filepath.Join(ssh.DataDir, "remote.txt")))
}

// TestRefreshWriteThrough writes a file through the mount and asserts the
// identical bytes appear on the remote side within the session timeout.
func TestRefreshWriteThrough(t *testing.T) {
	framework.SkipIfShort(t, "starts containers")
	ssh := framework.StartSSHServer(t)

	local := t.TempDir()
	ctx := context.Background()
	session := newSession(t, sftpConfig(ssh, local))

	require.NoError(t, session.Mount(ctx))
	defer func() { _ = session.Unmount(ctx) }()

	checksum := framework.WriteRandomFile(t, filepath.Join(local, "payload.bin"), 256*1024)
	require.NoError(t, session.Refresh(ctx))

	remoteFile := filepath.Join(ssh.DataDir, "payload.bin")
	require.True(t, framework.WaitFor(testTimeout, 500*time.Millisecond, func() bool {
		return framework.FileExists(remoteFile)
	}), "payload never reached the remote")
	framework.VerifyFileChecksum(t, remoteFile, checksum)
}

// TestReconnection stops the SSH container and expects the mount to be
// reported dead, then restarts it and expects the supervisor to bring the
// mount back within the restart budget.
func TestReconnection(t *testing.T) {
	framework.SkipIfShort(t, "starts containers")
	ssh := framework.StartSSHServer(t)

	local := t.TempDir()
	ctx := context.Background()
	session := newSession(t, sftpConfig(ssh, local), mount.WithOnError(func() {}))

	require.NoError(t, session.Mount(ctx))
	defer func() { _ = session.Unmount(ctx) }()
	require.True(t, session.IsAliveTimeout(ctx, 5*time.Second))

	ssh.Stop(ctx)

	// Liveness must go false within twice the timeout of the endpoint
	// disappearing.
	require.True(t, framework.WaitFor(2*testTimeout+5*time.Second, time.Second, func() bool {
		return !session.IsAliveTimeout(ctx, 5*time.Second)
	}), "mount still reported alive after the remote went away")

	ssh.StartAgain(ctx)

	// Recovery goes through missed heartbeats and an engine restart, so
	// the budget is generous.
	recoveryBudget := 6 * testTimeout * 2
	require.True(t, framework.WaitFor(recoveryBudget, 2*time.Second, func() bool {
		return session.IsAliveTimeout(ctx, 5*time.Second)
	}), "mount never came back after the remote returned")
}

// TestOnErrorCallbackFiresOnce kills the supervisor behind the session's
// back and expects the error callback exactly once.
func TestOnErrorCallbackFiresOnce(t *testing.T) {
	framework.SkipIfShort(t, "starts containers")
	ssh := framework.StartSSHServer(t)

	local := t.TempDir()
	ctx := context.Background()

	var calls atomic.Int32
	session := newSession(t, sftpConfig(ssh, local), mount.WithOnError(func() {
		calls.Add(1)
	}))

	require.NoError(t, session.Mount(ctx))
	defer func() { _ = session.Unmount(ctx) }()

	st := session.Status(ctx)
	require.NotZero(t, st.SupervisorPID, "no supervisor pid recorded")

	proc, err := os.FindProcess(st.SupervisorPID)
	require.NoError(t, err)
	require.NoError(t, proc.Kill())

	require.True(t, framework.WaitFor(2*testTimeout, 200*time.Millisecond, func() bool {
		return calls.Load() > 0
	}), "error callback never fired")

	time.Sleep(2 * time.Second)
	assert.Equal(t, int32(1), calls.Load(), "error callback fired more than once")
}

// TestMountUnreachableRemote expects a synchronous configuration error
// from the connectivity preflight, with no supervisor left behind.
func TestMountUnreachableRemote(t *testing.T) {
	framework.SkipIfShort(t, "shells out to the mount engine")

	port, err := framework.FindFreePort()
	require.NoError(t, err)

	keypair, err := framework.NewKeypair()
	require.NoError(t, err)

	local := t.TempDir()
	cfg := mount.Config{
		Local: local,
		Remote: &remote.SFTP{
			Host:   "127.0.0.1",
			Port:   port,
			User:   "nobody",
			KeyPEM: keypair.PrivatePEM,
		},
		Timeout: testTimeout,
	}
	session := newSession(t, cfg)

	err = session.Mount(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, mount.ErrConfiguration)
}

// TestMountTimeoutWhenNeverReady replaces the supervisor with a stub that
// exits without ever signaling readiness: Mount must give up with
// ErrMountTimeout and tear the engine down.
func TestMountTimeoutWhenNeverReady(t *testing.T) {
	framework.SkipIfShort(t, "starts containers")
	ssh := framework.StartSSHServer(t)

	local := t.TempDir()
	cfg := sftpConfig(ssh, local)

	s, err := mount.New(cfg,
		mount.WithStateDir(t.TempDir()),
		mount.WithSupervisorCommand("/bin/true"),
		mount.WithProbeCommand(tetherBin, "probe"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	err = s.Mount(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, mount.ErrMountTimeout)
	assert.Contains(t, err.Error(), "could not mount on time")
}

// TestScopedRunUnmountsOnError runs a scoped mount whose body fails and
// checks the mount is torn down anyway.
func TestScopedRunUnmountsOnError(t *testing.T) {
	framework.SkipIfShort(t, "starts containers")
	ssh := framework.StartSSHServer(t)

	local := t.TempDir()
	errBoom := errors.New("boom")
	ctx := context.Background()

	err := mount.Run(ctx, sftpConfig(ssh, local), func(ctx context.Context, s *mount.Session) error {
		framework.WriteFile(t, filepath.Join(local, "scoped.txt"), []byte("written under Run\n"))
		require.NoError(t, s.Refresh(ctx))
		return errBoom
	}, sessionOptions(t)...)
	require.ErrorIs(t, err, errBoom)

	// Teardown happened: the local dir is a plain empty directory again
	// and the scoped write survived on the remote.
	entries, readErr := os.ReadDir(local)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "local dir still shows mount content after Run")
	assert.True(t, framework.FileExists(filepath.Join(ssh.DataDir, "scoped.txt")))
}
