//go:build e2e

package e2e

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/tether/pkg/mount"
	"github.com/marmos91/tether/pkg/remote"
	"github.com/marmos91/tether/test/e2e/framework"
)

// Short supervision budgets so reconnection scenarios converge in test
// time rather than production time.
const (
	testTimeout  = 10 * time.Second
	testInterval = 2 * time.Second
)

func sftpRemote(s *framework.SSHServer) *remote.SFTP {
	return &remote.SFTP{
		Host:   s.Host,
		User:   s.User,
		Port:   s.Port,
		KeyPEM: s.Keypair.PrivatePEM,
	}
}

func sftpConfig(s *framework.SSHServer, local string) mount.Config {
	return mount.Config{
		Local:           local,
		Remote:          sftpRemote(s),
		RemotePath:      s.RemotePath(),
		RefreshInterval: testInterval,
		Timeout:         testTimeout,
	}
}

// newSession builds a session wired to the built tether binary for its
// supervisor and probe worker processes.
func newSession(t *testing.T, cfg mount.Config, opts ...mount.Option) *mount.Session {
	t.Helper()

	opts = append([]mount.Option{
		mount.WithStateDir(t.TempDir()),
		mount.WithSupervisorCommand(tetherBin, "supervise"),
		mount.WithProbeCommand(tetherBin, "probe"),
	}, opts...)

	s, err := mount.New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// sessionOptions mirrors newSession for scoped mount.Run calls.
func sessionOptions(t *testing.T) []mount.Option {
	t.Helper()
	return []mount.Option{
		mount.WithStateDir(t.TempDir()),
		mount.WithSupervisorCommand(tetherBin, "supervise"),
		mount.WithProbeCommand(tetherBin, "probe"),
	}
}
