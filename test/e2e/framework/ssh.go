//go:build e2e

package framework

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	sshImage = "lscr.io/linuxserver/openssh-server:latest"
	sshUser  = "tether"
	sshPort  = "2222/tcp"

	// remoteRoot is where the host data directory is mounted inside the
	// container, writable by the ssh user.
	remoteRoot = "/data"
)

// SSHServer is an OpenSSH container with a host directory bind-mounted at
// the remote root, so tests can assert remote-side state directly on disk.
// The SSH port is pinned on the host so it survives Stop/StartAgain, which
// the reconnection tests depend on.
type SSHServer struct {
	T         *testing.T
	Container testcontainers.Container
	Keypair   *Keypair

	// DataDir is the host directory backing the remote root.
	DataDir string

	Host string
	Port int
	User string
}

// StartSSHServer boots the container and waits for the SSH port.
func StartSSHServer(t *testing.T) *SSHServer {
	t.Helper()
	ctx := context.Background()

	keypair, err := NewKeypair()
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}

	hostPort, err := FindFreePort()
	if err != nil {
		t.Fatalf("ssh host port: %v", err)
	}

	dataDir, err := os.MkdirTemp("", "tether-e2e-remote-")
	if err != nil {
		t.Fatalf("remote data dir: %v", err)
	}
	// The container runs the ssh user with PUID/PGID 1000; the host dir
	// must be writable for it.
	if err := os.Chmod(dataDir, 0777); err != nil {
		t.Fatalf("chmod data dir: %v", err)
	}

	req := testcontainers.ContainerRequest{
		Image:        sshImage,
		ExposedPorts: []string{sshPort},
		Env: map[string]string{
			"PUBLIC_KEY": strings.TrimSpace(keypair.AuthorizedKey),
			"USER_NAME":  sshUser,
			"PUID":       "1000",
			"PGID":       "1000",
		},
		HostConfigModifier: func(hc *dockercontainer.HostConfig) {
			hc.Binds = append(hc.Binds, fmt.Sprintf("%s:%s", dataDir, remoteRoot))
			hc.PortBindings = nat.PortMap{
				nat.Port(sshPort): []nat.PortBinding{{
					HostIP:   "127.0.0.1",
					HostPort: strconv.Itoa(hostPort),
				}},
			}
		},
		WaitingFor: wait.ForListeningPort(sshPort).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start ssh container: %v", err)
	}

	s := &SSHServer{
		T:         t,
		Container: container,
		Keypair:   keypair,
		DataDir:   dataDir,
		Host:      "127.0.0.1",
		Port:      hostPort,
		User:      sshUser,
	}

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
		_ = os.RemoveAll(dataDir)
	})
	return s
}

// RemotePath is the path inside the container for a directory under the
// remote root. Tests pass it as the mount's remote path.
func (s *SSHServer) RemotePath(parts ...string) string {
	return strings.Join(append([]string{remoteRoot}, parts...), "/")
}

// Stop halts the container to simulate a connection drop. The data
// directory and the host port survive for StartAgain.
func (s *SSHServer) Stop(ctx context.Context) {
	s.T.Helper()
	timeout := 10 * time.Second
	if err := s.Container.Stop(ctx, &timeout); err != nil {
		s.T.Fatalf("stop ssh container: %v", err)
	}
}

// StartAgain restarts a stopped container on the same host port.
func (s *SSHServer) StartAgain(ctx context.Context) {
	s.T.Helper()
	if err := s.Container.Start(ctx); err != nil {
		s.T.Fatalf("restart ssh container: %v", err)
	}
}
