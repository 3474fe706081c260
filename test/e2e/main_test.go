//go:build e2e

// Package e2e exercises the full mount lifecycle against real containers:
// an OpenSSH server and a Localstack S3 endpoint. The suite builds the
// tether binary once so sessions re-exec the real supervise and probe
// commands. Requires Docker, rclone, fusermount and mountpoint.
package e2e

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/marmos91/tether/test/e2e/framework"
)

// tetherBin is the binary built by TestMain; sessions run its supervise
// and probe commands.
var tetherBin string

func TestMain(m *testing.M) {
	binDir, err := os.MkdirTemp("", "tether-e2e-bin-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "temp dir: %v\n", err)
		os.Exit(1)
	}
	tetherBin = filepath.Join(binDir, "tether")

	build := exec.Command("go", "build", "-o", tetherBin, "github.com/marmos91/tether/cmd/tether")
	if out, err := build.CombinedOutput(); err != nil {
		fmt.Fprintf(os.Stderr, "build tether binary: %v\n%s", err, out)
		os.Exit(1)
	}

	// Cleanup containers on interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		framework.TerminateSharedLocalstack()
		_ = os.RemoveAll(binDir)
		os.Exit(1)
	}()

	code := m.Run()

	framework.TerminateSharedLocalstack()
	_ = os.RemoveAll(binDir)
	os.Exit(code)
}
