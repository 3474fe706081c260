package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/tether/internal/ctl"
	"github.com/marmos91/tether/pkg/config"
	"github.com/marmos91/tether/pkg/mount"
)

var unmountPidFile string

var unmountCmd = &cobra.Command{
	Use:   "unmount",
	Short: "Unmount the supervised mount",
	Long: `Tear down the supervised mount.

If a daemonized tether process is running, the unmount is requested over
its control API and the command waits for the daemon to exit. Otherwise
the command attaches to the session state directory and tears the mount
down directly.

Examples:
  # Unmount
  tether unmount

  # Unmount with a custom config file
  tether unmount --config /etc/tether/config.yaml`,
	RunE: runUnmount,
}

func init() {
	unmountCmd.Flags().StringVar(&unmountPidFile, "pid-file", "", "Path to daemon PID file (default: $XDG_STATE_HOME/tether/tether.pid)")
}

func runUnmount(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Mount.Timeout)
	defer cancel()

	if cfg.Control.Enabled {
		client := ctl.NewClient(cfg.Control.Addr)
		if client.Reachable(ctx) {
			return unmountViaDaemon(ctx, client, cfg)
		}
	}

	session, err := mount.Attach(cfg.Mount.StateDir)
	if err != nil {
		return fmt.Errorf("no active mount found: %w", err)
	}
	if err := session.UnmountTimeout(ctx, cfg.Mount.Timeout); err != nil {
		return err
	}
	if err := session.Close(); err != nil {
		return err
	}
	fmt.Printf("Unmounted %s\n", cfg.Mount.LocalPath)
	return nil
}

// unmountViaDaemon asks the daemon to unmount and waits for its process to
// exit so the caller knows teardown completed.
func unmountViaDaemon(ctx context.Context, client *ctl.Client, cfg *config.Config) error {
	if err := client.Unmount(ctx); err != nil {
		return err
	}
	fmt.Println("Unmount requested, waiting for the daemon to exit...")

	pidPath := unmountPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}
	pid, ok := readPidFile(pidPath)
	if !ok {
		// No PID file; fall back to polling the control server.
		for ctx.Err() == nil && client.Reachable(ctx) {
			time.Sleep(200 * time.Millisecond)
		}
		fmt.Println("Unmounted")
		return nil
	}

	for ctx.Err() == nil {
		if process, err := os.FindProcess(pid); err != nil || process.Signal(syscall.Signal(0)) != nil {
			fmt.Println("Unmounted")
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("daemon (PID %d) did not exit in time", pid)
}

// readPidFile parses a PID file, reporting false when missing or invalid.
func readPidFile(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
