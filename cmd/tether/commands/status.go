package commands

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/tether/internal/cli/health"
	"github.com/marmos91/tether/internal/cli/output"
	"github.com/marmos91/tether/internal/cli/timeutil"
	"github.com/marmos91/tether/internal/ctl"
	"github.com/marmos91/tether/pkg/config"
	"github.com/marmos91/tether/pkg/mount"
)

var (
	statusOutput  string
	statusPidFile string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mount status",
	Long: `Display the current status of the supervised mount.

When a daemonized tether process is running, the status comes from its
control API. Otherwise the command attaches to the session state directory
and probes the mount directly.

Examples:
  # Check status
  tether status

  # Output as JSON
  tether status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to daemon PID file (default: $XDG_STATE_HOME/tether/tether.pid)")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Mount.Timeout)
	defer cancel()

	st, daemonPID := collectStatus(ctx, cfg)

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, st)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, st)
	default:
		printStatusTable(st, daemonPID)
	}
	return nil
}

// collectStatus gathers the mount status, preferring the daemon's control
// API over a direct probe. The second return is the daemon PID, zero when
// no daemon process was found.
func collectStatus(ctx context.Context, cfg *config.Config) (health.MountStatus, int) {
	daemonPID := 0
	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}
	if pid, ok := readPidFile(pidPath); ok {
		if process, err := os.FindProcess(pid); err == nil && process.Signal(syscall.Signal(0)) == nil {
			daemonPID = pid
		}
	}

	if cfg.Control.Enabled {
		client := ctl.NewClient(cfg.Control.Addr)
		if st, err := client.Status(ctx); err == nil {
			return *st, daemonPID
		}
	}

	session, err := mount.Attach(cfg.Mount.StateDir)
	if err != nil {
		return health.MountStatus{
			State:  mount.StateStopped,
			Local:  cfg.Mount.LocalPath,
			Remote: remoteDisplay(cfg),
		}, daemonPID
	}

	st := session.Status(ctx)
	resp := health.MountStatus{
		State:         st.State,
		Local:         st.Local,
		Remote:        st.Remote,
		Alive:         st.Alive,
		EnginePID:     st.EnginePID,
		SupervisorPID: st.SupervisorPID,
		Restarts:      st.Restarts,
	}
	if !st.MountedAt.IsZero() {
		resp.MountedAt = st.MountedAt.UTC().Format(time.RFC3339)
		resp.Uptime = st.Uptime.String()
		resp.UptimeSec = int64(st.Uptime.Seconds())
	}
	return resp, daemonPID
}

func remoteDisplay(cfg *config.Config) string {
	if cfg.Mount.Remote != nil {
		return cfg.Mount.Remote.Redacted()
	}
	return ""
}

func printStatusTable(st health.MountStatus, daemonPID int) {
	fmt.Println()
	fmt.Println("Tether Mount Status")
	fmt.Println("===================")
	fmt.Println()

	switch st.State {
	case mount.StateActive:
		fmt.Printf("  Status:      \033[32m● Active\033[0m\n")
	case mount.StateDegraded:
		fmt.Printf("  Status:      \033[33m● Degraded\033[0m\n")
	case mount.StateFailed:
		fmt.Printf("  Status:      \033[31m● Failed\033[0m\n")
	default:
		fmt.Printf("  Status:      \033[31m○ Stopped\033[0m\n")
	}

	fmt.Printf("  Local:       %s\n", st.Local)
	if st.Remote != "" {
		fmt.Printf("  Remote:      %s\n", st.Remote)
	}
	if daemonPID != 0 {
		fmt.Printf("  Daemon:      %d\n", daemonPID)
	}
	if st.SupervisorPID != 0 {
		fmt.Printf("  Supervisor:  %d\n", st.SupervisorPID)
	}
	if st.EnginePID != 0 {
		fmt.Printf("  Engine:      %d\n", st.EnginePID)
	}
	if st.Restarts > 0 {
		fmt.Printf("  Restarts:    %d\n", st.Restarts)
	}
	if st.MountedAt != "" {
		fmt.Printf("  Mounted:     %s\n", timeutil.FormatTime(st.MountedAt))
	}
	if st.UptimeSec > 0 {
		fmt.Printf("  Uptime:      %s\n", timeutil.FormatUptime(time.Duration(st.UptimeSec)*time.Second))
	}
	fmt.Println()
}
