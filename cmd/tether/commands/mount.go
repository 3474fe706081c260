package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/tether/internal/ctl"
	"github.com/marmos91/tether/internal/logger"
	"github.com/marmos91/tether/internal/telemetry"
	"github.com/marmos91/tether/pkg/config"
	"github.com/marmos91/tether/pkg/metrics"
	"github.com/marmos91/tether/pkg/mount"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/tether/pkg/metrics/prometheus"
)

var (
	mountDaemon  bool
	mountPidFile string
	mountLogFile string
)

var mountCmd = &cobra.Command{
	Use:   "mount [local-path]",
	Short: "Mount the configured remote",
	Long: `Mount the configured remote on a local directory and keep it alive.

By default the command runs in the foreground and unmounts on Ctrl+C. Use
--daemon to detach: the process re-executes itself in the background, writes
a PID file and logs to a file, and the mount stays up until 'tether unmount'.

The local mount path comes from the configuration file; an optional
positional argument overrides it.

Examples:
  # Mount in the foreground
  tether mount

  # Mount a specific directory
  tether mount /mnt/data

  # Mount in the background
  tether mount --daemon

  # Mount with environment variable overrides
  TETHER_LOGGING_LEVEL=DEBUG tether mount`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMount,
}

func init() {
	mountCmd.Flags().BoolVarP(&mountDaemon, "daemon", "d", false, "Run in background (daemon mode)")
	mountCmd.Flags().StringVar(&mountPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/tether/tether.pid)")
	mountCmd.Flags().StringVar(&mountLogFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/tether/tether.log)")
}

func runMount(cmd *cobra.Command, args []string) error {
	if mountDaemon {
		return startDaemon(args)
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Mount.LocalPath = args[0]
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "tether",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "tether",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.KeyError, err)
		}
	}()

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	logger.Info("configuration loaded", "source", getConfigSource(GetConfigFile()))

	session, err := mount.New(mountConfigFrom(cfg),
		mount.WithStateDir(cfg.Mount.StateDir),
		mount.WithLogLevel(cfg.Logging.Level),
	)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	if err := session.Mount(ctx); err != nil {
		return err
	}

	if mountPidFile != "" {
		if err := os.WriteFile(mountPidFile, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(mountPidFile) }()
	}

	// Unmount requests from the control server land here; the main
	// goroutine owns the teardown.
	unmountCh := make(chan struct{}, 1)
	if cfg.Control.Enabled {
		srv := ctl.NewServer(ctl.Config{Addr: cfg.Control.Addr, Version: Version}, session, func() {
			select {
			case unmountCh <- struct{}{}:
			default:
			}
		})
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("control server error", logger.KeyError, err)
			}
		}()
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- session.Wait(ctx) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("mount is up", logger.KeyLocal, cfg.Mount.LocalPath)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, unmounting")

	case <-unmountCh:
		signal.Stop(sigChan)
		logger.Info("unmount requested over control API")

	case err := <-waitDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("mount supervisor died", logger.KeyError, err)
			return err
		}
		logger.Info("mount stopped externally")
		return nil
	}

	uctx, ucancel := context.WithTimeout(context.Background(), cfg.Mount.Timeout)
	defer ucancel()
	if err := session.UnmountTimeout(uctx, cfg.Mount.Timeout); err != nil {
		logger.Error("unmount error", logger.KeyError, err)
		return err
	}
	logger.Info("unmounted cleanly")
	return nil
}

// mountConfigFrom maps the application configuration onto a session config.
func mountConfigFrom(cfg *config.Config) mount.Config {
	return mount.Config{
		Local:           cfg.Mount.LocalPath,
		Remote:          cfg.Mount.Remote,
		RemotePath:      cfg.Mount.RemotePath,
		RefreshInterval: cfg.Mount.RefreshInterval,
		Timeout:         cfg.Mount.Timeout,
		Verbose:         cfg.Mount.Verbose,
		CacheMaxSize:    cfg.Mount.CacheMaxSize,
		Tuning: mount.Tuning{
			MissedHeartbeats: cfg.Mount.Tuning.MissedHeartbeats,
			RestartLimit:     cfg.Mount.Tuning.RestartLimit,
			MountRetries:     cfg.Mount.Tuning.MountRetries,
		},
	}
}

// startDaemon re-executes the mount command as a detached background
// process with its output redirected to the log file.
func startDaemon(args []string) error {
	stateDir := config.GetDefaultStateDir()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	pidPath := mountPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check if already running
	if pidData, err := os.ReadFile(pidPath); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(pidData))); err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				if err := process.Signal(syscall.Signal(0)); err == nil {
					return fmt.Errorf("tether is already running (PID %d)\nUse 'tether unmount' to stop the running mount", pid)
				}
			}
		}
		// Stale PID file, remove it
		_ = os.Remove(pidPath)
	}

	logPath := mountLogFile
	if logPath == "" {
		logPath = GetDefaultLogFile()
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	daemonArgs := []string{"mount"}
	daemonArgs = append(daemonArgs, args...)
	daemonArgs = append(daemonArgs, "--pid-file", pidPath)
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}

	cmd := exec.Command(executable, daemonArgs...)

	logHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	cmd.Stdout = logHandle
	cmd.Stderr = logHandle
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		_ = logHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	_ = logHandle.Close()

	fmt.Printf("tether mounting in background (PID %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", filepath.Clean(logPath))
	fmt.Println("\nUse 'tether status' to check the mount")
	fmt.Println("Use 'tether unmount' to stop it")

	return nil
}
