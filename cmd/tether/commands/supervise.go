package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/tether/internal/bytesize"
	"github.com/marmos91/tether/internal/logger"
	"github.com/marmos91/tether/pkg/metrics"
	"github.com/marmos91/tether/pkg/mount/engine"
	"github.com/marmos91/tether/pkg/mount/probe"
	"github.com/marmos91/tether/pkg/mount/state"
	"github.com/marmos91/tether/pkg/mount/supervisor"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/tether/pkg/metrics/prometheus"
)

var (
	superviseStateDir    string
	superviseMetricsAddr string
)

// superviseCmd is the supervisor process entry point. Sessions spawn it via
// re-exec; it is not meant to be run by hand.
var superviseCmd = &cobra.Command{
	Use:    "supervise",
	Short:  "Run the mount supervisor loop (internal)",
	Hidden: true,
	RunE:   runSupervise,
}

func init() {
	superviseCmd.Flags().StringVar(&superviseStateDir, "state-dir", "", "Session state directory")
	superviseCmd.Flags().StringVar(&superviseMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	_ = superviseCmd.MarkFlagRequired("state-dir")
}

func runSupervise(cmd *cobra.Command, args []string) error {
	st, err := state.Open(superviseStateDir)
	if err != nil {
		return err
	}
	spec, err := st.ReadSpec()
	if err != nil {
		return fmt.Errorf("no session at %s: %w", superviseStateDir, err)
	}

	// Output is already redirected to the session log file by the owner.
	level := spec.LogLevel
	if level == "" {
		level = "INFO"
	}
	logger.InitWithWriter(os.Stdout, level, "text")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("supervisor signal received", logger.KeySignal, sig.String())
		cancel()
	}()

	if superviseMetricsAddr != "" {
		metrics.InitRegistry()
		go func() {
			if err := http.ListenAndServe(superviseMetricsAddr, metrics.Handler()); err != nil {
				logger.Error("metrics listener failed", logger.KeyError, err)
			}
		}()
	}

	eng := engine.New(engine.Config{
		ConfigPath:      spec.ConfigPath,
		RemoteName:      spec.RemoteName,
		RemotePath:      spec.RemotePath,
		Local:           spec.Local,
		RCAddr:          spec.RCAddr,
		RefreshInterval: spec.RefreshInterval,
		Timeout:         spec.Timeout,
		Verbose:         spec.Verbose,
		CacheMaxSize:    bytesize.ByteSize(spec.CacheMaxSize),
		MountRetries:    spec.MountRetries,
		RestartLimit:    spec.RestartLimit,
		State:           st,
		Prober:          &probe.Prober{},
	})

	logger.Info("supervisor starting",
		logger.KeySession, spec.SessionID,
		logger.KeyLocal, spec.Local,
		logger.KeyPID, os.Getpid())

	return supervisor.Run(ctx, supervisor.Config{
		Engine:           eng,
		Flags:            st,
		Local:            spec.Local,
		RefreshInterval:  spec.RefreshInterval,
		MissedHeartbeats: spec.MissedHeartbeats,
		Metrics:          metrics.NewSupervisorMetrics(),
	})
}
