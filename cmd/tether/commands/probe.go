package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/tether/internal/logger"
	"github.com/marmos91/tether/pkg/mount/engine"
	"github.com/marmos91/tether/pkg/mount/probe"
)

var (
	probePath    string
	probeTimeout time.Duration
)

// probeCmd is the liveness probe worker. Probers re-exec it so a hung
// filesystem call wedges this process instead of the caller. It prints
// "true" or "false" on stdout; nothing else may reach stdout.
var probeCmd = &cobra.Command{
	Use:    "probe",
	Short:  "Check mount liveness (internal)",
	Hidden: true,
	RunE:   runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probePath, "path", "", "Local mount path to check")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", engine.DefaultTimeout, "Liveness marker window base")
	_ = probeCmd.MarkFlagRequired("path")
}

func runProbe(cmd *cobra.Command, args []string) error {
	if probePath == "" {
		return errors.New("--path is required")
	}
	logger.InitWithWriter(os.Stderr, "ERROR", "text")

	alive := probe.Check(context.Background(), probePath, probeTimeout)
	fmt.Println(alive)
	return nil
}
