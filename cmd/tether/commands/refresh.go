package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/tether/internal/ctl"
	"github.com/marmos91/tether/pkg/config"
	"github.com/marmos91/tether/pkg/mount"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the mount",
	Long: `Force a liveness marker write and an engine cache reload.

Use this after writing files that must reach the remote promptly, or to
confirm the mount still responds.

Examples:
  tether refresh`,
	RunE: runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Mount.Timeout)
	defer cancel()

	if cfg.Control.Enabled {
		client := ctl.NewClient(cfg.Control.Addr)
		if client.Reachable(ctx) {
			if err := client.Refresh(ctx); err != nil {
				return err
			}
			fmt.Println("Refreshed")
			return nil
		}
	}

	session, err := mount.Attach(cfg.Mount.StateDir)
	if err != nil {
		return fmt.Errorf("no active mount found: %w", err)
	}
	if err := session.Refresh(ctx); err != nil {
		return err
	}
	fmt.Println("Refreshed")
	return nil
}
