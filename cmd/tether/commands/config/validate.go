package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/tether/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the tether configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  tether config validate

  # Validate specific config file
  tether config validate --config /etc/tether/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if !cfg.Control.Enabled {
		warnings = append(warnings, "Control server disabled - 'tether unmount' and 'tether status' fall back to the state directory")
	}
	if cfg.Mount.CacheMaxSize == 0 {
		warnings = append(warnings, "No cache size cap configured - the engine write cache can grow unbounded")
	}

	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Local path:      %s\n", cfg.Mount.LocalPath)
	fmt.Printf("  Remote:          %s\n", cfg.Mount.Remote.Redacted())
	fmt.Printf("  Refresh every:   %s\n", cfg.Mount.RefreshInterval)
	fmt.Printf("  Timeout:         %s\n", cfg.Mount.Timeout)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
