package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/tether/internal/cli/prompt"
	"github.com/marmos91/tether/pkg/config"
	"github.com/marmos91/tether/pkg/remote"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file interactively",
	Long: `Create a tether configuration file through an interactive wizard.

The wizard asks for the local mount path and the remote connection details
(SFTP or S3). Secrets are masked while typing and the resulting file is
written with owner-only permissions.

By default, the configuration file is created at $XDG_CONFIG_HOME/tether/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  tether init

  # Initialize with custom path
  tether init --config /etc/tether/config.yaml

  # Force overwrite existing config
  tether init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		overwrite, err := prompt.Confirm(fmt.Sprintf("Config file %s exists, overwrite", configPath), false)
		if err != nil {
			return initAborted(err)
		}
		if !overwrite {
			fmt.Println("Aborted")
			return nil
		}
	}

	cfg := config.GetDefaultConfig()

	local, err := prompt.InputRequired("Local mount path")
	if err != nil {
		return initAborted(err)
	}
	cfg.Mount.LocalPath = local

	remotePath, err := prompt.Input("Remote path (empty for the remote root)", "")
	if err != nil {
		return initAborted(err)
	}
	cfg.Mount.RemotePath = remotePath

	remoteType, err := prompt.Select("Remote type", []prompt.SelectOption{
		{Label: "SFTP", Value: "sftp", Description: "A server reached over SSH"},
		{Label: "S3", Value: "s3", Description: "An S3-compatible object store"},
	})
	if err != nil {
		return initAborted(err)
	}

	switch remoteType {
	case "sftp":
		cfg.Mount.Remote, err = promptSFTP()
	case "s3":
		cfg.Mount.Remote, err = promptS3()
	}
	if err != nil {
		return initAborted(err)
	}

	if err := cfg.Mount.Remote.Validate(); err != nil {
		return err
	}
	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("\nConfiguration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Review the configuration file")
	fmt.Println("  2. Mount with: tether mount")
	fmt.Printf("  3. Or specify custom config: tether mount --config %s\n", configPath)
	return nil
}

func promptSFTP() (remote.Remote, error) {
	r := &remote.SFTP{}

	var err error
	if r.Host, err = prompt.InputRequired("SFTP host"); err != nil {
		return nil, err
	}
	if r.User, err = prompt.InputRequired("SFTP user"); err != nil {
		return nil, err
	}
	if r.Port, err = prompt.InputPort("SFTP port", 22); err != nil {
		return nil, err
	}

	auth, err := prompt.Select("Authentication", []prompt.SelectOption{
		{Label: "Private key file", Value: "key_file", Description: "Path to an SSH private key on disk"},
		{Label: "Private key (paste PEM)", Value: "key_pem", Description: "Key material stored in the config file"},
	})
	if err != nil {
		return nil, err
	}

	switch auth {
	case "key_file":
		if r.KeyFile, err = prompt.InputRequired("Private key file path"); err != nil {
			return nil, err
		}
	case "key_pem":
		if r.KeyPEM, err = prompt.Password("Private key PEM"); err != nil {
			return nil, err
		}
	}

	useAgent, err := prompt.Confirm("Use a running ssh-agent for signing", false)
	if err != nil {
		return nil, err
	}
	r.KeyUseAgent = useAgent

	return r, nil
}

func promptS3() (remote.Remote, error) {
	r := &remote.S3{}

	var err error
	if r.Provider, err = prompt.Input("S3 provider", "AWS"); err != nil {
		return nil, err
	}
	if r.Region, err = prompt.InputRequired("Region"); err != nil {
		return nil, err
	}
	if r.Endpoint, err = prompt.Input("Endpoint (empty for AWS)", ""); err != nil {
		return nil, err
	}

	envAuth, err := prompt.Confirm("Read credentials from the environment", false)
	if err != nil {
		return nil, err
	}
	r.EnvAuth = envAuth

	if !envAuth {
		if r.AccessKeyID, err = prompt.InputRequired("Access key ID"); err != nil {
			return nil, err
		}
		if r.SecretAccessKey, err = prompt.Password("Secret access key"); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// initAborted turns a Ctrl+C in the wizard into a clean exit.
func initAborted(err error) error {
	if prompt.IsAborted(err) {
		fmt.Println("Aborted")
		return nil
	}
	return err
}
