// Package config loads, validates and persists the tether application
// configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (TETHER_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/tether/internal/bytesize"
	"github.com/marmos91/tether/pkg/remote"
)

// Config is the complete tether configuration.
type Config struct {
	// Mount describes the supervised mount itself.
	Mount MountConfig `mapstructure:"mount" yaml:"mount"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Control configures the daemon control server.
	Control ControlConfig `mapstructure:"control" yaml:"control"`

	// Metrics configures Prometheus metrics exposure.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// MountConfig describes the mount a tether process supervises.
type MountConfig struct {
	// LocalPath is the directory the remote is mounted on.
	LocalPath string `mapstructure:"local_path" validate:"required" yaml:"local_path"`

	// RemotePath is the directory on the remote to expose, empty for the
	// remote root.
	RemotePath string `mapstructure:"remote_path" yaml:"remote_path,omitempty"`

	// Remote is the connection configuration, tagged with type: sftp|s3.
	Remote remote.Remote `mapstructure:"remote" yaml:"remote"`

	// RefreshInterval is the heartbeat period. Default 10s.
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"omitempty,gt=0" yaml:"refresh_interval"`

	// Timeout bounds every lifecycle operation. Default 30s.
	Timeout time.Duration `mapstructure:"timeout" validate:"omitempty,gt=0" yaml:"timeout"`

	// Verbose forwards engine output into the log.
	Verbose bool `mapstructure:"verbose" yaml:"verbose,omitempty"`

	// CacheMaxSize caps the engine write-back cache. Zero means no cap.
	CacheMaxSize bytesize.ByteSize `mapstructure:"cache_max_size" yaml:"cache_max_size,omitempty"`

	// StateDir is where session runtime state lives. Empty uses a
	// per-user default under the state home.
	StateDir string `mapstructure:"state_dir" yaml:"state_dir,omitempty"`

	// Tuning holds the supervision thresholds. These are configuration,
	// not constants: deployments disagree on how aggressive recovery
	// should be.
	Tuning TuningConfig `mapstructure:"tuning" yaml:"tuning"`
}

// TuningConfig holds the supervision thresholds.
type TuningConfig struct {
	// MissedHeartbeats is how many consecutive failed probes are tolerated
	// before the engine is restarted. Default 3.
	MissedHeartbeats int `mapstructure:"missed_heartbeats" validate:"omitempty,min=1" yaml:"missed_heartbeats"`

	// RestartLimit is how many consecutive engine restarts are allowed
	// before the supervisor gives up. Default 1.
	RestartLimit int `mapstructure:"restart_limit" validate:"omitempty,min=1" yaml:"restart_limit"`

	// MountRetries is how many readiness probe rounds one mount attempt
	// gets. Default 5.
	MountRetries int `mapstructure:"mount_retries" validate:"omitempty,min=1" yaml:"mount_retries"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file
	// path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ControlConfig configures the daemon control server.
type ControlConfig struct {
	// Enabled starts the control server with the daemon.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Addr is the listen address. Default 127.0.0.1:7070; the server is
	// meant to stay on loopback.
	Addr string `mapstructure:"addr" yaml:"addr,omitempty"`
}

// MetricsConfig configures Prometheus metrics. Metrics are served on the
// control server's /metrics endpoint; when disabled nothing is collected.
type MetricsConfig struct {
	// Enabled turns metric collection on.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// TelemetryConfig controls OpenTelemetry tracing and Pyroscope profiling.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// Insecure disables TLS towards the collector.
	Insecure bool `mapstructure:"insecure" yaml:"insecure,omitempty"`

	// SampleRate is the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate,omitempty"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// ProfileTypes specifies which profile types to collect.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath uses the default location; a missing file is not an
// error and yields the defaults (which still fail validation until a remote
// is configured).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the config
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  tether init\n\n"+
				"Or specify a custom config file:\n"+
				"  tether <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  tether init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration as YAML with owner-only permissions;
// the file can carry key material for the remote.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment variables and config file lookup.
// Example override: TETHER_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("TETHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file
// is reported as not found, not as an error.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// decodeHooks combines the custom decode hooks: durations from strings,
// byte sizes from strings or numbers, and the tagged remote variant.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		remote.DecodeHook(),
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize, so
// config files can say "1Gi", "500MB" or a plain number.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" or "5m" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path, following
// XDG_CONFIG_HOME when set.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "tether")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "tether")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}

// GetDefaultStateDir returns the default session state directory, following
// XDG_STATE_HOME when set.
func GetDefaultStateDir() string {
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, "tether")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "tether")
	}
	return filepath.Join(home, ".local", "state", "tether")
}
