package config

import (
	"strings"
	"time"
)

// Default supervision tuning. These mirror the most conservative deployment
// profile; every one of them is overridable through configuration.
const (
	DefaultRefreshInterval  = 10 * time.Second
	DefaultTimeout          = 30 * time.Second
	DefaultMissedHeartbeats = 3
	DefaultRestartLimit     = 1
	DefaultMountRetries     = 5
)

// DefaultControlAddr is where the daemon control server listens.
const DefaultControlAddr = "127.0.0.1:7070"

// ApplyDefaults fills in defaults for any unspecified configuration fields.
// Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyMountDefaults(&cfg.Mount)
	applyLoggingDefaults(&cfg.Logging)
	applyControlDefaults(&cfg.Control)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyMountDefaults(cfg *MountConfig) {
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StateDir == "" {
		cfg.StateDir = GetDefaultStateDir()
	}
	if cfg.Tuning.MissedHeartbeats == 0 {
		cfg.Tuning.MissedHeartbeats = DefaultMissedHeartbeats
	}
	if cfg.Tuning.RestartLimit == 0 {
		cfg.Tuning.RestartLimit = DefaultRestartLimit
	}
	if cfg.Tuning.MountRetries == 0 {
		cfg.Tuning.MountRetries = DefaultMountRetries
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyControlDefaults(cfg *ControlConfig) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultControlAddr
	}
}

// applyTelemetryDefaults sets OpenTelemetry and profiling defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// GetDefaultConfig returns a Config with all defaults applied. Useful for
// generating sample configuration files and for tests. The result is not
// mountable until a remote is configured.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
