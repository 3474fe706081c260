package config

import (
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Mount.RefreshInterval != 10*time.Second {
		t.Errorf("RefreshInterval = %v", cfg.Mount.RefreshInterval)
	}
	if cfg.Mount.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.Mount.Timeout)
	}
	if cfg.Mount.Tuning.MissedHeartbeats != 3 {
		t.Errorf("MissedHeartbeats = %d", cfg.Mount.Tuning.MissedHeartbeats)
	}
	if cfg.Mount.Tuning.RestartLimit != 1 {
		t.Errorf("RestartLimit = %d", cfg.Mount.Tuning.RestartLimit)
	}
	if cfg.Mount.Tuning.MountRetries != 5 {
		t.Errorf("MountRetries = %d", cfg.Mount.Tuning.MountRetries)
	}
	if cfg.Mount.StateDir == "" {
		t.Error("StateDir not defaulted")
	}
	if cfg.Logging.Level != "INFO" || cfg.Logging.Format != "text" || cfg.Logging.Output != "stdout" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Control.Addr != "127.0.0.1:7070" {
		t.Errorf("Control.Addr = %q", cfg.Control.Addr)
	}
	if cfg.Telemetry.Endpoint != "localhost:4317" {
		t.Errorf("Telemetry.Endpoint = %q", cfg.Telemetry.Endpoint)
	}
	if cfg.Telemetry.SampleRate != 1.0 {
		t.Errorf("SampleRate = %v", cfg.Telemetry.SampleRate)
	}
	if len(cfg.Telemetry.Profiling.ProfileTypes) == 0 {
		t.Error("ProfileTypes not defaulted")
	}
}

func TestApplyDefaultsPreservesExplicit(t *testing.T) {
	cfg := &Config{}
	cfg.Mount.Timeout = 5 * time.Second
	cfg.Mount.Tuning.RestartLimit = 4
	cfg.Logging.Level = "warn"
	ApplyDefaults(cfg)

	if cfg.Mount.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", cfg.Mount.Timeout)
	}
	if cfg.Mount.Tuning.RestartLimit != 4 {
		t.Errorf("RestartLimit = %d", cfg.Mount.Tuning.RestartLimit)
	}
	if cfg.Logging.Level != "WARN" {
		t.Errorf("Level = %q, want normalized WARN", cfg.Logging.Level)
	}
}
