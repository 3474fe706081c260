package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/tether/internal/bytesize"
	"github.com/marmos91/tether/pkg/remote"
)

const sampleConfig = `
mount:
  local_path: /mnt/data
  remote_path: backup
  refresh_interval: 5s
  timeout: 20s
  cache_max_size: 1Gi
  remote:
    type: sftp
    host: files.example.com
    user: backup
    key_file: /home/backup/.ssh/id_rsa
  tuning:
    missed_heartbeats: 5
logging:
  level: debug
control:
  enabled: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mount.LocalPath != "/mnt/data" {
		t.Errorf("LocalPath = %q", cfg.Mount.LocalPath)
	}
	if cfg.Mount.RefreshInterval != 5*time.Second {
		t.Errorf("RefreshInterval = %v", cfg.Mount.RefreshInterval)
	}
	if cfg.Mount.Timeout != 20*time.Second {
		t.Errorf("Timeout = %v", cfg.Mount.Timeout)
	}
	if cfg.Mount.CacheMaxSize != bytesize.GiB {
		t.Errorf("CacheMaxSize = %d", cfg.Mount.CacheMaxSize)
	}

	sftp, ok := cfg.Mount.Remote.(*remote.SFTP)
	if !ok {
		t.Fatalf("Remote = %T, want *remote.SFTP", cfg.Mount.Remote)
	}
	if sftp.Host != "files.example.com" || sftp.User != "backup" {
		t.Errorf("sftp = %+v", sftp)
	}

	// Explicit values survive, missing ones take defaults.
	if cfg.Mount.Tuning.MissedHeartbeats != 5 {
		t.Errorf("MissedHeartbeats = %d", cfg.Mount.Tuning.MissedHeartbeats)
	}
	if cfg.Mount.Tuning.RestartLimit != DefaultRestartLimit {
		t.Errorf("RestartLimit = %d", cfg.Mount.Tuning.RestartLimit)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Level = %q, want normalized DEBUG", cfg.Logging.Level)
	}
	if cfg.Control.Addr != DefaultControlAddr {
		t.Errorf("Control.Addr = %q", cfg.Control.Addr)
	}
}

func TestLoadS3Remote(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
mount:
  local_path: /mnt/bucket
  remote:
    type: s3
    provider: AWS
    region: eu-west-1
    access_key_id: AKIA123
    secret_access_key: secret
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s3, ok := cfg.Mount.Remote.(*remote.S3)
	if !ok {
		t.Fatalf("Remote = %T, want *remote.S3", cfg.Mount.Remote)
	}
	if s3.Region != "eu-west-1" {
		t.Errorf("Region = %q", s3.Region)
	}
}

func TestLoadUnknownRemoteType(t *testing.T) {
	_, err := Load(writeConfig(t, `
mount:
  local_path: /mnt/data
  remote:
    type: ftp
    host: example.com
`))
	if err == nil || !strings.Contains(err.Error(), "unknown remote type") {
		t.Fatalf("err = %v, want unknown remote type", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mount.RefreshInterval != DefaultRefreshInterval {
		t.Errorf("RefreshInterval = %v", cfg.Mount.RefreshInterval)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TETHER_LOGGING_LEVEL", "ERROR")
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Level = %q, want env override ERROR", cfg.Logging.Level)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Mount.LocalPath = "/mnt/data"
	cfg.Mount.Remote = &remote.SFTP{
		Host:    "files.example.com",
		User:    "backup",
		KeyFile: "/keys/id_rsa",
	}

	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("perm = %o, want 0600", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load saved config: %v", err)
	}
	if loaded.Mount.LocalPath != "/mnt/data" {
		t.Errorf("LocalPath = %q", loaded.Mount.LocalPath)
	}
	if _, ok := loaded.Mount.Remote.(*remote.SFTP); !ok {
		t.Errorf("Remote = %T after round trip", loaded.Mount.Remote)
	}
}

func TestMustLoadMissingFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "tether init") {
		t.Fatalf("err = %v, want init hint", err)
	}
}
