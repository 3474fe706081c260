package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// SpecFile is the name of the supervisor spec inside a session directory.
const SpecFile = "session.yaml"

// Spec carries everything the supervisor process needs to rebuild the engine
// handle and run the heartbeat loop. The owner writes it before spawning the
// supervisor.
type Spec struct {
	SessionID  string `yaml:"session_id"`
	Local      string `yaml:"local"`
	RemoteName string `yaml:"remote_name"`
	RemotePath string `yaml:"remote_path,omitempty"`
	ConfigPath string `yaml:"config_path"`
	RCAddr     string `yaml:"rc_addr"`

	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Timeout         time.Duration `yaml:"timeout"`
	Verbose         bool          `yaml:"verbose,omitempty"`

	MissedHeartbeats int `yaml:"missed_heartbeats"`
	RestartLimit     int `yaml:"restart_limit"`
	MountRetries     int `yaml:"mount_retries"`

	CacheMaxSize uint64 `yaml:"cache_max_size,omitempty"`

	LogFile   string    `yaml:"log_file,omitempty"`
	LogLevel  string    `yaml:"log_level,omitempty"`
	MountedAt time.Time `yaml:"mounted_at,omitempty"`
}

// WriteSpec persists the supervisor spec into the session directory.
func (d *Dir) WriteSpec(spec *Spec) error {
	data, err := yaml.Marshal(spec)
	if err != nil {
		return fmt.Errorf("marshal session spec: %w", err)
	}
	path := filepath.Join(d.path, SpecFile)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write session spec: %w", err)
	}
	return nil
}

// ReadSpec loads the supervisor spec from the session directory.
func (d *Dir) ReadSpec() (*Spec, error) {
	data, err := os.ReadFile(filepath.Join(d.path, SpecFile))
	if err != nil {
		return nil, fmt.Errorf("read session spec: %w", err)
	}
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse session spec: %w", err)
	}
	return &spec, nil
}
