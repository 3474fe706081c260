// Package remote defines the connection configuration variants for the
// storage backends tether can mount (SFTP and S3) and renders them into the
// engine's config-file format.
//
// Each variant knows how to flatten itself into the key = value parameters
// the engine reads from its config file. The file is owned by the session
// that wrote it: regenerated on every mount, deleted when the session is
// discarded.
package remote

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// DefaultSection is the config-file section name used when a remote does not
// set one. The engine addresses the remote as "<section>:<path>".
const DefaultSection = "tether"

// Remote is a connection configuration for a mountable storage backend.
type Remote interface {
	// Name returns the config-file section name for this remote.
	Name() string

	// Type returns the variant tag ("sftp" or "s3").
	Type() string

	// Parameters flattens the configuration into the key = value pairs
	// written to the engine config file, including the "type" key.
	Parameters() (map[string]string, error)

	// Validate checks that the configuration is complete enough to attempt
	// a connection. It does not reach the network.
	Validate() error

	// Redacted returns a logging-safe identifier with secrets masked.
	Redacted() string
}

// NewConfigPath returns a process-unique path for an engine config file.
func NewConfigPath() string {
	return filepath.Join(os.TempDir(), uuid.NewString()+"-tether.conf")
}

// WriteConfigFile validates the remote and writes its engine config file:
// a single [section] followed by sorted key = value lines, owner-only
// permissions. An existing file at path is replaced.
func WriteConfigFile(path string, r Remote) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid remote config: %w", err)
	}

	params, err := r.Parameters()
	if err != nil {
		return fmt.Errorf("render remote config: %w", err)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", r.Name())
	for _, k := range keys {
		fmt.Fprintf(&b, "%s = %s\n", k, params[k])
	}

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("write remote config %s: %w", path, err)
	}
	return nil
}

// sectionOrDefault normalizes an optional section name.
func sectionOrDefault(section string) string {
	if section == "" {
		return DefaultSection
	}
	return section
}
