package remote

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// SFTP configures a remote reached over SSH. Authentication uses exactly one
// of KeyPEM or KeyFile; KeyUseAgent additionally routes signing through a
// running ssh-agent.
type SFTP struct {
	// Section overrides the config-file section name.
	Section string `mapstructure:"section" yaml:"section,omitempty"`

	Host string `mapstructure:"host" yaml:"host" validate:"required"`
	User string `mapstructure:"user" yaml:"user" validate:"required"`
	Port int    `mapstructure:"port" yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`

	// KeyPEM is the raw PEM-encoded private key.
	KeyPEM string `mapstructure:"key_pem" yaml:"key_pem,omitempty"`
	// KeyFile is the path to a private key file.
	KeyFile string `mapstructure:"key_file" yaml:"key_file,omitempty"`
	// KeyUseAgent asks the engine to use a running ssh-agent.
	KeyUseAgent bool `mapstructure:"key_use_agent" yaml:"key_use_agent,omitempty"`
}

// Name implements Remote.
func (r *SFTP) Name() string { return sectionOrDefault(r.Section) }

// Type implements Remote.
func (r *SFTP) Type() string { return "sftp" }

// Validate implements Remote. Exactly one of KeyPEM and KeyFile must be set.
func (r *SFTP) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("sftp remote: %w", err)
	}
	if (r.KeyPEM == "") == (r.KeyFile == "") {
		return errors.New("sftp remote: exactly one of key_pem and key_file must be set")
	}
	return nil
}

// Parameters implements Remote. A PEM key is collapsed onto a single line
// with literal \n sequences, which is how the engine reads multi-line values
// from its config file.
func (r *SFTP) Parameters() (map[string]string, error) {
	port := r.Port
	if port == 0 {
		port = 22
	}

	params := map[string]string{
		"type":          "sftp",
		"host":          r.Host,
		"user":          r.User,
		"port":          strconv.Itoa(port),
		"key_use_agent": strconv.FormatBool(r.KeyUseAgent),
	}

	if r.KeyPEM != "" {
		params["key_pem"] = strings.ReplaceAll(strings.TrimRight(r.KeyPEM, "\n"), "\n", "\\n")
	}
	if r.KeyFile != "" {
		params["key_file"] = r.KeyFile
	}

	return params, nil
}

// MarshalYAML writes the variant tag alongside the fields so a saved config
// round-trips through the tagged decode hook.
func (r *SFTP) MarshalYAML() (any, error) {
	type plain SFTP
	return struct {
		Type  string `yaml:"type"`
		Plain plain  `yaml:",inline"`
	}{Type: r.Type(), Plain: plain(*r)}, nil
}

// Redacted implements Remote.
func (r *SFTP) Redacted() string {
	port := r.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("sftp://%s@%s:%d", r.User, r.Host, port)
}
