package remote

import (
	"fmt"
	"strconv"
)

// S3 configures an object-storage remote. Endpoint is only needed for
// non-AWS providers (Minio, localstack, Ceph). With EnvAuth set, credentials
// come from the engine process environment instead of the config file.
type S3 struct {
	// Section overrides the config-file section name.
	Section string `mapstructure:"section" yaml:"section,omitempty"`

	Provider        string `mapstructure:"provider" yaml:"provider" validate:"required"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	Region          string `mapstructure:"region" yaml:"region" validate:"required"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	EnvAuth         bool   `mapstructure:"env_auth" yaml:"env_auth,omitempty"`

	LocationConstraint   string `mapstructure:"location_constraint" yaml:"location_constraint,omitempty"`
	ACL                  string `mapstructure:"acl" yaml:"acl,omitempty"`
	ServerSideEncryption string `mapstructure:"server_side_encryption" yaml:"server_side_encryption,omitempty"`
	StorageClass         string `mapstructure:"storage_class" yaml:"storage_class,omitempty"`
}

// Name implements Remote.
func (r *S3) Name() string { return sectionOrDefault(r.Section) }

// Type implements Remote.
func (r *S3) Type() string { return "s3" }

// Validate implements Remote. Static credentials are required unless EnvAuth
// delegates them to the engine environment.
func (r *S3) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("s3 remote: %w", err)
	}
	if !r.EnvAuth && (r.AccessKeyID == "" || r.SecretAccessKey == "") {
		return fmt.Errorf("s3 remote: access_key_id and secret_access_key are required unless env_auth is set")
	}
	return nil
}

// Parameters implements Remote. Empty optional fields are omitted.
func (r *S3) Parameters() (map[string]string, error) {
	acl := r.ACL
	if acl == "" {
		acl = "private"
	}

	params := map[string]string{
		"type":     "s3",
		"provider": r.Provider,
		"region":   r.Region,
		"env_auth": strconv.FormatBool(r.EnvAuth),
		"acl":      acl,
	}

	optional := map[string]string{
		"access_key_id":          r.AccessKeyID,
		"secret_access_key":      r.SecretAccessKey,
		"endpoint":               r.Endpoint,
		"location_constraint":    r.LocationConstraint,
		"server_side_encryption": r.ServerSideEncryption,
		"storage_class":          r.StorageClass,
	}
	for k, v := range optional {
		if v != "" {
			params[k] = v
		}
	}

	return params, nil
}

// MarshalYAML writes the variant tag alongside the fields so a saved config
// round-trips through the tagged decode hook.
func (r *S3) MarshalYAML() (any, error) {
	type plain S3
	return struct {
		Type  string `yaml:"type"`
		Plain plain  `yaml:",inline"`
	}{Type: r.Type(), Plain: plain(*r)}, nil
}

// Redacted implements Remote.
func (r *S3) Redacted() string {
	if r.Endpoint != "" {
		return fmt.Sprintf("s3://%s@%s", r.Provider, r.Endpoint)
	}
	return fmt.Sprintf("s3://%s/%s", r.Provider, r.Region)
}
