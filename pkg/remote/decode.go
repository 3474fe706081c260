package remote

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// remoteType is the interface type the decode hook dispatches on.
var remoteType = reflect.TypeOf((*Remote)(nil)).Elem()

// DecodeHook returns a mapstructure hook that decodes a tagged map
// ({type: sftp|s3, ...}) into the matching Remote variant. Used by the app
// config loader so a remote can be written inline in YAML.
func DecodeHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != remoteType {
			return data, nil
		}

		m, ok := normalizeMap(data)
		if !ok {
			return data, nil
		}

		tag, _ := m["type"].(string)
		var r Remote
		switch strings.ToLower(tag) {
		case "sftp":
			r = &SFTP{}
		case "s3":
			r = &S3{}
		case "":
			return nil, fmt.Errorf("remote config is missing the type tag (sftp or s3)")
		default:
			return nil, fmt.Errorf("unknown remote type %q (valid: sftp, s3)", tag)
		}

		if err := mapstructure.Decode(m, r); err != nil {
			return nil, fmt.Errorf("decode %s remote: %w", tag, err)
		}
		return r, nil
	}
}

// normalizeMap accepts the map shapes viper and yaml produce.
func normalizeMap(data any) (map[string]any, bool) {
	switch m := data.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = v
		}
		return out, true
	default:
		return nil, false
	}
}
