package orkestro

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvAuthSchemePreference is the environment variable carrying a
// comma-separated auth scheme preference.
const EnvAuthSchemePreference = "AUTH_SCHEME_PREFERENCE"

// fileAuthSchemePreferenceKey is the config-file key carrying the same
// comma-separated value.
const fileAuthSchemePreferenceKey = "auth_scheme_preference"

// preferenceEnv is the environment surface recognized by the runtime.
type preferenceEnv struct {
	AuthSchemePreference string `envconfig:"AUTH_SCHEME_PREFERENCE"`
}

// resolveAuthSchemePreference assembles the effective preference list.
// Precedence: explicit client configuration (options or a config layer)
// wins over the environment variable, which wins over the config-file key.
// An unset preference returns nil, leaving the model-declared order
// untouched.
func resolveAuthSchemePreference(comps *RuntimeComponents, fileBytes []byte) ([]string, error) {
	if pref := comps.AuthSchemePreference(); len(pref) > 0 {
		return pref, nil
	}
	if v, ok := comps.Config().Get(KeyAuthSchemePreference); ok {
		switch pref := v.(type) {
		case []string:
			if len(pref) > 0 {
				return pref, nil
			}
		case string:
			if ids := splitSchemeList(pref); len(ids) > 0 {
				return ids, nil
			}
		default:
			return nil, fmt.Errorf("config key %s: unsupported value type %T", KeyAuthSchemePreference, v)
		}
	}

	var env preferenceEnv
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("reading %s: %w", EnvAuthSchemePreference, err)
	}
	if ids := splitSchemeList(env.AuthSchemePreference); len(ids) > 0 {
		return ids, nil
	}

	if len(fileBytes) > 0 {
		ids, err := preferenceFromFile(fileBytes)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			return ids, nil
		}
	}
	return nil, nil
}

// preferenceFromFile parses the shared YAML config file and extracts the
// auth_scheme_preference key.
func preferenceFromFile(fileBytes []byte) ([]string, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(fileBytes), koanfyaml.Parser()); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if !k.Exists(fileAuthSchemePreferenceKey) {
		return nil, nil
	}
	return splitSchemeList(k.String(fileAuthSchemePreferenceKey)), nil
}

// readConfigFile loads the config file named by an option. A missing file
// is not an error; the source is simply absent.
func readConfigFile(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return data, nil
}

// splitSchemeList splits a comma-separated scheme id list, trimming blanks.
func splitSchemeList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if id := strings.TrimSpace(p); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
