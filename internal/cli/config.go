package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	chhttp "github.com/chhttp/chhttp-sdk/go"
)

const (
	defaultEndpoint = "http://localhost:8123/"
	envEndpoint     = "CLICKHOUSE_ENDPOINT"
	envConfig       = "CHHTTP_CONFIG"
)

// UserConfig is the on-disk profile file.
//
//	current_profile: local
//	profiles:
//	  local:
//	    endpoint: http://localhost:8123/
//	  prod:
//	    endpoint: https://clickhouse.example.com:8443/
//	    username: reader
//	    compression: zstd
type UserConfig struct {
	CurrentProfile string                   `yaml:"current_profile"`
	Profiles       map[string]chhttp.Config `yaml:"profiles"`
}

// ActiveProfile returns the named profile, or the current one when name is empty.
func (c *UserConfig) ActiveProfile(name string) (chhttp.Config, bool) {
	if name == "" {
		name = c.CurrentProfile
	}
	p, ok := c.Profiles[name]
	return p, ok
}

// DefaultConfigPath returns $CHHTTP_CONFIG or the file in the user config directory.
func DefaultConfigPath() string {
	if v := os.Getenv(envConfig); v != "" {
		return v
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "chhttp", "config.yaml")
}

// LoadUserConfig reads the profile file at path.
func LoadUserConfig(path string) (*UserConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c UserConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &c, nil
}

// loadConfig resolves the connection config with the precedence
// flag > env > profile > default.
func (o *options) loadConfig(cmd *cobra.Command) (*chhttp.Config, error) {
	config := &chhttp.Config{}

	if o.configPath != "" {
		uc, err := LoadUserConfig(o.configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
			// The profile file is optional unless asked for.
		case err != nil:
			return nil, err
		default:
			p, ok := uc.ActiveProfile(o.profile)
			if !ok && o.profile != "" {
				return nil, fmt.Errorf("profile %q not found in %s", o.profile, o.configPath)
			}
			if ok {
				config = &p
			}
		}
	}

	if config.Endpoint == "" {
		config.Endpoint = defaultEndpoint
	}
	if v := os.Getenv(envEndpoint); v != "" {
		config.Endpoint = v
	}
	if cmd.Flags().Changed("endpoint") {
		config.Endpoint = o.endpoint
	}
	return config, nil
}
