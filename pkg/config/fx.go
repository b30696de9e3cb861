package config

import (
	"os"

	"github.com/pseudomuto/changekeeper/pkg/consts"
	"go.uber.org/fx"
)

// EnvConfigFile overrides the configuration file location.
const EnvConfigFile = "CHANGEKEEPER_CONFIG"

var Module = fx.Module("config", fx.Provide(
	// Loads changekeeper.yaml (or $CHANGEKEEPER_CONFIG) when it exists. Without
	// a file the defaults apply, so commands like help and version still work
	// and a bare sqlite project needs no configuration at all.
	func() (*Config, error) {
		return LoadOrDefault(ConfigFile())
	},
))

// ConfigFile returns the configuration path from the environment, falling
// back to consts.DefaultConfigFile.
func ConfigFile() string {
	if p := os.Getenv(EnvConfigFile); p != "" {
		return p
	}

	return consts.DefaultConfigFile
}

// LoadOrDefault loads path, or returns Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	return LoadConfigFile(path)
}
