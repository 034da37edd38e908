package app

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".revp")
	}
	return "/var/lib/revp"
}

// ConfigureViper sets up viper to find the config file.
func ConfigureViper(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("revp")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/revp")
		v.AddConfigPath("$HOME/.config/revp")
		v.AddConfigPath(".")
	}
}
