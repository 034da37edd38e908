// Package app provides the application initialization and wiring.
package app

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Server struct {
		Port    int    `mapstructure:"port"`
		DataDir string `mapstructure:"data_dir"`
	} `mapstructure:"server"`

	Caddy struct {
		AdminURL   string `mapstructure:"admin_url"`
		ServerName string `mapstructure:"server_name"`
	} `mapstructure:"caddy"`

	Monitor struct {
		Interval       time.Duration `mapstructure:"interval"`
		LabelNamespace string        `mapstructure:"label_namespace"`
		DNSResolver    string        `mapstructure:"dns_resolver"`
		HostsFile      string        `mapstructure:"hosts_file"`
		SSHTimeout     time.Duration `mapstructure:"ssh_timeout"`
	} `mapstructure:"monitor"`

	Routes struct {
		File string `mapstructure:"file"`
	} `mapstructure:"routes"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		File   struct {
			Enabled    bool   `mapstructure:"enabled"`
			Path       string `mapstructure:"path"`
			MaxSize    int    `mapstructure:"max_size"`
			MaxBackups int    `mapstructure:"max_backups"`
			MaxAge     int    `mapstructure:"max_age"`
		} `mapstructure:"file"`
	} `mapstructure:"logging"`
}

// HostsFilePath returns the host inventory path, defaulting into data_dir.
func (c Config) HostsFilePath() string {
	if c.Monitor.HostsFile != "" {
		return c.Monitor.HostsFile
	}
	return filepath.Join(c.dataDir(), "hosts.yml")
}

// RoutesFilePath returns the static route file path, defaulting into data_dir.
func (c Config) RoutesFilePath() string {
	if c.Routes.File != "" {
		return c.Routes.File
	}
	return filepath.Join(c.dataDir(), "routes.yml")
}

func (c Config) dataDir() string {
	if c.Server.DataDir != "" {
		return c.Server.DataDir
	}
	return DefaultDataDir()
}

// initConfig loads configuration from file.
func initConfig(configPath string) (*viper.Viper, Config, error) {
	v := viper.New()
	if err := loadConfig(v, configPath); err != nil {
		return nil, Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return v, cfg, nil
}

// loadConfig loads configuration from file and sets defaults.
func loadConfig(v *viper.Viper, configPath string) error {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.data_dir", DefaultDataDir())
	v.SetDefault("caddy.admin_url", "http://localhost:2019")
	v.SetDefault("caddy.server_name", "srv0")
	v.SetDefault("monitor.interval", "30s")
	v.SetDefault("monitor.label_namespace", "revp")
	v.SetDefault("monitor.dns_resolver", "127.0.0.1:53")
	v.SetDefault("monitor.hosts_file", "") // defaults to {data_dir}/hosts.yml when empty
	v.SetDefault("monitor.ssh_timeout", "10s")
	v.SetDefault("routes.file", "") // defaults to {data_dir}/routes.yml when empty
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.max_size", 100)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)

	ConfigureViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("REVP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return nil
}

// initLogger initializes the zerowrap logger.
func initLogger(cfg Config) (zerowrap.Logger, func(), error) {
	logConfig := zerowrap.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}

	if cfg.Logging.File.Enabled {
		logPath := cfg.Logging.File.Path
		if logPath == "" {
			logPath = filepath.Join(cfg.dataDir(), "logs", "revp.log")
		}

		log, cleanup, err := zerowrap.NewWithFile(logConfig, zerowrap.FileConfig{
			Enabled:    true,
			Path:       logPath,
			MaxSize:    cfg.Logging.File.MaxSize,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAge:     cfg.Logging.File.MaxAge,
			Compress:   true,
		})
		if err != nil {
			return zerowrap.Default(), nil, fmt.Errorf("failed to create logger with file: %w", err)
		}
		return log, cleanup, nil
	}

	return zerowrap.New(logConfig), nil, nil
}
