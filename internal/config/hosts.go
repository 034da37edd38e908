// Package config loads the host inventory file. The inventory is editable
// while the engine runs; each scan cycle reloads it so added or disabled
// hosts take effect without a restart.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"revp/internal/domain"
)

type hostsFile struct {
	Hosts map[string]hostEntry `yaml:"hosts"`
}

type hostEntry struct {
	Hostname string `yaml:"hostname"`
	User     string `yaml:"user"`
	Port     int    `yaml:"port,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty"`
	Kind     string `yaml:"kind,omitempty"`
	Enabled  *bool  `yaml:"enabled,omitempty"`
}

// LoadHosts reads the host inventory at path. A missing file yields an empty
// inventory. Hosts default to kind ssh, port 22 and enabled.
func LoadHosts(path string) ([]domain.HostRecord, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", domain.ErrConfigLoadFailed, path, err)
	}

	var file hostsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", domain.ErrConfigLoadFailed, path, err)
	}

	hosts := make([]domain.HostRecord, 0, len(file.Hosts))
	for name, entry := range file.Hosts {
		record := domain.HostRecord{
			Name:     name,
			Hostname: entry.Hostname,
			User:     entry.User,
			Port:     entry.Port,
			KeyFile:  expandHome(entry.KeyFile),
			Kind:     domain.HostKind(entry.Kind),
			Enabled:  entry.Enabled == nil || *entry.Enabled,
		}
		if record.Kind == "" {
			record.Kind = domain.HostKindSSH
		}
		if err := validateHost(record); err != nil {
			return nil, fmt.Errorf("%w: host %q: %w", domain.ErrInvalidConfig, name, err)
		}
		hosts = append(hosts, record)
	}

	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Name < hosts[j].Name })
	return hosts, nil
}

func validateHost(h domain.HostRecord) error {
	switch h.Kind {
	case domain.HostKindLocal:
		return nil
	case domain.HostKindSSH:
		if h.Hostname == "" {
			return fmt.Errorf("missing hostname")
		}
		if h.User == "" {
			return fmt.Errorf("missing user")
		}
		if h.KeyFile == "" {
			return fmt.Errorf("missing key_file")
		}
		return nil
	default:
		return fmt.Errorf("unknown kind %q", h.Kind)
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
