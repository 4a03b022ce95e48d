package sshutil

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// SSHHostEntry represents a parsed host entry from SSH config.
type SSHHostEntry struct {
	Alias    string `json:"alias"`              // The Host pattern (alias)
	Hostname string `json:"hostname,omitempty"` // The HostName value (actual host to connect to)
	User     string `json:"user,omitempty"`
	Port     string `json:"port,omitempty"`
}

// Description returns a user-friendly description of the host.
func (h SSHHostEntry) Description() string {
	parts := []string{}

	if h.Hostname != "" && h.Hostname != h.Alias {
		parts = append(parts, h.Hostname)
	}

	if h.User != "" {
		parts = append(parts, "user: "+h.User)
	}

	if h.Port != "" && h.Port != "22" {
		parts = append(parts, "port: "+h.Port)
	}

	if len(parts) == 0 {
		return h.Alias
	}

	return strings.Join(parts, ", ")
}

// DefaultSSHConfigPath returns ~/.ssh/config.
func DefaultSSHConfigPath() string {
	return filepath.Join(homeDir(), ".ssh", "config")
}

// ParseSSHConfigFile parses the specified SSH config file and returns
// concrete host aliases. Wildcard patterns are skipped.
func ParseSSHConfigFile(configPath string) ([]SSHHostEntry, error) {
	if configPath == "" {
		configPath = DefaultSSHConfigPath()
	}

	cfg, err := decodeSSHConfig(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No SSH config is fine
		}
		return nil, err
	}

	var hosts []SSHHostEntry
	seen := make(map[string]bool)

	for _, host := range cfg.Hosts {
		for _, pattern := range host.Patterns {
			alias := pattern.String()

			if strings.Contains(alias, "*") || strings.Contains(alias, "?") {
				continue
			}
			if seen[alias] {
				continue
			}
			seen[alias] = true

			entry := SSHHostEntry{Alias: alias}
			entry.Hostname, _ = cfg.Get(alias, "HostName")
			entry.User, _ = cfg.Get(alias, "User")
			entry.Port, _ = cfg.Get(alias, "Port")

			hosts = append(hosts, entry)
		}
	}

	sort.Slice(hosts, func(i, j int) bool {
		return hosts[i].Alias < hosts[j].Alias
	})

	return hosts, nil
}

// ResolveAlias applies HostName and Port from ssh config to spec. An explicit
// spec.Port wins over the config. Credentials and user are never taken from
// the config: they are supplied per call.
func ResolveAlias(spec ConnectionSpec, configPath string) ConnectionSpec {
	if configPath == "" {
		configPath = DefaultSSHConfigPath()
	}

	cfg, err := decodeSSHConfig(configPath)
	if err != nil {
		return spec
	}

	alias := spec.Host
	if hostname, _ := cfg.Get(alias, "HostName"); hostname != "" {
		spec.Host = hostname
	}
	if spec.Port == 0 {
		if port, _ := cfg.Get(alias, "Port"); port != "" {
			if p, err := strconv.Atoi(port); err == nil {
				spec.Port = p
			}
		}
	}
	return spec
}

func decodeSSHConfig(configPath string) (*ssh_config.Config, error) {
	// kevinburke/ssh_config doesn't support Match, so only the content before
	// the first Match block is parsed
	content, err := preprocessSSHConfig(configPath)
	if err != nil {
		return nil, err
	}
	return ssh_config.Decode(bytes.NewReader(content))
}

// preprocessSSHConfig reads the SSH config and returns content up to the first Match directive.
func preprocessSSHConfig(configPath string) ([]byte, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(content), "\n")
	var result []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), "match ") {
			break
		}
		result = append(result, line)
	}

	return []byte(strings.Join(result, "\n")), nil
}
