package config

import (
	"time"

	"github.com/rileyhilliard/remoteops/internal/logger"
	"github.com/rileyhilliard/remoteops/internal/tools"
	"github.com/rileyhilliard/remoteops/pkg/sshutil"
)

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config holds process-wide settings. Credentials never live here; they are
// supplied per call.
type Config struct {
	Version int `yaml:"version" mapstructure:"version"`

	// Port applies when a call omits port.
	Port int `yaml:"port" mapstructure:"port"`

	// Timeout bounds connect and, separately, command execution when a call
	// omits timeout. Bare integers are seconds.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// TransferTimeout bounds one upload or download.
	TransferTimeout time.Duration `yaml:"transfer_timeout" mapstructure:"transfer_timeout"`

	// HostKeyPolicy is one of warn, strict, accept-new, insecure.
	HostKeyPolicy string `yaml:"host_key_policy" mapstructure:"host_key_policy"`

	// KnownHosts is the known_hosts file. Empty means ~/.ssh/known_hosts.
	KnownHosts string `yaml:"known_hosts" mapstructure:"known_hosts"`

	// SSHConfig resolves host aliases through SSHConfigPath.
	SSHConfig     bool   `yaml:"ssh_config" mapstructure:"ssh_config"`
	SSHConfigPath string `yaml:"ssh_config_path" mapstructure:"ssh_config_path"`

	Serve ServeConfig `yaml:"serve" mapstructure:"serve"`
}

// ServeConfig controls the line-delimited JSON server.
type ServeConfig struct {
	// MaxConcurrent caps in-flight requests. 0 means unlimited.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// DefaultConfig returns a Config with the built-in values.
func DefaultConfig() *Config {
	return &Config{
		Version:         CurrentConfigVersion,
		Port:            sshutil.DefaultPort,
		Timeout:         sshutil.DefaultTimeout,
		TransferTimeout: tools.DefaultTransferTimeout,
		HostKeyPolicy:   string(sshutil.HostKeyWarn),
		Serve: ServeConfig{
			MaxConcurrent: 16,
		},
	}
}

// Defaults returns the values the toolkit uses for omitted arguments.
func (c *Config) Defaults() tools.Defaults {
	return tools.Defaults{
		Port:            c.Port,
		Timeout:         c.Timeout,
		TransferTimeout: c.TransferTimeout,
	}
}

// DialOptions returns the session establisher settings. Call Validate first;
// an unparseable policy falls back to warn here.
func (c *Config) DialOptions(log logger.Logger) sshutil.DialOptions {
	policy, err := sshutil.ParseHostKeyPolicy(c.HostKeyPolicy)
	if err != nil {
		policy = sshutil.HostKeyWarn
	}
	return sshutil.DialOptions{
		HostKeyPolicy:  policy,
		KnownHostsPath: c.KnownHosts,
		UseSSHConfig:   c.SSHConfig,
		SSHConfigPath:  c.SSHConfigPath,
		DefaultPort:    c.Port,
		Logger:         log,
	}
}
