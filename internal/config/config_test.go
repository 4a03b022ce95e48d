package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/remoteops/internal/errors"
	"github.com/rileyhilliard/remoteops/internal/logger"
	"github.com/rileyhilliard/remoteops/pkg/sshutil"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, CurrentConfigVersion, cfg.Version)
	assert.Equal(t, 22, cfg.Port)
	assert.Equal(t, 20*time.Second, cfg.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.TransferTimeout)
	assert.Equal(t, "warn", cfg.HostKeyPolicy)
	assert.False(t, cfg.SSHConfig)
	assert.Equal(t, 16, cfg.Serve.MaxConcurrent)
	assert.NoError(t, Validate(cfg))
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
version: 1
port: 2222
timeout: 45s
transfer_timeout: 30m
host_key_policy: accept-new
known_hosts: /tmp/kh
ssh_config: true
serve:
  max_concurrent: 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2222, cfg.Port)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.TransferTimeout)
	assert.Equal(t, "accept-new", cfg.HostKeyPolicy)
	assert.Equal(t, "/tmp/kh", cfg.KnownHosts)
	assert.True(t, cfg.SSHConfig)
	assert.Equal(t, 4, cfg.Serve.MaxConcurrent)
}

func TestLoad_BareSecondsTimeout(t *testing.T) {
	path := writeConfig(t, "timeout: 30\ntransfer_timeout: 90\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 90*time.Second, cfg.TransferTimeout)
	// Unset keys keep defaults
	assert.Equal(t, 22, cfg.Port)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "port: 2222\n")
	t.Setenv("REMOTEOPS_PORT", "2022")
	t.Setenv("REMOTEOPS_TIMEOUT", "5")
	t.Setenv("REMOTEOPS_HOST_KEY_POLICY", "strict")
	t.Setenv("REMOTEOPS_SERVE_MAX_CONCURRENT", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2022, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "strict", cfg.HostKeyPolicy)
	assert.Equal(t, 2, cfg.Serve.MaxConcurrent)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))

	path := writeConfig(t, "port: [1, 2\n")
	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))

	path = writeConfig(t, "timeout: soon\n")
	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestFind(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := Find("")
	require.NoError(t, err)
	assert.Empty(t, path)

	global := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(global), 0o755))
	require.NoError(t, os.WriteFile(global, []byte("port: 23\n"), 0o644))

	path, err = Find("")
	require.NoError(t, err)
	assert.Equal(t, global, path)

	explicit := writeConfig(t, "port: 24\n")
	path, err = Find(explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, path)

	_, err = Find(filepath.Join(home, "nope.yaml"))
	assert.True(t, errors.IsCode(err, errors.ErrConfig))

	cfg, found, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, global, found)
	assert.Equal(t, 23, cfg.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"future version", func(c *Config) { c.Version = 99 }, "from the future"},
		{"port zero", func(c *Config) { c.Port = 0 }, "port 0 is out of range"},
		{"port high", func(c *Config) { c.Port = 70000 }, "out of range"},
		{"timeout", func(c *Config) { c.Timeout = 0 }, "timeout must be positive"},
		{"transfer timeout", func(c *Config) { c.TransferTimeout = -time.Second }, "transfer_timeout must be positive"},
		{"policy", func(c *Config) { c.HostKeyPolicy = "yolo" }, "yolo"},
		{"empty policy is warn", func(c *Config) { c.HostKeyPolicy = "" }, ""},
		{"max concurrent", func(c *Config) { c.Serve.MaxConcurrent = -1 }, "max_concurrent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrConfig))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDialOptionsAndDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HostKeyPolicy = "Accept-New"
	cfg.KnownHosts = "/kh"
	cfg.SSHConfig = true
	cfg.Port = 2200

	log := logger.Noop()
	opts := cfg.DialOptions(log)
	assert.Equal(t, sshutil.HostKeyAcceptNew, opts.HostKeyPolicy)
	assert.Equal(t, "/kh", opts.KnownHostsPath)
	assert.True(t, opts.UseSSHConfig)
	assert.Equal(t, 2200, opts.DefaultPort)

	d := cfg.Defaults()
	assert.Equal(t, 2200, d.Port)
	assert.Equal(t, 20*time.Second, d.Timeout)
	assert.Equal(t, 10*time.Minute, d.TransferTimeout)
}

func TestRender_RoundTrips(t *testing.T) {
	data, err := Render(DefaultConfig())
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, "# remoteops configuration")
	assert.Contains(t, text, "# warn | strict | accept-new | insecure")
	assert.Contains(t, text, "timeout: 20s")
	assert.Contains(t, text, "max_concurrent: 16")

	path := writeConfig(t, text)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, WriteDefault(path, false))
	_, err := os.Stat(path)
	require.NoError(t, err)

	err = WriteDefault(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	assert.NoError(t, WriteDefault(path, true))
}

func TestSetValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefault(path, false))

	require.NoError(t, SetValue(path, "port", "2222"))
	require.NoError(t, SetValue(path, "host_key_policy", "strict"))
	require.NoError(t, SetValue(path, "serve.max_concurrent", "3"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2222, cfg.Port)
	assert.Equal(t, "strict", cfg.HostKeyPolicy)
	assert.Equal(t, 3, cfg.Serve.MaxConcurrent)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# warn | strict | accept-new | insecure", "comments survive")
}

func TestSetValue_Rejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefault(path, false))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	err = SetValue(path, "host_key_policy", "yolo")
	require.Error(t, err)

	err = SetValue(path, "serve", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a section")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	err = SetValue(filepath.Join(t.TempDir(), "missing.yaml"), "port", "1")
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}
