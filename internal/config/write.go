package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/remoteops/internal/errors"
	"gopkg.in/yaml.v3"
)

// keyComments document each key in files written by Render.
var keyComments = map[string]string{
	"port":             "Port used when a call omits one",
	"timeout":          "Connect and command timeout when a call omits one (duration or seconds)",
	"transfer_timeout": "Upper bound for a single upload or download",
	"host_key_policy":  "warn | strict | accept-new | insecure",
	"known_hosts":      "Defaults to ~/.ssh/known_hosts",
	"ssh_config":       "Resolve host aliases (HostName, Port) from ssh_config_path",
	"ssh_config_path":  "Defaults to ~/.ssh/config",
	"serve":            "Settings for 'remoteops serve'",
}

// Render encodes cfg as commented YAML. Durations are written as strings
// like "20s" so the file round-trips through Load.
func Render(cfg *Config) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, value any) error {
		valueNode := &yaml.Node{}
		if err := valueNode.Encode(value); err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key, HeadComment: keyComments[key]}
		root.Content = append(root.Content, keyNode, valueNode)
		return nil
	}

	fields := []struct {
		key   string
		value any
	}{
		{"version", cfg.Version},
		{"port", cfg.Port},
		{"timeout", cfg.Timeout.String()},
		{"transfer_timeout", cfg.TransferTimeout.String()},
		{"host_key_policy", cfg.HostKeyPolicy},
		{"known_hosts", cfg.KnownHosts},
		{"ssh_config", cfg.SSHConfig},
		{"ssh_config_path", cfg.SSHConfigPath},
		{"serve", cfg.Serve},
	}
	for _, f := range fields {
		if err := add(f.key, f.value); err != nil {
			return nil, err
		}
	}

	doc := &yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: "remoteops configuration. Credentials are never read from this file.",
		Content:     []*yaml.Node{root},
	}
	return encode(doc)
}

// WriteDefault writes the default config to path. An existing file is left
// alone unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.New(errors.ErrConfig,
				"Config file already exists: "+path,
				"Pass --force to overwrite it")
		}
	}

	data, err := Render(DefaultConfig())
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Failed to render config", "")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to create config directory: "+filepath.Dir(path),
			"Check directory permissions")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to write config file: "+path,
			"Check file permissions")
	}
	return nil
}

// SetValue updates one key in an existing config file, keeping its comments
// and layout. Dotted keys address nested mappings, e.g. "serve.max_concurrent".
// The result must still load and validate.
func SetValue(path, key, value string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file: "+path,
			"Run 'remoteops config init' first")
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to parse config file: "+path, "")
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return errors.New(errors.ErrConfig, "expected mapping at document root of "+path, "")
	}

	node := root.Content[0]
	parts := strings.Split(key, ".")
	for i, part := range parts {
		next := findMapValue(node, part)
		if next == nil {
			next = &yaml.Node{Kind: yaml.MappingNode}
			if i == len(parts)-1 {
				next = &yaml.Node{Kind: yaml.ScalarNode}
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: part}, next)
		}
		node = next
	}
	if node.Kind != yaml.ScalarNode {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("%s is a section, not a value", key),
			"Set one of its keys instead, e.g. "+key+".<name>")
	}

	// Let yaml re-derive the tag so "22" stays an int and "true" a bool
	node.Tag = ""
	node.Style = 0
	node.Value = value

	out, err := encode(&root)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Failed to encode config", "")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Failed to write config file: "+path, "")
	}
	cfg, err := Load(tmp)
	if err == nil {
		err = Validate(cfg)
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.WrapWithCode(err, errors.ErrConfig, "Failed to write config file: "+path, "")
	}
	return nil
}

func encode(node *yaml.Node) ([]byte, error) {
	var buf strings.Builder
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(node); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// findMapValue finds a value in a mapping node by key name.
func findMapValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}

	for i := 0; i < len(node.Content)-1; i += 2 {
		keyNode := node.Content[i]
		valueNode := node.Content[i+1]

		if keyNode.Kind == yaml.ScalarNode && keyNode.Value == key {
			return valueNode
		}
	}

	return nil
}
