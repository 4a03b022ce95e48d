package sshutil

import (
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rileyhilliard/remoteops/internal/errors"
	"github.com/rileyhilliard/remoteops/internal/logger"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyPolicy controls what happens when a server's host key is checked
// against known_hosts.
type HostKeyPolicy string

const (
	// HostKeyWarn accepts unknown hosts with a warning and rejects mismatches.
	HostKeyWarn HostKeyPolicy = "warn"
	// HostKeyStrict rejects unknown hosts and mismatches.
	HostKeyStrict HostKeyPolicy = "strict"
	// HostKeyAcceptNew records unknown hosts in known_hosts (trust on first use).
	HostKeyAcceptNew HostKeyPolicy = "accept-new"
	// HostKeyInsecure skips verification entirely.
	HostKeyInsecure HostKeyPolicy = "insecure"
)

// HostKeyPolicies lists every accepted policy name.
var HostKeyPolicies = []HostKeyPolicy{HostKeyWarn, HostKeyStrict, HostKeyAcceptNew, HostKeyInsecure}

// ParseHostKeyPolicy validates a policy name. Empty means HostKeyWarn.
func ParseHostKeyPolicy(s string) (HostKeyPolicy, error) {
	if s == "" {
		return HostKeyWarn, nil
	}
	for _, p := range HostKeyPolicies {
		if string(p) == strings.ToLower(s) {
			return p, nil
		}
	}
	names := make([]string, len(HostKeyPolicies))
	for i, p := range HostKeyPolicies {
		names[i] = string(p)
	}
	return "", errors.New(errors.ErrConfig,
		fmt.Sprintf("unknown host key policy %q", s),
		"Use one of: "+strings.Join(names, ", "))
}

// DefaultKnownHostsPath returns ~/.ssh/known_hosts.
func DefaultKnownHostsPath() string {
	return filepath.Join(homeDir(), ".ssh", "known_hosts")
}

// knownHostsMu serializes accept-new appends from concurrent invocations.
var knownHostsMu sync.Mutex

// newHostKeyCallback builds the verification callback for a policy.
func newHostKeyCallback(policy HostKeyPolicy, knownHostsPath string, log logger.Logger) (ssh.HostKeyCallback, error) {
	if policy == HostKeyInsecure {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // Explicitly configured
	}

	if knownHostsPath == "" {
		knownHostsPath = DefaultKnownHostsPath()
	}
	knownHostsPath = expandPath(knownHostsPath)

	var lookup ssh.HostKeyCallback
	if _, err := os.Stat(knownHostsPath); err == nil {
		cb, err := knownhosts.New(knownHostsPath)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrConnection,
				fmt.Sprintf("failed to load known_hosts %s: %v", knownHostsPath, err),
				"Fix or remove the malformed line in known_hosts")
		}
		lookup = cb
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, errors.ErrConnection)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if lookup != nil {
			err := lookup(hostname, remote, key)
			if err == nil {
				return nil
			}
			var keyErr *knownhosts.KeyError
			if !stderrors.As(err, &keyErr) {
				return err
			}
			if len(keyErr.Want) > 0 {
				return &HostKeyMismatchError{
					Hostname:     hostname,
					ReceivedType: key.Type(),
					KnownHosts:   knownHostsPath,
					Want:         keyErr.Want,
				}
			}
		}

		// Host is not in known_hosts
		fingerprint := ssh.FingerprintSHA256(key)
		switch policy {
		case HostKeyStrict:
			return &UnknownHostKeyError{Hostname: hostname, Fingerprint: fingerprint, KnownHosts: knownHostsPath}
		case HostKeyAcceptNew:
			if err := appendKnownHost(knownHostsPath, hostname, key); err != nil {
				return err
			}
			log.Info("Added %s host key for %s to %s (%s)", key.Type(), hostname, knownHostsPath, fingerprint)
			return nil
		default:
			log.Warn("Unknown %s host key for %s (%s); continuing without verification", key.Type(), hostname, fingerprint)
			return nil
		}
	}, nil
}

// appendKnownHost records a host key, creating known_hosts if needed.
func appendKnownHost(path, hostname string, key ssh.PublicKey) error {
	knownHostsMu.Lock()
	defer knownHostsMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts: %w", err)
	}
	defer f.Close()

	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write known_hosts: %w", err)
	}
	return nil
}

// UnknownHostKeyError is returned under HostKeyStrict for hosts missing from known_hosts.
type UnknownHostKeyError struct {
	Hostname    string
	Fingerprint string
	KnownHosts  string
}

func (e *UnknownHostKeyError) Error() string {
	return fmt.Sprintf("host key for %s is not in %s (%s)", e.Hostname, e.KnownHosts, e.Fingerprint)
}

// Suggestion returns the command that would trust the host.
func (e *UnknownHostKeyError) Suggestion() string {
	host := e.Hostname
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return fmt.Sprintf("Verify the fingerprint, then: ssh-keyscan %s >> %s", host, e.KnownHosts)
}

// HostKeyMismatchError provides helpful context when known_hosts verification fails.
type HostKeyMismatchError struct {
	Hostname     string
	ReceivedType string
	KnownHosts   string
	Want         []knownhosts.KnownKey
}

func (e *HostKeyMismatchError) Error() string {
	return fmt.Sprintf("host key mismatch for %s: server sent %s key", e.Hostname, e.ReceivedType)
}

// Suggestion returns actionable steps to fix the host key mismatch.
func (e *HostKeyMismatchError) Suggestion() string {
	host := e.Hostname
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	var wantTypes []string
	for _, k := range e.Want {
		wantTypes = append(wantTypes, k.Key.Type())
	}
	wantStr := "unknown"
	if len(wantTypes) > 0 {
		wantStr = strings.Join(wantTypes, ", ")
	}

	return fmt.Sprintf(
		"The server's host key doesn't match what's in known_hosts.\n"+
			"  Known types: %s\n"+
			"  Server sent: %s\n\n"+
			"  If the change is expected, remove the old entry:\n"+
			"    ssh-keygen -R %s -f %s",
		wantStr, e.ReceivedType, host, e.KnownHosts)
}
