package sshutil

import (
	"net"
	"strconv"
	"time"
)

const (
	// DefaultPort is used when neither the caller nor ssh config names a port.
	DefaultPort = 22
	// DefaultTimeout bounds connect and, separately, command execution.
	DefaultTimeout = 20 * time.Second
)

// CredentialKind describes which secrets a Credential carries.
type CredentialKind int

const (
	CredentialNone CredentialKind = iota
	CredentialPassword
	CredentialKey
	CredentialPasswordAndKey
)

func (k CredentialKind) String() string {
	switch k {
	case CredentialPassword:
		return "password"
	case CredentialKey:
		return "private key"
	case CredentialPasswordAndKey:
		return "private key and password"
	default:
		return "none"
	}
}

// Credential holds the secrets for one invocation. It is never persisted.
// When both fields are set the password doubles as the key passphrase and as
// a password-auth fallback.
type Credential struct {
	Password string
	KeyPath  string
}

// Kind classifies the credential.
func (c Credential) Kind() CredentialKind {
	switch {
	case c.Password != "" && c.KeyPath != "":
		return CredentialPasswordAndKey
	case c.KeyPath != "":
		return CredentialKey
	case c.Password != "":
		return CredentialPassword
	default:
		return CredentialNone
	}
}

// ConnectionSpec describes one session to establish.
type ConnectionSpec struct {
	Host     string
	Port     int // 0 means "not specified"
	Username string

	Credential Credential

	// ConnectTimeout bounds dial+handshake+auth. The command executor reuses it
	// as the execute deadline.
	ConnectTimeout time.Duration
}

// Address returns the host:port string for dialing.
func (s ConnectionSpec) Address() string {
	port := s.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(port))
}

// Timeout returns the effective timeout.
func (s ConnectionSpec) Timeout() time.Duration {
	if s.ConnectTimeout <= 0 {
		return DefaultTimeout
	}
	return s.ConnectTimeout
}

// CommandResult is the captured outcome of a remote command.
// A non-zero ExitCode is a result, not an error.
type CommandResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}
