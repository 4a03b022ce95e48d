package sshutil

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rileyhilliard/remoteops/internal/errors"
	"github.com/rileyhilliard/remoteops/internal/logger"
	"golang.org/x/crypto/ssh"
)

// DialOptions carries process-wide settings for establishing sessions.
// Per-call data (host, credential, timeout) lives in ConnectionSpec.
type DialOptions struct {
	HostKeyPolicy  HostKeyPolicy
	KnownHostsPath string // defaults to ~/.ssh/known_hosts

	// UseSSHConfig resolves host aliases (HostName, Port) from SSHConfigPath.
	UseSSHConfig  bool
	SSHConfigPath string // defaults to ~/.ssh/config

	// DefaultPort applies when neither the ConnectionSpec nor ssh config names a port.
	DefaultPort int

	Logger logger.Logger
}

func (o DialOptions) logger() logger.Logger {
	if o.Logger == nil {
		return logger.Default()
	}
	return o.Logger
}

// Client wraps an SSH connection with additional metadata.
type Client struct {
	*ssh.Client
	Host    string // The original host/alias used to connect
	Address string // The resolved address (host:port)

	timeout   time.Duration
	log       logger.Logger
	closeOnce sync.Once
	closeErr  error
}

// SSHDialer is the production Dialer.
type SSHDialer struct {
	opts DialOptions
}

// NewDialer returns a Dialer that connects with the given options.
func NewDialer(opts DialOptions) *SSHDialer {
	return &SSHDialer{opts: opts}
}

// Dial satisfies Dialer.
func (d *SSHDialer) Dial(ctx context.Context, spec ConnectionSpec) (Session, error) {
	client, err := Dial(ctx, spec, d.opts)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Dial establishes an authenticated SSH connection described by spec.
// Dial, handshake and authentication together must finish within
// spec.Timeout(); otherwise the socket is closed and a CONNECTION error
// returned. Every failure is a CONNECTION error whose message is the cause.
func Dial(ctx context.Context, spec ConnectionSpec, opts DialOptions) (*Client, error) {
	log := opts.logger()

	if opts.UseSSHConfig {
		spec = ResolveAlias(spec, opts.SSHConfigPath)
	}
	if spec.Port == 0 && opts.DefaultPort != 0 {
		spec.Port = opts.DefaultPort
	}

	if spec.Credential.Kind() == CredentialNone {
		return nil, errors.New(errors.ErrConnection,
			fmt.Sprintf("no password or private key supplied for %s@%s", spec.Username, spec.Host),
			"Pass password, privateKey, or both")
	}

	auth, err := authMethods(spec.Credential)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConnection)
	}

	hostKeyCallback, err := newHostKeyCallback(opts.HostKeyPolicy, opts.KnownHostsPath, log)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConnection)
	}

	timeout := spec.Timeout()
	config := &ssh.ClientConfig{
		User:            spec.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	address := spec.Address()
	log.Debug("Connecting to %s@%s (%s auth, timeout %s)", spec.Username, address, spec.Credential.Kind(), timeout)

	var netDialer net.Dialer
	conn, err := netDialer.DialContext(ctx, "tcp", address)
	if err != nil {
		if ctx.Err() != nil {
			return nil, timeoutError(address, timeout, ctx.Err(), err)
		}
		return nil, errors.WrapWithCode(err, errors.ErrConnection,
			err.Error(),
			suggestionForDialError(err))
	}

	// Abort the handshake by closing the socket if the deadline passes
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	aborted := !stop()
	if err != nil {
		conn.Close()

		var mismatch *HostKeyMismatchError
		if stderrors.As(err, &mismatch) {
			return nil, errors.WrapWithCode(err, errors.ErrConnection, mismatch.Error(), mismatch.Suggestion())
		}
		var unknown *UnknownHostKeyError
		if stderrors.As(err, &unknown) {
			return nil, errors.WrapWithCode(err, errors.ErrConnection, unknown.Error(), unknown.Suggestion())
		}
		if aborted || ctx.Err() != nil || isTimeout(err) {
			return nil, timeoutError(address, timeout, ctx.Err(), err)
		}
		return nil, errors.WrapWithCode(err, errors.ErrConnection,
			err.Error(),
			suggestionForHandshakeError(err))
	}
	if aborted {
		sshConn.Close()
		return nil, timeoutError(address, timeout, ctx.Err(), nil)
	}
	_ = conn.SetDeadline(time.Time{})

	log.Debug("Connected to %s", address)

	return &Client{
		Client:  ssh.NewClient(sshConn, chans, reqs),
		Host:    spec.Host,
		Address: address,
		timeout: timeout,
		log:     log,
	}, nil
}

// Close closes the SSH connection. Only the first call has any effect.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.Client != nil {
			c.closeErr = c.Client.Close()
			c.log.Debug("Closed connection to %s", c.Address)
		}
	})
	return c.closeErr
}

// GetHost returns the original host/alias used to connect.
func (c *Client) GetHost() string {
	return c.Host
}

// GetAddress returns the resolved host:port address.
func (c *Client) GetAddress() string {
	return c.Address
}

func timeoutError(address string, timeout time.Duration, ctxErr, cause error) *errors.Error {
	if stderrors.Is(ctxErr, context.Canceled) {
		return errors.WrapWithCode(cause, errors.ErrConnection,
			fmt.Sprintf("connection to %s cancelled", address), "")
	}
	return errors.WrapWithCode(cause, errors.ErrConnection,
		fmt.Sprintf("connection to %s timed out after %s", address, timeout),
		"Connection timed out. Host might be offline or blocked by a firewall.")
}

func isTimeout(err error) bool {
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

func suggestionForDialError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") {
		return "Is SSH running on that box, on that port?"
	}
	if strings.Contains(errStr, "no such host") {
		return "Check the hostname spelling."
	}
	if strings.Contains(errStr, "no route to host") || strings.Contains(errStr, "network is unreachable") {
		return "Can't route to the host. Check your network connection."
	}
	return "Make sure the host is reachable: ping <host>"
}

func suggestionForHandshakeError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "unable to authenticate") || strings.Contains(errStr, "no supported methods") {
		return "Auth failed. Check the username, password, or private key."
	}
	if strings.Contains(errStr, "host key") {
		return "Host key issue. Check the host_key_policy setting and known_hosts."
	}
	return "Something went wrong during SSH setup. Try: ssh -v <host>"
}
