package testing

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// ExecHandler runs a command on the test server and returns its exit status.
// ctx is cancelled when the client connection goes away.
type ExecHandler func(ctx context.Context, cmd string, stdout, stderr io.Writer) int

// ServerOptions configures an in-process SSH server.
type ServerOptions struct {
	// Password enables password auth when non-empty.
	Password string
	// AuthorizedKey enables public key auth for this key when non-nil.
	AuthorizedKey ssh.PublicKey
	// Exec handles "exec" requests. Nil rejects them.
	Exec ExecHandler
	// HandshakeDelay stalls each connection before the SSH handshake.
	HandshakeDelay time.Duration
	// StallChannels leaves every channel open request unanswered, so the
	// client is logged in but can never get a session channel.
	StallChannels bool
	// StallRequests accepts session channels but never replies to exec or
	// subsystem requests.
	StallRequests bool
}

// Server is an SSH server on 127.0.0.1 that serves exec requests and the
// sftp subsystem against the real local filesystem.
type Server struct {
	opts     ServerOptions
	config   *ssh.ServerConfig
	listener net.Listener
	hostKey  ssh.PublicKey

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns []net.Conn
	wg    sync.WaitGroup
}

// StartServer listens on a random loopback port and starts accepting.
func StartServer(opts ServerOptions) (*Server, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, fmt.Errorf("host signer: %w", err)
	}

	config := &ssh.ServerConfig{}
	if opts.Password != "" {
		config.PasswordCallback = func(_ ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if string(pass) == opts.Password {
				return &ssh.Permissions{}, nil
			}
			return nil, errors.New("wrong password")
		}
	}
	if opts.AuthorizedKey != nil {
		want := ssh.FingerprintSHA256(opts.AuthorizedKey)
		config.PublicKeyCallback = func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if ssh.FingerprintSHA256(key) == want {
				return &ssh.Permissions{}, nil
			}
			return nil, errors.New("unknown public key")
		}
	}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:     opts,
		config:   config,
		listener: listener,
		hostKey:  signer.PublicKey(),
		ctx:      ctx,
		cancel:   cancel,
	}

	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Addr returns the listen address as host:port.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Host returns the listen IP.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the listen port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

// HostKey returns the server's public host key.
func (s *Server) HostKey() ssh.PublicKey {
	return s.hostKey
}

// Close stops accepting, drops every connection, and waits for handlers.
func (s *Server) Close() error {
	s.cancel()
	err := s.listener.Close()

	s.mu.Lock()
	for _, c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, netConn)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(netConn)
		}()
	}
}

func (s *Server) handleConn(netConn net.Conn) {
	if s.opts.HandshakeDelay > 0 {
		select {
		case <-time.After(s.opts.HandshakeDelay):
		case <-s.ctx.Done():
			netConn.Close()
			return
		}
	}

	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		netConn.Close()
		return
	}
	defer sshConn.Close()

	connCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go func() {
		_ = sshConn.Wait()
		cancel()
	}()
	go ssh.DiscardRequests(reqs)

	var sessions sync.WaitGroup
	for newChan := range chans {
		if s.opts.StallChannels {
			continue
		}
		if newChan.ChannelType() != "session" {
			_ = newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		sessions.Add(1)
		go func() {
			defer sessions.Done()
			s.handleSession(connCtx, ch, requests)
		}()
	}
	sessions.Wait()
}

func (s *Server) handleSession(ctx context.Context, ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()

	for req := range requests {
		if s.opts.StallRequests && (req.Type == "exec" || req.Type == "subsystem") {
			continue
		}
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if s.opts.Exec == nil || ssh.Unmarshal(req.Payload, &payload) != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)

			code := s.opts.Exec(ctx, payload.Command, ch, ch.Stderr())
			status := struct{ Status uint32 }{uint32(code)}
			_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(&status))
			return

		case "subsystem":
			var payload struct{ Name string }
			if ssh.Unmarshal(req.Payload, &payload) != nil || payload.Name != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)

			server, err := sftp.NewServer(ch)
			if err != nil {
				return
			}
			_ = server.Serve()
			_ = server.Close()
			return

		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}
