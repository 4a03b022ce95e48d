package sshutil_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/rileyhilliard/remoteops/internal/errors"
	"github.com/rileyhilliard/remoteops/internal/logger"
	"github.com/rileyhilliard/remoteops/pkg/sshutil"
	sshtesting "github.com/rileyhilliard/remoteops/pkg/sshutil/testing"
)

const testPassword = "hunter2"

func testExec(ctx context.Context, cmd string, stdout, stderr io.Writer) int {
	switch {
	case strings.HasPrefix(cmd, "echo "):
		fmt.Fprintln(stdout, strings.TrimPrefix(cmd, "echo "))
		return 0
	case cmd == "fail":
		fmt.Fprint(stdout, "partial")
		fmt.Fprint(stderr, "boom")
		return 3
	case cmd == "flood":
		// stderr first: a client that reads stdout before stderr stalls here
		stderr.Write(bytes.Repeat([]byte("e"), 3<<20))
		stdout.Write(bytes.Repeat([]byte("o"), 3<<20))
		return 0
	case cmd == "hang":
		<-ctx.Done()
		return 0
	default:
		fmt.Fprintf(stderr, "sh: %s: not found", cmd)
		return 127
	}
}

func startServer(t *testing.T, opts sshtesting.ServerOptions) *sshtesting.Server {
	t.Helper()
	if opts.Exec == nil {
		opts.Exec = testExec
	}
	srv, err := sshtesting.StartServer(opts)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func specFor(srv *sshtesting.Server, cred sshutil.Credential) sshutil.ConnectionSpec {
	return sshutil.ConnectionSpec{
		Host:           srv.Host(),
		Port:           srv.Port(),
		Username:       "tester",
		Credential:     cred,
		ConnectTimeout: 5 * time.Second,
	}
}

func insecure() sshutil.DialOptions {
	return sshutil.DialOptions{HostKeyPolicy: sshutil.HostKeyInsecure, Logger: logger.Noop()}
}

func dialPassword(t *testing.T, srv *sshtesting.Server) *sshutil.Client {
	t.Helper()
	client, err := sshutil.Dial(context.Background(), specFor(srv, sshutil.Credential{Password: testPassword}), insecure())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestDial_Password(t *testing.T) {
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword})

	client := dialPassword(t, srv)
	assert.Equal(t, srv.Addr(), client.GetAddress())
	assert.Equal(t, srv.Host(), client.GetHost())
}

func TestDial_WrongPassword(t *testing.T) {
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword})

	_, err := sshutil.Dial(context.Background(), specFor(srv, sshutil.Credential{Password: "nope"}), insecure())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConnection))
	assert.Contains(t, err.Error(), "unable to authenticate")
}

func TestDial_NoCredential(t *testing.T) {
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword})

	_, err := sshutil.Dial(context.Background(), specFor(srv, sshutil.Credential{}), insecure())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConnection))
	assert.Equal(t, fmt.Sprintf("no password or private key supplied for tester@%s", srv.Host()), err.Error())
}

func TestDial_ConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	l.Close()

	spec := sshutil.ConnectionSpec{
		Host:           "127.0.0.1",
		Port:           addr.Port,
		Username:       "tester",
		Credential:     sshutil.Credential{Password: testPassword},
		ConnectTimeout: 2 * time.Second,
	}
	_, err = sshutil.Dial(context.Background(), spec, insecure())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConnection))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestDial_HandshakeTimeout(t *testing.T) {
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword, HandshakeDelay: 5 * time.Second})

	spec := specFor(srv, sshutil.Credential{Password: testPassword})
	spec.ConnectTimeout = 200 * time.Millisecond

	start := time.Now()
	_, err := sshutil.Dial(context.Background(), spec, insecure())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.True(t, errors.IsCode(err, errors.ErrConnection))
	assert.Equal(t, fmt.Sprintf("connection to %s timed out after 200ms", srv.Addr()), err.Error())
}

func writeTestKey(t *testing.T) (string, ssh.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return path, sshPub
}

func TestDial_PrivateKey(t *testing.T) {
	keyPath, pub := writeTestKey(t)
	srv := startServer(t, sshtesting.ServerOptions{AuthorizedKey: pub})

	client, err := sshutil.Dial(context.Background(), specFor(srv, sshutil.Credential{KeyPath: keyPath}), insecure())
	require.NoError(t, err)
	defer client.Close()

	res, err := client.Exec(context.Background(), "echo key")
	require.NoError(t, err)
	assert.Equal(t, "key\n", string(res.Stdout))
}

func TestDial_KeyRejectedFallsBackToPassword(t *testing.T) {
	keyPath, _ := writeTestKey(t)
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword})

	client, err := sshutil.Dial(context.Background(),
		specFor(srv, sshutil.Credential{KeyPath: keyPath, Password: testPassword}), insecure())
	require.NoError(t, err)
	client.Close()
}

func TestDial_HostKeyPolicies(t *testing.T) {
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword})
	knownHosts := filepath.Join(t.TempDir(), "ssh", "known_hosts")
	spec := specFor(srv, sshutil.Credential{Password: testPassword})

	opts := sshutil.DialOptions{HostKeyPolicy: sshutil.HostKeyStrict, KnownHostsPath: knownHosts, Logger: logger.Noop()}
	_, err := sshutil.Dial(context.Background(), spec, opts)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConnection))
	assert.Contains(t, err.Error(), "is not in "+knownHosts)

	log := logger.NewBufferLogger()
	opts.HostKeyPolicy = sshutil.HostKeyAcceptNew
	opts.Logger = log
	client, err := sshutil.Dial(context.Background(), spec, opts)
	require.NoError(t, err)
	client.Close()
	assert.True(t, log.HasLevel("info"))

	data, err := os.ReadFile(knownHosts)
	require.NoError(t, err)
	assert.Contains(t, string(data), knownhosts.Normalize(srv.Addr()))

	// Recorded now, so strict passes
	opts.HostKeyPolicy = sshutil.HostKeyStrict
	client, err = sshutil.Dial(context.Background(), spec, opts)
	require.NoError(t, err)
	client.Close()
}

func TestDial_HostKeyMismatch(t *testing.T) {
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword})
	_, otherKey := writeTestKey(t)

	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(srv.Addr())}, otherKey)
	require.NoError(t, os.WriteFile(knownHosts, []byte(line+"\n"), 0o600))

	for _, policy := range []sshutil.HostKeyPolicy{sshutil.HostKeyWarn, sshutil.HostKeyAcceptNew, sshutil.HostKeyStrict} {
		t.Run(string(policy), func(t *testing.T) {
			opts := sshutil.DialOptions{HostKeyPolicy: policy, KnownHostsPath: knownHosts, Logger: logger.Noop()}
			_, err := sshutil.Dial(context.Background(), specFor(srv, sshutil.Credential{Password: testPassword}), opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "host key mismatch")
			var e *errors.Error
			require.ErrorAs(t, err, &e)
			assert.Contains(t, e.Suggestion, "ssh-keygen -R")
		})
	}
}

func TestDial_WarnPolicyLogsUnknownHost(t *testing.T) {
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword})
	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	log := logger.NewBufferLogger()

	opts := sshutil.DialOptions{HostKeyPolicy: sshutil.HostKeyWarn, KnownHostsPath: knownHosts, Logger: log}
	client, err := sshutil.Dial(context.Background(), specFor(srv, sshutil.Credential{Password: testPassword}), opts)
	require.NoError(t, err)
	client.Close()

	assert.True(t, log.HasLevel("warn"))
	_, statErr := os.Stat(knownHosts)
	assert.True(t, os.IsNotExist(statErr))
}

func TestExec_Output(t *testing.T) {
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword})
	client := dialPassword(t, srv)

	res, err := client.Exec(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(res.Stdout))
	assert.Empty(t, res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
}

func TestExec_NonZeroExitIsResult(t *testing.T) {
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword})
	client := dialPassword(t, srv)

	res, err := client.Exec(context.Background(), "fail")
	require.NoError(t, err)
	assert.Equal(t, "partial", string(res.Stdout))
	assert.Equal(t, "boom", string(res.Stderr))
	assert.Equal(t, 3, res.ExitCode)

	res, err = client.Exec(context.Background(), "nosuchcmd")
	require.NoError(t, err)
	assert.Equal(t, 127, res.ExitCode)
}

func TestExec_LargeOutputOnBothStreams(t *testing.T) {
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword})
	client := dialPassword(t, srv)

	res, err := client.Exec(context.Background(), "flood")
	require.NoError(t, err)
	assert.Len(t, res.Stdout, 3<<20)
	assert.Len(t, res.Stderr, 3<<20)
}

func TestExec_Timeout(t *testing.T) {
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword})
	spec := specFor(srv, sshutil.Credential{Password: testPassword})
	spec.ConnectTimeout = 300 * time.Millisecond

	client, err := sshutil.Dial(context.Background(), spec, insecure())
	require.NoError(t, err)
	defer client.Close()

	start := time.Now()
	_, err = client.Exec(context.Background(), "hang")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.True(t, errors.IsCode(err, errors.ErrExecution))
	assert.Equal(t, "command timed out after 300ms", err.Error())
}

func TestExec_Cancelled(t *testing.T) {
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword})
	client := dialPassword(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := client.Exec(ctx, "hang")
	require.Error(t, err)
	assert.Equal(t, "command cancelled", err.Error())
}

func TestExec_DeadlineBeforeCommandStarts(t *testing.T) {
	tests := []struct {
		name string
		opts sshtesting.ServerOptions
	}{
		{name: "channel open unanswered", opts: sshtesting.ServerOptions{Password: testPassword, StallChannels: true}},
		{name: "exec request unanswered", opts: sshtesting.ServerOptions{Password: testPassword, StallRequests: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := startServer(t, tt.opts)
			spec := specFor(srv, sshutil.Credential{Password: testPassword})
			spec.ConnectTimeout = 300 * time.Millisecond

			client, err := sshutil.Dial(context.Background(), spec, insecure())
			require.NoError(t, err)
			defer client.Close()

			start := time.Now()
			_, err = client.Exec(context.Background(), "echo never")
			require.Error(t, err)
			assert.Less(t, time.Since(start), 3*time.Second)
			assert.True(t, errors.IsCode(err, errors.ErrExecution))
			assert.Equal(t, "command timed out after 300ms", err.Error())
		})
	}
}

func TestOpenSFTP_Deadline(t *testing.T) {
	tests := []struct {
		name string
		opts sshtesting.ServerOptions
	}{
		{name: "channel open unanswered", opts: sshtesting.ServerOptions{Password: testPassword, StallChannels: true}},
		{name: "subsystem request unanswered", opts: sshtesting.ServerOptions{Password: testPassword, StallRequests: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := startServer(t, tt.opts)
			client := dialPassword(t, srv)

			ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
			defer cancel()

			start := time.Now()
			ft, err := client.OpenSFTP(ctx)
			require.Error(t, err)
			assert.Nil(t, ft)
			assert.Less(t, time.Since(start), 3*time.Second)
			assert.True(t, errors.IsCode(err, errors.ErrTransfer))
			assert.Equal(t, "opening sftp channel timed out", err.Error())
		})
	}
}

func TestOpenSFTP_Cancelled(t *testing.T) {
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword, StallRequests: true})
	client := dialPassword(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := client.OpenSFTP(ctx)
	require.Error(t, err)
	assert.Equal(t, "opening sftp channel cancelled", err.Error())
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword})
	client := dialPassword(t, srv)

	require.NoError(t, client.Close())
	assert.NoError(t, client.Close())

	_, err := client.Exec(context.Background(), "echo x")
	assert.True(t, errors.IsCode(err, errors.ErrExecution))
}

func TestSFTP_RoundTrip(t *testing.T) {
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword})
	client := dialPassword(t, srv)
	dir := t.TempDir()

	payload := bytes.Repeat([]byte("0123456789"), 100_000)
	local := filepath.Join(dir, "local.bin")
	require.NoError(t, os.WriteFile(local, payload, 0o644))

	ft, err := client.OpenSFTP(context.Background())
	require.NoError(t, err)
	defer ft.Close()

	remote := filepath.Join(dir, "remote.bin")
	require.NoError(t, ft.Put(context.Background(), local, remote))

	got, err := os.ReadFile(remote)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	back := filepath.Join(dir, "back.bin")
	require.NoError(t, ft.Get(context.Background(), remote, back))
	got, err = os.ReadFile(back)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// Overwrites truncate
	require.NoError(t, os.WriteFile(local, []byte("short"), 0o644))
	require.NoError(t, ft.Put(context.Background(), local, remote))
	got, err = os.ReadFile(remote)
	require.NoError(t, err)
	assert.Equal(t, "short", string(got))
}

func TestSFTP_RepeatedPutsOnOneChannel(t *testing.T) {
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword})
	client := dialPassword(t, srv)
	dir := t.TempDir()

	ft, err := client.OpenSFTP(context.Background())
	require.NoError(t, err)

	remote := filepath.Join(dir, "remote.txt")
	for i := 0; i < 20; i++ {
		local := filepath.Join(dir, fmt.Sprintf("local-%d.txt", i))
		require.NoError(t, os.WriteFile(local, []byte(fmt.Sprintf("v%d", i)), 0o644))
		require.NoError(t, ft.Put(context.Background(), local, remote))
	}

	got, err := os.ReadFile(remote)
	require.NoError(t, err)
	assert.Equal(t, "v19", string(got))

	// A failed Put leaves the channel usable
	require.Error(t, ft.Put(context.Background(), filepath.Join(dir, "local-0.txt"), filepath.Join(dir, "missing", "x")))
	require.NoError(t, ft.Put(context.Background(), filepath.Join(dir, "local-0.txt"), remote))

	assert.NoError(t, ft.Close())
}

func TestSFTP_Errors(t *testing.T) {
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword})
	client := dialPassword(t, srv)
	dir := t.TempDir()

	local := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(local, []byte("a"), 0o644))

	ft, err := client.OpenSFTP(context.Background())
	require.NoError(t, err)
	defer ft.Close()

	tests := []struct {
		name     string
		run      func() error
		contains string
	}{
		{
			name:     "missing local file",
			run:      func() error { return ft.Put(context.Background(), filepath.Join(dir, "nope"), filepath.Join(dir, "x")) },
			contains: filepath.Join(dir, "nope"),
		},
		{
			name:     "missing remote parent",
			run:      func() error { return ft.Put(context.Background(), local, filepath.Join(dir, "missing", "a.txt")) },
			contains: filepath.Join(dir, "missing", "a.txt"),
		},
		{
			name:     "missing remote file",
			run:      func() error { return ft.Get(context.Background(), filepath.Join(dir, "gone"), filepath.Join(dir, "out")) },
			contains: filepath.Join(dir, "gone"),
		},
		{
			name:     "missing local parent",
			run:      func() error { return ft.Get(context.Background(), local, filepath.Join(dir, "missing", "out")) },
			contains: filepath.Join(dir, "missing", "out"),
		},
		{
			name:     "local directory",
			run:      func() error { return ft.Put(context.Background(), dir, filepath.Join(dir, "x")) },
			contains: "is a directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrTransfer))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestSSHDialer_SatisfiesDialer(t *testing.T) {
	srv := startServer(t, sshtesting.ServerOptions{Password: testPassword})

	var d sshutil.Dialer = sshutil.NewDialer(insecure())
	session, err := d.Dial(context.Background(), specFor(srv, sshutil.Credential{Password: testPassword}))
	require.NoError(t, err)
	defer session.Close()

	assert.Equal(t, srv.Addr(), session.GetAddress())
}
