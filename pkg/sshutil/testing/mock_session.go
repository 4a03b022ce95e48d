package testing

import (
	"context"
	"errors"
	"os"
	"regexp"
	"sync"

	"github.com/rileyhilliard/remoteops/pkg/sshutil"
)

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error

	// Block makes Exec wait until the context is done, simulating a command
	// that never finishes.
	Block bool
}

// TransferCall records one Put or Get on a MockTransfer.
type TransferCall struct {
	Op  string // "put" or "get"
	Src string
	Dst string
}

// MockSession simulates an authenticated SSH connection for testing.
// Transfers read and write the local disk on one side and the in-memory
// MockFS on the other.
type MockSession struct {
	mu         sync.Mutex
	address    string
	fs         *MockFS
	commands   map[string]CommandResponse // pattern -> response
	executed   []string
	transfers  []TransferCall
	events     []string
	closeCalls int

	// OpenSFTPErr is returned by OpenSFTP when set.
	OpenSFTPErr error
	// OpenSFTPBlock makes OpenSFTP wait until its context is done,
	// simulating a server that never starts the subsystem.
	OpenSFTPBlock bool
	// PutErr and GetErr replace the outcome of every transfer when set.
	PutErr error
	GetErr error
}

// NewMockSession creates a mock session with an empty filesystem.
func NewMockSession(address string) *MockSession {
	return &MockSession{
		address:  address,
		fs:       NewMockFS(),
		commands: make(map[string]CommandResponse),
	}
}

// Exec returns the registered response for cmd. Unknown commands exit 127.
func (m *MockSession) Exec(ctx context.Context, cmd string) (*sshutil.CommandResult, error) {
	m.mu.Lock()
	if m.closeCalls > 0 {
		m.mu.Unlock()
		return nil, errors.New("connection closed")
	}
	m.executed = append(m.executed, cmd)
	resp, ok := m.lookup(cmd)
	m.mu.Unlock()

	if !ok {
		return &sshutil.CommandResult{
			Stderr:   []byte("sh: command not found\n"),
			ExitCode: 127,
		}, nil
	}
	if resp.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return &sshutil.CommandResult{
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
		ExitCode: resp.ExitCode,
	}, nil
}

// lookup checks exact matches first, then regex patterns. Caller holds mu.
func (m *MockSession) lookup(cmd string) (CommandResponse, bool) {
	if resp, ok := m.commands[cmd]; ok {
		return resp, true
	}
	for pattern, resp := range m.commands {
		if matched, _ := regexp.MatchString(pattern, cmd); matched {
			return resp, true
		}
	}
	return CommandResponse{}, false
}

// OpenSFTP opens a mock transfer channel bound to this session's filesystem.
func (m *MockSession) OpenSFTP(ctx context.Context) (sshutil.FileTransfer, error) {
	m.mu.Lock()
	block := m.OpenSFTPBlock
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.OpenSFTPErr != nil {
		return nil, m.OpenSFTPErr
	}
	if m.closeCalls > 0 {
		return nil, errors.New("connection closed")
	}
	m.events = append(m.events, "sftp.open")
	return &MockTransfer{session: m}, nil
}

// Close records the call. Every call is counted so tests can assert that
// callers close exactly once.
func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	m.events = append(m.events, "session.close")
	return nil
}

// GetAddress returns the host:port address.
func (m *MockSession) GetAddress() string {
	return m.address
}

// SetCommandResponse registers a canned response for a command pattern.
// The pattern can be an exact string or a regex pattern.
func (m *MockSession) SetCommandResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[pattern] = resp
}

// GetFS returns the mock filesystem for direct manipulation in tests.
func (m *MockSession) GetFS() *MockFS {
	return m.fs
}

// CloseCount returns how many times Close was called.
func (m *MockSession) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// Executed returns the commands passed to Exec, in order.
func (m *MockSession) Executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.executed...)
}

// Transfers returns the recorded Put and Get calls, in order.
func (m *MockSession) Transfers() []TransferCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TransferCall(nil), m.transfers...)
}

// Events returns the open/close sequence seen by the session, e.g.
// ["sftp.open", "sftp.close", "session.close"].
func (m *MockSession) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func (m *MockSession) record(call TransferCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers = append(m.transfers, call)
}

func (m *MockSession) event(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, name)
}

// MockTransfer is the FileTransfer returned by MockSession.OpenSFTP.
type MockTransfer struct {
	session *MockSession
	once    sync.Once
}

// Put copies a local file into the mock filesystem. The remote parent
// directory must already exist.
func (t *MockTransfer) Put(ctx context.Context, localPath, remotePath string) error {
	t.session.record(TransferCall{Op: "put", Src: localPath, Dst: remotePath})
	if t.session.PutErr != nil {
		return t.session.PutErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	return t.session.fs.WriteFile(remotePath, data)
}

// Get copies a file from the mock filesystem to the local disk.
func (t *MockTransfer) Get(ctx context.Context, remotePath, localPath string) error {
	t.session.record(TransferCall{Op: "get", Src: remotePath, Dst: localPath})
	if t.session.GetErr != nil {
		return t.session.GetErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := t.session.fs.ReadFile(remotePath)
	if err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0o644)
}

// Close records the first call only.
func (t *MockTransfer) Close() error {
	t.once.Do(func() { t.session.event("sftp.close") })
	return nil
}

// MockDialer hands out a fixed session, or fails with Err.
type MockDialer struct {
	mu    sync.Mutex
	specs []sshutil.ConnectionSpec

	Session *MockSession
	Err     error
}

// NewMockDialer returns a dialer that always yields session.
func NewMockDialer(session *MockSession) *MockDialer {
	return &MockDialer{Session: session}
}

// Dial records spec and returns the configured session or error.
func (d *MockDialer) Dial(ctx context.Context, spec sshutil.ConnectionSpec) (sshutil.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.specs = append(d.specs, spec)

	if d.Err != nil {
		return nil, d.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Session == nil {
		d.Session = NewMockSession(spec.Address())
	}
	return d.Session, nil
}

// Specs returns the connection specs passed to Dial, in order.
func (d *MockDialer) Specs() []sshutil.ConnectionSpec {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sshutil.ConnectionSpec(nil), d.specs...)
}

// DialCount returns how many times Dial was called.
func (d *MockDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.specs)
}
