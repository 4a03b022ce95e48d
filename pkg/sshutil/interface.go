package sshutil

import "context"

// Session is a live, authenticated connection owned by a single invocation.
// Both the real Client and mock implementations satisfy this interface.
type Session interface {
	// Exec runs a command and captures stdout, stderr and exit status.
	// A non-zero exit code with nil error means the command ran but failed.
	Exec(ctx context.Context, cmd string) (*CommandResult, error)

	// OpenSFTP opens a file-transfer sub-channel, bounded by ctx. The
	// caller closes it before closing the session.
	OpenSFTP(ctx context.Context) (FileTransfer, error)

	// Close tears the session down. Calling it more than once is safe; only
	// the first call releases the connection.
	Close() error

	// GetAddress returns the resolved host:port address.
	GetAddress() string
}

// FileTransfer moves single files across an open sub-channel.
type FileTransfer interface {
	// Put copies localPath to remotePath.
	Put(ctx context.Context, localPath, remotePath string) error

	// Get copies remotePath to localPath.
	Get(ctx context.Context, remotePath, localPath string) error

	Close() error
}

// Dialer establishes sessions. Tests swap in a mock.
type Dialer interface {
	Dial(ctx context.Context, spec ConnectionSpec) (Session, error)
}
