package sshutil

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/pkg/sftp"
	"github.com/rileyhilliard/remoteops/internal/errors"
	"github.com/rileyhilliard/remoteops/internal/logger"
)

// SFTPChannel is one SFTP sub-channel multiplexed over a Client.
type SFTPChannel struct {
	client  *sftp.Client
	address string
	log     logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// OpenSFTP starts the sftp subsystem on a new channel of the connection.
// If ctx ends before the channel, the subsystem request and the sftp init
// exchange complete, the connection is closed.
func (c *Client) OpenSFTP(ctx context.Context) (FileTransfer, error) {
	stop := context.AfterFunc(ctx, func() {
		c.log.Debug("Deadline reached opening sftp on %s, closing connection", c.Address)
		c.Close()
	})

	client, err := sftp.NewClient(c.Client)
	if !stop() {
		if client != nil {
			client.Close()
		}
		return nil, openDeadlineError(ctx, err)
	}
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrTransfer,
			fmt.Sprintf("failed to start sftp subsystem: %v", err),
			"Check the server has the sftp subsystem enabled.")
	}
	c.log.Debug("Opened sftp channel to %s", c.Address)
	return &SFTPChannel{client: client, address: c.Address, log: c.log}, nil
}

// Put uploads localPath to remotePath. The remote parent directory must
// already exist. The remote file is created or truncated; a failed copy
// leaves whatever was written.
func (s *SFTPChannel) Put(ctx context.Context, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return transferError("open", localPath, err)
	}
	defer src.Close()

	if info, err := src.Stat(); err != nil {
		return transferError("stat", localPath, err)
	} else if info.IsDir() {
		return transferError("open", localPath, stderrors.New("is a directory"))
	}

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	dst, err := s.client.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return s.copyError(ctx, "open", remotePath, err)
	}

	n, err := dst.ReadFrom(src)
	if err != nil {
		dst.Close()
		return s.copyError(ctx, "write", remotePath, err)
	}
	if err := dst.Close(); err != nil {
		return s.copyError(ctx, "close", remotePath, err)
	}

	s.log.Debug("Uploaded %d bytes %s -> %s:%s", n, localPath, s.address, remotePath)
	return nil
}

// Get downloads remotePath to localPath. The local parent directory must
// already exist.
func (s *SFTPChannel) Get(ctx context.Context, remotePath, localPath string) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	src, err := s.client.Open(remotePath)
	if err != nil {
		return s.copyError(ctx, "open", remotePath, err)
	}
	defer src.Close()

	if info, err := src.Stat(); err != nil {
		return s.copyError(ctx, "stat", remotePath, err)
	} else if info.IsDir() {
		return transferError("open", remotePath, stderrors.New("is a directory"))
	}

	dst, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return transferError("open", localPath, err)
	}
	defer dst.Close()

	n, err := src.WriteTo(dst)
	if err != nil {
		return s.copyError(ctx, "read", remotePath, err)
	}
	if err := dst.Close(); err != nil {
		return transferError("close", localPath, err)
	}

	s.log.Debug("Downloaded %d bytes %s:%s -> %s", n, s.address, remotePath, localPath)
	return nil
}

// Close ends the sub-channel. Only the first call has any effect.
func (s *SFTPChannel) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}

// copyError reports a deadline as such rather than as the closed-channel
// error it surfaces as.
func (s *SFTPChannel) copyError(ctx context.Context, op, path string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if stderrors.Is(ctxErr, context.Canceled) {
			return errors.WrapWithCode(err, errors.ErrTransfer,
				fmt.Sprintf("transfer of %s cancelled", path), "")
		}
		return errors.WrapWithCode(err, errors.ErrTransfer,
			fmt.Sprintf("transfer of %s timed out", path),
			"Raise transfer_timeout for large files.")
	}
	return transferError(op, path, err)
}

func openDeadlineError(ctx context.Context, cause error) *errors.Error {
	if stderrors.Is(ctx.Err(), context.Canceled) {
		return errors.WrapWithCode(cause, errors.ErrTransfer, "opening sftp channel cancelled", "")
	}
	return errors.WrapWithCode(cause, errors.ErrTransfer,
		"opening sftp channel timed out",
		"The server accepted the login but did not start the sftp subsystem.")
}

// transferError names the failing path. Errors from the os package already
// carry it; sftp status errors do not.
func transferError(op, path string, err error) *errors.Error {
	var pathErr *fs.PathError
	if !stderrors.As(err, &pathErr) {
		err = &fs.PathError{Op: op, Path: path, Err: err}
	}
	return errors.WrapWithCode(err, errors.ErrTransfer, err.Error(), transferSuggestion(err))
}

func transferSuggestion(err error) string {
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		return "Check the path exists; parent directories are not created."
	case stderrors.Is(err, fs.ErrPermission):
		return "Check file permissions for the connecting user."
	}
	var status *sftp.StatusError
	if stderrors.As(err, &status) && status.Code == uint32(sftp.ErrSSHFxPermissionDenied) {
		return "Check file permissions for the connecting user."
	}
	return ""
}
