package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rileyhilliard/remoteops/internal/errors"
	"golang.org/x/crypto/ssh"
)

// Exec runs cmd verbatim on the remote host and returns its output.
//
// stdout and stderr are drained concurrently so a command that fills one
// stream's window while the other is unread cannot stall; the exit status is
// read only after both streams hit EOF. The call is bounded by the session
// timeout and by ctx; on expiry the connection is closed and an EXECUTION
// error returned.
func (c *Client) Exec(ctx context.Context, cmd string) (*CommandResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// Past the deadline the whole connection goes; nothing else can use it.
	// Registered before the channel opens so a server that never answers
	// the open or the exec request cannot hold the call.
	stop := context.AfterFunc(ctx, func() {
		c.log.Debug("Deadline reached on %s, closing connection", c.Address)
		c.Close()
	})

	session, err := c.Client.NewSession()
	if err != nil {
		if !stop() {
			return nil, execDeadlineError(ctx, c.timeout)
		}
		return nil, errors.WrapWithCode(err, errors.ErrExecution,
			fmt.Sprintf("failed to open session channel: %v", err),
			"Connection may have been closed. Try again.")
	}
	defer session.Close()

	stdoutPipe, err := session.StdoutPipe()
	if err != nil {
		stop()
		return nil, errors.Wrap(err, errors.ErrExecution)
	}
	stderrPipe, err := session.StderrPipe()
	if err != nil {
		stop()
		return nil, errors.Wrap(err, errors.ErrExecution)
	}

	if err := session.Start(cmd); err != nil {
		if !stop() {
			return nil, execDeadlineError(ctx, c.timeout)
		}
		return nil, errors.WrapWithCode(err, errors.ErrExecution,
			fmt.Sprintf("failed to start command: %v", err),
			"Check the remote account is allowed to run commands.")
	}

	var stdout, stderr bytes.Buffer
	var stdoutErr, stderrErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, stdoutErr = io.Copy(&stdout, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		_, stderrErr = io.Copy(&stderr, stderrPipe)
	}()
	wg.Wait()

	waitErr := session.Wait()

	if !stop() {
		return nil, execDeadlineError(ctx, c.timeout)
	}

	if stdoutErr != nil {
		return nil, errors.WrapWithCode(stdoutErr, errors.ErrExecution,
			fmt.Sprintf("reading stdout: %v", stdoutErr), "")
	}
	if stderrErr != nil {
		return nil, errors.WrapWithCode(stderrErr, errors.ErrExecution,
			fmt.Sprintf("reading stderr: %v", stderrErr), "")
	}

	exitCode, err := exitStatus(waitErr)
	if err != nil {
		return nil, err
	}

	return &CommandResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
	}, nil
}

// exitStatus maps the result of session.Wait to an exit code.
// A command killed by a signal reports -1.
func exitStatus(waitErr error) (int, error) {
	if waitErr == nil {
		return 0, nil
	}

	var exitErr *ssh.ExitError
	if stderrors.As(waitErr, &exitErr) {
		if exitErr.Signal() != "" && exitErr.ExitStatus() == 0 {
			return -1, nil
		}
		return exitErr.ExitStatus(), nil
	}

	var missing *ssh.ExitMissingError
	if stderrors.As(waitErr, &missing) {
		return -1, errors.WrapWithCode(waitErr, errors.ErrExecution,
			"remote command exited without reporting an exit status",
			"The connection may have dropped mid-command.")
	}

	return -1, errors.WrapWithCode(waitErr, errors.ErrExecution,
		fmt.Sprintf("command failed: %v", waitErr), "")
}

func execDeadlineError(ctx context.Context, timeout time.Duration) *errors.Error {
	if stderrors.Is(ctx.Err(), context.Canceled) {
		return errors.New(errors.ErrExecution, "command cancelled", "")
	}
	msg := "command timed out"
	if timeout > 0 {
		msg = fmt.Sprintf("command timed out after %s", timeout)
	}
	return errors.New(errors.ErrExecution, msg,
		"Raise the timeout argument for long-running commands.")
}
