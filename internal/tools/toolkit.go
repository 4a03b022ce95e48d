package tools

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rileyhilliard/remoteops/internal/errors"
	"github.com/rileyhilliard/remoteops/internal/logger"
	"github.com/rileyhilliard/remoteops/pkg/sshutil"
)

// Toolkit runs operations. It holds no per-call state, so one Toolkit
// serves any number of concurrent calls.
type Toolkit struct {
	dialer   sshutil.Dialer
	defaults Defaults
	log      logger.Logger
}

// Option configures a Toolkit.
type Option func(*Toolkit)

// WithDefaults overrides the built-in port and timeouts.
func WithDefaults(d Defaults) Option {
	return func(t *Toolkit) {
		if d.Port > 0 {
			t.defaults.Port = d.Port
		}
		if d.Timeout > 0 {
			t.defaults.Timeout = d.Timeout
		}
		if d.TransferTimeout > 0 {
			t.defaults.TransferTimeout = d.TransferTimeout
		}
	}
}

// WithLogger sets the logger. Defaults to logger.Default().
func WithLogger(l logger.Logger) Option {
	return func(t *Toolkit) {
		t.log = l
	}
}

// New returns a Toolkit that opens sessions through dialer.
func New(dialer sshutil.Dialer, opts ...Option) *Toolkit {
	t := &Toolkit{
		dialer:   dialer,
		defaults: DefaultDefaults(),
		log:      logger.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Defaults returns the values used for omitted arguments.
func (t *Toolkit) Defaults() Defaults {
	return t.defaults
}

// Call dispatches by tool name. Unknown names produce an error envelope.
func (t *Toolkit) Call(ctx context.Context, tool string, args map[string]any) Envelope {
	op, ok := ParseOperation(tool)
	if !ok {
		return Failure(Operation(tool), errors.New(errors.ErrArgs,
			fmt.Sprintf("unknown tool %q", tool), "Run 'remoteops tools' to list tools"))
	}
	switch op {
	case OpUpload:
		return t.Upload(ctx, args)
	case OpDownload:
		return t.Download(ctx, args)
	default:
		return t.ExecuteCommand(ctx, args)
	}
}

// ExecuteCommand runs args["command"] on the remote host. A non-zero exit
// status is reported in a successful envelope.
func (t *Toolkit) ExecuteCommand(ctx context.Context, args map[string]any) Envelope {
	return t.run(OpExecute, func() Outcome {
		a, err := ParseCommandArgs(args)
		if err != nil {
			return Outcome{Err: err}
		}
		spec := a.Spec(t.defaults)
		t.log.Debug("%s: %s@%s: %s", OpExecute, spec.Username, spec.Address(), a.Command)

		var text string
		err = t.withSession(ctx, spec, func(session sshutil.Session) error {
			execCtx, cancel := context.WithTimeout(ctx, spec.Timeout())
			defer cancel()

			res, err := session.Exec(execCtx, a.Command)
			if err != nil {
				return execError(err, spec.Timeout())
			}
			t.log.Debug("%s: %s exited %d", OpExecute, spec.Address(), res.ExitCode)
			text = FormatCommandResult(res)
			return nil
		})
		return Outcome{Text: text, Err: err}
	})
}

// Upload copies args["local_path"] to args["remote_path"].
func (t *Toolkit) Upload(ctx context.Context, args map[string]any) Envelope {
	return t.transfer(ctx, OpUpload, args)
}

// Download copies args["remote_path"] to args["local_path"].
func (t *Toolkit) Download(ctx context.Context, args map[string]any) Envelope {
	return t.transfer(ctx, OpDownload, args)
}

func (t *Toolkit) transfer(ctx context.Context, op Operation, args map[string]any) Envelope {
	return t.run(op, func() Outcome {
		a, err := ParseTransferArgs(args)
		if err != nil {
			return Outcome{Err: err}
		}
		spec := a.Spec(t.defaults)
		t.log.Debug("%s: %s@%s: local=%s remote=%s", op, spec.Username, spec.Address(), a.LocalPath, a.RemotePath)

		err = t.withSession(ctx, spec, func(session sshutil.Session) error {
			// Covers opening the sub-channel as well as the copy
			xferCtx, cancel := context.WithTimeout(ctx, t.defaults.TransferTimeout)
			defer cancel()

			ft, err := session.OpenSFTP(xferCtx)
			if err != nil {
				return errors.Wrap(err, errors.ErrTransfer)
			}
			// Closed before the session, whose deferred Close runs after this returns
			defer ft.Close()

			if op == OpUpload {
				err = ft.Put(xferCtx, a.LocalPath, a.RemotePath)
			} else {
				err = ft.Get(xferCtx, a.RemotePath, a.LocalPath)
			}
			if err != nil {
				return errors.Wrap(err, errors.ErrTransfer)
			}
			return nil
		})
		if err != nil {
			return Outcome{Err: err}
		}

		if op == OpUpload {
			return Outcome{Text: FormatUpload(a.LocalPath, a.RemotePath)}
		}
		return Outcome{Text: FormatDownload(a.RemotePath, a.LocalPath)}
	})
}

// withSession dials spec, hands the session to fn, and closes it exactly
// once on every path out.
func (t *Toolkit) withSession(ctx context.Context, spec sshutil.ConnectionSpec, fn func(sshutil.Session) error) error {
	session, err := t.dialer.Dial(ctx, spec)
	if err != nil {
		return errors.Wrap(err, errors.ErrConnection)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			t.log.Debug("closing session to %s: %v", session.GetAddress(), cerr)
		}
	}()
	return fn(session)
}

// run is the single boundary where outcomes, and panics, become envelopes.
func (t *Toolkit) run(op Operation, fn func() Outcome) (env Envelope) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("%s: panic: %v\n%s", op, r, debug.Stack())
			env = Failure(op, errors.Errorf(codeFor(op), "internal error: %v", r))
		}
	}()

	outcome := fn()
	if outcome.Err != nil {
		t.log.Debug("%s failed after %s: [%s] %v", op, time.Since(start).Round(time.Millisecond),
			errors.CodeOf(outcome.Err), outcome.Err)
	} else {
		t.log.Debug("%s succeeded in %s", op, time.Since(start).Round(time.Millisecond))
	}
	return outcome.Envelope(op)
}

// execError reports a deadline surfaced as a bare context error the same
// way the SSH client does.
func execError(err error, timeout time.Duration) error {
	if errors.CodeOf(err) != "" {
		return err
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.WrapWithCode(err, errors.ErrExecution,
			fmt.Sprintf("command timed out after %s", timeout), "")
	case stderrors.Is(err, context.Canceled):
		return errors.WrapWithCode(err, errors.ErrExecution, "command cancelled", "")
	}
	return errors.Wrap(err, errors.ErrExecution)
}

func codeFor(op Operation) string {
	if op == OpExecute {
		return errors.ErrExecution
	}
	return errors.ErrTransfer
}
