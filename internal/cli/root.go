package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rileyhilliard/remoteops/internal/errors"
	"github.com/rileyhilliard/remoteops/internal/logger"
	"github.com/rileyhilliard/remoteops/internal/ui"
	"github.com/spf13/cobra"
)

// ExitError ends the process with Code without printing anything further.
// Commands return it after they have already written their own output.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewRootCmd builds the full command tree bound to app.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "remoteops",
		Short: "Run commands and move files on remote hosts over SSH",
		Long: `remoteops runs shell commands and transfers files on remote machines over SSH.

Every call opens its own SSH session and closes it afterwards. Results come
back as a small envelope: a text block plus an error flag. Use the exec,
upload and download commands from a shell, or drive the same operations
as JSON with 'call' and 'serve'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ui.ConfigureColor(app.opts.noColor)
			logger.SetDebug(app.opts.verbose)
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(app.In)
	root.SetOut(app.Out)
	root.SetErr(app.Err)

	pf := root.PersistentFlags()
	pf.StringVar(&app.opts.configPath, "config", "", "config file (default ~/.config/remoteops/config.yaml)")
	pf.BoolVarP(&app.opts.verbose, "verbose", "v", false, "debug logging to stderr")
	pf.BoolVar(&app.opts.noColor, "no-color", false, "disable colored output")
	pf.BoolVar(&app.opts.json, "json", false, "machine-readable JSON output")

	root.AddCommand(
		newExecCmd(app),
		newUploadCmd(app),
		newDownloadCmd(app),
		newCallCmd(app),
		newServeCmd(app),
		newToolsCmd(app),
		newHostsCmd(app),
		newConfigCmd(app),
		newVersionCmd(app),
		newCompletionCmd(),
	)
	return root
}

// Execute runs the CLI against the real terminal and exits on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, NewApp(), os.Args[1:])
	stop()
	os.Exit(code)
}

// run executes args and returns the process exit code.
func run(ctx context.Context, app *App, args []string) int {
	root := NewRootCmd(app)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.Code
	}

	if app.opts.json {
		_ = writeJSON(app.Out, jsonErrorEnvelope{Error: ErrorToJSON(err)})
		return 1
	}

	var structured *errors.Error
	if stderrors.As(err, &structured) {
		fmt.Fprint(app.Err, structured.Pretty())
	} else {
		fmt.Fprintf(app.Err, "%s %v\n", ui.SymbolFail, err)
	}
	return 1
}
