package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rileyhilliard/remoteops/internal/errors"
	"github.com/rileyhilliard/remoteops/internal/keys"
	"github.com/rileyhilliard/remoteops/internal/tools"
	"github.com/rileyhilliard/remoteops/internal/ui"
	"github.com/rileyhilliard/remoteops/pkg/sshutil"
	"github.com/spf13/cobra"
)

// PasswordEnv supplies a password without putting it on the command line.
const PasswordEnv = "REMOTEOPS_PASSWORD"

// connFlags are the connection flags shared by exec, upload and download.
type connFlags struct {
	host        string
	user        string
	port        int
	identity    string
	password    string
	askPassword bool
	timeout     int
}

func (f *connFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.host, "host", "", "remote host, optionally user@host")
	fl.StringVarP(&f.user, "user", "u", "", "login user (default from ssh config or $USER)")
	fl.IntVarP(&f.port, "port", "p", 0, "SSH port (default from config)")
	fl.StringVarP(&f.identity, "identity", "i", "", "private key file (default ~/.ssh/id_ed25519, id_ecdsa or id_rsa when no password is set)")
	fl.StringVar(&f.password, "password", "", "password or key passphrase (prefer $"+PasswordEnv+")")
	fl.BoolVar(&f.askPassword, "ask-password", false, "prompt for the password")
	fl.IntVar(&f.timeout, "timeout", 0, "connect and command timeout in seconds (default from config)")
}

func newExecCmd(app *App) *cobra.Command {
	var flags connFlags
	cmd := &cobra.Command{
		Use:   "exec [flags] -- <command>",
		Short: "Run a shell command on a remote host",
		Long: `Run a shell command on a remote host and print its stdout, stderr and
exit code. The remote exit code becomes remoteops's exit code.

Examples:
  remoteops exec --host deploy@web1 -- uptime
  remoteops exec --host web1 -i ~/.ssh/id_ed25519 -- 'ls -la /var/log'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := app.connectionArgs(&flags)
			if err != nil {
				return err
			}
			m["command"] = strings.Join(args, " ")
			return app.runOperation(cmd, tools.OpExecute, m)
		},
	}
	flags.register(cmd)
	return cmd
}

func newUploadCmd(app *App) *cobra.Command {
	var flags connFlags
	cmd := &cobra.Command{
		Use:   "upload <local-path> <remote-path>",
		Short: "Upload one file over SFTP",
		Long: `Upload one local file to a remote path over SFTP. An existing remote
file is replaced. The remote parent directory must already exist.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := app.connectionArgs(&flags)
			if err != nil {
				return err
			}
			m["local_path"] = args[0]
			m["remote_path"] = args[1]
			return app.runOperation(cmd, tools.OpUpload, m)
		},
	}
	flags.register(cmd)
	return cmd
}

func newDownloadCmd(app *App) *cobra.Command {
	var flags connFlags
	cmd := &cobra.Command{
		Use:   "download <remote-path> <local-path>",
		Short: "Download one file over SFTP",
		Long: `Download one remote file to a local path over SFTP. An existing local
file is replaced. The local parent directory must already exist.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := app.connectionArgs(&flags)
			if err != nil {
				return err
			}
			m["remote_path"] = args[0]
			m["local_path"] = args[1]
			return app.runOperation(cmd, tools.OpDownload, m)
		},
	}
	flags.register(cmd)
	return cmd
}

// connectionArgs turns flags into the argument map the toolkit expects.
// Missing host and user are left out so the toolkit reports them.
func (a *App) connectionArgs(f *connFlags) (map[string]any, error) {
	host, user, port := f.host, f.user, f.port

	if at := strings.LastIndex(host, "@"); at >= 0 {
		if user == "" {
			user = host[:at]
		}
		host = host[at+1:]
	}

	if host == "" && a.interactive() && !a.opts.json {
		entry, err := a.pickHost()
		if err != nil {
			return nil, err
		}
		if entry != nil {
			host = entry.Alias
			if entry.Hostname != "" {
				host = entry.Hostname
			}
			if user == "" {
				user = entry.User
			}
			if port == 0 && entry.Port != "" {
				port, _ = strconv.Atoi(entry.Port)
			}
		}
	}

	if user == "" {
		user = os.Getenv("USER")
	}

	password := f.password
	if password == "" {
		password = os.Getenv(PasswordEnv)
	}
	if password == "" && f.askPassword {
		if !a.interactive() {
			return nil, errors.New(errors.ErrArgs,
				"--ask-password needs an interactive terminal",
				"Set $"+PasswordEnv+" instead")
		}
		p, err := ui.PromptPassword(fmt.Sprintf("Password for %s@%s", user, host))
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrArgs, "Password prompt cancelled", "")
		}
		password = p
	}

	home, _ := os.UserHomeDir()
	identity := keys.ExpandHome(f.identity, home)
	if identity == "" && password == "" {
		if k := keys.Preferred(home); k != nil {
			a.logger().Debug("No credential given, using %s", k.Path)
			identity = k.Path
		}
	}

	m := map[string]any{}
	if host != "" {
		m["host"] = host
	}
	if user != "" {
		m["username"] = user
	}
	if password != "" {
		m["password"] = password
	}
	if identity != "" {
		m["privateKey"] = identity
	}
	if port > 0 {
		m["port"] = port
	}
	if f.timeout > 0 {
		m["timeout"] = f.timeout
	}
	return m, nil
}

// pickHost offers the ssh config aliases when no --host was given.
func (a *App) pickHost() (*sshutil.SSHHostEntry, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	hosts, err := sshutil.ParseSSHConfigFile(cfg.SSHConfigPath)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read SSH config", "Pass --host explicitly")
	}
	return ui.PickHost(hosts, a.Err, a.In)
}

// runOperation performs one call and prints its envelope. A failed call
// exits 255; a command's non-zero exit code becomes the process exit code.
func (a *App) runOperation(cmd *cobra.Command, op tools.Operation, args map[string]any) error {
	kit, _, err := a.toolkit()
	if err != nil {
		return err
	}

	var spinner *ui.Spinner
	if a.interactive() && !a.opts.json {
		spinner = ui.NewSpinner(a.Err, spinnerLabel(op, args))
		spinner.Start()
	}

	env := kit.Call(cmd.Context(), string(op), args)

	if spinner != nil {
		if env.IsError {
			spinner.Fail()
		} else {
			spinner.Success()
		}
	}

	if err := a.printEnvelope(op, env); err != nil {
		return err
	}
	return envelopeExit(op, env)
}

func (a *App) printEnvelope(op tools.Operation, env tools.Envelope) error {
	if a.opts.json {
		return writeJSON(a.Out, env)
	}
	width := 0
	if f, ok := a.Out.(*os.File); ok {
		width = ui.TerminalWidth(f, 0)
	}
	_, err := fmt.Fprint(a.Out, ui.RenderEnvelope(op, env, width))
	return err
}

func spinnerLabel(op tools.Operation, args map[string]any) string {
	host, _ := args["host"].(string)
	switch op {
	case tools.OpUpload:
		return fmt.Sprintf("Uploading %v %s %s:%v", args["local_path"], ui.SymbolArrow, host, args["remote_path"])
	case tools.OpDownload:
		return fmt.Sprintf("Downloading %s:%v %s %v", host, args["remote_path"], ui.SymbolArrow, args["local_path"])
	default:
		return fmt.Sprintf("Running on %s", host)
	}
}

// envelopeExit maps an envelope to the process exit status.
func envelopeExit(op tools.Operation, env tools.Envelope) error {
	if env.IsError {
		return &ExitError{Code: 255}
	}
	if op != tools.OpExecute {
		return nil
	}
	code, ok := ui.ExitCode(env.Text())
	if !ok || code == 0 {
		return nil
	}
	if code < 0 || code > 255 {
		code = 255
	}
	return &ExitError{Code: code}
}

