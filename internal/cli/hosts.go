package cli

import (
	"fmt"

	"github.com/rileyhilliard/remoteops/internal/errors"
	"github.com/rileyhilliard/remoteops/internal/ui"
	"github.com/rileyhilliard/remoteops/pkg/sshutil"
	"github.com/spf13/cobra"
)

func newHostsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "hosts",
		Short: "List host aliases from your SSH config",
		Long: `List the concrete Host aliases in ~/.ssh/config (or ssh_config_path from
the remoteops config). Any alias can be passed to --host.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig()
			if err != nil {
				return err
			}
			hosts, err := sshutil.ParseSSHConfigFile(cfg.SSHConfigPath)
			if err != nil {
				return errors.WrapWithCode(err, errors.ErrConfig,
					"Failed to read SSH config",
					"Check the syntax of your SSH config file")
			}

			if app.opts.json {
				if hosts == nil {
					hosts = []sshutil.SSHHostEntry{}
				}
				return writeJSON(app.Out, hosts)
			}

			if len(hosts) == 0 {
				fmt.Fprintln(app.Out, ui.MutedStyle().Render("No hosts found in SSH config"))
				return nil
			}
			for _, h := range hosts {
				fmt.Fprintf(app.Out, "%s  %s\n", ui.HeaderStyle().Render(h.Alias), ui.MutedStyle().Render(h.Description()))
			}
			return nil
		},
	}
}
