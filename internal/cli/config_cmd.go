package cli

import (
	"fmt"
	"os"

	"github.com/rileyhilliard/remoteops/internal/config"
	"github.com/rileyhilliard/remoteops/internal/errors"
	"github.com/rileyhilliard/remoteops/internal/ui"
	"github.com/spf13/cobra"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the remoteops config file",
		Long: `Manage ~/.config/remoteops/config.yaml. The file holds defaults only
(port, timeouts, host key policy); credentials are always supplied per call.

Every key can also be set through the environment, e.g.
REMOTEOPS_TIMEOUT=30 or REMOTEOPS_SERVE_MAX_CONCURRENT=4.`,
	}
	cmd.AddCommand(
		newConfigInitCmd(app),
		newConfigShowCmd(app),
		newConfigSetCmd(app),
		newConfigPathCmd(app),
	)
	return cmd
}

func newConfigInitCmd(app *App) *cobra.Command {
	var path string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented config file with the default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := path
			if target == "" {
				target = app.opts.configPath
			}
			if target == "" {
				target = config.DefaultPath()
			}
			if target == "" {
				return errors.New(errors.ErrConfig,
					"Cannot determine the home directory",
					"Pass --path explicitly")
			}

			if !force && fileExists(target) && app.interactive() {
				ok, err := ui.Confirm(fmt.Sprintf("%s already exists. Overwrite?", target))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(app.Err, ui.MutedStyle().Render("Left "+target+" unchanged"))
					return nil
				}
				force = true
			}

			if err := config.WriteDefault(target, force); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "%s Wrote %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), target)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "where to write (default ~/.config/remoteops/config.yaml)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective config, after environment overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig()
			if err != nil {
				return err
			}
			if app.opts.json {
				return writeJSON(app.Out, configJSON(cfg))
			}
			data, err := config.Render(cfg)
			if err != nil {
				return err
			}
			_, err = app.Out.Write(data)
			return err
		},
	}
}

func newConfigSetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one value in the config file",
		Long: `Change one value in the config file, keeping its comments. Nested keys
use dots. The edited file must still be valid or nothing is written.

Examples:
  remoteops config set timeout 30s
  remoteops config set host_key_policy strict
  remoteops config set serve.max_concurrent 4`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Find(app.opts.configPath)
			if err != nil {
				return err
			}
			if path == "" {
				return errors.New(errors.ErrConfig,
					"No config file found",
					"Run 'remoteops config init' first")
			}
			if err := config.SetValue(path, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "%s %s = %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), args[0], args[1])
			return nil
		},
	}
}

func newConfigPathCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Find(app.opts.configPath)
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Fprintln(app.Err, ui.MutedStyle().Render("No config file; using built-in defaults"))
				path = config.DefaultPath()
			}
			fmt.Fprintln(app.Out, path)
			return nil
		},
	}
}

// configJSON is the --json view of a Config, with durations as strings.
func configJSON(cfg *config.Config) map[string]any {
	return map[string]any{
		"version":          cfg.Version,
		"port":             cfg.Port,
		"timeout":          cfg.Timeout.String(),
		"transfer_timeout": cfg.TransferTimeout.String(),
		"host_key_policy":  cfg.HostKeyPolicy,
		"known_hosts":      cfg.KnownHosts,
		"ssh_config":       cfg.SSHConfig,
		"ssh_config_path":  cfg.SSHConfigPath,
		"serve": map[string]any{
			"max_concurrent": cfg.Serve.MaxConcurrent,
		},
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
