package cli

import (
	"fmt"
	"io"

	"github.com/rileyhilliard/remoteops/internal/tools"
	"github.com/rileyhilliard/remoteops/internal/ui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newToolsCmd(app *App) *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the available tools and their arguments",
		Long: `List the operations remoteops can run, with their arguments and defaults.
Defaults reflect the loaded config. Use --json or --yaml for a
machine-readable catalogue.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig()
			if err != nil {
				return err
			}
			catalogue := tools.Tools(cfg.Defaults())

			switch {
			case app.opts.json:
				return writeJSON(app.Out, catalogue)
			case asYAML:
				enc := yaml.NewEncoder(app.Out)
				enc.SetIndent(2)
				if err := enc.Encode(catalogue); err != nil {
					return err
				}
				return enc.Close()
			default:
				return printTools(app.Out, catalogue)
			}
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "YAML output")
	return cmd
}

func printTools(w io.Writer, catalogue []tools.Tool) error {
	for i, t := range catalogue {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s\n", ui.HeaderStyle().Render(string(t.Name)))
		fmt.Fprintf(w, "  %s\n", t.Description)
		for _, a := range t.Args {
			line := fmt.Sprintf("    %-12s %-8s %s", a.Name, a.Type, a.Description)
			switch {
			case a.Required:
				line += " " + ui.MutedStyle().Render("(required)")
			case a.Default != nil:
				line += " " + ui.MutedStyle().Render(fmt.Sprintf("(default %v)", a.Default))
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}
