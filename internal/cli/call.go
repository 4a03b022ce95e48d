package cli

import (
	"encoding/json"
	stderrors "errors"
	"io"

	"github.com/rileyhilliard/remoteops/internal/errors"
	"github.com/rileyhilliard/remoteops/internal/tools"
	"github.com/spf13/cobra"
)

func newCallCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool>",
		Short: "Run one tool with JSON arguments read from stdin",
		Long: `Read a JSON object of arguments from stdin, run the named tool once and
write the result envelope to stdout as JSON. Exits 1 when the envelope
reports an error.

Example:
  echo '{"host":"web1","username":"deploy","command":"uptime"}' | remoteops call ssh_execute_command`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: toolNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			kit, _, err := app.toolkit()
			if err != nil {
				return err
			}

			tool := args[0]
			var env tools.Envelope
			raw, err := decodeArguments(app.In)
			if err != nil {
				op, _ := tools.ParseOperation(tool)
				if op == "" {
					op = tools.Operation(tool)
				}
				env = tools.Failure(op, err)
			} else {
				env = kit.Call(cmd.Context(), tool, raw)
			}

			if err := writeJSON(app.Out, env); err != nil {
				return err
			}
			if env.IsError {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}
}

// decodeArguments reads one JSON object. Empty input is an empty object.
func decodeArguments(r io.Reader) (map[string]any, error) {
	raw := map[string]any{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		if stderrors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, errors.WrapWithCode(err, errors.ErrArgs,
			"invalid JSON arguments: "+err.Error(), "")
	}
	return raw, nil
}

func toolNames() []string {
	names := make([]string, 0, len(tools.Operations))
	for _, op := range tools.Operations {
		names = append(names, string(op))
	}
	return names
}
