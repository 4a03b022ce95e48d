package tools

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rileyhilliard/remoteops/internal/errors"
	"github.com/rileyhilliard/remoteops/pkg/sshutil"
)

// DefaultTransferTimeout bounds a single upload or download.
const DefaultTransferTimeout = 10 * time.Minute

// Defaults fill arguments the caller left out.
type Defaults struct {
	Port            int
	Timeout         time.Duration
	TransferTimeout time.Duration
}

// DefaultDefaults returns the built-in values: port 22, 20s timeout.
func DefaultDefaults() Defaults {
	return Defaults{
		Port:            sshutil.DefaultPort,
		Timeout:         sshutil.DefaultTimeout,
		TransferTimeout: DefaultTransferTimeout,
	}
}

// ConnectionArgs are the arguments shared by every operation.
type ConnectionArgs struct {
	Host       string `mapstructure:"host"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	PrivateKey string `mapstructure:"privateKey"`
	Port       int    `mapstructure:"port"`
	Timeout    int    `mapstructure:"timeout"` // seconds
}

// CommandArgs are the arguments of ssh_execute_command.
type CommandArgs struct {
	ConnectionArgs `mapstructure:",squash"`
	Command        string `mapstructure:"command"`
}

// TransferArgs are the arguments of sftp_upload and sftp_download.
type TransferArgs struct {
	ConnectionArgs `mapstructure:",squash"`
	LocalPath      string `mapstructure:"local_path"`
	RemotePath     string `mapstructure:"remote_path"`
}

// ParseCommandArgs decodes and validates ssh_execute_command arguments.
func ParseCommandArgs(raw map[string]any) (CommandArgs, error) {
	var args CommandArgs
	if err := decodeArgs(raw, &args); err != nil {
		return args, err
	}
	if err := requireArgs(
		"host", args.Host,
		"username", args.Username,
		"command", args.Command,
	); err != nil {
		return args, err
	}
	return args, args.ConnectionArgs.validate()
}

// ParseTransferArgs decodes and validates sftp_upload/sftp_download arguments.
func ParseTransferArgs(raw map[string]any) (TransferArgs, error) {
	var args TransferArgs
	if err := decodeArgs(raw, &args); err != nil {
		return args, err
	}
	if err := requireArgs(
		"host", args.Host,
		"username", args.Username,
		"local_path", args.LocalPath,
		"remote_path", args.RemotePath,
	); err != nil {
		return args, err
	}
	return args, args.ConnectionArgs.validate()
}

// Spec builds the connection spec, filling gaps from d.
func (a ConnectionArgs) Spec(d Defaults) sshutil.ConnectionSpec {
	spec := sshutil.ConnectionSpec{
		Host:     a.Host,
		Port:     a.Port,
		Username: a.Username,
		Credential: sshutil.Credential{
			Password: a.Password,
			KeyPath:  a.PrivateKey,
		},
		ConnectTimeout: d.Timeout,
	}
	if spec.Port == 0 {
		spec.Port = d.Port
	}
	if a.Timeout > 0 {
		spec.ConnectTimeout = time.Duration(a.Timeout) * time.Second
	}
	return spec
}

func (a ConnectionArgs) validate() error {
	if a.Port < 0 || a.Port > 65535 {
		return errors.New(errors.ErrArgs,
			fmt.Sprintf("invalid port: %d", a.Port),
			"Use a port between 1 and 65535")
	}
	if a.Timeout < 0 {
		return errors.New(errors.ErrArgs,
			fmt.Sprintf("invalid timeout: %d", a.Timeout),
			"Timeout is a positive number of seconds")
	}
	return nil
}

// decodeArgs unwraps an {"arguments": {...}} envelope if present, then
// decodes with weak typing so "22" and 22.0 both become 22.
func decodeArgs(raw map[string]any, out any) error {
	raw = unwrapArguments(raw)

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrArgs, err.Error(), "")
	}
	if err := decoder.Decode(raw); err != nil {
		return errors.WrapWithCode(err, errors.ErrArgs,
			fmt.Sprintf("invalid arguments: %v", err),
			"Check argument types: port and timeout are numbers")
	}
	return nil
}

func unwrapArguments(raw map[string]any) map[string]any {
	if inner, ok := raw["arguments"].(map[string]any); ok {
		raw = inner
	}
	// private_key is accepted as a spelling of privateKey
	if v, ok := raw["private_key"]; ok {
		if _, set := raw["privateKey"]; !set {
			merged := make(map[string]any, len(raw))
			for k, val := range raw {
				merged[k] = val
			}
			merged["privateKey"] = v
			raw = merged
		}
	}
	return raw
}

// requireArgs takes name/value pairs and reports the first empty value.
func requireArgs(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return errors.New(errors.ErrArgs,
				"missing required argument: "+pairs[i],
				"")
		}
	}
	return nil
}
