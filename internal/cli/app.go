package cli

import (
	"io"
	"os"

	"github.com/rileyhilliard/remoteops/internal/config"
	"github.com/rileyhilliard/remoteops/internal/logger"
	"github.com/rileyhilliard/remoteops/internal/tools"
	"github.com/rileyhilliard/remoteops/internal/ui"
	"github.com/rileyhilliard/remoteops/pkg/sshutil"
)

// DialerFactory builds the session establisher for a loaded config.
type DialerFactory func(cfg *config.Config, log logger.Logger) sshutil.Dialer

// App carries the streams and collaborators shared by every command.
type App struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	NewDialer DialerFactory

	// Interactive reports whether prompts, pickers and spinners may be shown.
	Interactive func() bool

	opts globalOptions
}

type globalOptions struct {
	configPath string
	verbose    bool
	noColor    bool
	json       bool
}

// NewApp wires the real terminal and SSH dialer.
func NewApp() *App {
	return &App{
		In:  os.Stdin,
		Out: os.Stdout,
		Err: os.Stderr,
		NewDialer: func(cfg *config.Config, log logger.Logger) sshutil.Dialer {
			return sshutil.NewDialer(cfg.DialOptions(log))
		},
		Interactive: func() bool {
			return ui.IsTerminal(os.Stdin) && ui.IsTerminal(os.Stderr)
		},
	}
}

func (a *App) logger() logger.Logger {
	return logger.NewEnvLogger("[remoteops]")
}

func (a *App) interactive() bool {
	return a.Interactive != nil && a.Interactive()
}

// loadConfig finds, loads and validates the config.
func (a *App) loadConfig() (*config.Config, error) {
	cfg, path, err := config.LoadOrDefault(a.opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if path != "" {
		a.logger().Debug("Loaded config from %s", path)
	}
	return cfg, nil
}

// toolkit builds a Toolkit from the loaded config.
func (a *App) toolkit() (*tools.Toolkit, *config.Config, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := a.logger()
	kit := tools.New(a.NewDialer(cfg, log),
		tools.WithDefaults(cfg.Defaults()),
		tools.WithLogger(log),
	)
	return kit, cfg, nil
}
