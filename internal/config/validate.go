package config

import (
	"fmt"

	"github.com/rileyhilliard/remoteops/internal/errors"
	"github.com/rileyhilliard/remoteops/pkg/sshutil"
)

// Validate checks the config and returns the first problem as a CONFIG error.
func Validate(cfg *Config) error {
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but remoteops only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade remoteops, or set version: 1")
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("port %d is out of range", cfg.Port),
			"Use a port between 1 and 65535.")
	}

	if cfg.Timeout <= 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("timeout must be positive, got %s", cfg.Timeout),
			"Use a duration like '20s' or a number of seconds.")
	}

	if cfg.TransferTimeout <= 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("transfer_timeout must be positive, got %s", cfg.TransferTimeout),
			"Use a duration like '10m'.")
	}

	if _, err := sshutil.ParseHostKeyPolicy(cfg.HostKeyPolicy); err != nil {
		return err
	}

	if cfg.Serve.MaxConcurrent < 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("serve.max_concurrent can't be negative, got %d", cfg.Serve.MaxConcurrent),
			"Use 0 for no limit.")
	}

	return nil
}
