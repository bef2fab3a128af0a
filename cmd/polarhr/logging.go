package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/polarhr/pkg/config"
)

// configureLogger creates the stderr logger. --log-level takes precedence
// over --debug, which takes precedence over the configured level. The flag
// accepts the four documented names; the config file any logrus level.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	if s, _ := cmd.Flags().GetString("log-level"); s != "" {
		level, err := parseFlagLevel(s)
		if err != nil {
			return nil, err
		}
		return cfg.NewLogger(level, cmd.ErrOrStderr()), nil
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		return cfg.NewLogger(logrus.DebugLevel, cmd.ErrOrStderr()), nil
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level in config: %w", err)
	}
	return cfg.NewLogger(level, cmd.ErrOrStderr()), nil
}

func parseFlagLevel(s string) (logrus.Level, error) {
	switch s {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s)
	}
}
