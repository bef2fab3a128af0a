package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/srg/polarhr/internal/health"
)

func newAnalyzeLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze-log <file>",
		Short: "Replay a recorded CSV log through the health screening",
		Long: `Reads a CSV sample log (ts,bpm[,rr...] per line) and runs the rate and
rhythm screening over it as if the samples were arriving live. Warnings
are prefixed with ts=<ms> of the line that triggered them. Lines that do
not parse are skipped.

Examples:
  polarhr analyze-log ~/.cache/polarh10`,
		Args: cobra.ExactArgs(1),
		RunE: runAnalyzeLog,
	}
}

func runAnalyzeLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("unable to open log file: %w", err)
	}
	defer f.Close()

	stats, err := health.NewScreener(health.NewWarner(cmd.OutOrStdout())).Replay(f)
	if err != nil {
		return err
	}
	logger.WithField("file", args[0]).Debug("Replay finished")
	fmt.Fprintf(cmd.ErrOrStderr(), "%d samples, %d lines skipped, %d warnings\n", stats.Samples, stats.Skipped, stats.Warnings)
	return nil
}
