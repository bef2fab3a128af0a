package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree. The root command runs the monitor.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "polarhr",
		Short: "Polar heart rate strap client for BlueZ",
		Long: `Connects to a Polar H9/H10 chest strap through BlueZ and streams
heart rate samples, one line per notification:

- Finds the strap by its advertised name and connects
- Subscribes to the Heart Rate Measurement characteristic
- Keeps the connection and subscription alive without restarting
- Writes CSV or JSON lines to stdout, a file, or ~/.cache/<model>
- Optionally screens the stream for rate and rhythm anomalies

The strap only advertises while it is worn.`,
		Version:       formatVersion(version),
		Args:          cobra.NoArgs,
		RunE:          runMonitor,
		SilenceErrors: true, // main() prints clean errors
	}
	rootCmd.SetVersionTemplate(fmt.Sprintf("polarhr {{.Version}} (commit %s, built %s)\n", commit, date))

	rootCmd.AddCommand(newAnalyzeLogCmd())

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("config", "", "YAML configuration file")

	rootCmd.Flags().BoolP("debug", "d", false, "Enable debug logging")
	rootCmd.Flags().Bool("health-warnings", false, "Screen the stream for rate and rhythm anomalies")
	rootCmd.Flags().StringP("output", "o", "", `Sample output: "-" for stdout, "auto" for ~/.cache/<model>, or a file path`)
	rootCmd.Flags().String("format", "", "Sample format: csv or jsonl")
	rootCmd.Flags().StringArray("device", nil, "Advertised device name, in preference order (repeatable)")
	rootCmd.Flags().String("adapter", "", "Adapter object path")
	rootCmd.Flags().String("osc", "", "Relay heart rate over OSC to host:port")
	rootCmd.Flags().String("listen", "", "Serve /health, /status and /sample on this address")
	rootCmd.Flags().Bool("no-extras", false, "Skip the H10 device info, battery and vendor side channels")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
