package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sensingclues/harmonie-grib/internal/config"
	"github.com/sensingclues/harmonie-grib/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "harmonie",
	Short: "Post-process Harmonie forecast runs",
	Long: `Merges a complete Harmonie forecast run into the published GRIB
products, crops them to the configured regions and publishes them compressed.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sliceCmd)
	rootCmd.AddCommand(regionsCmd)
	rootCmd.AddCommand(inspectCmd)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and installs the process logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return nil, nil, err
	}
	return cfg, observability.NewLogger(cfg), nil
}
