package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/intentsim/bloomcascade/internal/config"
	"github.com/intentsim/bloomcascade/internal/logging"
	"github.com/intentsim/bloomcascade/internal/store"
)

// Set via ldflags at build time.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bloomcascade",
		Short: "Developmental bloom cascade simulator",
		Long: `bloomcascade simulates a population of agents moving through a shared
field while an oscillatory layer modulates them and a connectivity graph
blooms, prunes and stabilizes.

Runs are driven by phase schedules or bloom cascades, recorded as per-step
metrics, and can be saved to a local run store for forecasting and
trajectory analysis.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.bloomcascade/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: error, warn, info, debug or trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newForecastCmd(),
		newAnalyzeCmd(),
		newMCPServerCmd(),
		newConfigCmd(),
		newRunsCmd(),
	)
	return rootCmd
}

// loadConfig loads the configuration named by --config, applies
// --log-level and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := readConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// readConfig loads the configuration and applies --log-level without
// validating.
func readConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// newLoggers builds the operational logger on stderr and, at debug level
// and above, the event logger. The event logger may be nil.
func newLoggers(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, *logging.EventLogger) {
	logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	dir, err := cfg.LogDir()
	if err != nil {
		logger.Warn("event log disabled", "error", err)
		return logger, nil
	}
	return logger, logging.NewEventLogger(dir, cfg.Logging.Level)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	path, err := cfg.StorePath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store path: %w", err)
	}
	runs, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return runs, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	jsonOut, _ := cmd.Flags().GetBool("json")
	return jsonOut
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// signalContext returns a context cancelled on interrupt or termination.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		stopSignals(sigChan)
		cancel()
	}
}
