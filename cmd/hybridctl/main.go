// Command hybridctl runs live decision passes and backtests from the command
// line against the same databases as the service.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/hybrid-trader/internal/config"
	"github.com/aristath/hybrid-trader/internal/di"
	"github.com/aristath/hybrid-trader/pkg/logger"
)

var (
	logLevel string
	output   string
)

// rootCmd is the base command for the hybridctl CLI
var rootCmd = &cobra.Command{
	Use:   "hybridctl",
	Short: "Hybrid trader command line",
	Long: `hybridctl runs the hybrid trading pipeline outside the service.

Environment configuration (HYBRID_DATA_DIR, MARKET_DATA_URL, ...) is read the
same way the server reads it. Run definitions are YAML files applied over the
run defaults.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "Write JSON output to this file instead of stdout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// wire loads process configuration and builds the container.
// The scheduler is registered but never started.
func wire() (*di.Container, zerolog.Logger, error) {
	log := logger.New(logger.Config{Level: logLevel, Pretty: true, Output: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		return nil, log, fmt.Errorf("failed to load configuration: %w", err)
	}

	container, err := di.Wire(cfg, log)
	if err != nil {
		return nil, log, err
	}
	return container, log, nil
}
