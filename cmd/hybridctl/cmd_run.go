package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/hybrid-trader/internal/config"
	"github.com/aristath/hybrid-trader/internal/pipeline"
)

var runConfigPath string

// runCmd executes one live pass against the paper account
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the live pipeline once",
	Long: `Fetch snapshots, decide, execute and track every configured instrument once.

Examples:
  hybridctl run --config run.yaml
  hybridctl run --config run.yaml -o result.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd.Context(), pipeline.KindLive)
	},
}

// backtestCmd replays historical bars through the strategies
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Backtest the configured instruments over a date range",
	Long: `Replay daily bars between start_date and end_date through the strategies.

Examples:
  hybridctl backtest --config backtest.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd.Context(), pipeline.KindBacktest)
	},
}

func init() {
	for _, c := range []*cobra.Command{runCmd, backtestCmd} {
		c.Flags().StringVarP(&runConfigPath, "config", "c", "", "Path to the YAML run definition")
		_ = c.MarkFlagRequired("config")
		rootCmd.AddCommand(c)
	}
}

func runPipeline(parent context.Context, kind pipeline.RunKind) error {
	runCfg, err := config.LoadRunConfigFile(runConfigPath)
	if err != nil {
		return err
	}

	container, log, err := wire()
	if err != nil {
		return err
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result *pipeline.RunResult
	if kind == pipeline.KindBacktest {
		result, err = container.Orchestrator.Backtest(ctx, runCfg)
	} else {
		result, err = container.Orchestrator.Run(ctx, runCfg)
	}
	if err != nil {
		return err
	}

	succeeded, failed := result.Counts()
	log.Info().
		Str("run_id", result.Run.ID).
		Str("status", string(result.Run.Status)).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Msg("Run finished")

	return writeOutput(result)
}

// writeOutput prints v as indented JSON to --output or stdout
func writeOutput(v interface{}) error {
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
