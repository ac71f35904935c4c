package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/hybrid-trader/internal/pipeline"
)

var runsLimit int

// runsCmd lists stored runs
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		container, _, err := wire()
		if err != nil {
			return err
		}
		defer container.Close()

		runs, err := container.ResultRepo.ListRuns(runsLimit)
		if err != nil {
			return err
		}
		return writeOutput(runs)
	},
}

// resultsCmd prints one run with its per-instrument results
var resultsCmd = &cobra.Command{
	Use:   "results RUN_ID",
	Short: "Show the results of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		container, _, err := wire()
		if err != nil {
			return err
		}
		defer container.Close()

		run, err := container.ResultRepo.GetRun(args[0])
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run %s not found", args[0])
		}
		results, err := container.ResultRepo.GetResults(run.ID)
		if err != nil {
			return err
		}
		return writeOutput(pipeline.RunResult{Run: *run, Results: results})
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of runs to list")
	rootCmd.AddCommand(runsCmd, resultsCmd)
}
