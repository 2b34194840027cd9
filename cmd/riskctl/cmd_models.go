package main

import (
	"context"
	"io"

	"github.com/finz/cashflow-risk/internal/di"
	"github.com/finz/cashflow-risk/internal/modules/artifacts"
	"github.com/spf13/cobra"
)

var runsLimit int

// modelsCmd is the parent command for model inspection
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect published models and training runs",
}

var modelsLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the model scoring currently uses",
	Args:  cobra.NoArgs,
	RunE:  runModelsLatest,
}

var modelsRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent training runs",
	Args:  cobra.NoArgs,
	RunE:  runModelsRuns,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsLatestCmd)
	modelsCmd.AddCommand(modelsRunsCmd)
	modelsRunsCmd.Flags().IntVar(&runsLimit, "limit", 10, "Number of runs to show")
}

func runModelsLatest(cmd *cobra.Command, _ []string) error {
	if err := validateFormat(); err != nil {
		return err
	}
	return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
		artifact, err := c.RiskService.LatestModel(ctx)
		if err != nil {
			return err
		}
		return printModel(cmd.OutOrStdout(), artifact)
	})
}

func printModel(w io.Writer, a *artifacts.ModelArtifact) error {
	if outputFormat == "json" {
		return writeJSON(w, a)
	}
	tw := newTable(w, "VERSION", "MODEL", "TRAINED AT", "TRAIN ROWS", "TEST ROWS", "NOTE")
	tw.row(a.Version, a.Metadata.ModelType, a.Metadata.TrainedAt.Format("2006-01-02 15:04:05"),
		a.Metadata.TrainRows, a.Metadata.TestRows, a.Metadata.Note)
	return tw.flush()
}

func runModelsRuns(cmd *cobra.Command, _ []string) error {
	if err := validateFormat(); err != nil {
		return err
	}
	return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
		runs, err := c.RunRepo.Recent(ctx, runsLimit)
		if err != nil {
			return err
		}
		return printRuns(cmd.OutOrStdout(), runs)
	})
}

func printRuns(w io.Writer, runs []artifacts.TrainingRun) error {
	if outputFormat == "json" {
		return writeJSON(w, runs)
	}
	tw := newTable(w, "ID", "STARTED", "STATUS", "VERSION", "MODEL", "ERROR")
	for _, r := range runs {
		tw.row(r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Status, r.Version, r.ModelType, r.Error)
	}
	return tw.flush()
}
