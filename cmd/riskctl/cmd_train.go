package main

import (
	"context"
	"io"

	"github.com/finz/cashflow-risk/internal/di"
	"github.com/finz/cashflow-risk/internal/services"
	"github.com/spf13/cobra"
)

// trainCmd represents the train command
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train and publish a model from the current ledger",
	Long: `Label the full ledger, aggregate it into weekly feature rows, fit the
stress classifier on weeks before SPLIT_DATE, evaluate it on the rest and
publish the result as the latest model version.`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, _ []string) error {
	if err := validateFormat(); err != nil {
		return err
	}
	return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
		resp, err := c.RiskService.Train(ctx)
		if err != nil {
			return err
		}
		return printTrain(cmd.OutOrStdout(), resp)
	})
}

func printTrain(w io.Writer, resp *services.TrainResponse) error {
	if outputFormat == "json" {
		return writeJSON(w, resp)
	}
	tw := newTable(w, "VERSION", "MODEL", "ROC AUC", "PR AUC", "BRIER", "NOTE")
	tw.row(resp.ModelVersion, resp.ModelType,
		optional(resp.Metrics.ROCAUC), optional(resp.Metrics.PRAUC), optional(resp.Metrics.BrierScore),
		resp.Note)
	return tw.flush()
}
