package main

import (
	"context"
	"fmt"
	"io"

	"github.com/finz/cashflow-risk/internal/di"
	"github.com/finz/cashflow-risk/internal/services"
	"github.com/finz/cashflow-risk/internal/utils"
	"github.com/spf13/cobra"
)

var (
	scoreIDs string
	scoreAll bool
)

// scoreCmd represents the score command
var scoreCmd = &cobra.Command{
	Use:   "score [business_id]...",
	Short: "Score businesses against the latest model",
	Long: `Score the most recent week of each business with the latest published
model and print probability, tier and top drivers.

Examples:
  riskctl score B1
  riskctl score --ids "B1, B2, B3"
  riskctl score --all --format json`,
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	scoreCmd.Flags().StringVar(&scoreIDs, "ids", "", "Comma separated business IDs")
	scoreCmd.Flags().BoolVar(&scoreAll, "all", false, "Score every business in the ledger")
}

func runScore(cmd *cobra.Command, args []string) error {
	if err := validateFormat(); err != nil {
		return err
	}

	ids := utils.Dedupe(append(append([]string{}, args...), utils.ParseCSV(scoreIDs)...))
	if len(ids) == 0 && !scoreAll {
		return fmt.Errorf("no business IDs given (pass IDs, --ids or --all)")
	}

	return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
		if scoreAll {
			all, err := c.IngestionService.BusinessIDs(ctx)
			if err != nil {
				return err
			}
			ids = utils.Dedupe(append(ids, all...))
		}

		items := c.RiskService.ScoreBatch(ctx, ids)
		if err := printScores(cmd.OutOrStdout(), items); err != nil {
			return err
		}

		for _, item := range items {
			if item.Err != nil {
				return fmt.Errorf("%d of %d businesses could not be scored", countFailed(items), len(items))
			}
		}
		return nil
	})
}

func countFailed(items []services.BatchItem) int {
	n := 0
	for _, item := range items {
		if item.Err != nil {
			n++
		}
	}
	return n
}

func printScores(w io.Writer, items []services.BatchItem) error {
	if outputFormat == "json" {
		return writeJSON(w, items)
	}
	tw := newTable(w, "BUSINESS", "WEEK", "PROBABILITY", "TIER", "TOP DRIVER", "EXPLANATION")
	for _, item := range items {
		if item.Err != nil {
			tw.row(item.BusinessID, "-", "-", "error", "-", item.Err.Error())
			continue
		}
		s := item.Score
		driver := "-"
		if len(s.Drivers.Drivers) > 0 {
			d := s.Drivers.Drivers[0]
			driver = fmt.Sprintf("%s (%+.4f)", d.Feature, d.Weight)
		}
		tw.row(s.BusinessID, s.WeekStart, fmt.Sprintf("%.4f", s.RiskProbability), s.RiskTier, driver, s.Explanation)
	}
	return tw.flush()
}
