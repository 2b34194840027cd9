package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/finz/cashflow-risk/internal/di"
	"github.com/finz/cashflow-risk/internal/modules/transactions"
	"github.com/spf13/cobra"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Append transactions from CSV/TSV files to the ledger",
	Long: `Parse one or more comma or tab separated files with the columns
business_id, date, description and amount, and append the valid rows to the
ledger. Use "-" to read from stdin.

Examples:
  riskctl ingest data/transactions.csv
  cat export.tsv | riskctl ingest -`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if err := validateFormat(); err != nil {
		return err
	}

	return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
		results := make(map[string]*transactions.IngestResult, len(args))
		for _, path := range args {
			res, err := ingestFile(ctx, c.IngestionService, path, cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[path] = res
		}
		return printIngest(cmd.OutOrStdout(), args, results)
	})
}

func ingestFile(ctx context.Context, svc *transactions.Service, path string, stdin io.Reader) (*transactions.IngestResult, error) {
	if path == "-" {
		return svc.Ingest(ctx, stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return svc.Ingest(ctx, f)
}

func printIngest(w io.Writer, order []string, results map[string]*transactions.IngestResult) error {
	if outputFormat == "json" {
		return writeJSON(w, results)
	}
	tw := newTable(w, "FILE", "ROWS", "INSERTED", "BAD DATE", "BAD AMOUNT", "NO ID")
	for _, path := range order {
		r := results[path]
		tw.row(path, r.Report.Rows, r.Inserted, r.Report.InvalidDates, r.Report.InvalidAmounts, r.Report.MissingIDs)
	}
	return tw.flush()
}
