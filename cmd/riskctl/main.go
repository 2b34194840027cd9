// Package main is riskctl, the command line front end of the risk pipeline.
// It shares configuration and wiring with the server, so it operates on the
// same ledger and artifact store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/finz/cashflow-risk/internal/config"
	"github.com/finz/cashflow-risk/internal/di"
	"github.com/finz/cashflow-risk/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	outputFormat string
	logLevel     string
)

// rootCmd is the base command for the riskctl CLI
var rootCmd = &cobra.Command{
	Use:   "riskctl",
	Short: "Cash-flow stress risk pipeline",
	Long: `riskctl ingests business transactions, trains the weekly stress
classifier and scores businesses against the latest published model.

Configuration is read from the environment (and .env), exactly like the server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withContainer loads configuration, wires dependencies and runs fn.
// Logs go to stderr so stdout stays machine-readable.
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *di.Container) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	log := logger.New(logger.Config{Level: level, Pretty: true, Output: os.Stderr})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	container, _, err := di.Wire(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := container.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close databases")
		}
	}()

	return fn(ctx, container)
}

func validateFormat() error {
	switch outputFormat {
	case "table", "json":
		return nil
	default:
		return fmt.Errorf("unsupported format %q (use table or json)", outputFormat)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
