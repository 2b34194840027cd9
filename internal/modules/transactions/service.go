package transactions

import (
	"context"
	"fmt"
	"io"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/finz/cashflow-risk/internal/metrics"
	"github.com/rs/zerolog"
)

// IngestResult reports one ingestion call
type IngestResult struct {
	Inserted int         `json:"inserted"`
	Report   ParseReport `json:"report"`
}

// Service parses uploaded files and appends them to the ledger
type Service struct {
	store   domain.TransactionStore
	metrics *metrics.Registry
	log     zerolog.Logger
}

// NewService creates an ingestion service; metrics may be nil
func NewService(store domain.TransactionStore, m *metrics.Registry, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		metrics: m,
		log:     log.With().Str("service", "ingestion").Logger(),
	}
}

// Ingest parses a CSV/TSV stream and stores the accepted rows
func (s *Service) Ingest(ctx context.Context, r io.Reader) (*IngestResult, error) {
	txs, report, err := ParseCSV(r)
	if err != nil {
		return nil, err
	}

	inserted, err := s.store.InsertMany(ctx, txs)
	if err != nil {
		return nil, fmt.Errorf("failed to store transactions: %w", err)
	}

	s.metrics.ObserveIngest(inserted, map[string]int{
		"invalid_date":        report.InvalidDates,
		"invalid_amount":      report.InvalidAmounts,
		"missing_business_id": report.MissingIDs,
	})

	dropped := report.Rows - report.Accepted
	event := s.log.Info()
	if dropped > 0 {
		event = s.log.Warn().Int("dropped", dropped)
	}
	event.Int("rows", report.Rows).Int("inserted", inserted).Msg("Ingested transactions")

	return &IngestResult{Inserted: inserted, Report: report}, nil
}

// BusinessIDs lists the businesses present in the ledger
func (s *Service) BusinessIDs(ctx context.Context) ([]string, error) {
	return s.store.ListBusinessIDs(ctx)
}
