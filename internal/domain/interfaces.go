package domain

import "context"

// TransactionStore is the append-only record store the core reads snapshots from.
// Implementations return transactions ordered by business_id, date and insertion order.
type TransactionStore interface {
	InsertMany(ctx context.Context, txs []Transaction) (int, error)
	ListByBusiness(ctx context.Context, businessID string) ([]Transaction, error)
	ListAll(ctx context.Context) ([]Transaction, error)
	ListBusinessIDs(ctx context.Context) ([]string, error)
}

// ExplanationRenderer turns a ranked driver list into prose.
// It must not add claims beyond the drivers it is given.
type ExplanationRenderer interface {
	Render(ctx context.Context, report DriverReport) (string, error)
}
