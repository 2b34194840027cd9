// Package transactions stores and ingests the append-only transaction ledger.
package transactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/finz/cashflow-risk/internal/utils"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// insertBatchSize bounds the rows per INSERT statement
const insertBatchSize = 500

// Repository is the SQL-backed domain.TransactionStore.
// It works against SQLite ("?" placeholders) or PostgreSQL ("$n").
type Repository struct {
	db          *sqlx.DB
	placeholder squirrel.PlaceholderFormat
	log         zerolog.Logger
}

// NewRepository creates a transaction repository.
// Pass squirrel.Dollar for PostgreSQL, squirrel.Question for SQLite.
func NewRepository(db *sqlx.DB, placeholder squirrel.PlaceholderFormat, log zerolog.Logger) *Repository {
	return &Repository{
		db:          db,
		placeholder: placeholder,
		log:         log.With().Str("repo", "transactions").Logger(),
	}
}

type transactionRow struct {
	ID          int64  `db:"id"`
	BusinessID  string `db:"business_id"`
	Date        int64  `db:"date"`
	Description string `db:"description"`
	Amount      string `db:"amount"`
}

func (r transactionRow) toDomain() (domain.Transaction, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %d has invalid amount %q: %w", r.ID, r.Amount, err)
	}
	return domain.Transaction{
		ID:          r.ID,
		BusinessID:  r.BusinessID,
		Date:        utils.UnixToDate(r.Date),
		Description: r.Description,
		Amount:      amount,
	}, nil
}

func (r *Repository) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(r.placeholder)
}

// InsertMany appends transactions in a single database transaction
func (r *Repository) InsertMany(ctx context.Context, txs []domain.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	done := utils.MeasureDBQuery("insert_transactions", r.log)
	now := time.Now().Unix()

	dbTx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	for start := 0; start < len(txs); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(txs) {
			end = len(txs)
		}

		q := r.builder().
			Insert("transactions").
			Columns("business_id", "date", "description", "amount", "ingested_at")
		for _, tx := range txs[start:end] {
			q = q.Values(tx.BusinessID, utils.DateToUnix(tx.Date), tx.Description, tx.Amount.String(), now)
		}

		query, args, err := q.ToSql()
		if err != nil {
			return 0, fmt.Errorf("failed to build insert: %w", err)
		}
		if _, err := dbTx.ExecContext(ctx, query, args...); err != nil {
			return 0, wrapDBError("failed to insert transactions", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transactions: %w", err)
	}
	done(int64(len(txs)))
	return len(txs), nil
}

// ListByBusiness returns a business's transactions ordered by date, then insertion order
func (r *Repository) ListByBusiness(ctx context.Context, businessID string) ([]domain.Transaction, error) {
	return r.list(ctx, squirrel.Eq{"business_id": businessID})
}

// ListAll returns a snapshot of the ledger ordered by business, date and insertion order
func (r *Repository) ListAll(ctx context.Context) ([]domain.Transaction, error) {
	return r.list(ctx, nil)
}

func (r *Repository) list(ctx context.Context, where squirrel.Sqlizer) ([]domain.Transaction, error) {
	done := utils.MeasureDBQuery("list_transactions", r.log)

	q := r.builder().
		Select("id", "business_id", "date", "description", "amount").
		From("transactions").
		OrderBy("business_id", "date", "id")
	if where != nil {
		q = q.Where(where)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	var rows []transactionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapDBError("failed to list transactions", err)
	}

	out := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	done(int64(len(out)))
	return out, nil
}

// ListBusinessIDs returns the distinct business IDs in ascending order
func (r *Repository) ListBusinessIDs(ctx context.Context) ([]string, error) {
	query, args, err := r.builder().
		Select("DISTINCT business_id").
		From("transactions").
		OrderBy("business_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, wrapDBError("failed to list business ids", err)
	}
	return ids, nil
}

// Count returns the number of stored transactions
func (r *Repository) Count(ctx context.Context) (int64, error) {
	query, args, err := r.builder().Select("COUNT(*)").From("transactions").ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count: %w", err)
	}
	var n int64
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, wrapDBError("failed to count transactions", err)
	}
	return n, nil
}

func wrapDBError(msg string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s: %w (code: %s)", msg, err, pqErr.Code)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

var _ domain.TransactionStore = (*Repository)(nil)
