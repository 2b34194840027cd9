package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// OpenPostgres connects to a PostgreSQL ledger and applies its schema
func OpenPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	content, err := schemaFS.ReadFile("schemas/ledger_schema.postgres.sql")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read postgres schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(content)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply postgres schema: %w", err)
	}
	return db, nil
}
