// Package database opens the SQLite files behind the ledger and the model store.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed schemas/*.sql
var schemaFS embed.FS

// schemaFiles maps database names to their embedded schema file
var schemaFiles = map[string]string{
	"ledger": "schemas/ledger_schema.sql",
	"models": "schemas/models_schema.sql",
}

// DatabaseProfile selects durability pragmas for a database file
type DatabaseProfile string

const (
	// ProfileLedger fsyncs every commit; ingested transactions are never rewritten
	ProfileLedger DatabaseProfile = "ledger"
	// ProfileStandard fsyncs at checkpoints; used for artifacts and run history
	ProfileStandard DatabaseProfile = "standard"
)

// DB is one SQLite file with its pool and pragmas configured
type DB struct {
	conn *sql.DB
	path string
	name string
}

// Config holds database configuration
type Config struct {
	Path    string
	Profile DatabaseProfile
	Name    string // "ledger" or "models"; selects the schema Migrate applies
}

// New opens (creating if needed) the database file at cfg.Path
func New(cfg Config) (*DB, error) {
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}

	conn, err := sql.Open("sqlite", connectionString(absPath, cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	// Scoring fans out over a worker pool; writes are serialised by SQLite itself
	conn.SetMaxOpenConns(16)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{conn: conn, path: absPath, name: cfg.Name}, nil
}

func connectionString(path string, profile DatabaseProfile) string {
	synchronous := "NORMAL"
	if profile == ProfileLedger {
		synchronous = "FULL"
	}
	return path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(" + synchronous + ")" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)"
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Sqlx wraps the connection for repositories that use sqlx scanning
func (db *DB) Sqlx() *sqlx.DB {
	return sqlx.NewDb(db.conn, "sqlite")
}

// Name returns the database name
func (db *DB) Name() string {
	return db.name
}

// Path returns the absolute database file path
func (db *DB) Path() string {
	return db.path
}

// Migrate applies the embedded schema for this database's name in one transaction.
// Schemas only use CREATE ... IF NOT EXISTS, so reapplying is a no-op.
// Unknown names are left untouched.
func (db *DB) Migrate() error {
	schemaFile, ok := schemaFiles[db.name]
	if !ok {
		return nil
	}

	content, err := schemaFS.ReadFile(schemaFile)
	if err != nil {
		return fmt.Errorf("failed to read schema %s: %w", schemaFile, err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration of %s: %w", db.name, err)
	}
	if _, err := tx.Exec(string(content)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to apply schema %s to %s: %w", schemaFile, db.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration of %s: %w", db.name, err)
	}
	return nil
}

// ExecContext executes a statement with context
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, args...)
}

// QuickCheck pings the database
func (db *DB) QuickCheck(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// WALCheckpoint runs PRAGMA wal_checkpoint with the given mode (TRUNCATE if empty)
func (db *DB) WALCheckpoint(mode string) error {
	if mode == "" {
		mode = "TRUNCATE"
	}
	if _, err := db.conn.Exec(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)); err != nil {
		return fmt.Errorf("WAL checkpoint failed for %s: %w", db.name, err)
	}
	return nil
}

// Stats describes the size of a database file and its WAL
type Stats struct {
	SizeBytes     int64
	WALSizeBytes  int64
	PageCount     int64
	FreelistCount int64
}

// GetStats reads file sizes and page counters
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}
	if info, err := os.Stat(db.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	if info, err := os.Stat(db.path + "-wal"); err == nil {
		stats.WALSizeBytes = info.Size()
	}

	for pragma, dest := range map[string]*int64{
		"page_count":     &stats.PageCount,
		"freelist_count": &stats.FreelistCount,
	} {
		if err := db.conn.QueryRow("PRAGMA " + pragma).Scan(dest); err != nil {
			return nil, fmt.Errorf("failed to read %s of %s: %w", pragma, db.name, err)
		}
	}
	return stats, nil
}
