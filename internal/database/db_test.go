package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTempDB(t *testing.T, name string, profile DatabaseProfile) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableCount(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	err := db.Conn().QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestConnectionString(t *testing.T) {
	ledger := connectionString("/tmp/x.db", ProfileLedger)
	assert.Contains(t, ledger, "synchronous(FULL)")
	assert.Contains(t, ledger, "journal_mode(WAL)")

	standard := connectionString("/tmp/x.db", ProfileStandard)
	assert.Contains(t, standard, "synchronous(NORMAL)")
	assert.Contains(t, standard, "foreign_keys(1)")
}

func TestNew_ResolvesAbsolutePath(t *testing.T) {
	db := newTempDB(t, "misc", "")
	assert.Equal(t, "misc", db.Name())
	assert.True(t, filepath.IsAbs(db.Path()))
}

func TestMigrate_Ledger(t *testing.T) {
	db := newTempDB(t, "ledger", ProfileLedger)
	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate(), "reapplying the schema must be a no-op")

	assert.Equal(t, 1, tableCount(t, db, "transactions"))
}

func TestMigrate_Models(t *testing.T) {
	db := newTempDB(t, "models", ProfileStandard)
	require.NoError(t, db.Migrate())

	for _, table := range []string{"model_artifacts", "training_runs"} {
		assert.Equal(t, 1, tableCount(t, db, table), table)
	}
}

func TestMigrate_KeepsExistingRows(t *testing.T) {
	db := newTempDB(t, "ledger", ProfileLedger)
	require.NoError(t, db.Migrate())

	_, err := db.ExecContext(context.Background(),
		"INSERT INTO transactions (business_id, date, description, amount, ingested_at) VALUES ('B1', 0, '', '1', 0)")
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	var n int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM transactions").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestMigrate_UnknownNameIsNoop(t *testing.T) {
	db := newTempDB(t, "scratch", ProfileStandard)
	assert.NoError(t, db.Migrate())
	assert.Equal(t, 0, tableCount(t, db, "transactions"))
}

func TestMaintenance(t *testing.T) {
	db := newTempDB(t, "models", ProfileStandard)
	require.NoError(t, db.Migrate())

	assert.NoError(t, db.QuickCheck(context.Background()))
	assert.NoError(t, db.WALCheckpoint(""))
	assert.NoError(t, db.WALCheckpoint("PASSIVE"))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageCount, int64(0))
	assert.Greater(t, stats.SizeBytes, int64(0))
	assert.GreaterOrEqual(t, stats.FreelistCount, int64(0))
}
