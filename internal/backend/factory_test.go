package backend

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"saldo/internal/config"
	"saldo/internal/ingest"
	"saldo/internal/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFactory() Factory {
	return NewFactory(log.New(log.Config{Output: io.Discard}))
}

func writeCSV(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestCreateMemoryBackend(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, ingest.TransactionsFile,
		"id,date,primary,amount,account,type\n"+
			"t1,2024-01-02,Home,10,Checking,expense\n"+
			"t2,bad,Home,10,Checking,expense\n")

	res, err := testFactory().CreateBackend(context.Background(), Config{Type: MemoryBackend, DataDirectory: dir})
	require.NoError(t, err, "rejected rows are logged, not fatal")
	defer res.Close()

	assert.Equal(t, MemoryBackend, res.Type)
	assert.NotNil(t, res.Writer)
	assert.Nil(t, res.Pinger)

	txs, err := res.Source.ListTransactions(context.Background())
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestCreateMemoryBackendBadHeader(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, ingest.AnchorsFile, "who,when\nx,y\n")

	_, err := testFactory().CreateBackend(context.Background(), Config{Type: MemoryBackend, DataDirectory: dir})
	require.ErrorIs(t, err, ingest.ErrMissingColumn)
}

func TestCreateSQLiteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saldo.db")

	res, err := testFactory().CreateBackend(context.Background(), Config{Type: SQLiteBackend, SQLiteDBPath: path})
	require.NoError(t, err)
	defer res.Close()

	require.NotNil(t, res.Pinger)
	assert.NoError(t, res.Pinger.Ping(context.Background()))
	assert.NotNil(t, res.Writer)
	assert.FileExists(t, path)
}

func TestCreateBackendValidation(t *testing.T) {
	f := testFactory()
	ctx := context.Background()

	_, err := f.CreateBackend(ctx, Config{Type: "postgres"})
	assert.EqualError(t, err, "invalid backend type: postgres")

	_, err = f.CreateBackend(ctx, Config{Type: SQLiteBackend})
	assert.EqualError(t, err, "SQLite database path is required for sqlite backend")

	_, err = f.CreateBackend(ctx, Config{Type: SheetsBackend})
	assert.EqualError(t, err, "Google Spreadsheet ID is required for sheets backend")

	_, err = f.CreateBackend(ctx, Config{
		Type:                     SheetsBackend,
		GoogleSpreadsheetID:      "sheet",
		GoogleServiceAccountFile: "/does/not/exist.json",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize Google Sheets client")
}

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "nope"})
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:         "sheets",
		GoogleSpreadsheetID: "sheet",
		GoogleAnchorsSheet:  "Balances",
		DataDir:             "/srv/data",
	})
	require.NoError(t, err)
	assert.Equal(t, SheetsBackend, cfg.Type)
	assert.Equal(t, "Balances", cfg.GoogleAnchorsSheet)
	assert.Equal(t, "/srv/data", cfg.DataDirectory)
}

func TestBackendTypeStrings(t *testing.T) {
	assert.Equal(t, []string{"sqlite", "sheets", "memory"}, GetBackendTypeStrings())
	assert.True(t, MemoryBackend.IsValid())
	assert.False(t, BackendType("").IsValid())

	var nilResult *BackendResult
	assert.NoError(t, nilResult.Close())
}
