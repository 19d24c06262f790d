package storage

import (
	"context"
	"path/filepath"
	"testing"

	"saldo/internal/core"
	"saldo/internal/source"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "saldo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepositoryTransactionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	txs := []core.Transaction{
		{
			ID:          "t1",
			Date:        core.MustDate("2024-01-05"),
			Category:    core.CategoryPath{Primary: "Home", Secondary: "Utilities", Tertiary: "Power"},
			Amount:      decimal.RequireFromString("100.10"),
			Account:     "Checking",
			Type:        core.Expense,
			Description: "bill",
		},
		{
			ID:       "t2",
			Date:     core.MustDate("2024-01-01"),
			Category: core.CategoryPath{Primary: "Salary"},
			Amount:   decimal.RequireFromString("0.1"),
			Account:  "Checking",
			Type:     core.Income,
		},
	}
	require.NoError(t, repo.SaveTransactions(ctx, txs))

	got, err := repo.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID, "insertion order, not date order")
	assert.Equal(t, txs[0].Category, got[0].Category)
	assert.True(t, txs[0].Amount.Equal(got[0].Amount))
	assert.Equal(t, "2024-01-05", got[0].Date.String())
	assert.Equal(t, core.Income, got[1].Type)

	updated := txs[0]
	updated.Amount = decimal.RequireFromString("90")
	require.NoError(t, repo.SaveTransactions(ctx, []core.Transaction{updated}))

	got, err = repo.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID, "upsert keeps position")
	assert.Equal(t, "90", got[0].Amount.String())
}

func TestRepositoryRejectsInvalidBatch(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	good := core.Transaction{
		ID: "ok", Date: core.MustDate("2024-01-01"), Category: core.CategoryPath{Primary: "A"},
		Amount: decimal.NewFromInt(1), Account: "X", Type: core.Expense,
	}
	bad := good
	bad.ID = "bad"
	bad.Type = "refund"

	err := repo.SaveTransactions(ctx, []core.Transaction{good, bad})
	require.ErrorIs(t, err, core.ErrInvalidType)

	got, err := repo.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "batch is rolled back")
}

func TestRepositoryTransfersAndAnchors(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.SaveTransfers(ctx, []core.Transfer{{
		ID:      "x1",
		Date:    core.MustDate("2024-02-01"),
		Route:   core.AccountPair{Source: "Checking", Destination: "Savings"},
		Inflow:  decimal.RequireFromString("250"),
		Outflow: decimal.RequireFromString("250.5"),
		Note:    "monthly",
	}}))
	require.NoError(t, repo.SaveAnchors(ctx, []core.BalanceAnchor{
		{Account: "Checking", Date: core.MustDate("2023-12-31"), Balance: decimal.RequireFromString("-10.25")},
	}))
	require.NoError(t, repo.SaveAnchors(ctx, []core.BalanceAnchor{
		{Account: "Checking", Date: core.MustDate("2023-12-31"), Balance: decimal.RequireFromString("1000")},
	}))

	snap, err := source.Fetch(ctx, repo)
	require.NoError(t, err)

	require.Len(t, snap.Transfers, 1)
	tr := snap.Transfers[0]
	assert.Equal(t, core.AccountPair{Source: "Checking", Destination: "Savings"}, tr.Route)
	assert.Equal(t, "250.5", tr.Outflow.String())
	assert.Equal(t, "monthly", tr.Note)

	require.Len(t, snap.Anchors, 1, "anchors upsert on account and date")
	assert.Equal(t, "1000", snap.Anchors[0].Balance.String())
}

func TestRepositoryEmptySaveAndPing(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.SaveTransfers(ctx, nil))
	require.NoError(t, repo.Ping(ctx))

	trs, err := repo.ListTransfers(ctx)
	require.NoError(t, err)
	assert.Empty(t, trs)
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saldo.db")
	require.NoError(t, RunMigrations(path))
	require.NoError(t, RunMigrations(path))
}
