package source

import (
	"context"
	"fmt"

	"saldo/internal/core"

	"golang.org/x/sync/errgroup"
)

// Ports for inbound record sources.
type (
	TransactionReader interface {
		ListTransactions(ctx context.Context) ([]core.Transaction, error)
	}

	TransferReader interface {
		ListTransfers(ctx context.Context) ([]core.Transfer, error)
	}

	AnchorReader interface {
		ListAnchors(ctx context.Context) ([]core.BalanceAnchor, error)
	}

	// Source supplies every record kind the reports need.
	Source interface {
		TransactionReader
		TransferReader
		AnchorReader
	}

	// Writer persists imported records. Implemented by the SQLite store.
	Writer interface {
		SaveTransactions(ctx context.Context, txs []core.Transaction) error
		SaveTransfers(ctx context.Context, trs []core.Transfer) error
		SaveAnchors(ctx context.Context, anchors []core.BalanceAnchor) error
	}
)

// Snapshot is an immutable view of all records read at one point in time.
type Snapshot struct {
	Transactions []core.Transaction
	Transfers    []core.Transfer
	Anchors      []core.BalanceAnchor
}

// Fetch reads the three collections of src concurrently.
func Fetch(ctx context.Context, src Source) (Snapshot, error) {
	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Transactions, err = src.ListTransactions(ctx)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		snap.Transfers, err = src.ListTransfers(ctx)
		if err != nil {
			return fmt.Errorf("list transfers: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		snap.Anchors, err = src.ListAnchors(ctx)
		if err != nil {
			return fmt.Errorf("list anchors: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
