package memory

import (
	"context"
	"slices"
	"sync"

	"saldo/internal/core"
	"saldo/internal/ingest"
	"saldo/internal/source"
)

// Store keeps records in memory. It is seeded from CSV files and accepts
// writes, which makes it the default backend for local runs and tests.
type Store struct {
	mu        sync.RWMutex
	txs       []core.Transaction
	transfers []core.Transfer
	anchors   []core.BalanceAnchor
}

var (
	_ source.Source = (*Store)(nil)
	_ source.Writer = (*Store)(nil)
)

func New(ds ingest.Dataset) *Store {
	return &Store{
		txs:       slices.Clone(ds.Transactions),
		transfers: slices.Clone(ds.Transfers),
		anchors:   slices.Clone(ds.Anchors),
	}
}

// NewFromDir seeds the store from the CSV files in dir. The store is usable
// even when err reports rejected rows.
func NewFromDir(dir string) (*Store, error) {
	ds, err := ingest.LoadDir(dir)
	return New(ds), err
}

func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.txs), nil
}

func (s *Store) ListTransfers(_ context.Context) ([]core.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.transfers), nil
}

func (s *Store) ListAnchors(_ context.Context) ([]core.BalanceAnchor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.anchors), nil
}

// SaveTransactions validates every record before storing any of them.
func (s *Store) SaveTransactions(_ context.Context, txs []core.Transaction) error {
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, txs...)
	return nil
}

func (s *Store) SaveTransfers(_ context.Context, trs []core.Transfer) error {
	for _, tr := range trs {
		if err := tr.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers = append(s.transfers, trs...)
	return nil
}

func (s *Store) SaveAnchors(_ context.Context, anchors []core.BalanceAnchor) error {
	for _, a := range anchors {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchors = append(s.anchors, anchors...)
	return nil
}
