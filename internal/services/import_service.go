package services

import (
	"context"
	"fmt"
	"log/slog"

	"saldo/internal/amqp"
	"saldo/internal/ingest"
	"saldo/internal/log"
	"saldo/internal/source"
)

// Publisher announces imported data.
type Publisher interface {
	PublishDataChanged(ctx context.Context, msg *amqp.DataChangedMessage) error
}

// ImportService persists imported records and announces the change.
type ImportService struct {
	store     source.Writer
	publisher Publisher
}

// NewImportService accepts a nil publisher, in which case nothing is
// announced.
func NewImportService(store source.Writer, publisher Publisher) *ImportService {
	return &ImportService{store: store, publisher: publisher}
}

// ImportResult counts what was saved. Published is false when no message
// went out.
type ImportResult struct {
	Transactions int      `json:"transactions"`
	Transfers    int      `json:"transfers"`
	Anchors      int      `json:"anchors"`
	Accounts     []string `json:"accounts"`
	Years        []int    `json:"years"`
	Published    bool     `json:"published"`
}

// Import saves every record kind, then publishes one DataChangedMessage
// naming the touched accounts and years. A publish failure is logged and
// does not fail the import.
func (s *ImportService) Import(ctx context.Context, ds ingest.Dataset) (ImportResult, error) {
	res := ImportResult{
		Transactions: len(ds.Transactions),
		Transfers:    len(ds.Transfers),
		Anchors:      len(ds.Anchors),
	}

	if err := s.store.SaveTransactions(ctx, ds.Transactions); err != nil {
		return res, fmt.Errorf("save transactions: %w", err)
	}
	if err := s.store.SaveTransfers(ctx, ds.Transfers); err != nil {
		return res, fmt.Errorf("save transfers: %w", err)
	}
	if err := s.store.SaveAnchors(ctx, ds.Anchors); err != nil {
		return res, fmt.Errorf("save anchors: %w", err)
	}

	msg := changeOf(ds)
	res.Accounts, res.Years = msg.Accounts, msg.Years

	slog.InfoContext(ctx, "Import stored",
		log.FieldComponent, log.ComponentIngest,
		log.FieldOperation, log.OpImport,
		"transactions", res.Transactions,
		"transfers", res.Transfers,
		"anchors", res.Anchors)

	if res.Transactions+res.Transfers+res.Anchors == 0 {
		return res, nil
	}
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping data changed message",
			log.FieldComponent, log.ComponentIngest)
		return res, nil
	}
	if err := s.publisher.PublishDataChanged(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish data changed message",
			log.FieldComponent, log.ComponentIngest,
			log.FieldError, err)
		return res, nil
	}
	res.Published = true
	return res, nil
}

// changeOf names every account and year touched by ds.
func changeOf(ds ingest.Dataset) *amqp.DataChangedMessage {
	var (
		accounts []string
		years    []int
	)
	for _, tx := range ds.Transactions {
		accounts = append(accounts, tx.Account)
		years = append(years, tx.Date.Year())
	}
	for _, tr := range ds.Transfers {
		accounts = append(accounts, tr.Route.Source, tr.Route.Destination)
		years = append(years, tr.Date.Year())
	}
	for _, a := range ds.Anchors {
		accounts = append(accounts, a.Account)
		years = append(years, a.Date.Year())
	}
	return amqp.NewDataChangedMessage(accounts, years)
}
