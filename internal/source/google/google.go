package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"saldo/internal/core"
	"saldo/internal/ingest"
	"saldo/internal/log"
	"saldo/internal/source"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config names the spreadsheet, its tabs and the service account used to
// read them.
type Config struct {
	SpreadsheetID     string
	TransactionsSheet string
	TransfersSheet    string
	AnchorsSheet      string
	// CredentialsJSON wins over CredentialsFile. With neither set the
	// GOOGLE_APPLICATION_CREDENTIALS file is used.
	CredentialsJSON string
	CredentialsFile string
}

// Client reads records from header-driven tabs of one spreadsheet.
type Client struct {
	svc               *gsheet.Service
	spreadsheetID     string
	transactionsSheet string
	transfersSheet    string
	anchorsSheet      string
}

var _ source.Source = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg), nil
}

// NewWithService wraps an existing service, applying default tab names.
func NewWithService(svc *gsheet.Service, cfg Config) *Client {
	return &Client{
		svc:               svc,
		spreadsheetID:     strings.TrimSpace(cfg.SpreadsheetID),
		transactionsSheet: orDefault(cfg.TransactionsSheet, "Transactions"),
		transfersSheet:    orDefault(cfg.TransfersSheet, "Transfers"),
		anchorsSheet:      orDefault(cfg.AnchorsSheet, "Anchors"),
	}
}

func credentials(cfg Config) ([]byte, error) {
	if js := strings.TrimSpace(cfg.CredentialsJSON); js != "" {
		return []byte(js), nil
	}
	file := strings.TrimSpace(cfg.CredentialsFile)
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if file == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

func (c *Client) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := c.readSheet(ctx, c.transactionsSheet)
	if err != nil {
		return nil, err
	}
	txs, err := ingest.DecodeTransactions(rows)
	if err := c.tolerate(ctx, c.transactionsSheet, err); err != nil {
		return nil, err
	}
	return txs, nil
}

func (c *Client) ListTransfers(ctx context.Context) ([]core.Transfer, error) {
	rows, err := c.readSheet(ctx, c.transfersSheet)
	if err != nil {
		return nil, err
	}
	trs, err := ingest.DecodeTransfers(rows)
	if err := c.tolerate(ctx, c.transfersSheet, err); err != nil {
		return nil, err
	}
	return trs, nil
}

func (c *Client) ListAnchors(ctx context.Context) ([]core.BalanceAnchor, error) {
	rows, err := c.readSheet(ctx, c.anchorsSheet)
	if err != nil {
		return nil, err
	}
	anchors, err := ingest.DecodeAnchors(rows)
	if err := c.tolerate(ctx, c.anchorsSheet, err); err != nil {
		return nil, err
	}
	return anchors, nil
}

// tolerate keeps listing best-effort: rejected rows are logged and skipped,
// while a sheet whose header cannot be understood fails the read.
func (c *Client) tolerate(ctx context.Context, sheet string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ingest.ErrMissingColumn) {
		return fmt.Errorf("sheet %s: %w", sheet, err)
	}
	slog.WarnContext(ctx, "Skipping rows that could not be decoded",
		log.FieldComponent, log.ComponentSheets,
		log.FieldOperation, log.OpParse,
		"sheet", sheet,
		log.FieldError, err)
	return nil
}

func (c *Client) readSheet(ctx context.Context, sheetName string) ([][]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:Z", sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	rows := toRows(resp.Values)
	slog.DebugContext(ctx, "Sheet read",
		log.FieldComponent, log.ComponentSheets,
		log.FieldOperation, log.OpList,
		"sheet", sheetName,
		log.FieldCount, len(rows))
	return rows, nil
}

// toRows converts a Sheets values matrix into trimmed strings, dropping
// comment rows whose first cell starts with '#'.
func toRows(values [][]interface{}) [][]string {
	out := make([][]string, 0, len(values))
	for _, row := range values {
		cols := toStrings(row)
		if len(cols) > 0 && strings.HasPrefix(cols[0], "#") {
			continue
		}
		out = append(out, cols)
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
