// Package ingest decodes header-driven tables of transactions, transfers and
// balance anchors. The same decoders serve CSV files and spreadsheet ranges.
//
// Headers are matched case-insensitively after trimming:
//
//	transactions: id, date, primary, secondary, tertiary, amount, account, type, description
//	transfers:    id, date, account, inflow, outflow, primary, secondary, note
//	anchors:      account, date, balance
//
// A table without a date column may carry year, month and day columns
// instead. Rows without an id get a stable one derived from their content.
package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"saldo/internal/core"
	"saldo/internal/log"

	"github.com/google/uuid"
)

const (
	KindTransaction = "transaction"
	KindTransfer    = "transfer"
	KindAnchor      = "anchor"
)

// idNamespace seeds content-derived row ids.
var idNamespace = uuid.MustParse("6f1c3c2e-5d8a-4b7e-9a51-0c7d2e4b8f10")

var ErrMissingColumn = errors.New("missing column")

var headerAliases = map[string]string{
	"category":    "primary",
	"subcategory": "secondary",
	"route":       "account",
	"notes":       "note",
	"memo":        "description",
	"value":       "amount",
}

// RowError reports a row that could not be decoded. Line is 1-based and
// counts the header row.
type RowError struct {
	Kind string
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s line %d: %v", e.Kind, e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

type table struct {
	kind string
	cols map[string]int
	// seen counts rows per content key for generated ids.
	seen map[string]int
}

func newTable(kind string, header []string, required ...string) (*table, error) {
	t := &table{kind: kind, cols: make(map[string]int, len(header)), seen: make(map[string]int)}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if alias, ok := headerAliases[name]; ok {
			name = alias
		}
		if _, dup := t.cols[name]; !dup {
			t.cols[name] = i
		}
	}
	var missing []string
	for _, col := range required {
		if !t.has(col) {
			missing = append(missing, col)
		}
	}
	if !t.has("date") && !(t.has("year") && t.has("month") && t.has("day")) {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s: %w: %s", kind, ErrMissingColumn, strings.Join(missing, ", "))
	}
	return t, nil
}

func (t *table) has(col string) bool {
	_, ok := t.cols[col]
	return ok
}

func (t *table) get(row []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t *table) date(row []string) (core.Date, error) {
	if t.has("date") {
		return core.ParseDate(t.get(row, "date"))
	}
	y, yerr := strconv.Atoi(t.get(row, "year"))
	m, merr := strconv.Atoi(t.get(row, "month"))
	d, derr := strconv.Atoi(t.get(row, "day"))
	if err := errors.Join(yerr, merr, derr); err != nil {
		return core.Date{}, fmt.Errorf("%w: %v", core.ErrInvalidDate, err)
	}
	if m < 1 || m > 12 {
		return core.Date{}, core.ErrInvalidMonth
	}
	date := core.NewDate(y, m, d)
	if date.Day() != d {
		return core.Date{}, core.ErrInvalidDay
	}
	return date, nil
}

// id returns the row's id column or derives one from the trimmed cells and
// the row's index among identical rows seen so far. Moving a row or editing
// another one leaves the id unchanged.
func (t *table) id(row []string) string {
	if id := t.get(row, "id"); id != "" {
		return id
	}
	cells := make([]string, len(row))
	for i, v := range row {
		cells[i] = strings.TrimSpace(v)
	}
	key := t.kind + "\x1e" + strings.Join(cells, "\x1f")
	n := t.seen[key]
	t.seen[key] = n + 1
	return uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("%s\x1e%d", key, n))).String()
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// DecodeTransactions decodes rows whose first element is the header. Valid
// rows are returned even when others fail; err joins one *RowError per
// rejected row.
func DecodeTransactions(rows [][]string) ([]core.Transaction, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	t, err := newTable(KindTransaction, rows[0], "primary", "amount", "account", "type")
	if err != nil {
		return nil, err
	}

	var (
		out  []core.Transaction
		errs []error
	)
	for i, row := range rows[1:] {
		line := i + 2
		if blank(row) {
			continue
		}
		tx, err := t.transaction(row)
		if err != nil {
			errs = append(errs, &RowError{Kind: KindTransaction, Line: line, Err: err})
			continue
		}
		out = append(out, tx)
	}
	return out, errors.Join(errs...)
}

func (t *table) transaction(row []string) (core.Transaction, error) {
	date, err := t.date(row)
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := core.ParseAmount(t.get(row, "amount"))
	if err != nil {
		return core.Transaction{}, err
	}
	typ, err := core.ParseTransactionType(t.get(row, "type"))
	if err != nil {
		return core.Transaction{}, err
	}
	tx := core.Transaction{
		ID:   t.id(row),
		Date: date,
		Category: core.CategoryPath{
			Primary:   t.get(row, "primary"),
			Secondary: t.get(row, "secondary"),
			Tertiary:  t.get(row, "tertiary"),
		},
		Amount:      amount,
		Account:     t.get(row, "account"),
		Type:        typ,
		Description: t.get(row, "description"),
	}
	return tx, tx.Validate()
}

// DecodeTransfers decodes transfer rows. Routes that do not name both legs
// fall back to a single account and are logged at WARN.
func DecodeTransfers(rows [][]string) ([]core.Transfer, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	t, err := newTable(KindTransfer, rows[0], "account")
	if err != nil {
		return nil, err
	}
	if !t.has("inflow") && !t.has("outflow") {
		return nil, fmt.Errorf("%s: %w: inflow or outflow", KindTransfer, ErrMissingColumn)
	}

	var (
		out  []core.Transfer
		errs []error
	)
	for i, row := range rows[1:] {
		line := i + 2
		if blank(row) {
			continue
		}
		tr, err := t.transfer(row, line)
		if err != nil {
			errs = append(errs, &RowError{Kind: KindTransfer, Line: line, Err: err})
			continue
		}
		out = append(out, tr)
	}
	return out, errors.Join(errs...)
}

func (t *table) transfer(row []string, line int) (core.Transfer, error) {
	date, err := t.date(row)
	if err != nil {
		return core.Transfer{}, err
	}
	inflow, err := core.ParseOptionalAmount(t.get(row, "inflow"))
	if err != nil {
		return core.Transfer{}, fmt.Errorf("inflow: %w", err)
	}
	outflow, err := core.ParseOptionalAmount(t.get(row, "outflow"))
	if err != nil {
		return core.Transfer{}, fmt.Errorf("outflow: %w", err)
	}

	raw := t.get(row, "account")
	route, paired := core.ParseAccountPair(raw)
	id := t.id(row)
	if !paired && !route.IsZero() {
		slog.Warn("Transfer route does not name both accounts, using a single account",
			log.FieldComponent, log.ComponentIngest,
			log.FieldRecordID, id,
			log.FieldLine, line,
			log.FieldRoute, raw)
	}

	tr := core.Transfer{
		ID:      id,
		Date:    date,
		Route:   route,
		Inflow:  inflow,
		Outflow: outflow,
		Category: core.CategoryPath{
			Primary:   t.get(row, "primary"),
			Secondary: t.get(row, "secondary"),
		},
		Note: t.get(row, "note"),
	}
	return tr, tr.Validate()
}

// DecodeAnchors decodes balance anchor rows.
func DecodeAnchors(rows [][]string) ([]core.BalanceAnchor, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	t, err := newTable(KindAnchor, rows[0], "account", "balance")
	if err != nil {
		return nil, err
	}

	var (
		out  []core.BalanceAnchor
		errs []error
	)
	for i, row := range rows[1:] {
		line := i + 2
		if blank(row) {
			continue
		}
		a, err := t.anchor(row)
		if err != nil {
			errs = append(errs, &RowError{Kind: KindAnchor, Line: line, Err: err})
			continue
		}
		out = append(out, a)
	}
	return out, errors.Join(errs...)
}

func (t *table) anchor(row []string) (core.BalanceAnchor, error) {
	date, err := t.date(row)
	if err != nil {
		return core.BalanceAnchor{}, err
	}
	balance, err := core.ParseSignedAmount(t.get(row, "balance"))
	if err != nil {
		return core.BalanceAnchor{}, err
	}
	a := core.BalanceAnchor{Account: t.get(row, "account"), Date: date, Balance: balance}
	return a, a.Validate()
}
