package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"saldo/internal/core"
	"saldo/internal/log"
	"saldo/internal/source"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteRepository stores records in SQLite. Dates and amounts are kept as
// TEXT so decimals round-trip exactly; rows list in insertion order.
type SQLiteRepository struct {
	db *sql.DB
}

var (
	_ source.Source = (*SQLiteRepository)(nil)
	_ source.Writer = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, date, primary_category, secondary_category, tertiary_category,
		       amount, account, type, description
		FROM transactions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			tx           core.Transaction
			date, amount string
			typ          string
		)
		if err := rows.Scan(&tx.ID, &date, &tx.Category.Primary, &tx.Category.Secondary, &tx.Category.Tertiary,
			&amount, &tx.Account, &typ, &tx.Description); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("transaction %s amount: %w", tx.ID, err)
		}
		tx.Type = core.TransactionType(typ)
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListTransfers(ctx context.Context) ([]core.Transfer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, date, source_account, destination_account, inflow, outflow,
		       primary_category, secondary_category, note
		FROM transfers ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	var out []core.Transfer
	for rows.Next() {
		var (
			tr                    core.Transfer
			date, inflow, outflow string
		)
		if err := rows.Scan(&tr.ID, &date, &tr.Route.Source, &tr.Route.Destination, &inflow, &outflow,
			&tr.Category.Primary, &tr.Category.Secondary, &tr.Note); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		if tr.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("transfer %s: %w", tr.ID, err)
		}
		if tr.Inflow, err = decimal.NewFromString(inflow); err != nil {
			return nil, fmt.Errorf("transfer %s inflow: %w", tr.ID, err)
		}
		if tr.Outflow, err = decimal.NewFromString(outflow); err != nil {
			return nil, fmt.Errorf("transfer %s outflow: %w", tr.ID, err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListAnchors(ctx context.Context) ([]core.BalanceAnchor, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT account, date, balance FROM balance_anchors ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query anchors: %w", err)
	}
	defer rows.Close()

	var out []core.BalanceAnchor
	for rows.Next() {
		var (
			a             core.BalanceAnchor
			date, balance string
		)
		if err := rows.Scan(&a.Account, &date, &balance); err != nil {
			return nil, fmt.Errorf("scan anchor: %w", err)
		}
		if a.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("anchor %s: %w", a.Account, err)
		}
		if a.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("anchor %s balance: %w", a.Account, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveTransactions upserts by id in one database transaction. Existing rows
// keep their position.
func (r *SQLiteRepository) SaveTransactions(ctx context.Context, txs []core.Transaction) error {
	return r.inTx(ctx, `
		INSERT INTO transactions (id, date, primary_category, secondary_category, tertiary_category,
		                          amount, account, type, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			primary_category = excluded.primary_category,
			secondary_category = excluded.secondary_category,
			tertiary_category = excluded.tertiary_category,
			amount = excluded.amount,
			account = excluded.account,
			type = excluded.type,
			description = excluded.description`,
		len(txs), func(stmt *sql.Stmt, i int) error {
			tx := txs[i]
			if err := tx.Validate(); err != nil {
				return fmt.Errorf("transaction %s: %w", tx.ID, err)
			}
			_, err := stmt.ExecContext(ctx, tx.ID, tx.Date.String(), tx.Category.Primary, tx.Category.Secondary,
				tx.Category.Tertiary, tx.Amount.String(), tx.Account, string(tx.Type), tx.Description)
			return err
		}, "transactions")
}

func (r *SQLiteRepository) SaveTransfers(ctx context.Context, trs []core.Transfer) error {
	return r.inTx(ctx, `
		INSERT INTO transfers (id, date, source_account, destination_account, inflow, outflow,
		                       primary_category, secondary_category, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			source_account = excluded.source_account,
			destination_account = excluded.destination_account,
			inflow = excluded.inflow,
			outflow = excluded.outflow,
			primary_category = excluded.primary_category,
			secondary_category = excluded.secondary_category,
			note = excluded.note`,
		len(trs), func(stmt *sql.Stmt, i int) error {
			tr := trs[i]
			if err := tr.Validate(); err != nil {
				return fmt.Errorf("transfer %s: %w", tr.ID, err)
			}
			_, err := stmt.ExecContext(ctx, tr.ID, tr.Date.String(), tr.Route.Source, tr.Route.Destination,
				tr.Inflow.String(), tr.Outflow.String(), tr.Category.Primary, tr.Category.Secondary, tr.Note)
			return err
		}, "transfers")
}

// SaveAnchors upserts by (account, date).
func (r *SQLiteRepository) SaveAnchors(ctx context.Context, anchors []core.BalanceAnchor) error {
	return r.inTx(ctx, `
		INSERT INTO balance_anchors (account, date, balance) VALUES (?, ?, ?)
		ON CONFLICT(account, date) DO UPDATE SET balance = excluded.balance`,
		len(anchors), func(stmt *sql.Stmt, i int) error {
			a := anchors[i]
			if err := a.Validate(); err != nil {
				return fmt.Errorf("anchor %s: %w", a.Account, err)
			}
			_, err := stmt.ExecContext(ctx, a.Account, a.Date.String(), a.Balance.String())
			return err
		}, "balance_anchors")
}

func (r *SQLiteRepository) inTx(ctx context.Context, query string, n int, exec func(*sql.Stmt, int) error, table string) error {
	if n == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", table, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			return fmt.Errorf("save %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", table, err)
	}

	slog.InfoContext(ctx, "Records saved to SQLite",
		log.FieldComponent, log.ComponentStorage,
		"table", table,
		log.FieldCount, n)
	return nil
}
