// Package ledger turns transactions and transfers into signed per-account
// entries and replays them against balance anchors.
//
// Everything in this package is a pure function of its arguments: no I/O,
// no caching, no shared state. Callers may run reconstructions in parallel.
package ledger

import (
	"saldo/internal/core"

	"github.com/shopspring/decimal"
)

// Kind classifies the balance effect of an entry.
type Kind string

const (
	KindIncome      Kind = "income"
	KindExpense     Kind = "expense"
	KindTransferOut Kind = "transfer_out"
	KindTransferIn  Kind = "transfer_in"
)

// Credit reports whether entries of this kind increase the balance.
func (k Kind) Credit() bool {
	return k == KindIncome || k == KindTransferIn
}

// IsTransfer reports whether the kind is one leg of a transfer.
func (k Kind) IsTransfer() bool {
	return k == KindTransferOut || k == KindTransferIn
}

const (
	SourceTransaction = "transaction"
	SourceTransfer    = "transfer"
)

// SourceRef points back at the record an entry was derived from. Both legs
// of a two-sided transfer share the same SourceRef.
type SourceRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Entry is the balance effect of one record on one account. Amount is
// signed: positive for income and transfer_in, negative otherwise. A
// zero-amount transaction keeps its kind with a zero Amount, so the sign
// rule holds only for non-zero amounts.
type Entry struct {
	ID           string          `json:"id"`
	Date         core.Date       `json:"date"`
	Account      string          `json:"account"`
	Kind         Kind            `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	CategoryPath string          `json:"category_path"`
	Note         string          `json:"note,omitempty"`
	Source       SourceRef       `json:"source"`
	// Seq is the position in normalization output; it breaks same-day ties.
	Seq int `json:"-"`
}

// Magnitude returns the unsigned amount.
func (e Entry) Magnitude() decimal.Decimal {
	return e.Amount.Abs()
}
