package ledger

import (
	"saldo/internal/core"
)

// Normalize converts transactions and transfers into signed entries.
//
// Transactions come first in input order, then transfers in input order with
// the outgoing leg before the incoming one. The result carries Seq in that
// order but callers must not rely on it being sorted by date.
func Normalize(txs []core.Transaction, transfers []core.Transfer) []Entry {
	out := make([]Entry, 0, len(txs)+2*len(transfers))

	for _, tx := range txs {
		e := Entry{
			ID:           tx.ID,
			Date:         tx.Date,
			Account:      tx.Account,
			Kind:         KindExpense,
			Amount:       tx.Amount.Abs().Neg(),
			CategoryPath: tx.Category.String(),
			Note:         tx.Description,
			Source:       SourceRef{Kind: SourceTransaction, ID: tx.ID},
			Seq:          len(out),
		}
		if tx.Type == core.Income {
			e.Kind = KindIncome
			e.Amount = tx.Amount.Abs()
		}
		out = append(out, e)
	}

	for _, tr := range transfers {
		ref := SourceRef{Kind: SourceTransfer, ID: tr.ID}
		if tr.Outflow.IsPositive() {
			out = append(out, Entry{
				ID:           tr.ID + ":out",
				Date:         tr.Date,
				Account:      tr.Route.Source,
				Kind:         KindTransferOut,
				Amount:       tr.Outflow.Neg(),
				CategoryPath: "transferred to " + tr.Route.Destination,
				Note:         tr.Note,
				Source:       ref,
				Seq:          len(out),
			})
		}
		if tr.Inflow.IsPositive() {
			out = append(out, Entry{
				ID:           tr.ID + ":in",
				Date:         tr.Date,
				Account:      tr.Route.Destination,
				Kind:         KindTransferIn,
				Amount:       tr.Inflow,
				CategoryPath: "transferred from " + tr.Route.Source,
				Note:         tr.Note,
				Source:       ref,
				Seq:          len(out),
			})
		}
	}

	return out
}
