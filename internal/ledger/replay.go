package ledger

import (
	"cmp"
	"slices"

	"saldo/internal/core"

	"github.com/shopspring/decimal"
)

// DailyBalance is the end-of-day balance for a date with activity, plus the
// income and expense flows of that day. Transfer legs move the balance but
// are not counted as income or expense.
type DailyBalance struct {
	Date    core.Date       `json:"date"`
	Balance decimal.Decimal `json:"balance"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

// AnnotatedEntry is an in-period entry with the running balance after it.
type AnnotatedEntry struct {
	ID           string          `json:"id"`
	Date         core.Date       `json:"date"`
	CategoryPath string          `json:"category_path"`
	Kind         Kind            `json:"kind"`
	Magnitude    decimal.Decimal `json:"magnitude"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Note         string          `json:"note,omitempty"`
}

// Summary aggregates a reconstructed period.
type Summary struct {
	TotalIncome  decimal.Decimal `json:"total_income"`
	TotalExpense decimal.Decimal `json:"total_expense"`
	// InitialBalance is the anchor balance, or zero without an anchor.
	InitialBalance decimal.Decimal `json:"initial_balance"`
	// OpeningBalance is the replayed balance right before the period starts.
	OpeningBalance decimal.Decimal     `json:"opening_balance"`
	FinalBalance   decimal.Decimal     `json:"final_balance"`
	HasAnchor      bool                `json:"has_anchor"`
	Anchor         *core.BalanceAnchor `json:"anchor,omitempty"`
}

// Report is the reconstruction of one account over one period. Summary is
// nil when the account has no entries at all.
type Report struct {
	Account string           `json:"account"`
	Period  Period           `json:"period"`
	Daily   []DailyBalance   `json:"daily"`
	Entries []AnnotatedEntry `json:"entries"`
	Summary *Summary         `json:"summary"`
}

// SelectAnchor returns the latest anchor for account dated on or before
// start. Anchors sharing that date resolve to the last one in input order.
func SelectAnchor(anchors []core.BalanceAnchor, account string, start core.Date) (core.BalanceAnchor, bool) {
	var (
		best  core.BalanceAnchor
		found bool
	)
	for _, a := range anchors {
		if a.Account != account || a.Date.After(start) {
			continue
		}
		if !found || !a.Date.Before(best.Date) {
			best, found = a, true
		}
	}
	return best, found
}

// Reconstruct replays the entries of account in date order and reports the
// daily balance series, the annotated in-period entries and a summary.
//
// With an anchor, entries dated before it are already reflected in its
// balance and entries dated on it are skipped: the anchor is an end-of-day
// value, so every entry of that day is assumed included. Replay stops at the
// first entry after period.End.
func Reconstruct(entries []Entry, account string, anchors []core.BalanceAnchor, period Period) Report {
	rep := Report{
		Account: account,
		Period:  period,
		Daily:   []DailyBalance{},
		Entries: []AnnotatedEntry{},
	}
	if account == "" {
		return rep
	}

	own := make([]Entry, 0)
	for _, e := range entries {
		if e.Account == account {
			own = append(own, e)
		}
	}
	if len(own) == 0 {
		return rep
	}
	slices.SortStableFunc(own, func(a, b Entry) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})

	anchor, hasAnchor := SelectAnchor(anchors, account, period.Start)
	balance := decimal.Zero
	if hasAnchor {
		balance = anchor.Balance
	}
	summary := &Summary{
		TotalIncome:    decimal.Zero,
		TotalExpense:   decimal.Zero,
		InitialBalance: balance,
		HasAnchor:      hasAnchor,
	}
	if hasAnchor {
		a := anchor
		summary.Anchor = &a
	}

	opened := false
	for _, e := range own {
		if e.Date.After(period.End) {
			break
		}
		if hasAnchor && !e.Date.After(anchor.Date) {
			continue
		}
		if !opened && !e.Date.Before(period.Start) {
			summary.OpeningBalance = balance
			opened = true
		}

		balance = balance.Add(e.Amount)
		if e.Date.Before(period.Start) {
			continue
		}

		n := len(rep.Daily)
		if n == 0 || !rep.Daily[n-1].Date.Equal(e.Date) {
			rep.Daily = append(rep.Daily, DailyBalance{
				Date:    e.Date,
				Income:  decimal.Zero,
				Expense: decimal.Zero,
			})
			n++
		}
		day := &rep.Daily[n-1]
		day.Balance = balance

		switch e.Kind {
		case KindIncome:
			day.Income = day.Income.Add(e.Magnitude())
			summary.TotalIncome = summary.TotalIncome.Add(e.Magnitude())
		case KindExpense:
			day.Expense = day.Expense.Add(e.Magnitude())
			summary.TotalExpense = summary.TotalExpense.Add(e.Magnitude())
		}

		rep.Entries = append(rep.Entries, AnnotatedEntry{
			ID:           e.ID,
			Date:         e.Date,
			CategoryPath: e.CategoryPath,
			Kind:         e.Kind,
			Magnitude:    e.Magnitude(),
			BalanceAfter: balance,
			Note:         e.Note,
		})
	}
	if !opened {
		summary.OpeningBalance = balance
	}
	summary.FinalBalance = balance
	rep.Summary = summary
	return rep
}

// FillDaily expands a sparse daily series into one point per day of period.
// Days without activity carry the previous balance forward, starting from
// opening, with zero flows.
func FillDaily(daily []DailyBalance, period Period, opening decimal.Decimal) []DailyBalance {
	days := period.Days()
	out := make([]DailyBalance, 0, days)
	balance := opening
	i := 0
	for d := 0; d < days; d++ {
		date := period.Start.AddDays(d)
		for i < len(daily) && daily[i].Date.Before(date) {
			i++
		}
		if i < len(daily) && daily[i].Date.Equal(date) {
			balance = daily[i].Balance
			out = append(out, daily[i])
			continue
		}
		out = append(out, DailyBalance{
			Date:    date,
			Balance: balance,
			Income:  decimal.Zero,
			Expense: decimal.Zero,
		})
	}
	return out
}
