package ledger

import (
	"fmt"

	"saldo/internal/core"
)

// Period is an inclusive range of calendar days.
type Period struct {
	Start core.Date `json:"start"`
	End   core.Date `json:"end"`
}

// YearPeriod covers January 1st through December 31st of year.
func YearPeriod(year int) Period {
	return Period{Start: core.NewDate(year, 1, 1), End: core.NewDate(year, 12, 31)}
}

// MonthPeriod covers every day of the given month.
func MonthPeriod(year, month int) Period {
	start := core.NewDate(year, month, 1)
	return Period{Start: start, End: core.NewDate(year, month+1, 1).AddDays(-1)}
}

func (p Period) Validate() error {
	if err := p.Start.Validate(); err != nil {
		return fmt.Errorf("period start: %w", err)
	}
	if err := p.End.Validate(); err != nil {
		return fmt.Errorf("period end: %w", err)
	}
	if p.Start.After(p.End) {
		return fmt.Errorf("%w: start %s after end %s", core.ErrInvalidDate, p.Start, p.End)
	}
	return nil
}

// Contains reports whether d falls inside the period, bounds included.
func (p Period) Contains(d core.Date) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

// Days returns the number of calendar days in the period.
func (p Period) Days() int {
	if p.Start.After(p.End) {
		return 0
	}
	return int((p.End.Unix()-p.Start.Unix())/secondsPerDay) + 1
}

const secondsPerDay = 24 * 60 * 60
