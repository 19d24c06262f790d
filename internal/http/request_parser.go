package http

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"saldo/internal/core"
	"saldo/internal/ledger"
	"saldo/internal/report"
)

// invalid marks a parameter error so it maps to 400.
func invalid(err error) error {
	return fmt.Errorf("%w: %w", report.ErrInvalidQuery, err)
}

// MaxFillDays bounds the period of a gap-filled daily series.
const MaxFillDays = 3660

// ParseLedgerQuery reads account, the period and fill. The period is
// from/to when both are given, otherwise the month (when set) or the year,
// which defaults to the current one. Filled series are limited to
// MaxFillDays.
func ParseLedgerQuery(q url.Values, now time.Time) (report.LedgerQuery, error) {
	account := sanitizeInput(q.Get("account"))
	if account == "" {
		return report.LedgerQuery{}, invalid(core.ErrEmptyAccount)
	}

	period, err := ParsePeriod(q, now)
	if err != nil {
		return report.LedgerQuery{}, err
	}

	fill, err := boolParam(q, "fill")
	if err != nil {
		return report.LedgerQuery{}, invalid(err)
	}
	if fill && period.Days() > MaxFillDays {
		return report.LedgerQuery{}, invalid(fmt.Errorf("fill covers at most %d days, got %d", MaxFillDays, period.Days()))
	}

	return report.LedgerQuery{Account: account, Period: period, Fill: fill}, nil
}

// ParsePeriod resolves from/to, year/month or the current year.
func ParsePeriod(q url.Values, now time.Time) (ledger.Period, error) {
	from, to := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))
	if from != "" || to != "" {
		if from == "" || to == "" {
			return ledger.Period{}, invalid(errors.New("from and to must be given together"))
		}
		start, err := core.ParseDate(from)
		if err != nil {
			return ledger.Period{}, invalid(err)
		}
		end, err := core.ParseDate(to)
		if err != nil {
			return ledger.Period{}, invalid(err)
		}
		p := ledger.Period{Start: start, End: end}
		if err := p.Validate(); err != nil {
			return ledger.Period{}, invalid(err)
		}
		return p, nil
	}

	year, err := intParam(q, "year", now.Year())
	if err != nil {
		return ledger.Period{}, invalid(err)
	}
	if year < 1 || year > 9999 {
		return ledger.Period{}, invalid(fmt.Errorf("year %d out of range", year))
	}
	month, err := intParam(q, "month", 0)
	if err != nil {
		return ledger.Period{}, invalid(err)
	}
	switch {
	case month == 0:
		return ledger.YearPeriod(year), nil
	case month < 1 || month > 12:
		return ledger.Period{}, invalid(fmt.Errorf("month %d out of range", month))
	}
	return ledger.MonthPeriod(year, month), nil
}

// ParseCategoryQuery reads year (0 or absent selects every year), type and
// threshold. An absent threshold selects the service default.
func ParseCategoryQuery(q url.Values) (report.CategoryQuery, error) {
	year, typ, err := parseYearType(q)
	if err != nil {
		return report.CategoryQuery{}, err
	}
	threshold := -1.0
	if strings.TrimSpace(q.Get("threshold")) != "" {
		if threshold, err = floatParam(q, "threshold", 0); err != nil {
			return report.CategoryQuery{}, invalid(err)
		}
		if threshold < 0 {
			return report.CategoryQuery{}, invalid(fmt.Errorf("threshold %g below 0", threshold))
		}
	}
	return report.CategoryQuery{Year: year, Type: typ, Threshold: threshold}, nil
}

// ParseSummaryQuery reads year, type and limit. A zero limit keeps every
// group.
func ParseSummaryQuery(q url.Values) (report.SummaryQuery, error) {
	year, typ, err := parseYearType(q)
	if err != nil {
		return report.SummaryQuery{}, err
	}
	limit, err := intParam(q, "limit", 0)
	if err != nil {
		return report.SummaryQuery{}, invalid(err)
	}
	return report.SummaryQuery{Year: year, Type: typ, Limit: limit}, nil
}

func parseYearType(q url.Values) (int, core.TransactionType, error) {
	year, err := intParam(q, "year", 0)
	if err != nil {
		return 0, "", invalid(err)
	}
	typ := core.Expense
	if v := q.Get("type"); strings.TrimSpace(v) != "" {
		if typ, err = core.ParseTransactionType(v); err != nil {
			return 0, "", invalid(err)
		}
	}
	return year, typ, nil
}
