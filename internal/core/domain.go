package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO calendar date layout used on every boundary.
const DateLayout = "2006-01-02"

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

type (
	TransactionType string

	Date struct {
		time.Time
	}

	// CategoryPath names a transaction's position in the category taxonomy.
	CategoryPath struct {
		Primary   string
		Secondary string
		Tertiary  string
	}

	Transaction struct {
		ID          string
		Date        Date
		Category    CategoryPath
		Amount      decimal.Decimal // always a non-negative magnitude
		Account     string
		Type        TransactionType
		Description string
	}

	// Transfer moves money out of Route.Source and/or into Route.Destination.
	// Either leg may be zero; a record with both legs zero has no effect.
	Transfer struct {
		ID       string
		Date     Date
		Route    AccountPair
		Inflow   decimal.Decimal
		Outflow  decimal.Decimal
		Category CategoryPath
		Note     string
	}

	// BalanceAnchor is an externally asserted end-of-day balance.
	BalanceAnchor struct {
		Account string
		Date    Date
		Balance decimal.Decimal
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrEmptyAccount     = errors.New("empty account")
	ErrEmptyPrimary     = errors.New("empty primary category")
	ErrEmptyTransferLeg = errors.New("transfer has neither inflow nor outflow")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// MustDate is ParseDate for literals known to be valid.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Compare returns -1, 0 or +1 comparing calendar days only.
func (d Date) Compare(o Date) int {
	a, b := d.String(), o.String()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }
func (d Date) Equal(o Date) bool  { return d.Compare(o) == 0 }

// AddDays returns the date n calendar days later.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (t TransactionType) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidType, string(t))
}

// ParseTransactionType accepts the canonical names case-insensitively.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToLower(strings.TrimSpace(s)))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

// String joins the non-empty segments with " > ".
func (p CategoryPath) String() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.Primary, p.Secondary, p.Tertiary} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " > ")
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if t.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if err := t.Type.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Account) == "" {
		return ErrEmptyAccount
	}
	if strings.TrimSpace(t.Category.Primary) == "" {
		return ErrEmptyPrimary
	}
	return nil
}

func (t Transfer) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if t.Inflow.IsNegative() || t.Outflow.IsNegative() {
		return ErrInvalidAmount
	}
	if t.Route.IsZero() {
		return ErrEmptyAccount
	}
	return nil
}

func (a BalanceAnchor) Validate() error {
	if strings.TrimSpace(a.Account) == "" {
		return ErrEmptyAccount
	}
	return a.Date.Validate()
}
