// Package rollup aggregates categorized transactions into a three level
// primary/secondary/tertiary hierarchy with percentage shares, and folds
// small buckets into "Other" for chart views.
package rollup

import (
	"slices"

	"saldo/internal/core"

	"github.com/shopspring/decimal"
)

// DefaultThreshold is the percentage under which buckets fold into Other.
const DefaultThreshold = 5.0

// OtherName labels synthetic buckets holding sub-threshold totals.
const OtherName = "Other"

var hundred = decimal.NewFromInt(100)

// Member is a transaction counted in a tertiary bucket.
type Member struct {
	ID     string          `json:"id"`
	Date   core.Date       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

type Tertiary struct {
	Name       string          `json:"name"`
	Total      decimal.Decimal `json:"total"`
	Percentage float64         `json:"percentage"`
	Members    []Member        `json:"members"`
}

type Secondary struct {
	Name       string          `json:"name"`
	Parent     string          `json:"parent"`
	Total      decimal.Decimal `json:"total"`
	Percentage float64         `json:"percentage"`
	Children   []Tertiary      `json:"children"`
}

type Primary struct {
	Name       string          `json:"name"`
	Total      decimal.Decimal `json:"total"`
	Percentage float64         `json:"percentage"`
	Children   []Secondary     `json:"children"`
}

// Result holds the three views of a rollup.
//
// Detail is the full hierarchy and is never consolidated. Chart keeps the
// primaries at or above the threshold plus one childless Other. OuterPie
// flattens all secondaries across primaries with the same folding rule.
type Result struct {
	Detail   []Primary   `json:"detail"`
	Chart    []Primary   `json:"chart"`
	OuterPie []Secondary `json:"outer_pie"`
}

// Percentage returns part as a share of total, or 0 when total is zero.
func Percentage(part, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	return part.Div(total).Mul(hundred).InexactFloat64()
}

// GrandTotal sums the amounts of txs.
func GrandTotal(txs []core.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return total
}

// Build computes the rollup of txs against grandTotal. Amounts are taken as
// magnitudes; callers filter by type or period beforehand.
func Build(txs []core.Transaction, grandTotal decimal.Decimal, threshold float64) Result {
	var (
		primaries []*primaryNode
		byPrimary = make(map[string]*primaryNode)
	)

	// Skeleton pass: primary and secondary totals in first-seen order.
	for _, tx := range txs {
		p, ok := byPrimary[tx.Category.Primary]
		if !ok {
			p = &primaryNode{name: tx.Category.Primary, total: decimal.Zero, bySecondary: make(map[string]*secondaryNode)}
			byPrimary[p.name] = p
			primaries = append(primaries, p)
		}
		p.total = p.total.Add(tx.Amount)

		s, ok := p.bySecondary[tx.Category.Secondary]
		if !ok {
			s = &secondaryNode{name: tx.Category.Secondary, total: decimal.Zero, byTertiary: make(map[string]*tertiaryNode)}
			p.bySecondary[s.name] = s
			p.secondaries = append(p.secondaries, s)
		}
		s.total = s.total.Add(tx.Amount)
	}

	// Leaf pass: tertiary buckets and their members.
	for _, tx := range txs {
		s := byPrimary[tx.Category.Primary].bySecondary[tx.Category.Secondary]
		t, ok := s.byTertiary[tx.Category.Tertiary]
		if !ok {
			t = &tertiaryNode{name: tx.Category.Tertiary, total: decimal.Zero}
			s.byTertiary[t.name] = t
			s.tertiaries = append(s.tertiaries, t)
		}
		t.total = t.total.Add(tx.Amount)
		t.members = append(t.members, Member{ID: tx.ID, Date: tx.Date, Amount: tx.Amount})
	}

	detail := make([]Primary, 0, len(primaries))
	for _, p := range primaries {
		detail = append(detail, p.export(grandTotal))
	}
	slices.SortStableFunc(detail, func(a, b Primary) int { return b.Total.Cmp(a.Total) })

	return Result{
		Detail:   detail,
		Chart:    chart(detail, grandTotal, threshold),
		OuterPie: outerPie(detail, grandTotal, threshold),
	}
}

func chart(detail []Primary, grandTotal decimal.Decimal, threshold float64) []Primary {
	out := make([]Primary, 0, len(detail)+1)
	other := Primary{Name: OtherName, Total: decimal.Zero, Children: []Secondary{}}
	folded := false
	for _, p := range detail {
		if p.Percentage >= threshold {
			out = append(out, p)
			continue
		}
		other.Total = other.Total.Add(p.Total)
		folded = true
	}
	if folded {
		other.Percentage = Percentage(other.Total, grandTotal)
		out = append(out, other)
	}
	return out
}

func outerPie(detail []Primary, grandTotal decimal.Decimal, threshold float64) []Secondary {
	var flat []Secondary
	for _, p := range detail {
		flat = append(flat, p.Children...)
	}
	slices.SortStableFunc(flat, func(a, b Secondary) int { return b.Total.Cmp(a.Total) })

	out := make([]Secondary, 0, len(flat)+1)
	other := Secondary{Name: OtherName, Total: decimal.Zero, Children: []Tertiary{}}
	folded := false
	for _, s := range flat {
		if s.Percentage >= threshold {
			out = append(out, s)
			continue
		}
		other.Total = other.Total.Add(s.Total)
		folded = true
	}
	if folded {
		other.Percentage = Percentage(other.Total, grandTotal)
		out = append(out, other)
	}
	return out
}

type primaryNode struct {
	name        string
	total       decimal.Decimal
	secondaries []*secondaryNode
	bySecondary map[string]*secondaryNode
}

type secondaryNode struct {
	name       string
	total      decimal.Decimal
	tertiaries []*tertiaryNode
	byTertiary map[string]*tertiaryNode
}

type tertiaryNode struct {
	name    string
	total   decimal.Decimal
	members []Member
}

func (p *primaryNode) export(grandTotal decimal.Decimal) Primary {
	out := Primary{
		Name:       p.name,
		Total:      p.total,
		Percentage: Percentage(p.total, grandTotal),
		Children:   make([]Secondary, 0, len(p.secondaries)),
	}
	for _, s := range p.secondaries {
		out.Children = append(out.Children, s.export(p.name, grandTotal))
	}
	slices.SortStableFunc(out.Children, func(a, b Secondary) int { return b.Total.Cmp(a.Total) })
	return out
}

func (s *secondaryNode) export(parent string, grandTotal decimal.Decimal) Secondary {
	out := Secondary{
		Name:       s.name,
		Parent:     parent,
		Total:      s.total,
		Percentage: Percentage(s.total, grandTotal),
		Children:   make([]Tertiary, 0, len(s.tertiaries)),
	}
	for _, t := range s.tertiaries {
		members := slices.Clone(t.members)
		slices.SortStableFunc(members, func(a, b Member) int { return b.Date.Compare(a.Date) })
		out.Children = append(out.Children, Tertiary{
			Name:       t.name,
			Total:      t.total,
			Percentage: Percentage(t.total, grandTotal),
			Members:    members,
		})
	}
	slices.SortStableFunc(out.Children, func(a, b Tertiary) int { return b.Total.Cmp(a.Total) })
	return out
}
