package rollup

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Group is one row of a top-N summary.
type Group struct {
	Name       string          `json:"name"`
	Value      decimal.Decimal `json:"value"`
	Percentage float64         `json:"percentage"`
}

// GroupTopN sums value(item) per key(item), computes each group's share of
// total and sorts descending by value, ties in first-seen order. When limit
// is positive and there are more groups than limit, the tail is folded into
// one Other group.
func GroupTopN[T any](items []T, key func(T) string, value func(T) decimal.Decimal, total decimal.Decimal, limit int) []Group {
	var (
		groups []Group
		index  = make(map[string]int)
	)
	for _, item := range items {
		k := key(item)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Name: k, Value: decimal.Zero})
		}
		groups[i].Value = groups[i].Value.Add(value(item))
	}
	slices.SortStableFunc(groups, func(a, b Group) int { return b.Value.Cmp(a.Value) })

	if limit > 0 && len(groups) > limit {
		other := Group{Name: OtherName, Value: decimal.Zero}
		for _, g := range groups[limit:] {
			other.Value = other.Value.Add(g.Value)
		}
		groups = append(groups[:limit:limit], other)
	}

	out := make([]Group, len(groups))
	for i, g := range groups {
		g.Percentage = Percentage(g.Value, total)
		out[i] = g
	}
	return out
}
