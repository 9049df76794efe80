package metrics

import "sort"

// Order is the direction of a ranking
type Order int

const (
	Ascending Order = iota
	Descending
)

// Rank sorts field rates by value and returns the first n. Ties keep their
// input order and fields without a rate are left out. A negative n returns
// every ranked field.
func Rank(rates []FieldRate, n int, order Order) []FieldRate {
	ranked := make([]FieldRate, 0, len(rates))
	for _, fr := range rates {
		if fr.Rate != nil {
			ranked = append(ranked, fr)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if order == Descending {
			return *ranked[i].Rate > *ranked[j].Rate
		}
		return *ranked[i].Rate < *ranked[j].Rate
	})

	if n >= 0 && n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}
