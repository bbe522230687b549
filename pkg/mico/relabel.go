package mico

import "sort"

// Relabel orders classes by ascending constant, in place. Ties keep their
// original order, so applying Relabel to sorted input changes nothing. The
// membership planes are permuted the same way as c.
func Relabel(c []float64, m *Membership) {
	order := make([]int, len(c))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return c[order[a]] < c[order[b]]
	})

	sorted := make([]float64, len(c))
	planes := make([][]float64, len(c))
	for dst, src := range order {
		sorted[dst] = c[src]
		if m != nil {
			planes[dst] = m.planes[src]
		}
	}

	copy(c, sorted)
	if m != nil {
		m.planes = planes
	}
}
