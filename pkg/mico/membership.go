package mico

// Membership is a fixed-shape fuzzy partition with one Width*Height plane per
// class. Planes are row-major, index y*Width + x.
type Membership struct {
	Width   int
	Height  int
	Classes int

	planes [][]float64
}

// NewMembership allocates a zero membership tensor
func NewMembership(width, height, classes int) *Membership {
	m := &Membership{
		Width:   width,
		Height:  height,
		Classes: classes,
		planes:  make([][]float64, classes),
	}
	for k := range m.planes {
		m.planes[k] = make([]float64, width*height)
	}
	return m
}

// Plane returns the membership image of class k
func (m *Membership) Plane(k int) []float64 { return m.planes[k] }

// Sum returns the total membership of pixel index i across classes
func (m *Membership) Sum(i int) float64 {
	s := 0.0
	for _, p := range m.planes {
		s += p[i]
	}
	return s
}

// Labels returns the class of highest membership per pixel, lowest index on
// ties
func (m *Membership) Labels() []int {
	labels := make([]int, m.Width*m.Height)
	for i := range labels {
		best := 0
		for k := 1; k < m.Classes; k++ {
			if m.planes[k][i] > m.planes[best][i] {
				best = k
			}
		}
		labels[i] = best
	}
	return labels
}
