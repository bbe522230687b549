package mico

import "testing"

func membershipFrom(planes ...[]float64) *Membership {
	m := NewMembership(len(planes[0]), 1, len(planes))
	for k, p := range planes {
		copy(m.Plane(k), p)
	}
	return m
}

// TestRelabelSorts orders classes and moves their planes along
func TestRelabelSorts(t *testing.T) {
	c := []float64{300, 100, 200}
	m := membershipFrom(
		[]float64{1, 0},
		[]float64{0, 1},
		[]float64{0.5, 0.5},
	)

	Relabel(c, m)

	want := []float64{100, 200, 300}
	for k := range want {
		if c[k] != want[k] {
			t.Fatalf("Expected constants %v, got %v", want, c)
		}
	}
	if m.Plane(0)[1] != 1 || m.Plane(1)[0] != 0.5 || m.Plane(2)[0] != 1 {
		t.Errorf("Membership planes were not permuted with the constants")
	}
}

// TestRelabelIdempotent applies Relabel twice
func TestRelabelIdempotent(t *testing.T) {
	c := []float64{5, 1, 5, 3}
	m := membershipFrom(
		[]float64{0.1},
		[]float64{0.2},
		[]float64{0.3},
		[]float64{0.4},
	)

	Relabel(c, m)
	first := append([]float64(nil), c...)
	firstPlanes := make([]float64, m.Classes)
	for k := range firstPlanes {
		firstPlanes[k] = m.Plane(k)[0]
	}

	Relabel(c, m)
	for k := range c {
		if c[k] != first[k] || m.Plane(k)[0] != firstPlanes[k] {
			t.Fatalf("Second relabel changed class %d", k)
		}
	}

	// ties keep their original order: the two 5s were classes 0 and 2
	if firstPlanes[2] != 0.1 || firstPlanes[3] != 0.3 {
		t.Errorf("Ties should keep original order, got planes %v", firstPlanes)
	}
}

// TestLabels picks the largest membership, lowest class on ties
func TestLabels(t *testing.T) {
	m := NewMembership(3, 1, 3)
	copy(m.Plane(0), []float64{0.2, 0.5, 0.1})
	copy(m.Plane(1), []float64{0.7, 0.5, 0.1})
	copy(m.Plane(2), []float64{0.1, 0.0, 0.8})

	want := []int{1, 0, 2}
	got := m.Labels()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pixel %d: expected class %d, got %d", i, want[i], got[i])
		}
	}
}
