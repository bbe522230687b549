package mico

import (
	"errors"
	"math"
	"testing"

	"micobias/internal/models"
	"micobias/pkg/basis"
)

// TestUpdateC checks the weighted least-squares constants and the zero guard
func TestUpdateC(t *testing.T) {
	img := []float64{10, 20, 30}
	roi := []bool{true, true, false}
	b := []float64{1, 1, 1}

	m := NewMembership(3, 1, 2)
	copy(m.Plane(0), []float64{1, 0.5, 1})
	// class 1 has no weight inside the ROI

	c := make([]float64, 2)
	updateC(img, roi, b, m, 1, c)
	if math.Abs(c[0]-20.0/1.5) > 1e-12 {
		t.Errorf("Expected C[0]=%f, got %f", 20.0/1.5, c[0])
	}
	if c[1] != 0 {
		t.Errorf("Zero denominator should give 0, got %f", c[1])
	}

	// fuzzifier-consistent weighting uses M^q
	updateC(img, roi, b, m, 2, c)
	if math.Abs(c[0]-12) > 1e-12 {
		t.Errorf("Expected C[0]=12 with squared weights, got %f", c[0])
	}
}

// TestUpdateMHard assigns each pixel to the nearest class
func TestUpdateMHard(t *testing.T) {
	img := []float64{1, 4, 9, 5}
	b := []float64{1, 1, 1, 2}
	c := []float64{2, 8}
	m := NewMembership(4, 1, 2)

	if err := updateM(img, b, c, 1, m); err != nil {
		t.Fatalf("updateM failed: %v", err)
	}

	// pixel 3: |5-4| = 1 vs |5-16| = 11
	want := []int{0, 0, 1, 0}
	for i, k := range want {
		if m.Plane(k)[i] != 1 || m.Plane(1-k)[i] != 0 {
			t.Errorf("pixel %d: expected class %d, got [%f %f]", i, k, m.Plane(0)[i], m.Plane(1)[i])
		}
	}

	// ties go to the lowest index
	tie := NewMembership(1, 1, 2)
	if err := updateM([]float64{5}, []float64{1}, []float64{4, 6}, 1, tie); err != nil {
		t.Fatalf("updateM failed: %v", err)
	}
	if tie.Plane(0)[0] != 1 {
		t.Errorf("Tie should resolve to class 0")
	}
}

// TestUpdateMSoft compares against the closed form for q=2
func TestUpdateMSoft(t *testing.T) {
	img := []float64{3}
	b := []float64{1}
	c := []float64{1, 4}
	m := NewMembership(1, 1, 2)

	if err := updateM(img, b, c, 2, m); err != nil {
		t.Fatalf("updateM failed: %v", err)
	}

	// D = [4, 1], f = 1/D = [0.25, 1]
	want0 := 0.25 / 1.25
	if math.Abs(m.Plane(0)[0]-want0) > 1e-9 {
		t.Errorf("Expected M0=%f, got %f", want0, m.Plane(0)[0])
	}

	// zero residual stays finite and dominates
	img[0] = 4
	if err := updateM(img, b, c, 1.01, m); err != nil {
		t.Fatalf("updateM failed: %v", err)
	}
	if math.IsNaN(m.Plane(1)[0]) || m.Plane(1)[0] < 0.999 {
		t.Errorf("Expected membership near 1 for exact match, got %f", m.Plane(1)[0])
	}
}

// TestUpdateMWrongFuzzifier rejects q < 1
func TestUpdateMWrongFuzzifier(t *testing.T) {
	m := NewMembership(1, 1, 1)
	err := updateM([]float64{1}, []float64{1}, []float64{1}, 0.5, m)
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration, got %v", err)
	}
}

// TestBiasSystemSymmetric checks the assembled matrix against direct sums
func TestBiasSystemSymmetric(t *testing.T) {
	img := models.NewSlice(12, 10)
	mask := models.NewMask(12, 10)
	for i := range img.Data {
		img.Data[i] = float64(50 + i%7)
		mask.Data[i] = i%4 != 0
	}
	bs := basis.New(12, 10)
	proj := NewProjection(img, bs, mask)

	m := NewMembership(12, 10, 2)
	for i := range m.Plane(0) {
		m.Plane(0)[i] = 0.25
		m.Plane(1)[i] = 0.75
	}
	c := []float64{40, 60}

	a, v := biasSystem(2, c, m, proj)

	pc2 := 40*40*0.0625 + 60*60*0.5625
	pc := 40*0.0625 + 60*0.5625
	for i := 0; i < basis.Count; i++ {
		wantV := 0.0
		for px, in := range mask.Data {
			if in {
				wantV += img.Data[px] * bs.At(i)[px] * pc
			}
		}
		if math.Abs(v[i]-wantV) > 1e-9*math.Abs(wantV)+1e-9 {
			t.Errorf("V[%d]: expected %f, got %f", i, wantV, v[i])
		}

		for j := 0; j < basis.Count; j++ {
			wantA := 0.0
			for px, in := range mask.Data {
				if in {
					wantA += bs.At(i)[px] * bs.At(j)[px] * pc2
				}
			}
			if math.Abs(a.At(i, j)-wantA) > 1e-9*math.Abs(wantA)+1e-9 {
				t.Errorf("A[%d][%d]: expected %f, got %f", i, j, wantA, a.At(i, j))
			}
		}
	}
}

// TestProjectionMasking verifies masked zeros and the mirrored Gram storage
func TestProjectionMasking(t *testing.T) {
	img := models.NewSlice(4, 4)
	mask := models.NewMask(4, 4)
	for i := range img.Data {
		img.Data[i] = float64(i + 1)
		mask.Data[i] = i < 8
	}
	bs := basis.New(4, 4)
	p := NewProjection(img, bs, mask)

	for k := 0; k < basis.Count; k++ {
		g := p.ImgG(k)
		for i := range g {
			want := 0.0
			if mask.Data[i] {
				want = img.Data[i] * bs.At(k)[i]
			}
			if g[i] != want {
				t.Fatalf("ImgG[%d][%d]: expected %f, got %f", k, i, want, g[i])
			}
		}
	}

	for i := 0; i < basis.Count; i++ {
		for j := 0; j < basis.Count; j++ {
			a, b := p.GGT(i, j), p.GGT(j, i)
			for px := range a {
				if a[px] != b[px] {
					t.Fatalf("GGT not symmetric at (%d,%d) pixel %d", i, j, px)
				}
				if !mask.Data[px] && a[px] != 0 {
					t.Fatalf("GGT(%d,%d) pixel %d outside ROI should be 0", i, j, px)
				}
			}
		}
	}
}
