// Package basis builds the low-order 2D polynomial images used to model a
// smooth multiplicative bias field.
package basis

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Count is the number of basis functions in a Set
const Count = 10

// Set holds Count normalized polynomial images over a Width x Height grid.
// Each image is stored row-major, index y*Width + x.
type Set struct {
	Width  int
	Height int

	funcs [Count][]float64
}

// New builds the basis over a width x height grid. Coordinates run over
// [-1, 1] with x along columns and y along rows. Every function is scaled so
// that its sum of squares over the full grid is 1.
func New(width, height int) *Set {
	s := &Set{Width: width, Height: height}
	n := width * height
	for k := range s.funcs {
		s.funcs[k] = make([]float64, n)
	}

	xs := linspace(width)
	ys := linspace(height)

	for r := 0; r < height; r++ {
		y := ys[r]
		py2 := (3*y*y - 1) / 2
		py3 := (5*y*y*y - 3*y) / 2
		for c := 0; c < width; c++ {
			x := xs[c]
			px2 := (3*x*x - 1) / 2
			px3 := (5*x*x*x - 3*x) / 2
			i := r*width + c

			s.funcs[0][i] = 1
			s.funcs[1][i] = x
			s.funcs[2][i] = px2
			s.funcs[3][i] = px3
			s.funcs[4][i] = y
			s.funcs[5][i] = x * y
			s.funcs[6][i] = y * px2
			s.funcs[7][i] = py2
			s.funcs[8][i] = py2 * x
			s.funcs[9][i] = py3
		}
	}

	for k := range s.funcs {
		// Legendre polynomials are +-1 at the grid corner, so the norm is never zero.
		norm := math.Sqrt(floats.Dot(s.funcs[k], s.funcs[k]))
		floats.Scale(1/norm, s.funcs[k])
	}

	return s
}

// Len returns the number of basis functions
func (s *Set) Len() int { return Count }

// At returns basis image k. Callers must not modify it.
func (s *Set) At(k int) []float64 { return s.funcs[k] }

// Combine evaluates sum_k w[k]*Basis_k over the full grid
func (s *Set) Combine(w []float64) []float64 {
	out := make([]float64, s.Width*s.Height)
	for k := 0; k < Count && k < len(w); k++ {
		floats.AddScaled(out, w[k], s.funcs[k])
	}
	return out
}

// linspace returns n evenly spaced samples over [-1, 1]. A single sample sits
// at -1, matching the usual linspace convention.
func linspace(n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = -1
		return out
	}
	step := 2 / float64(n-1)
	for i := range out {
		out[i] = -1 + float64(i)*step
	}
	return out
}
