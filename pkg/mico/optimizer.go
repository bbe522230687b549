package mico

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"micobias/pkg/basis"
)

// residualEpsilon keeps the fuzzy update finite at zero residual
const residualEpsilon = 1e-12

// updateC computes the class constants for fixed b and M:
//
//	C_k = sum(b*Img*w_k*ROI) / sum(b^2*w_k*ROI),  w_k = M_k^exp
//
// A zero denominator yields 0.
func updateC(img []float64, roi []bool, b []float64, m *Membership, exp float64, c []float64) {
	for k := range c {
		plane := m.Plane(k)
		var num, den float64
		for i, in := range roi {
			if !in {
				continue
			}
			w := plane[i]
			if exp != 1 {
				w = math.Pow(w, exp)
			}
			num += b[i] * img[i] * w
			den += b[i] * b[i] * w
		}
		if den == 0 {
			c[k] = 0
			continue
		}
		c[k] = num / den
	}
}

// updateM recomputes the memberships from the residuals (Img - C_k*b)^2 over
// the whole grid. q == 1 assigns each pixel to its closest class; q > 1 gives
// the normalized (D_k + eps)^(-1/(q-1)) partition.
func updateM(img, b, c []float64, q float64, m *Membership) error {
	classes := len(c)

	switch {
	case q == 1:
		for i := range img {
			best, bestD := 0, math.Inf(1)
			for k := 0; k < classes; k++ {
				r := img[i] - c[k]*b[i]
				if d := r * r; d < bestD {
					best, bestD = k, d
				}
			}
			for k := 0; k < classes; k++ {
				m.planes[k][i] = 0
			}
			m.planes[best][i] = 1
		}

	case q > 1:
		p := 1 / (q - 1)
		logf := make([]float64, classes)
		for i := range img {
			// normalize in log space so large exponents cannot overflow
			maxLog := math.Inf(-1)
			for k := 0; k < classes; k++ {
				r := img[i] - c[k]*b[i]
				logf[k] = -p * math.Log(r*r+residualEpsilon)
				if logf[k] > maxLog {
					maxLog = logf[k]
				}
			}
			sum := 0.0
			for k := 0; k < classes; k++ {
				logf[k] = math.Exp(logf[k] - maxLog)
				sum += logf[k]
			}
			for k := 0; k < classes; k++ {
				m.planes[k][i] = logf[k] / sum
			}
		}

	default:
		return fmt.Errorf("%w: wrong fuzzifier %g", ErrConfiguration, q)
	}

	return nil
}

// biasSystem assembles the normal equations A*w = V of the bias fit:
//
//	V[i]    = sum(ImgG_i * PC)
//	A[i][j] = sum(GGT_ij * PC2)
//
// with PC = sum_k C_k*M_k^q and PC2 = sum_k C_k^2*M_k^q.
func biasSystem(q float64, c []float64, m *Membership, proj *Projection) (*mat.SymDense, []float64) {
	n := m.Width * m.Height
	pc := make([]float64, n)
	pc2 := make([]float64, n)

	for k, ck := range c {
		plane := m.Plane(k)
		for i, v := range plane {
			if q != 1 {
				v = math.Pow(v, q)
			}
			pc[i] += ck * v
			pc2[i] += ck * ck * v
		}
	}

	v := make([]float64, basis.Count)
	a := mat.NewSymDense(basis.Count, nil)
	for i := 0; i < basis.Count; i++ {
		v[i] = floats.Dot(proj.ImgG(i), pc)
		for j := i; j < basis.Count; j++ {
			a.SetSym(i, j, floats.Dot(proj.GGT(i, j), pc2))
		}
	}

	return a, v
}

// updateB fits the bias field and evaluates it over the full grid. The
// returned flag reports whether diagonal loading was needed.
func updateB(q float64, c []float64, m *Membership, bs *basis.Set, proj *Projection, opts Options) ([]float64, bool, error) {
	a, v := biasSystem(q, c, m, proj)

	w, regularized, err := solveBias(a, v, opts)
	if err != nil {
		return nil, false, err
	}

	b := bs.Combine(w)
	for _, x := range b {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, false, fmt.Errorf("%w: bias field is not finite", ErrNumerical)
		}
	}
	return b, regularized, nil
}

// solveBias solves the symmetric system, retrying once with A + lambda*I
// under the ridge policy
func solveBias(a *mat.SymDense, v []float64, opts Options) ([]float64, bool, error) {
	w, err := solveSym(a, v, opts.MaxCondition)
	if err == nil {
		return w, false, nil
	}
	if opts.Singular == SingularSkip || opts.Ridge == 0 {
		return nil, false, fmt.Errorf("%w: bias system: %v", ErrNumerical, err)
	}

	n, _ := a.Dims()
	lambda := opts.Ridge * mat.Trace(a) / float64(n)
	if !(lambda > 0) {
		return nil, false, fmt.Errorf("%w: bias system is empty: %v", ErrNumerical, err)
	}

	reg := mat.NewSymDense(n, nil)
	reg.CopySym(a)
	for i := 0; i < n; i++ {
		reg.SetSym(i, i, a.At(i, i)+lambda)
	}

	w, err = solveSym(reg, v, opts.MaxCondition)
	if err != nil {
		return nil, false, fmt.Errorf("%w: bias system singular after ridge %g: %v", ErrNumerical, lambda, err)
	}
	return w, true, nil
}

func solveSym(a *mat.SymDense, v []float64, maxCond float64) ([]float64, error) {
	n, _ := a.Dims()

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, errors.New("matrix is not positive definite")
	}
	if cond := chol.Cond(); math.IsNaN(cond) || cond > maxCond {
		return nil, fmt.Errorf("condition number %.3g exceeds %.3g", cond, maxCond)
	}

	x := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(x, mat.NewVecDense(n, v)); err != nil {
		return nil, err
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = x.AtVec(i)
		if math.IsNaN(w[i]) || math.IsInf(w[i], 0) {
			return nil, errors.New("solution is not finite")
		}
	}
	return w, nil
}

// energy returns sum_k sum(ROI * (Img - b*C_k)^2 * M_k^q)
func energy(img []float64, roi []bool, b, c []float64, m *Membership, q float64) float64 {
	e := 0.0
	for k, ck := range c {
		plane := m.Plane(k)
		for i, in := range roi {
			if !in {
				continue
			}
			w := plane[i]
			if q != 1 {
				w = math.Pow(w, q)
			}
			r := img[i] - b[i]*ck
			e += r * r * w
		}
	}
	return e
}

// initRandom draws C in (0, A] and a per-pixel normalized random M
func initRandom(img []float64, roi []bool, c []float64, m *Membership, seed int64) {
	rng := rand.New(rand.NewSource(seed))

	a := 0.0
	for i, in := range roi {
		if in && img[i] > a {
			a = img[i]
		}
	}
	for k := range c {
		c[k] = a * (1 - rng.Float64())
	}

	for i := 0; i < m.Width*m.Height; i++ {
		sum := 0.0
		for k := 0; k < m.Classes; k++ {
			v := 1 - rng.Float64()
			m.planes[k][i] = v
			sum += v
		}
		for k := 0; k < m.Classes; k++ {
			m.planes[k][i] /= sum
		}
	}
}

// initPercentile places C_k at the (k+1/2)/K quantile of the ROI intensities
// and derives M for a flat bias field
func initPercentile(img []float64, roi []bool, b, c []float64, q float64, m *Membership) error {
	values := make([]float64, 0, len(img))
	for i, in := range roi {
		if in {
			values = append(values, img[i])
		}
	}
	sort.Float64s(values)

	for k := range c {
		p := (float64(k) + 0.5) / float64(len(c))
		c[k] = stat.Quantile(p, stat.Empirical, values, nil)
	}

	return updateM(img, b, c, q, m)
}
