// Package mico estimates a smooth multiplicative bias field and fuzzy tissue
// memberships from a single 2D MRI slice (Multiplicative Intrinsic Component
// Optimization).
//
// Each outer iteration alternates InnerIters sweeps of the class constant and
// membership updates with one least-squares fit of the bias field in a fixed
// 10-function polynomial basis. The iteration count is fixed unless
// Options.EnergyTolerance enables an early exit.
package mico

import (
	"context"
	"fmt"
	"math"

	"micobias/internal/models"
	"micobias/pkg/basis"
	"micobias/pkg/roi"
)

// Result holds the estimator output for one slice
type Result struct {
	// Bias is the estimated multiplicative field over the full grid
	Bias []float64

	// Membership is ordered by ascending class constant
	Membership *Membership

	// Constants are the class intensities in ascending order
	Constants []float64

	// Energy has one value per completed outer iteration
	Energy []float64

	// Corrected is max(Img/Bias, 0); pixels with Bias <= 0 are 0
	Corrected models.Slice

	// ROI is the mask the fit was restricted to
	ROI models.Mask

	// Regularized counts outer iterations whose bias system needed ridge loading
	Regularized int
}

// Estimator runs MICO on slices of one grid size. The basis is shared across
// calls and never modified, so one Estimator may serve concurrent callers.
type Estimator struct {
	opts  Options
	basis *basis.Set
}

// NewEstimator validates opts and builds the basis for a width x height grid
func NewEstimator(width, height int, opts Options) (*Estimator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid grid %dx%d", ErrConfiguration, width, height)
	}
	return &Estimator{opts: opts, basis: basis.New(width, height)}, nil
}

// CorrectSlice runs the estimator once on img. It is the one-shot form of
// NewEstimator followed by Correct.
func CorrectSlice(ctx context.Context, img models.Slice, mask *models.Mask, opts Options) (*Result, error) {
	est, err := NewEstimator(img.Width, img.Height, opts)
	if err != nil {
		return nil, err
	}
	return est.Correct(ctx, img, mask)
}

// Correct estimates the bias field of img. A nil mask restricts the fit to
// intensity > 0. The context is checked between outer iterations.
func (e *Estimator) Correct(ctx context.Context, img models.Slice, mask *models.Mask) (*Result, error) {
	if err := img.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if img.Width != e.basis.Width || img.Height != e.basis.Height {
		return nil, fmt.Errorf("%w: slice %dx%d does not match estimator grid %dx%d",
			ErrConfiguration, img.Width, img.Height, e.basis.Width, e.basis.Height)
	}
	if mask != nil && !mask.SameShape(img) {
		return nil, fmt.Errorf("%w: mask %dx%d does not match slice %dx%d",
			ErrConfiguration, mask.Width, mask.Height, img.Width, img.Height)
	}

	region, err := roi.Resolve(img, mask, e.opts.FallbackROI)
	if err != nil {
		return nil, err
	}

	// NaN and Inf voxels never enter the ROI; the optimizer sees them as 0
	work := finiteSlice(img)

	opts := e.opts
	q := opts.Fuzzifier
	cExp := 1.0
	if opts.ConsistentC {
		cExp = q
	}

	n := img.Len()
	proj := NewProjection(work, e.basis, region)

	c := make([]float64, opts.Classes)
	m := NewMembership(img.Width, img.Height, opts.Classes)
	b := make([]float64, n)
	for i := range b {
		b[i] = 1
	}

	switch opts.Init {
	case InitPercentile:
		if err := initPercentile(work.Data, region.Data, b, c, q, m); err != nil {
			return nil, err
		}
	default:
		initRandom(work.Data, region.Data, c, m, opts.Seed)
	}

	res := &Result{
		ROI:    region,
		Energy: make([]float64, 0, opts.OuterIters),
	}

	for iter := 0; iter < opts.OuterIters; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for j := 0; j < opts.InnerIters; j++ {
			updateC(work.Data, region.Data, b, m, cExp, c)
			if err := updateM(work.Data, b, c, q, m); err != nil {
				return nil, err
			}
		}

		nb, regularized, err := updateB(q, c, m, e.basis, proj, opts)
		if err != nil {
			return nil, fmt.Errorf("outer iteration %d: %w", iter, err)
		}
		b = nb
		if regularized {
			res.Regularized++
		}

		energyNow := energy(work.Data, region.Data, b, c, m, q)
		res.Energy = append(res.Energy, energyNow)

		if opts.EnergyTolerance > 0 && iter > 0 {
			prev := res.Energy[iter-1]
			if math.Abs(prev-energyNow) <= opts.EnergyTolerance*prev {
				break
			}
		}
	}

	Relabel(c, m)

	res.Bias = b
	res.Membership = m
	res.Constants = c
	res.Corrected = Divide(img, b, 0)
	return res, nil
}

// Divide returns max(img/bias, 0), optionally clamped above by clampMax when
// it is positive. Pixels where bias <= 0 or the quotient is not finite are
// set to 0.
func Divide(img models.Slice, bias []float64, clampMax float64) models.Slice {
	out := models.NewSlice(img.Width, img.Height)
	for i, v := range img.Data {
		if bias[i] <= 0 {
			continue
		}
		x := v / bias[i]
		if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
			continue
		}
		if clampMax > 0 && x > clampMax {
			x = clampMax
		}
		out.Data[i] = x
	}
	return out
}

// finiteSlice returns img, or a copy with NaN and Inf replaced by 0 when it
// has any
func finiteSlice(img models.Slice) models.Slice {
	var out models.Slice
	for i, v := range img.Data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			continue
		}
		if out.Data == nil {
			out = models.NewSlice(img.Width, img.Height)
			copy(out.Data, img.Data)
		}
		out.Data[i] = 0
	}
	if out.Data == nil {
		return img
	}
	return out
}
