package mico

import (
	"errors"
	"fmt"
	"math"

	"micobias/pkg/roi"
)

var (
	// ErrConfiguration marks invalid parameters or mismatched shapes. It is
	// returned before any iteration runs.
	ErrConfiguration = errors.New("configuration error")

	// ErrNumerical marks a singular or ill-conditioned bias system, or a
	// non-finite bias field. It is recoverable per slice.
	ErrNumerical = errors.New("numerical error")

	// ErrDegenerateInput marks a slice without usable foreground
	ErrDegenerateInput = roi.ErrDegenerateInput
)

// InitMethod selects how class constants and memberships are seeded
type InitMethod string

const (
	// InitRandom draws C in (0, max ROI intensity] and a random normalized
	// membership from a seeded generator
	InitRandom InitMethod = "random"

	// InitPercentile places C at evenly spaced ROI intensity quantiles and
	// derives M from them. Fully deterministic.
	InitPercentile InitMethod = "percentile"
)

// SingularPolicy selects what happens when the bias system cannot be solved
type SingularPolicy string

const (
	// SingularRidge retries once with A + lambda*I
	SingularRidge SingularPolicy = "ridge"

	// SingularSkip fails the slice immediately
	SingularSkip SingularPolicy = "skip"
)

// Options holds the estimator parameters
type Options struct {
	// Classes is the number of fuzzy tissue classes
	Classes int

	// Fuzzifier is q: 1 gives hard memberships, > 1 soft memberships
	Fuzzifier float64

	// OuterIters is the number of bias-field updates
	OuterIters int

	// InnerIters is the number of C/M sweeps per bias-field update
	InnerIters int

	Init InitMethod
	Seed int64

	// ConsistentC weights the class-constant update by M^q instead of M
	ConsistentC bool

	// EnergyTolerance stops early once the relative energy change between
	// outer iterations falls below it. Zero always runs OuterIters.
	EnergyTolerance float64

	// Ridge scales the diagonal loading lambda = Ridge*trace(A)/10 used on retry
	Ridge float64

	// MaxCondition is the largest condition number accepted for the bias system
	MaxCondition float64

	Singular SingularPolicy

	// FallbackROI replaces an empty supplied mask with intensity > 0
	FallbackROI bool
}

// DefaultOptions returns the parameters used when nothing else is configured
func DefaultOptions() Options {
	return Options{
		Classes:      3,
		Fuzzifier:    1,
		OuterIters:   15,
		InnerIters:   2,
		Init:         InitRandom,
		Seed:         1,
		Ridge:        1e-6,
		MaxCondition: 1e12,
		Singular:     SingularRidge,
		FallbackROI:  true,
	}
}

// Validate reports the first invalid parameter, wrapped in ErrConfiguration
func (o Options) Validate() error {
	if o.Classes <= 0 {
		return fmt.Errorf("%w: classes must be positive, got %d", ErrConfiguration, o.Classes)
	}
	if math.IsNaN(o.Fuzzifier) || math.IsInf(o.Fuzzifier, 0) || o.Fuzzifier < 1 {
		return fmt.Errorf("%w: wrong fuzzifier %g, must be 1 or greater", ErrConfiguration, o.Fuzzifier)
	}
	if o.OuterIters <= 0 {
		return fmt.Errorf("%w: outer iterations must be positive, got %d", ErrConfiguration, o.OuterIters)
	}
	if o.InnerIters <= 0 {
		return fmt.Errorf("%w: inner iterations must be positive, got %d", ErrConfiguration, o.InnerIters)
	}
	switch o.Init {
	case InitRandom, InitPercentile:
	default:
		return fmt.Errorf("%w: unknown init method %q", ErrConfiguration, o.Init)
	}
	switch o.Singular {
	case SingularRidge, SingularSkip:
	default:
		return fmt.Errorf("%w: unknown singular policy %q", ErrConfiguration, o.Singular)
	}
	if o.EnergyTolerance < 0 || o.Ridge < 0 {
		return fmt.Errorf("%w: energy tolerance and ridge must be non-negative", ErrConfiguration)
	}
	if !(o.MaxCondition > 1) {
		return fmt.Errorf("%w: max condition must exceed 1, got %g", ErrConfiguration, o.MaxCondition)
	}
	return nil
}
