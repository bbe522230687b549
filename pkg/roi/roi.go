// Package roi selects the foreground pixels the bias estimator fits against.
package roi

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"micobias/internal/models"
)

// ErrDegenerateInput is returned when no foreground pixel can be found
var ErrDegenerateInput = errors.New("degenerate input: empty region of interest")

// Policy describes how the per-volume threshold is chosen
type Policy struct {
	// Auto selects mean + 2*std of the nonzero voxels of the volume
	Auto bool

	// Value is the explicit threshold, used when Auto is false
	Value float64
}

// ParsePolicy accepts "auto" or a number
func ParsePolicy(s string) (Policy, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "auto") {
		return Policy{Auto: true}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid threshold %q: must be \"auto\" or a number", s)
	}
	return Policy{Value: v}, nil
}

// String renders the policy the way ParsePolicy accepts it
func (p Policy) String() string {
	if p.Auto {
		return "auto"
	}
	return strconv.FormatFloat(p.Value, 'g', -1, 64)
}

// Resolve returns the scalar threshold for a volume
func (p Policy) Resolve(vol *models.Volume) float64 {
	if p.Auto {
		return AutoThreshold(vol.Data)
	}
	return p.Value
}

// AutoThreshold returns mean + 2*std of the nonzero finite values. It returns
// 0 when there are none.
func AutoThreshold(data []float64) float64 {
	nonzero := make([]float64, 0, len(data))
	for _, v := range data {
		if v != 0 && finite(v) {
			nonzero = append(nonzero, v)
		}
	}
	if len(nonzero) == 0 {
		return 0
	}
	mean, variance := stat.PopMeanVariance(nonzero, nil)
	if variance < 0 {
		variance = 0
	}
	return mean + 2*math.Sqrt(variance)
}

// Threshold returns intensity > threshold, falling back to intensity > 0 when
// nothing exceeds the threshold. The fallback may itself be empty.
func Threshold(img models.Slice, threshold float64) models.Mask {
	m := above(img, threshold)
	if m.Count() == 0 {
		return Positive(img)
	}
	return m
}

// Positive returns intensity > 0
func Positive(img models.Slice) models.Mask {
	return above(img, 0)
}

// Resolve checks a caller-supplied mask and drops NaN or infinite pixels from
// it. A nil mask selects intensity > 0. An empty mask falls back to intensity > 0 when fallback is set, and
// otherwise fails with ErrDegenerateInput. An empty fallback also fails.
func Resolve(img models.Slice, mask *models.Mask, fallback bool) (models.Mask, error) {
	if mask == nil {
		m := Positive(img)
		if m.Count() == 0 {
			return m, fmt.Errorf("%w: no positive intensities", ErrDegenerateInput)
		}
		return m, nil
	}

	if !mask.SameShape(img) {
		return models.Mask{}, fmt.Errorf("mask shape %dx%d does not match slice %dx%d",
			mask.Width, mask.Height, img.Width, img.Height)
	}

	// non-finite pixels never enter the fit
	m := models.NewMask(mask.Width, mask.Height)
	for i, in := range mask.Data {
		m.Data[i] = in && finite(img.Data[i])
	}
	if m.Count() > 0 {
		return m, nil
	}
	if !fallback {
		return m, ErrDegenerateInput
	}

	m = Positive(img)
	if m.Count() == 0 {
		return m, fmt.Errorf("%w: fallback to positive intensities is also empty", ErrDegenerateInput)
	}
	return m, nil
}

func above(img models.Slice, threshold float64) models.Mask {
	m := models.NewMask(img.Width, img.Height)
	for i, v := range img.Data {
		m.Data[i] = v > threshold && finite(v)
	}
	return m
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
