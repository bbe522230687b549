// Package driver applies the MICO estimator to every axial slice of a volume.
//
// Slices share no mutable state, so they run on a bounded worker pool. Each
// worker reports back through a channel and the collector writes the slice
// into its z position of the output volumes. A slice that fails with a
// numerical or degenerate-input error is reported with its index; the
// configured ErrorPolicy decides whether the run aborts or the slice keeps an
// identity bias field.
package driver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"micobias/internal/models"
	"micobias/pkg/mico"
	"micobias/pkg/roi"
)

// ErrorPolicy decides what happens to a volume when one slice fails
type ErrorPolicy string

const (
	// OnErrorAbort stops the run at the first failed slice
	OnErrorAbort ErrorPolicy = "abort"

	// OnErrorIdentity keeps going and gives the failed slice a bias of 1
	OnErrorIdentity ErrorPolicy = "identity"
)

// Options holds the driver parameters
type Options struct {
	Mico mico.Options

	// Threshold selects the per-volume ROI threshold
	Threshold roi.Policy

	// NumWorkers bounds concurrent slices; 0 uses every CPU
	NumWorkers int

	OnError ErrorPolicy

	// ClampMax caps corrected intensities when positive
	ClampMax float64
}

// DefaultOptions returns driver defaults around mico.DefaultOptions
func DefaultOptions() Options {
	return Options{
		Mico:       mico.DefaultOptions(),
		Threshold:  roi.Policy{Auto: true},
		NumWorkers: runtime.NumCPU(),
		OnError:    OnErrorIdentity,
	}
}

// Validate checks the driver and estimator parameters
func (o Options) Validate() error {
	if err := o.Mico.Validate(); err != nil {
		return err
	}
	if o.NumWorkers < 0 {
		return fmt.Errorf("%w: numWorkers must be non-negative, got %d", mico.ErrConfiguration, o.NumWorkers)
	}
	switch o.OnError {
	case OnErrorAbort, OnErrorIdentity:
	default:
		return fmt.Errorf("%w: unknown slice error policy %q", mico.ErrConfiguration, o.OnError)
	}
	if o.ClampMax < 0 {
		return fmt.Errorf("%w: clampMax must be non-negative, got %g", mico.ErrConfiguration, o.ClampMax)
	}
	return nil
}

// SliceResult summarizes the estimator run of one slice
type SliceResult struct {
	Index       int
	ROIPixels   int
	Constants   []float64
	Energy      []float64
	Regularized int

	// ZeroedPixels counts positive input pixels set to 0 because the bias
	// field is not positive there
	ZeroedPixels int

	// Err is set when the slice failed
	Err *SliceError
}

// Report collects per-slice outcomes in z order
type Report struct {
	// Threshold is the resolved ROI threshold for the volume
	Threshold float64

	Slices   []SliceResult
	Failures []*SliceError
}

// Output is the corrected volume, the bias field and the run report
type Output struct {
	Corrected *models.Volume
	Bias      *models.Volume

	// Labels holds class index + 1 inside each slice's ROI and 0 elsewhere.
	// Classes are in ascending intensity order. Failed slices are all 0.
	Labels *models.Volume

	Report *Report
}

// Driver runs the estimator over volumes
type Driver struct {
	opts Options
	log  zerolog.Logger
}

// New validates opts and returns a driver logging to log
func New(opts Options, log zerolog.Logger) (*Driver, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.NumWorkers == 0 {
		opts.NumWorkers = runtime.NumCPU()
	}
	return &Driver{opts: opts, log: log}, nil
}

type sliceOutcome struct {
	index     int
	result    *mico.Result
	roiPixels int
	err       error
}

// Run corrects every axial slice of vol. The input volume is not modified.
func (d *Driver) Run(ctx context.Context, vol *models.Volume) (*Output, error) {
	if err := vol.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", mico.ErrConfiguration, err)
	}

	est, err := mico.NewEstimator(vol.Width, vol.Height, d.opts.Mico)
	if err != nil {
		return nil, err
	}

	threshold := d.opts.Threshold.Resolve(vol)
	d.log.Info().
		Str("policy", d.opts.Threshold.String()).
		Float64("threshold", threshold).
		Int("slices", vol.Depth).
		Int("workers", d.opts.NumWorkers).
		Msg("starting bias correction")

	out := &Output{
		Corrected: models.NewVolume(vol.Width, vol.Height, vol.Depth),
		Bias:      models.NewVolume(vol.Width, vol.Height, vol.Depth),
		Labels:    models.NewVolume(vol.Width, vol.Height, vol.Depth),
		Report: &Report{
			Threshold: threshold,
			Slices:    make([]SliceResult, vol.Depth),
		},
	}
	out.Corrected.VoxelSize = vol.VoxelSize
	out.Bias.VoxelSize = vol.VoxelSize
	out.Labels.VoxelSize = vol.VoxelSize

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	results := make(chan sliceOutcome)

	workers := d.opts.NumWorkers
	if workers > vol.Depth {
		workers = vol.Depth
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for z := range jobs {
				results <- d.correctSlice(runCtx, est, vol.Slice(z), z, threshold)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for z := 0; z < vol.Depth; z++ {
			select {
			case jobs <- z:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	completed := 0
	for res := range results {
		completed++
		if firstErr != nil {
			continue
		}
		if err := d.collect(out, vol, res); err != nil {
			firstErr = err
			cancel()
			continue
		}
		d.log.Debug().
			Int("slice", res.index).
			Int("completed", completed).
			Int("total", vol.Depth).
			Msg("slice done")
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.log.Info().
		Int("slices", vol.Depth).
		Int("failed", len(out.Report.Failures)).
		Msg("bias correction finished")

	return out, nil
}

func (d *Driver) correctSlice(ctx context.Context, est *mico.Estimator, slice models.Slice, z int, threshold float64) sliceOutcome {
	mask := roi.Threshold(slice, threshold)
	n := mask.Count()
	if n == 0 {
		return sliceOutcome{index: z, err: fmt.Errorf("%w: no positive intensities", mico.ErrDegenerateInput)}
	}

	res, err := est.Correct(ctx, slice, &mask)
	return sliceOutcome{index: z, result: res, roiPixels: n, err: err}
}

// collect stores one outcome. It returns an error when the run must stop.
func (d *Driver) collect(out *Output, vol *models.Volume, res sliceOutcome) error {
	sr := &out.Report.Slices[res.index]
	sr.Index = res.index
	sr.ROIPixels = res.roiPixels

	if res.err != nil {
		serr := &SliceError{Index: res.index, Kind: KindOf(res.err), Err: res.err}

		if serr.Kind == KindCancelled {
			return res.err
		}
		if d.opts.OnError == OnErrorAbort || !serr.Kind.Recoverable() {
			d.log.Error().Err(res.err).Int("slice", res.index).Str("kind", string(serr.Kind)).Msg("slice failed, aborting")
			return serr
		}

		d.log.Warn().Err(res.err).Int("slice", res.index).Str("kind", string(serr.Kind)).Msg("slice failed, using identity bias")
		sr.Err = serr
		out.Report.Failures = append(out.Report.Failures, serr)

		ones := models.NewSlice(vol.Width, vol.Height)
		for i := range ones.Data {
			ones.Data[i] = 1
		}
		out.Bias.SetSlice(res.index, ones)
		out.Corrected.SetSlice(res.index, mico.Divide(vol.Slice(res.index), ones.Data, d.opts.ClampMax))
		return nil
	}

	r := res.result
	sr.Constants = r.Constants
	sr.Energy = r.Energy
	sr.Regularized = r.Regularized
	sr.ZeroedPixels = zeroedPixels(vol.Slice(res.index), r.Bias)
	if r.Regularized > 0 {
		d.log.Warn().Int("slice", res.index).Int("iterations", r.Regularized).Msg("bias system needed ridge loading")
	}
	if sr.ZeroedPixels > 0 {
		d.log.Warn().Int("slice", res.index).Int("pixels", sr.ZeroedPixels).Msg("non-positive bias zeroed tissue pixels")
	}

	out.Bias.SetSlice(res.index, models.Slice{Data: r.Bias, Width: vol.Width, Height: vol.Height})
	out.Labels.SetSlice(res.index, labelSlice(r))
	corrected := r.Corrected
	if d.opts.ClampMax > 0 {
		corrected = mico.Divide(vol.Slice(res.index), r.Bias, d.opts.ClampMax)
	}
	out.Corrected.SetSlice(res.index, corrected)
	return nil
}

// labelSlice maps the hard labels of r into 1..K inside the ROI
func labelSlice(r *mico.Result) models.Slice {
	ls := models.NewSlice(r.ROI.Width, r.ROI.Height)
	labels := r.Membership.Labels()
	for i, in := range r.ROI.Data {
		if in {
			ls.Data[i] = float64(labels[i] + 1)
		}
	}
	return ls
}

// zeroedPixels counts finite positive pixels of img where bias <= 0
func zeroedPixels(img models.Slice, bias []float64) int {
	n := 0
	for i, v := range img.Data {
		if v > 0 && !math.IsInf(v, 1) && bias[i] <= 0 {
			n++
		}
	}
	return n
}

// ErrorKind classifies per-slice failures
type ErrorKind string

const (
	KindNumerical     ErrorKind = "numerical"
	KindDegenerate    ErrorKind = "degenerate"
	KindConfiguration ErrorKind = "configuration"
	KindCancelled     ErrorKind = "cancelled"
	KindUnknown       ErrorKind = "unknown"
)

// Recoverable reports whether a slice may be replaced by an identity bias
func (k ErrorKind) Recoverable() bool {
	return k == KindNumerical || k == KindDegenerate
}

// KindOf maps an estimator error to its kind
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, mico.ErrNumerical):
		return KindNumerical
	case errors.Is(err, mico.ErrDegenerateInput):
		return KindDegenerate
	case errors.Is(err, mico.ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	}
	return KindUnknown
}

// SliceError reports a failed slice with its z index
type SliceError struct {
	Index int
	Kind  ErrorKind
	Err   error
}

func (e *SliceError) Error() string {
	return fmt.Sprintf("slice %d: %s: %v", e.Index, e.Kind, e.Err)
}

func (e *SliceError) Unwrap() error { return e.Err }
