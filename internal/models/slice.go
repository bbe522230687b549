package models

import (
	"fmt"
	"math"
)

// Slice represents a single 2D MRI slice as row-major float64 intensities
type Slice struct {
	// Data holds Width*Height intensities, index y*Width + x
	Data []float64

	// Width is the number of columns
	Width int

	// Height is the number of rows
	Height int
}

// NewSlice allocates a zero-filled slice of the given dimensions
func NewSlice(width, height int) Slice {
	return Slice{
		Data:   make([]float64, width*height),
		Width:  width,
		Height: height,
	}
}

// Len returns the number of pixels in the slice
func (s Slice) Len() int { return s.Width * s.Height }

// At returns the intensity at column x, row y
func (s Slice) At(x, y int) float64 { return s.Data[y*s.Width+x] }

// Validate checks that the backing array matches the declared dimensions
func (s Slice) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid slice dimensions %dx%d", s.Width, s.Height)
	}
	if len(s.Data) != s.Width*s.Height {
		return fmt.Errorf("slice data has %d values, expected %d", len(s.Data), s.Width*s.Height)
	}
	return nil
}

// Mask is a boolean foreground mask with the same layout as Slice
type Mask struct {
	Data   []bool
	Width  int
	Height int
}

// NewMask allocates an all-false mask
func NewMask(width, height int) Mask {
	return Mask{
		Data:   make([]bool, width*height),
		Width:  width,
		Height: height,
	}
}

// Count returns the number of true pixels
func (m Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// SameShape reports whether the mask covers the same grid as s
func (m Mask) SameShape(s Slice) bool {
	return m.Width == s.Width && m.Height == s.Height && len(m.Data) == len(s.Data)
}

// Volume represents a 3D MRI volume stacked from axial slices
type Volume struct {
	// Data is the 3D volume data as a 1D array, index z*Width*Height + y*Width + x
	Data []float64

	// Width, Height, Depth are the dimensions of the volume in voxels
	Width  int
	Height int
	Depth  int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize struct {
		X, Y, Z float64
	}
}

// NewVolume allocates a zero-filled volume
func NewVolume(width, height, depth int) *Volume {
	return &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// Slice returns axial slice z. The returned Slice shares storage with the volume.
func (v *Volume) Slice(z int) Slice {
	n := v.Width * v.Height
	return Slice{
		Data:   v.Data[z*n : (z+1)*n : (z+1)*n],
		Width:  v.Width,
		Height: v.Height,
	}
}

// SetSlice copies s into axial position z
func (v *Volume) SetSlice(z int, s Slice) {
	n := v.Width * v.Height
	copy(v.Data[z*n:(z+1)*n], s.Data)
}

// Validate checks dimensions against the backing array
func (v *Volume) Validate() error {
	if v.Width <= 0 || v.Height <= 0 || v.Depth <= 0 {
		return fmt.Errorf("invalid volume dimensions %dx%dx%d", v.Width, v.Height, v.Depth)
	}
	if len(v.Data) != v.Width*v.Height*v.Depth {
		return fmt.Errorf("volume data has %d values, expected %d", len(v.Data), v.Width*v.Height*v.Depth)
	}
	return nil
}

// NormalizeMax rescales the volume in place so its maximum equals to and
// returns the factor applied. Infinite values are ignored when finding the
// maximum. Volumes without a positive maximum are left unchanged and the
// factor is 1.
func (v *Volume) NormalizeMax(to float64) float64 {
	max := 0.0
	for _, x := range v.Data {
		if x > max && !math.IsInf(x, 1) {
			max = x
		}
	}
	if max <= 0 || to <= 0 {
		return 1
	}
	f := to / max
	for i := range v.Data {
		v.Data[i] *= f
	}
	return f
}
