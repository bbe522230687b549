package volumeio

import (
	"fmt"

	"github.com/kshedden/gonpy"

	"micobias/internal/models"
)

// NpyLoader reads a C-order float64 or float32 array of shape [Z, H, W]
// (a 2D [H, W] array is read as one slice)
type NpyLoader struct{}

// Load implements Loader
func (NpyLoader) Load(path string) (*models.Volume, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if r.ColumnMajor {
		return nil, fmt.Errorf("%s: Fortran-ordered arrays are not supported", path)
	}

	var depth, height, width int
	switch len(r.Shape) {
	case 2:
		depth, height, width = 1, r.Shape[0], r.Shape[1]
	case 3:
		depth, height, width = r.Shape[0], r.Shape[1], r.Shape[2]
	default:
		return nil, fmt.Errorf("%s: expected a 2D or 3D array, got shape %v", path, r.Shape)
	}

	var data []float64
	switch r.Dtype {
	case "f8":
		data, err = r.GetFloat64()
	case "f4":
		var f32 []float32
		f32, err = r.GetFloat32()
		data = make([]float64, len(f32))
		for i, v := range f32 {
			data[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported dtype %q", path, r.Dtype)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	vol := &models.Volume{Data: data, Width: width, Height: height, Depth: depth}
	vol.VoxelSize.X, vol.VoxelSize.Y, vol.VoxelSize.Z = 1, 1, 1
	if err := vol.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vol, nil
}

// NpyWriter stores a volume as a float64 array of shape [Z, H, W]
type NpyWriter struct{}

// Write implements Writer
func (NpyWriter) Write(path string, vol *models.Volume) error {
	if err := vol.Validate(); err != nil {
		return err
	}

	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w.Shape = []int{vol.Depth, vol.Height, vol.Width}
	w.Version = 2
	if err := w.WriteFloat64(vol.Data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
