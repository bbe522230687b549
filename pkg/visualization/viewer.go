package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"micobias/internal/models"
)

// Viewer renders preview images of a volume, typically the bias corrected
// output or the estimated bias field.
type Viewer struct {
	vol *models.Volume

	// intensities in [low, high] are mapped onto the full gray range
	low, high float64

	// scale resizes saved images; 1 keeps the native size
	scale float64
}

// NewViewer creates a viewer whose gray window spans the volume's minimum to
// maximum intensity
func NewViewer(vol *models.Volume, scale float64) *Viewer {
	low, high := math.Inf(1), math.Inf(-1)
	for _, v := range vol.Data {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
	}
	if len(vol.Data) == 0 {
		low, high = 0, 1
	}
	if scale <= 0 {
		scale = 1
	}
	return &Viewer{vol: vol, low: low, high: high, scale: scale}
}

// SetWindow overrides the intensity window
func (v *Viewer) SetWindow(low, high float64) {
	v.low, v.high = low, high
}

func (v *Viewer) gray(value float64) color.Gray16 {
	span := v.high - v.low
	if span <= 0 {
		return color.Gray16{}
	}
	t := (value - v.low) / span
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, t*65535)))}
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	w, h, d := v.vol.Width, v.vol.Height, v.vol.Depth
	var img *image.Gray16

	switch axis {
	case "x", "X":
		// YZ plane
		if position >= w {
			return nil, fmt.Errorf("position %d exceeds width %d", position, w)
		}
		img = image.NewGray16(image.Rect(0, 0, d, h))
		for y := 0; y < h; y++ {
			for z := 0; z < d; z++ {
				img.SetGray16(z, y, v.gray(v.vol.Data[z*w*h+y*w+position]))
			}
		}

	case "y", "Y":
		// XZ plane
		if position >= h {
			return nil, fmt.Errorf("position %d exceeds height %d", position, h)
		}
		img = image.NewGray16(image.Rect(0, 0, w, d))
		for z := 0; z < d; z++ {
			for x := 0; x < w; x++ {
				img.SetGray16(x, z, v.gray(v.vol.Data[z*w*h+position*w+x]))
			}
		}

	case "z", "Z":
		// XY plane, the plane the estimator works in
		if position >= d {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, d)
		}
		img = image.NewGray16(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetGray16(x, y, v.gray(v.vol.Data[position*w*h+y*w+x]))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice saves an extracted slice, resized by the viewer scale. The
// format follows the file extension.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	if v.scale != 1 {
		b := img.Bounds()
		nw := int(math.Round(float64(b.Dx()) * v.scale))
		nh := int(math.Round(float64(b.Dy()) * v.scale))
		if nw < 1 {
			nw = 1
		}
		if nh < 1 {
			nh = 1
		}
		img = imaging.Resize(img, nw, nh, imaging.Lanczos)
	}
	return imaging.Save(img, filename)
}

// SaveSliceSequence extracts and saves every slice along the specified axis
// as prefix_<axis>_<pos>.png
func (v *Viewer) SaveSliceSequence(axis, outputDir, prefix string) error {
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.vol.Width
	case "y", "Y":
		maxPos = v.vol.Height
	case "z", "Z":
		maxPos = v.vol.Depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s_%03d.png", prefix, axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
