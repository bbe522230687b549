package volumeio

import (
	"fmt"

	"github.com/henghuang/nifti"

	"micobias/internal/models"
)

// NiftiLoader reads the first time point of a NIfTI-1 volume. Axial slices
// are taken along the third axis.
type NiftiLoader struct{}

// Load implements Loader
func (NiftiLoader) Load(path string) (*models.Volume, error) {
	img, err := safelyNiftiParse(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read NIfTI image %s: %w", path, err)
	}
	hdr, err := safelyNiftiHeaderParse(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read NIfTI header %s: %w", path, err)
	}

	dims := img.GetDims()
	if len(dims) < 3 {
		return nil, fmt.Errorf("NIfTI image %s has %d dimensions, need 3", path, len(dims))
	}
	xm, ym, zm := dims[0], dims[1], dims[2]
	if zm <= 0 {
		zm = 1
	}

	vol := models.NewVolume(xm, ym, zm)
	vol.VoxelSize.X = float64(hdr.Pixdim[1])
	vol.VoxelSize.Y = float64(hdr.Pixdim[2])
	vol.VoxelSize.Z = float64(hdr.Pixdim[3])

	for z := 0; z < zm; z++ {
		for y := 0; y < ym; y++ {
			for x := 0; x < xm; x++ {
				vol.Data[z*xm*ym+y*xm+x] = float64(img.GetAt(x, y, z, 0))
			}
		}
	}

	return vol, nil
}

// safelyNiftiParse turns panics raised by the nifti library into errors
func safelyNiftiParse(filename string) (parsed nifti.Nifti1Image, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	parsed.LoadImage(filename, true)

	return
}

// safelyNiftiHeaderParse turns panics raised by the nifti library into errors
func safelyNiftiHeaderParse(filename string) (parsed nifti.Nifti1Header, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	parsed.LoadHeader(filename)

	return
}
