// Package volumeio reads and writes volumes for the command line tool. It
// adapts NIfTI (read only) and NumPy .npy files to models.Volume.
package volumeio

import (
	"fmt"
	"path/filepath"
	"strings"

	"micobias/internal/models"
)

// Loader reads a volume from a file
type Loader interface {
	Load(path string) (*models.Volume, error)
}

// Writer stores a volume to a file
type Writer interface {
	Write(path string, vol *models.Volume) error
}

// LoaderFor picks a loader from the file extension
func LoaderFor(path string) (Loader, error) {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".nii"), strings.HasSuffix(name, ".nii.gz"):
		return NiftiLoader{}, nil
	case strings.HasSuffix(name, ".npy"):
		return NpyLoader{}, nil
	}
	return nil, fmt.Errorf("unsupported input format: %s", path)
}

// WriterFor picks a writer from the file extension
func WriterFor(path string) (Writer, error) {
	if strings.HasSuffix(strings.ToLower(path), ".npy") {
		return NpyWriter{}, nil
	}
	return nil, fmt.Errorf("unsupported output format: %s (only .npy is written)", path)
}

// Load reads path with the loader matching its extension
func Load(path string) (*models.Volume, error) {
	l, err := LoaderFor(path)
	if err != nil {
		return nil, err
	}
	return l.Load(path)
}

// Save writes vol to path with the writer matching its extension
func Save(path string, vol *models.Volume) error {
	w, err := WriterFor(path)
	if err != nil {
		return err
	}
	return w.Write(path, vol)
}
