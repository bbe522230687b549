package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"micobias/internal/models"
	"micobias/pkg/volumeio"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("Expected version %s in output, got %q", version, out)
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "micobias.yaml")
	if _, err := execute(t, "config", "init", path); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Config file was not written: %v", err)
	}
	if !strings.Contains(string(data), "classes: 3") {
		t.Errorf("Expected default classes in config, got:\n%s", data)
	}
}

func TestCorrect(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.npy")
	out := filepath.Join(dir, "out.npy")
	bias := filepath.Join(dir, "bias.npy")
	report := filepath.Join(dir, "report.csv")
	labels := filepath.Join(dir, "labels.npy")
	previews := filepath.Join(dir, "previews")

	// two tissue disc with a left to right gain
	w, h := 24, 24
	vol := models.NewVolume(w, h, 2)
	for z := 0; z < 2; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dx, dy := float64(x-w/2), float64(y-h/2)
				r2 := dx*dx + dy*dy
				v := 0.0
				switch {
				case r2 < 25:
					v = 200
				case r2 < 100:
					v = 100
				}
				vol.Data[z*w*h+y*w+x] = v * (0.8 + 0.4*float64(x)/float64(w))
			}
		}
	}
	if err := volumeio.Save(in, vol); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	_, err := execute(t, "correct", "--log-level", "error",
		"--input", in, "--output", out, "--bias", bias, "--report", report,
		"--labels", labels, "--preview-dir", previews,
		"--classes", "2", "--outer", "5", "--threshold", "0", "--workers", "2")
	if err != nil {
		t.Fatalf("correct failed: %v", err)
	}

	got, err := volumeio.Load(out)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if got.Width != w || got.Height != h || got.Depth != 2 {
		t.Errorf("Expected %dx%dx2 output, got %dx%dx%d", w, h, got.Width, got.Height, got.Depth)
	}
	labelVol, err := volumeio.Load(labels)
	if err != nil {
		t.Fatalf("Failed to read label map: %v", err)
	}
	for i, v := range labelVol.Data {
		if v < 0 || v > 2 {
			t.Fatalf("voxel %d: label %f outside 0..2", i, v)
		}
	}

	for _, p := range []string{
		bias, report,
		filepath.Join(previews, "corrected_z_000.png"),
		filepath.Join(previews, "labels_z_001.png"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("Expected %s to exist: %v", p, err)
		}
	}
}

func TestCorrectRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.npy")
	if err := volumeio.Save(in, models.NewVolume(4, 4, 1)); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	_, err := execute(t, "correct", "--log-level", "error",
		"--input", in, "--output", filepath.Join(dir, "out.npy"), "--q", "0.5")
	if err == nil {
		t.Fatal("Expected an error for q < 1")
	}
}

func TestCorrectMissingConfig(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.npy")
	if err := volumeio.Save(in, models.NewVolume(4, 4, 1)); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	_, err := execute(t, "correct", "--log-level", "error",
		"--input", in, "--output", filepath.Join(dir, "out.npy"),
		"--config", filepath.Join(dir, "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected a missing config error, got %v", err)
	}
}
