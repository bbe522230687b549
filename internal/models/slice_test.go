package models

import (
	"math"
	"testing"
)

func TestVolumeSliceRoundTrip(t *testing.T) {
	v := NewVolume(3, 2, 4)
	for i := range v.Data {
		v.Data[i] = float64(i)
	}

	s := v.Slice(2)
	if s.Width != 3 || s.Height != 2 || len(s.Data) != 6 {
		t.Fatalf("Unexpected slice shape %dx%d (%d values)", s.Width, s.Height, len(s.Data))
	}
	if s.At(1, 1) != float64(2*6+1*3+1) {
		t.Errorf("Expected %d at (1,1), got %f", 2*6+1*3+1, s.At(1, 1))
	}

	repl := NewSlice(3, 2)
	for i := range repl.Data {
		repl.Data[i] = -1
	}
	v.SetSlice(1, repl)
	for i := 6; i < 12; i++ {
		if v.Data[i] != -1 {
			t.Fatalf("SetSlice did not write index %d", i)
		}
	}
	if v.Data[5] != 5 || v.Data[12] != 12 {
		t.Errorf("SetSlice wrote outside its slice")
	}
}

func TestVolumeValidate(t *testing.T) {
	v := NewVolume(2, 2, 2)
	if err := v.Validate(); err != nil {
		t.Errorf("Valid volume rejected: %v", err)
	}
	v.Data = v.Data[:7]
	if err := v.Validate(); err == nil {
		t.Error("Expected error for short data")
	}

	if err := (Slice{Width: 2, Height: 2, Data: make([]float64, 3)}).Validate(); err == nil {
		t.Error("Expected error for short slice data")
	}
}

func TestNormalizeMax(t *testing.T) {
	v := NewVolume(2, 1, 1)
	v.Data[0], v.Data[1] = 50, 200

	f := v.NormalizeMax(100)
	if f != 0.5 || v.Data[0] != 25 || v.Data[1] != 100 {
		t.Errorf("Unexpected normalization: factor %f, data %v", f, v.Data)
	}

	empty := NewVolume(2, 1, 1)
	if empty.NormalizeMax(100) != 1 {
		t.Error("All-zero volume should not be rescaled")
	}

	inf := NewVolume(3, 1, 1)
	inf.Data[0], inf.Data[1], inf.Data[2] = 50, math.Inf(1), math.NaN()
	if f := inf.NormalizeMax(100); f != 2 || inf.Data[0] != 100 {
		t.Errorf("Infinite voxels should not set the maximum: factor %f, data %v", f, inf.Data)
	}
}

func TestMaskCount(t *testing.T) {
	m := NewMask(2, 2)
	m.Data[0], m.Data[3] = true, true
	if m.Count() != 2 {
		t.Errorf("Expected 2, got %d", m.Count())
	}
	if !m.SameShape(NewSlice(2, 2)) || m.SameShape(NewSlice(2, 3)) {
		t.Error("SameShape gave the wrong answer")
	}
}
