package mico

import (
	"micobias/internal/models"
	"micobias/pkg/basis"
)

// Projection caches the ROI-masked products the bias solve sums against:
// ImgG[k] = Img*Basis_k*ROI and GGT[i][j] = Basis_i*Basis_j*ROI. It is built
// once per slice and only read afterwards.
type Projection struct {
	imgG [basis.Count][]float64

	// ggt[j][i] aliases ggt[i][j]
	ggt [basis.Count][basis.Count][]float64
}

// NewProjection computes the cache for img restricted to mask
func NewProjection(img models.Slice, bs *basis.Set, mask models.Mask) *Projection {
	p := &Projection{}
	n := img.Len()

	for k := 0; k < basis.Count; k++ {
		g := bs.At(k)
		out := make([]float64, n)
		for i, in := range mask.Data {
			if in {
				out[i] = img.Data[i] * g[i]
			}
		}
		p.imgG[k] = out
	}

	for i := 0; i < basis.Count; i++ {
		gi := bs.At(i)
		for j := i; j < basis.Count; j++ {
			gj := bs.At(j)
			out := make([]float64, n)
			for px, in := range mask.Data {
				if in {
					out[px] = gi[px] * gj[px]
				}
			}
			p.ggt[i][j] = out
			p.ggt[j][i] = out
		}
	}

	return p
}

// ImgG returns Img*Basis_k*ROI
func (p *Projection) ImgG(k int) []float64 { return p.imgG[k] }

// GGT returns Basis_i*Basis_j*ROI
func (p *Projection) GGT(i, j int) []float64 { return p.ggt[i][j] }
