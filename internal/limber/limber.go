// Package limber projects three-dimensional power spectra onto the sky in
// the Limber approximation.
package limber

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"

	"github.com/LBJ-Wade/GSKY/internal/cosmo"
	"github.com/LBJ-Wade/GSKY/internal/pk2d"
	"github.com/LBJ-Wade/GSKY/internal/tracer"
)

// NChi is the number of comoving-distance samples of the projection.
const NChi = 1024

// AngularCl returns C_ℓ = f_A(ℓ) f_B(ℓ) ∫ W_A W_B / χ² P((ℓ+½)/χ, a(χ)) dχ
// for each ℓ, integrating over the overlap of both kernels.
func AngularCl(cos cosmo.Model, k1, k2 tracer.Kernel, pk *pk2d.Surface, ells []float64) []float64 {
	out := make([]float64, len(ells))
	lo1, hi1 := k1.Support()
	lo2, hi2 := k2.Support()
	lo, hi := math.Max(lo1, lo2), math.Min(hi1, hi2)
	if hi <= lo || pk == nil {
		return out
	}
	// χ = 0 contributes nothing and would put k at infinity.
	if lo == 0 {
		lo = (hi - lo) / (10 * NChi)
	}
	chi := floats.Span(make([]float64, NChi), lo, hi)
	a := make([]float64, NChi)
	base := make([]float64, NChi)
	for i, c := range chi {
		a[i] = cos.ScaleFactor(c)
		base[i] = k1.Weight(c) * k2.Weight(c) / (c * c)
	}
	f := make([]float64, NChi)
	for il, ell := range ells {
		pre := k1.EllFactor(ell) * k2.EllFactor(ell)
		if pre == 0 {
			continue
		}
		for i, c := range chi {
			if base[i] == 0 {
				f[i] = 0
				continue
			}
			f[i] = base[i] * pk.Eval((ell+0.5)/c, a[i])
		}
		out[il] = pre * integrate.Simpsons(chi, f)
	}
	return out
}
