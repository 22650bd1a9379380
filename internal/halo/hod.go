package halo

import (
	"math"
)

// HODParams are the occupation parameters of an HOD profile. Masses are
// log10 of Msun; each has a linear evolution slope in a, pivoting at a = 1.
type HODParams struct {
	LMmin, LMminP float64
	LM0, LM0P     float64
	LM1, LM1P     float64
	SigmaLnM      float64
	Alpha         float64
	FCentral      float64
}

// DefaultHODParams returns the fiducial occupation.
func DefaultHODParams() HODParams {
	return HODParams{
		LMmin: 12.02, LMminP: -1.34,
		LM0: 6.6, LM0P: -1.43,
		LM1: 13.27, LM1P: 0.323,
		SigmaLnM: 0.4,
		Alpha:    1,
		FCentral: 1,
	}
}

// HOD is a halo occupation galaxy profile: central galaxies at the halo
// centre and satellites tracing the NFW profile of the matter.
type HOD struct {
	p      HODParams
	nfw    *NFW
	single tableMemo
	pair   tableMemo
}

// NewHOD returns an HOD whose satellites follow nfw.
func NewHOD(p HODParams, nfw *NFW) *HOD {
	return &HOD{p: p, nfw: nfw}
}

func (h *HOD) Kind() Kind       { return KindGalaxy }
func (h *HOD) Normalized() bool { return true }

// Params returns the occupation parameters.
func (h *HOD) Params() HODParams { return h.p }

// occupation returns the mean central and satellite counts for mass m.
func (h *HOD) occupation(m, a float64) (nc, ns float64) {
	p := h.p
	lMmin := p.LMmin + p.LMminP*(a-1)
	lM0 := p.LM0 + p.LM0P*(a-1)
	lM1 := p.LM1 + p.LM1P*(a-1)

	nc = 0.5 * (1 + math.Erf((math.Log10(m)-lMmin)/p.SigmaLnM))
	m0 := math.Pow(10, lM0)
	if m > m0 {
		ns = math.Pow((m-m0)/math.Pow(10, lM1), p.Alpha)
	}
	return nc, ns
}

func (h *HOD) Fourier(g *Grid, ia int) [][]float64 {
	return h.single.get(g, ia, func() [][]float64 {
		u := h.nfw.Unit(g, ia)
		a := g.A[ia]
		t := newTable(len(g.M), len(g.K))
		for im, m := range g.M {
			nc, ns := h.occupation(m, a)
			for ik := range g.K {
				t[im][ik] = nc * (h.p.FCentral + ns*u[im][ik])
			}
		}
		return t
	})
}

// Fourier2pt is the one-halo second moment of the galaxy counts. Centrals
// do not pair with themselves, which removes the Poisson term.
// Distinct HOD instances describe independent samples, so only a profile
// paired with itself has a prescription.
func (h *HOD) Fourier2pt(g *Grid, ia int, other Profile) ([][]float64, bool) {
	if o, ok := other.(*HOD); !ok || o != h {
		return nil, false
	}
	t := h.pair.get(g, ia, func() [][]float64 {
		u := h.nfw.Unit(g, ia)
		a := g.A[ia]
		t := newTable(len(g.M), len(g.K))
		for im, m := range g.M {
			nc, ns := h.occupation(m, a)
			for ik := range g.K {
				su := ns * u[im][ik]
				t[im][ik] = nc * (su*su + 2*h.p.FCentral*su)
			}
		}
		return t
	})
	return t, true
}
