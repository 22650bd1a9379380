package halo

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/LBJ-Wade/GSKY/internal/cosmo"
	"github.com/LBJ-Wade/GSKY/internal/physconst"
)

// Kind is the physical type of a halo profile.
type Kind int

const (
	KindMatter Kind = iota
	KindGalaxy
	KindPressure
)

func (k Kind) String() string {
	switch k {
	case KindMatter:
		return "matter"
	case KindGalaxy:
		return "galaxy"
	case KindPressure:
		return "pressure"
	}
	return "unknown"
}

// Mass grid of the halo-model integrals, in Msun.
const (
	MassMin = 1e6
	MassMax = 1e17
	NMass   = 64
)

// Grid is the sampling profiles are evaluated on: the fixed (k, a) grid of
// every surface plus a log-spaced mass grid.
type Grid struct {
	K   []float64
	A   []float64
	M   []float64
	LnM []float64
}

// NewGrid returns the standard grid.
func NewGrid() *Grid {
	g := &Grid{
		K: physconst.KGrid(),
		A: physconst.AGrid(),
		M: floats.LogSpan(make([]float64, NMass), MassMin, MassMax),
	}
	g.LnM = make([]float64, len(g.M))
	for i, m := range g.M {
		g.LnM[i] = math.Log(m)
	}
	return g
}

// Profile is a halo profile in Fourier space.
type Profile interface {
	Kind() Kind
	// Normalized reports whether the halo model divides the profile by its
	// mass-function weighted mean at k → 0.
	Normalized() bool
	// Fourier returns the profile on g at scale-factor index ia, indexed
	// [mass][k]. Callers must not modify the result.
	Fourier(g *Grid, ia int) [][]float64
}

// TwoPoint is implemented by profiles whose one-halo second moment differs
// from the product of Fourier transforms. ok is false when the profile has
// no prescription for the pair and the product should be used.
type TwoPoint interface {
	Fourier2pt(g *Grid, ia int, other Profile) (u2 [][]float64, ok bool)
}

// tableMemo caches one [mass][k] table per scale-factor index for a grid.
type tableMemo struct {
	grid *Grid
	rows map[int][][]float64
}

func (m *tableMemo) get(g *Grid, ia int, build func() [][]float64) [][]float64 {
	if m.grid != g || m.rows == nil {
		m.grid = g
		m.rows = make(map[int][][]float64)
	}
	if t, ok := m.rows[ia]; ok {
		return t
	}
	t := build()
	m.rows[ia] = t
	return t
}

func newTable(nm, nk int) [][]float64 {
	t := make([][]float64, nm)
	for i := range t {
		t[i] = make([]float64, nk)
	}
	return t
}

// NFW is the truncated Navarro-Frenk-White matter profile.
type NFW struct {
	cos  cosmo.Model
	def  MassDef
	conc Concentration
	unit tableMemo
}

// NewNFW returns an NFW profile truncated at the halo radius of def.
func NewNFW(cos cosmo.Model, def MassDef, conc Concentration) *NFW {
	return &NFW{cos: cos, def: def, conc: conc}
}

func (p *NFW) Kind() Kind       { return KindMatter }
func (p *NFW) Normalized() bool { return true }

// Unit returns the NFW transform normalized to 1 at k = 0.
func (p *NFW) Unit(g *Grid, ia int) [][]float64 {
	return p.unit.get(g, ia, func() [][]float64 {
		a := g.A[ia]
		t := newTable(len(g.M), len(g.K))
		for im, m := range g.M {
			c := p.conc.Concentration(p.cos, m, a)
			rs := p.def.Radius(p.cos, m, a) / c
			for ik, k := range g.K {
				t[im][ik] = nfwUnit(k*rs, c)
			}
		}
		return t
	})
}

func (p *NFW) Fourier(g *Grid, ia int) [][]float64 {
	u := p.Unit(g, ia)
	t := newTable(len(g.M), len(g.K))
	for im, m := range g.M {
		floats.ScaleTo(t[im], m, u[im])
	}
	return t
}

// nfwUnit is the Fourier transform of an NFW profile truncated at c r_s,
// normalized to its mass, at x = k r_s.
func nfwUnit(x, c float64) float64 {
	if x < 1e-8 {
		return 1
	}
	cx := (1 + c) * x
	si1, ci1 := sici(x)
	si2, ci2 := sici(cx)
	s, co := math.Sincos(x)
	return (s*(si2-si1) + co*(ci2-ci1) - math.Sin(c*x)/cx) / nfwMu(c)
}
