package halo

import (
	"fmt"

	"gonum.org/v1/gonum/integrate"

	"github.com/LBJ-Wade/GSKY/internal/cosmo"
	"github.com/LBJ-Wade/GSKY/internal/pk2d"
)

// Calculator integrates halo profiles over the mass function into
// two-halo plus one-halo power spectra.
type Calculator struct {
	cos  cosmo.Model
	def  MassDef
	grid *Grid

	nM   [][]float64 // dn/dlnM [ia][im]
	bM   [][]float64 // b(M) [ia][im]
	mbf0 []float64   // mass missing below the grid, bias weighted
	mf0  []float64   // mass missing below the grid
}

// NewCalculator tabulates the mass function and bias on the standard grid.
func NewCalculator(cos cosmo.Model, mf MassFunction, hb HaloBias, def MassDef) *Calculator {
	g := NewGrid()
	c := &Calculator{
		cos:  cos,
		def:  def,
		grid: g,
		nM:   newTable(len(g.A), len(g.M)),
		bM:   newTable(len(g.A), len(g.M)),
		mbf0: make([]float64, len(g.A)),
		mf0:  make([]float64, len(g.A)),
	}
	rho0 := cos.RhoMean0()
	mass := make([]float64, len(g.M))
	massBias := make([]float64, len(g.M))
	for ia, a := range g.A {
		for im, m := range g.M {
			n := mf.DnDlnM(cos, m, a)
			b := hb.Bias(cos, m, a)
			c.nM[ia][im] = n
			c.bM[ia][im] = b
			mass[im] = n * m
			massBias[im] = n * b * m
		}
		c.mf0[ia] = (rho0 - integrate.Simpsons(g.LnM, mass)) / g.M[0]
		c.mbf0[ia] = (rho0 - integrate.Simpsons(g.LnM, massBias)) / g.M[0]
	}
	return c
}

// Grid returns the sampling every profile is evaluated on.
func (c *Calculator) Grid() *Grid { return c.grid }

// Cosmology returns the model the calculator was built for.
func (c *Calculator) Cosmology() cosmo.Model { return c.cos }

// MassDef returns the halo mass definition.
func (c *Calculator) MassDef() MassDef { return c.def }

// integrateMass returns ∫ w(M) u(M, k) dlnM for every k, plus extra·u(M_min, k).
func (c *Calculator) integrateMass(w []float64, u [][]float64, extra float64) []float64 {
	g := c.grid
	out := make([]float64, len(g.K))
	f := make([]float64, len(g.M))
	for ik := range g.K {
		for im := range g.M {
			f[im] = w[im] * u[im][ik]
		}
		out[ik] = integrate.Simpsons(g.LnM, f) + extra*u[0][ik]
	}
	return out
}

// norm is the large-scale mean of a normalized profile.
func (c *Calculator) norm(p Profile, u [][]float64, ia int) float64 {
	if !p.Normalized() {
		return 1
	}
	g := c.grid
	f := make([]float64, len(g.M))
	for im := range g.M {
		f[im] = c.nM[ia][im] * u[im][0]
	}
	return integrate.Simpsons(g.LnM, f) + c.mf0[ia]*u[0][0]
}

// oneHalo returns the second moment of the pair on the grid at ia.
func (c *Calculator) oneHalo(p1, p2 Profile, u1, u2 [][]float64, ia int) [][]float64 {
	if p1 == p2 {
		if tp, ok := p1.(TwoPoint); ok {
			if u12, ok := tp.Fourier2pt(c.grid, ia, p2); ok {
				return u12
			}
		}
	}
	g := c.grid
	u12 := newTable(len(g.M), len(g.K))
	for im := range g.M {
		for ik := range g.K {
			u12[im][ik] = u1[im][ik] * u2[im][ik]
		}
	}
	return u12
}

// Power returns the halo-model cross spectrum of p1 and p2 on the standard
// (k, a) grid. Normalized profiles are divided by their mean.
func (c *Calculator) Power(p1, p2 Profile) (*pk2d.Surface, error) {
	g := c.grid
	vals := newTable(len(g.A), len(g.K))
	for ia, a := range g.A {
		u1 := p1.Fourier(g, ia)
		u2 := u1
		if p2 != p1 {
			u2 = p2.Fourier(g, ia)
		}
		nb := c.biasWeight(ia)
		i1 := c.integrateMass(nb, u1, c.mbf0[ia])
		i2 := i1
		if p2 != p1 {
			i2 = c.integrateMass(nb, u2, c.mbf0[ia])
		}
		i02 := c.integrateMass(c.nM[ia], c.oneHalo(p1, p2, u1, u2, ia), 0)
		n := c.norm(p1, u1, ia) * c.norm(p2, u2, ia)
		if n == 0 {
			return nil, fmt.Errorf("halo: zero profile normalization at a=%g", a)
		}
		for ik, k := range g.K {
			vals[ia][ik] = (c.cos.LinearPower(k, a)*i1[ik]*i2[ik] + i02[ik]) / n
		}
	}
	return pk2d.New(g.K, g.A, vals, c.cos.Growth)
}

// biasWeight returns the bias-weighted abundance n(M) b(M) at ia.
func (c *Calculator) biasWeight(ia int) []float64 {
	w := make([]float64, len(c.grid.M))
	for im := range w {
		w[im] = c.nM[ia][im] * c.bM[ia][im]
	}
	return w
}
