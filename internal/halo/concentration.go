package halo

import (
	"math"

	"github.com/LBJ-Wade/GSKY/internal/cosmo"
)

// Concentration is a concentration-mass relation c(M, a).
type Concentration interface {
	Concentration(c cosmo.Model, m, a float64) float64
}

// Duffy08 is the Duffy et al. (2008) full-sample NFW relation
// c = A (M/M_pivot)^B (1+z)^C with M_pivot = 2e12 Msun/h.
type Duffy08 struct {
	A, B, C float64
}

func (d Duffy08) Concentration(c cosmo.Model, m, a float64) float64 {
	pivot := 2e12 / c.Params().H
	return d.A * math.Pow(m/pivot, d.B) * math.Pow(a, -d.C)
}

// duffy500c evaluates Duffy08 for M200c and converts the result to the
// 500c definition assuming an NFW profile.
type duffy500c struct {
	base Duffy08
}

// NewConcentration returns the concentration relation matching def.
func NewConcentration(def MassDef) (Concentration, error) {
	switch def {
	case M200m:
		return Duffy08{A: 10.14, B: -0.081, C: -1.01}, nil
	case M200c:
		return Duffy08{A: 5.71, B: -0.084, C: -0.47}, nil
	case M500c:
		return duffy500c{base: Duffy08{A: 5.71, B: -0.084, C: -0.47}}, nil
	}
	return nil, errUnsupportedMassDef(def)
}

func (d duffy500c) Concentration(c cosmo.Model, m500, a float64) float64 {
	m200 := m500
	var c500 float64
	for i := 0; i < 8; i++ {
		c200 := d.base.Concentration(c, m200, a)
		c500 = convertConcentration(c200, 200, 500)
		m200 = m500 * nfwMu(c200) / nfwMu(c500)
	}
	return c500
}

// nfwMu is the NFW enclosed-mass shape ln(1+c) - c/(1+c).
func nfwMu(c float64) float64 {
	return math.Log1p(c) - c/(1+c)
}

// convertConcentration maps an NFW concentration between overdensities
// sharing one reference density: Δ₁ c₁³/μ(c₁) = Δ₂ c₂³/μ(c₂).
func convertConcentration(c1, delta1, delta2 float64) float64 {
	target := delta1 / delta2 * c1 * c1 * c1 / nfwMu(c1)
	f := func(x float64) float64 { return x * x * x / nfwMu(x) }
	lo, hi := 1e-3, c1
	if delta2 < delta1 {
		lo, hi = c1, 100*c1
	}
	for i := 0; i < 60; i++ {
		mid := 0.5 * (lo + hi)
		if f(mid) < target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return 0.5 * (lo + hi)
}
