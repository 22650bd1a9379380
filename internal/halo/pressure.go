package halo

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/interp"

	"github.com/LBJ-Wade/GSKY/internal/cosmo"
)

// Unit conversions for pressure profiles.
const (
	// gravity in Mpc (km/s)² / Msun.
	gravity = 4.30091e-9
	// eVPerCm3 converts Msun (km/s)² / Mpc³ to eV / cm³.
	eVPerCm3 = 4.22437e-19
	// electronPressureFraction converts thermal to electron pressure for
	// a primordial hydrogen fraction of 0.76.
	electronPressureFraction = 0.517647
)

// Shape-table resolution. Integrals run on nShapeX linear samples of the
// profile radius, which resolves the sinc oscillations up to qShapeMax.
const (
	qShapeMin = 1e-3
	qShapeMax = 300
	nShapeQ   = 128
	nShapeX   = 8193
)

// sincTransform returns ∫ w(x) sin(qx)/(qx) dx over xs for each q, with w
// sampled on xs.
func sincTransform(xs, w, qs []float64) []float64 {
	out := make([]float64, len(qs))
	f := make([]float64, len(xs))
	for iq, q := range qs {
		for i, x := range xs {
			qx := q * x
			s := 1.0
			if qx > 1e-6 {
				s = math.Sin(qx) / qx
			}
			f[i] = w[i] * s
		}
		out[iq] = integrate.Simpsons(xs, f)
	}
	return out
}

func shapeQGrid() (q, lnQ []float64) {
	lnQ = floats.Span(make([]float64, nShapeQ), math.Log(qShapeMin), math.Log(qShapeMax))
	q = make([]float64, nShapeQ)
	for i, l := range lnQ {
		q[i] = math.Exp(l)
	}
	return q, lnQ
}

// lookupShape evaluates a shape transform tabulated on ln q. Below the
// grid the transform is at its k → 0 limit; above it is taken as zero.
func lookupShape(pl *interp.PiecewiseLinear, q float64) float64 {
	switch {
	case q <= qShapeMin:
		q = qShapeMin
	case q > qShapeMax:
		return 0
	}
	return pl.Predict(math.Log(q))
}

// Arnaud is the Arnaud et al. (2010) universal electron pressure profile
// for M500c halos, with a hydrostatic mass bias.
type Arnaud struct {
	cos   cosmo.Model
	bHyd  float64
	memo  tableMemo
	shape *interp.PiecewiseLinear
}

// Arnaud generalized-NFW shape parameters.
const (
	arnaudP0    = 8.403
	arnaudC500  = 1.177
	arnaudAlpha = 1.051
	arnaudBeta  = 5.4905
	arnaudGamma = 0.3081
	arnaudXOut  = 6.0
)

var (
	arnaudOnce  sync.Once
	arnaudShape interp.PiecewiseLinear
)

// arnaudShapeTable tabulates ∫₀^xout 4π x² p(x) sinc(qx) dx for the unit
// amplitude GNFW shape, in q = k R500.
func arnaudShapeTable() *interp.PiecewiseLinear {
	arnaudOnce.Do(func() {
		xs := floats.Span(make([]float64, nShapeX), 0, arnaudXOut)
		w := make([]float64, nShapeX)
		cg := math.Pow(arnaudC500, -arnaudGamma)
		exp := (arnaudBeta - arnaudGamma) / arnaudAlpha
		for i, x := range xs {
			w[i] = 4 * math.Pi * cg * math.Pow(x, 2-arnaudGamma) /
				math.Pow(1+math.Pow(arnaudC500*x, arnaudAlpha), exp)
		}
		q, lnQ := shapeQGrid()
		if err := arnaudShape.Fit(lnQ, sincTransform(xs, w, q)); err != nil {
			panic(err)
		}
	})
	return &arnaudShape
}

// NewArnaud returns the Arnaud profile with hydrostatic bias bHydro.
func NewArnaud(cos cosmo.Model, bHydro float64) *Arnaud {
	return &Arnaud{cos: cos, bHyd: bHydro, shape: arnaudShapeTable()}
}

func (p *Arnaud) Kind() Kind       { return KindPressure }
func (p *Arnaud) Normalized() bool { return false }

// p500 returns the characteristic pressure in eV/cm³ for a true mass m500.
func (p *Arnaud) p500(m500, a float64) float64 {
	h70 := p.cos.Params().H / 0.7
	e := p.cos.HOverC(a) / p.cos.HOverC(1)
	mPivot := 3e14 / h70
	kev := 1.65e-3 * math.Pow(e, 8.0/3) * math.Pow(m500/mPivot, 2.0/3+0.12) * h70 * h70
	return arnaudP0 * math.Pow(h70, -1.5) * kev * 1e3
}

func (p *Arnaud) Fourier(g *Grid, ia int) [][]float64 {
	return p.memo.get(g, ia, func() [][]float64 {
		a := g.A[ia]
		t := newTable(len(g.M), len(g.K))
		for im, m := range g.M {
			mb := m * (1 - p.bHyd)
			r := M500c.Radius(p.cos, mb, a)
			amp := p.p500(mb, a) * r * r * r
			for ik, k := range g.K {
				t[im][ik] = amp * lookupShape(p.shape, k*r)
			}
		}
		return t
	})
}

// Battaglia is the Battaglia et al. (2012) AGN-feedback thermal pressure
// profile for M200c halos, converted to electron pressure.
type Battaglia struct {
	cos  cosmo.Model
	memo tableMemo
}

// Battaglia profile constants.
const (
	battagliaAlpha = 1.0
	battagliaGamma = -0.3
	battagliaSMax  = 8.0
	battagliaBLo   = 2.5
	battagliaBHi   = 12.5
	nBattagliaB    = 41
)

var (
	battagliaOnce  sync.Once
	battagliaBeta  []float64
	battagliaShape []interp.PiecewiseLinear
)

// battagliaShapeTable tabulates ∫₀^smax 4π s² s^γ (1+s)^-β sinc(qs) ds on a
// grid of β, in q = k R200 xc.
func battagliaShapeTable() ([]float64, []interp.PiecewiseLinear) {
	battagliaOnce.Do(func() {
		xs := floats.Span(make([]float64, nShapeX), 0, battagliaSMax)
		q, lnQ := shapeQGrid()
		battagliaBeta = floats.Span(make([]float64, nBattagliaB), battagliaBLo, battagliaBHi)
		battagliaShape = make([]interp.PiecewiseLinear, nBattagliaB)
		w := make([]float64, nShapeX)
		for ib, beta := range battagliaBeta {
			for i, s := range xs {
				w[i] = 4 * math.Pi * math.Pow(s, 2+battagliaGamma) *
					math.Pow(1+math.Pow(s, battagliaAlpha), -beta)
			}
			if err := battagliaShape[ib].Fit(lnQ, sincTransform(xs, w, q)); err != nil {
				panic(err)
			}
		}
	})
	return battagliaBeta, battagliaShape
}

// NewBattaglia returns the Battaglia profile.
func NewBattaglia(cos cosmo.Model) *Battaglia {
	battagliaShapeTable()
	return &Battaglia{cos: cos}
}

func (p *Battaglia) Kind() Kind       { return KindPressure }
func (p *Battaglia) Normalized() bool { return false }

// params returns the fitted amplitude, core scale and outer slope.
func (p *Battaglia) params(m, a float64) (p0, xc, beta float64) {
	mr := m / 1e14
	zp1 := 1 / a
	p0 = 18.1 * math.Pow(mr, 0.154) * math.Pow(zp1, -0.758)
	xc = 0.497 * math.Pow(mr, -0.00865) * math.Pow(zp1, 0.731)
	beta = 4.35 * math.Pow(mr, 0.0393) * math.Pow(zp1, 0.415)
	return p0, xc, beta
}

// p200 returns the self-similar pressure G M 200 ρc fb / (2 R) in eV/cm³,
// with R the physical radius.
func (p *Battaglia) p200(m, a float64) float64 {
	cp := p.cos.Params()
	fb := cp.OmegaB / cp.OmegaM()
	rPhys := M200c.Radius(p.cos, m, a) * a
	return gravity * m * 200 * p.cos.RhoCritical(a) * fb / (2 * rPhys) * eVPerCm3
}

// shapeAt interpolates the shape table linearly in β.
func (p *Battaglia) shapeAt(beta, q float64) float64 {
	betas, tabs := battagliaShapeTable()
	beta = math.Max(battagliaBLo, math.Min(battagliaBHi, beta))
	step := betas[1] - betas[0]
	i := int((beta - battagliaBLo) / step)
	if i >= len(betas)-1 {
		i = len(betas) - 2
	}
	t := (beta - betas[i]) / step
	return (1-t)*lookupShape(&tabs[i], q) + t*lookupShape(&tabs[i+1], q)
}

func (p *Battaglia) Fourier(g *Grid, ia int) [][]float64 {
	return p.memo.get(g, ia, func() [][]float64 {
		a := g.A[ia]
		t := newTable(len(g.M), len(g.K))
		for im, m := range g.M {
			p0, xc, beta := p.params(m, a)
			rs := M200c.Radius(p.cos, m, a) * xc
			amp := electronPressureFraction * p.p200(m, a) * p0 * rs * rs * rs
			for ik, k := range g.K {
				t[im][ik] = amp * p.shapeAt(beta, k*rs)
			}
		}
		return t
	})
}
