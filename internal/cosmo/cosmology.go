package cosmo

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"

	"github.com/LBJ-Wade/GSKY/internal/physconst"
)

// Model is the capability the halo model and the projection kernels
// consume. *Cosmology implements it; any backend producing equivalent
// quantities can be substituted.
type Model interface {
	// ID identifies this instance. Two instances never share an ID, even
	// with identical parameters.
	ID() string
	Params() Params

	// OmegaM returns the matter density parameter at scale factor a.
	OmegaM(a float64) float64
	// HOverC returns H(a)/c in Mpc⁻¹.
	HOverC(a float64) float64
	// ComovingDistance returns the radial comoving distance to a in Mpc.
	ComovingDistance(a float64) float64
	// ScaleFactor inverts ComovingDistance.
	ScaleFactor(chi float64) float64
	// Growth returns the linear growth factor normalized to 1 today.
	Growth(a float64) float64

	// RhoMean0 is the comoving mean matter density in Msun/Mpc³.
	RhoMean0() float64
	// RhoCritical is the physical critical density at a in Msun/Mpc³.
	RhoCritical(a float64) float64

	// LinearPower returns P_lin(k, a) with k in Mpc⁻¹ and P in Mpc³.
	LinearPower(k, a float64) float64
	// NonLinearPower returns the halofit power at each k for one a.
	NonLinearPower(k []float64, a float64) []float64

	// Sigma returns the rms linear fluctuation in a top-hat sphere of mass m.
	Sigma(m, a float64) float64
	// DlnSigmaInvDlnM returns d ln(1/σ) / d ln M.
	DlnSigmaInvDlnM(m float64) float64
}

// Table resolutions.
const (
	lnAMin   = -9.210340371976184 // ln(1e-4), beyond the CMB lensing source
	nLnA     = 4096
	lnKLoSig = -11.512925464970229 // ln(1e-5)
	lnKHiSig = 6.907755278982137   // ln(1e3)
	nLnKSig  = 2049
	lnMLo    = 11.512925464970229 // ln(1e5)
	lnMHi    = 41.44653167389282  // ln(1e18)
	nLnM     = 512
)

// Cosmology is an immutable flat ΛCDM model with its background, growth and
// σ(M) tables precomputed at construction.
type Cosmology struct {
	id string
	p  Params

	omegaM float64
	h0c    float64 // H0/c in Mpc⁻¹

	chiOfLnA  interp.PiecewiseLinear
	lnAOfChi  interp.PiecewiseLinear
	growthLnA interp.PiecewiseLinear
	chiMax    float64

	// Eisenstein & Hu constants.
	ehS, ehAlpha, ehTheta2 float64
	amp                    float64

	lnK    []float64
	delta0 []float64 // Δ²_lin(k, a=1) on lnK

	lnSigma   interp.PiecewiseLinear
	dlnSigInv interp.PiecewiseLinear
}

// New builds a cosmology. It fails with a ConfigError for unusable parameters.
func New(p Params) (*Cosmology, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	c := &Cosmology{
		id:     uuid.NewString(),
		p:      p,
		omegaM: p.OmegaM(),
		h0c:    100 * p.H / physconst.SpeedOfLight,
	}
	if err := c.setupBackground(); err != nil {
		return nil, fmt.Errorf("background tables: %w", err)
	}
	c.setupTransfer()
	if err := c.setupSigma(); err != nil {
		return nil, fmt.Errorf("sigma tables: %w", err)
	}
	return c, nil
}

// MustNew is New for fixed, known-good parameters.
func MustNew(p Params) *Cosmology {
	c, err := New(p)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Cosmology) ID() string     { return c.id }
func (c *Cosmology) Params() Params { return c.p }

func (c *Cosmology) e(a float64) float64 {
	return math.Sqrt(c.omegaM/(a*a*a) + 1 - c.omegaM)
}

func (c *Cosmology) OmegaM(a float64) float64 {
	e := c.e(a)
	return c.omegaM / (a * a * a * e * e)
}

func (c *Cosmology) HOverC(a float64) float64 {
	return c.h0c * c.e(a)
}

func (c *Cosmology) RhoMean0() float64 {
	return c.omegaM * physconst.RhoCritical100 * c.p.H * c.p.H
}

func (c *Cosmology) RhoCritical(a float64) float64 {
	e := c.e(a)
	return physconst.RhoCritical100 * c.p.H * c.p.H * e * e
}

// setupBackground tabulates χ(a) and D(a) on a uniform ln a grid by
// cumulative trapezoid integration.
func (c *Cosmology) setupBackground() error {
	lna := floats.Span(make([]float64, nLnA), lnAMin, 0)
	chi := make([]float64, nLnA)
	grow := make([]float64, nLnA)

	// dχ/dln a = 1/(a H/c)
	dchi := func(l float64) float64 {
		a := math.Exp(l)
		return 1 / (a * c.HOverC(a))
	}
	for i := nLnA - 2; i >= 0; i-- {
		h := lna[i+1] - lna[i]
		chi[i] = chi[i+1] + 0.5*h*(dchi(lna[i])+dchi(lna[i+1]))
	}

	// D(a) ∝ E(a) ∫_0^a da'/(a'E)³; the piece below the grid is matter dominated.
	dg := func(l float64) float64 {
		a := math.Exp(l)
		e := c.e(a)
		return 1 / (a * a * e * e * e)
	}
	amin := math.Exp(lnAMin)
	acc := math.Pow(amin, 2.5) / (2.5 * math.Pow(c.omegaM, 1.5))
	for i := range lna {
		if i > 0 {
			h := lna[i] - lna[i-1]
			acc += 0.5 * h * (dg(lna[i-1]) + dg(lna[i]))
		}
		grow[i] = c.e(math.Exp(lna[i])) * acc
	}
	norm := grow[nLnA-1]
	floats.Scale(1/norm, grow)

	if err := c.chiOfLnA.Fit(lna, chi); err != nil {
		return err
	}
	if err := c.growthLnA.Fit(lna, grow); err != nil {
		return err
	}

	// Inverse table needs increasing χ.
	rchi := make([]float64, nLnA)
	rlna := make([]float64, nLnA)
	for i := range chi {
		rchi[i] = chi[nLnA-1-i]
		rlna[i] = lna[nLnA-1-i]
	}
	c.chiMax = rchi[nLnA-1]
	return c.lnAOfChi.Fit(rchi, rlna)
}

func (c *Cosmology) ComovingDistance(a float64) float64 {
	if a >= 1 {
		return 0
	}
	return c.chiOfLnA.Predict(math.Log(a))
}

func (c *Cosmology) ScaleFactor(chi float64) float64 {
	if chi <= 0 {
		return 1
	}
	return math.Exp(c.lnAOfChi.Predict(chi))
}

func (c *Cosmology) Growth(a float64) float64 {
	if a >= 1 {
		return 1
	}
	l := math.Log(a)
	if l < lnAMin {
		// Matter domination: D ∝ a.
		return c.growthLnA.Predict(lnAMin) * a / math.Exp(lnAMin)
	}
	return c.growthLnA.Predict(l)
}

// ComovingDistanceZ is ComovingDistance at redshift z.
func ComovingDistanceZ(m Model, z float64) float64 {
	return m.ComovingDistance(1 / (1 + z))
}
