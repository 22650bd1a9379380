package halo

import (
	"math"

	"gonum.org/v1/gonum/interp"

	"github.com/LBJ-Wade/GSKY/internal/cosmo"
	"github.com/LBJ-Wade/GSKY/internal/gskyerr"
	"github.com/LBJ-Wade/GSKY/internal/physconst"
)

// MassFunction returns the halo abundance dn/dln M in Mpc⁻³.
type MassFunction interface {
	DnDlnM(c cosmo.Model, m, a float64) float64
}

// HaloBias returns the linear halo bias b(M, a).
type HaloBias interface {
	Bias(c cosmo.Model, m, a float64) float64
}

func errUnsupportedMassDef(def MassDef) error {
	return gskyerr.Config("unsupported mass definition").With("mass_def", def.String())
}

// Tinker08 is the Tinker et al. (2008) mass function, interpolated in
// ln Δ_m between the published overdensities.
type Tinker08 struct {
	def            MassDef
	pA, pa, pb, pc interp.PiecewiseLinear
}

// NewTinker08 returns the Tinker08 mass function for def.
func NewTinker08(def MassDef) (*Tinker08, error) {
	lnDelta := []float64{200, 300, 400, 600, 800, 1200, 1600, 2400, 3200}
	for i, d := range lnDelta {
		lnDelta[i] = math.Log(d)
	}
	t := &Tinker08{def: def}
	tables := []struct {
		pl   *interp.PiecewiseLinear
		vals []float64
	}{
		{&t.pA, []float64{0.186, 0.200, 0.212, 0.218, 0.248, 0.255, 0.260, 0.260, 0.260}},
		{&t.pa, []float64{1.47, 1.52, 1.56, 1.61, 1.87, 2.13, 2.30, 2.53, 2.66}},
		{&t.pb, []float64{2.57, 2.25, 2.05, 1.87, 1.59, 1.51, 1.46, 1.44, 1.41}},
		{&t.pc, []float64{1.19, 1.27, 1.34, 1.45, 1.58, 1.80, 1.97, 2.24, 2.44}},
	}
	for _, tb := range tables {
		if err := tb.pl.Fit(lnDelta, tb.vals); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tinker08) DnDlnM(c cosmo.Model, m, a float64) float64 {
	delta := t.def.DeltaMean(c, a)
	ld := math.Log(delta)
	z := 1/a - 1
	alpha := math.Pow(10, -math.Pow(0.75/math.Log(delta/75), 1.2))

	pA := t.pA.Predict(ld) * math.Pow(1+z, -0.14)
	pa := t.pa.Predict(ld) * math.Pow(1+z, -0.06)
	pb := t.pb.Predict(ld) * math.Pow(1+z, -alpha)
	pc := t.pc.Predict(ld)

	sigma := c.Sigma(m, a)
	f := pA * (math.Pow(sigma/pb, -pa) + 1) * math.Exp(-pc/(sigma*sigma))
	return f * c.RhoMean0() / m * c.DlnSigmaInvDlnM(m)
}

// Tinker10 is the Tinker et al. (2010) halo bias.
type Tinker10 struct {
	def MassDef
}

// NewTinker10 returns the Tinker10 bias for def.
func NewTinker10(def MassDef) *Tinker10 {
	return &Tinker10{def: def}
}

func (t *Tinker10) Bias(c cosmo.Model, m, a float64) float64 {
	const dc = physconst.DeltaCollapse
	y := math.Log10(t.def.DeltaMean(c, a))
	ex := math.Exp(-math.Pow(4/y, 4))
	pA := 1 + 0.24*y*ex
	pa := 0.44*y - 0.88
	pB := 0.183
	pb := 1.5
	pC := 0.019 + 0.107*y + 0.19*ex
	pc := 2.4

	nu := dc / c.Sigma(m, a)
	na := math.Pow(nu, pa)
	return 1 - pA*na/(na+math.Pow(dc, pa)) + pB*math.Pow(nu, pb) + pC*math.Pow(nu, pc)
}
