package cosmo

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"

	"github.com/LBJ-Wade/GSKY/internal/physconst"
)

// setupTransfer fixes the Eisenstein & Hu (1998) no-wiggle constants and
// the σ8 normalization.
func (c *Cosmology) setupTransfer() {
	h := c.p.H
	omh2 := c.omegaM * h * h
	obh2 := c.p.OmegaB * h * h
	fb := c.p.OmegaB / c.omegaM
	theta := physconst.TCMB / 2.7

	c.ehTheta2 = theta * theta
	c.ehS = 44.5 * math.Log(9.83/omh2) / math.Sqrt(1+10*math.Pow(obh2, 0.75))
	c.ehAlpha = 1 - 0.328*math.Log(431*omh2)*fb + 0.38*math.Log(22.3*omh2)*fb*fb

	c.lnK = floats.Span(make([]float64, nLnKSig), lnKLoSig, lnKHiSig)
	c.delta0 = make([]float64, nLnKSig)
	c.amp = 1
	for i, lk := range c.lnK {
		k := math.Exp(lk)
		c.delta0[i] = k * k * k * c.powerToday(k) / (2 * math.Pi * math.Pi)
	}
	s2 := c.sigma2TopHat(8 / h)
	c.amp = c.p.Sigma8 * c.p.Sigma8 / s2
	floats.Scale(c.amp, c.delta0)
}

func (c *Cosmology) transfer(k float64) float64 {
	h := c.p.H
	ks := 0.43 * k * c.ehS
	gamma := c.omegaM * h * (c.ehAlpha + (1-c.ehAlpha)/(1+ks*ks*ks*ks))
	q := (k / h) * c.ehTheta2 / gamma
	l0 := math.Log(2*math.E + 1.8*q)
	c0 := 14.2 + 731/(1+62.5*q)
	return l0 / (l0 + c0*q*q)
}

func (c *Cosmology) powerToday(k float64) float64 {
	t := c.transfer(k)
	return c.amp * math.Pow(k, c.p.NS) * t * t
}

func (c *Cosmology) LinearPower(k, a float64) float64 {
	if k <= 0 {
		return 0
	}
	d := c.Growth(a)
	return c.powerToday(k) * d * d
}

func topHat(x float64) float64 {
	if x < 1e-3 {
		return 1 - x*x/10
	}
	return 3 * (math.Sin(x) - x*math.Cos(x)) / (x * x * x)
}

// sigma2TopHat returns σ²(R) at a = 1 for a comoving top-hat radius R.
func (c *Cosmology) sigma2TopHat(r float64) float64 {
	f := make([]float64, len(c.lnK))
	for i, lk := range c.lnK {
		w := topHat(math.Exp(lk) * r)
		f[i] = c.delta0[i] * w * w
	}
	return integrate.Simpsons(c.lnK, f)
}

// setupSigma tabulates ln σ(M) at a = 1 and its logarithmic slope.
func (c *Cosmology) setupSigma() error {
	lnM := floats.Span(make([]float64, nLnM), lnMLo, lnMHi)
	lnS := make([]float64, nLnM)
	rho := c.RhoMean0()
	for i, lm := range lnM {
		r := math.Cbrt(3 * math.Exp(lm) / (4 * math.Pi * rho))
		lnS[i] = 0.5 * math.Log(c.sigma2TopHat(r))
	}
	slope := make([]float64, nLnM)
	for i := range lnM {
		lo, hi := i-1, i+1
		if lo < 0 {
			lo = 0
		}
		if hi >= nLnM {
			hi = nLnM - 1
		}
		slope[i] = -(lnS[hi] - lnS[lo]) / (lnM[hi] - lnM[lo])
	}
	if err := c.lnSigma.Fit(lnM, lnS); err != nil {
		return err
	}
	return c.dlnSigInv.Fit(lnM, slope)
}

func (c *Cosmology) Sigma(m, a float64) float64 {
	return math.Exp(c.lnSigma.Predict(math.Log(m))) * c.Growth(a)
}

func (c *Cosmology) DlnSigmaInvDlnM(m float64) float64 {
	return c.dlnSigInv.Predict(math.Log(m))
}
