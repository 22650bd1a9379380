package cosmo

import (
	"math"

	"gonum.org/v1/gonum/integrate"
)

// halofit holds the Takahashi et al. (2012) coefficients at one scale factor.
type halofit struct {
	linearOnly bool
	kSigma     float64

	an, bn, cn, gamman, alphan, betan, nun float64
	f1, f2, f3                             float64
}

// gaussianMoments returns σ²_G(R) and the first two ln R derivatives at a = 1.
func (c *Cosmology) gaussianMoments(r float64) (s0, s1, s2 float64) {
	n := len(c.lnK)
	f0 := make([]float64, n)
	f1 := make([]float64, n)
	f2 := make([]float64, n)
	for i, lk := range c.lnK {
		y := math.Exp(lk) * r
		y2 := y * y
		g := c.delta0[i] * math.Exp(-y2)
		f0[i] = g
		f1[i] = -2 * y2 * g
		f2[i] = (4*y2*y2 - 4*y2) * g
	}
	return integrate.Simpsons(c.lnK, f0), integrate.Simpsons(c.lnK, f1), integrate.Simpsons(c.lnK, f2)
}

func (c *Cosmology) halofitAt(a float64) halofit {
	d := c.Growth(a)
	d2 := d * d
	sig2 := func(lr float64) float64 {
		s0, _, _ := c.gaussianMoments(math.Exp(lr))
		return s0 * d2
	}

	lo, hi := math.Log(1e-4), math.Log(1e3)
	if sig2(lo) < 1 {
		return halofit{linearOnly: true}
	}
	for i := 0; i < 60; i++ {
		mid := 0.5 * (lo + hi)
		if sig2(mid) > 1 {
			lo = mid
		} else {
			hi = mid
		}
	}
	r := math.Exp(0.5 * (lo + hi))
	s0, s1, s2 := c.gaussianMoments(r)
	dl := s1 / s0
	neff := -3 - dl
	curv := -(s2/s0 - dl*dl)

	n2 := neff * neff
	n3 := n2 * neff
	n4 := n3 * neff
	om := c.OmegaM(a)
	return halofit{
		kSigma: 1 / r,
		an:     math.Pow(10, 1.5222+2.8553*neff+2.3706*n2+0.9903*n3+0.2250*n4-0.6038*curv),
		bn:     math.Pow(10, -0.5642+0.5864*neff+0.5716*n2-1.5474*curv),
		cn:     math.Pow(10, 0.3698+2.0404*neff+0.8161*n2+0.5869*curv),
		gamman: 0.1971 - 0.0843*neff + 0.8460*curv,
		alphan: math.Abs(6.0835 + 1.3373*neff - 0.1959*n2 - 5.5274*curv),
		betan:  2.0379 - 0.7354*neff + 0.3157*n2 + 1.2490*n3 + 0.3980*n4 - 0.1682*curv,
		nun:    math.Pow(10, 5.2105+3.6902*neff),
		f1:     math.Pow(om, -0.0307),
		f2:     math.Pow(om, -0.0585),
		f3:     math.Pow(om, 0.0743),
	}
}

// power converts a linear power into the halofit non-linear power at k.
func (h halofit) power(k, plin float64) float64 {
	if h.linearOnly || k <= 0 {
		return plin
	}
	k3 := k * k * k / (2 * math.Pi * math.Pi)
	dl := k3 * plin
	y := k / h.kSigma
	fy := y/4 + y*y/8

	dq := dl * math.Pow(1+dl, h.betan) / (1 + h.alphan*dl) * math.Exp(-fy)
	dhPrime := h.an * math.Pow(y, 3*h.f1) /
		(1 + h.bn*math.Pow(y, h.f2) + math.Pow(h.cn*h.f3*y, 3-h.gamman))
	dh := dhPrime / (1 + h.nun/(y*y))
	return (dq + dh) / k3
}

func (c *Cosmology) NonLinearPower(k []float64, a float64) []float64 {
	hf := c.halofitAt(a)
	out := make([]float64, len(k))
	for i, kk := range k {
		out[i] = hf.power(kk, c.LinearPower(kk, a))
	}
	return out
}
