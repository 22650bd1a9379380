package halo

import (
	"github.com/LBJ-Wade/GSKY/internal/pk2d"
)

// CorrectionFactor returns the ratio of the halofit matter power to the
// halo-model matter power of p on the standard grid. Multiplying a
// matter-involving halo-model spectrum by it recovers the fitting-function
// amplitude in the transition between the one- and two-halo regimes.
func (c *Calculator) CorrectionFactor(p *NFW) (*pk2d.Surface, error) {
	hm, err := c.Power(p, p)
	if err != nil {
		return nil, err
	}
	g := c.grid
	ratio := newTable(len(g.A), len(g.K))
	for ia, a := range g.A {
		nl := c.cos.NonLinearPower(g.K, a)
		for ik := range g.K {
			ratio[ia][ik] = nl[ik] / hm.At(ia, ik)
		}
	}
	// The ratio does not grow with time, so it is held constant below the grid.
	return pk2d.New(g.K, g.A, ratio, nil)
}
