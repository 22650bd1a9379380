package cosmo

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LBJ-Wade/GSKY/internal/gskyerr"
	"github.com/LBJ-Wade/GSKY/internal/physconst"
)

func fiducial(t *testing.T) *Cosmology {
	t.Helper()
	c, err := New(DefaultParams())
	require.NoError(t, err)
	return c
}

func TestValidateRejectsBadParameters(t *testing.T) {
	cases := map[string]func(*Params){
		"negative omega_c": func(p *Params) { p.OmegaC = -0.1 },
		"closed":           func(p *Params) { p.OmegaC = 0.99 },
		"zero h":           func(p *Params) { p.H = 0 },
		"zero sigma8":      func(p *Params) { p.Sigma8 = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := DefaultParams()
			mutate(&p)
			_, err := New(p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, gskyerr.ErrConfig))
		})
	}
}

func TestIdentityIsPerInstance(t *testing.T) {
	a := MustNew(DefaultParams())
	b := MustNew(DefaultParams())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, a.Params(), b.Params())
}

func TestComovingDistance(t *testing.T) {
	c := fiducial(t)
	assert.Equal(t, 0.0, c.ComovingDistance(1))

	// Ωm = 0.315, h = 0.67 puts z = 1 at roughly 3.4 Gpc.
	chi1 := ComovingDistanceZ(c, 1)
	assert.InDelta(t, 3400, chi1, 150)

	for _, z := range []float64{0.1, 0.5, 2, 10, physconst.ZCMB} {
		a := 1 / (1 + z)
		chi := c.ComovingDistance(a)
		assert.InEpsilon(t, a, c.ScaleFactor(chi), 1e-3, "z=%g", z)
	}
	assert.Greater(t, ComovingDistanceZ(c, physconst.ZCMB), ComovingDistanceZ(c, 10))
}

func TestGrowth(t *testing.T) {
	c := fiducial(t)
	assert.InDelta(t, 1.0, c.Growth(1), 1e-12)
	prev := 0.0
	for _, a := range []float64{1e-3, 0.01, 0.1, 0.3, 0.5, 0.8, 1} {
		d := c.Growth(a)
		assert.Greater(t, d, prev)
		prev = d
	}
	// Λ suppresses late growth: D(a)/a exceeds 1 in the past.
	assert.Greater(t, c.Growth(0.01)/0.01, 1.2)
	assert.Less(t, c.Growth(0.01)/0.01, 1.4)
}

func TestSigma8Normalization(t *testing.T) {
	c := fiducial(t)
	r8 := 8 / c.Params().H
	m8 := 4 * math.Pi / 3 * c.RhoMean0() * r8 * r8 * r8
	assert.InEpsilon(t, 0.83, c.Sigma(m8, 1), 5e-3)
	assert.InEpsilon(t, 0.83*c.Growth(0.5), c.Sigma(m8, 0.5), 5e-3)

	// σ falls with mass.
	assert.Greater(t, c.Sigma(1e10, 1), c.Sigma(1e14, 1))
	assert.Greater(t, c.DlnSigmaInvDlnM(1e14), 0.0)
}

func TestHalofitBoostsSmallScales(t *testing.T) {
	c := fiducial(t)
	k := []float64{1e-3, 1.0, 10.0}
	nl := c.NonLinearPower(k, 1)
	assert.InEpsilon(t, c.LinearPower(1e-3, 1), nl[0], 1e-2)
	assert.Greater(t, nl[1], c.LinearPower(1.0, 1))
	assert.Greater(t, nl[2], 10*c.LinearPower(10.0, 1))
}

func TestRhoCriticalToday(t *testing.T) {
	c := fiducial(t)
	h := c.Params().H
	assert.InEpsilon(t, physconst.RhoCritical100*h*h, c.RhoCritical(1), 1e-12)
	assert.InEpsilon(t, c.RhoMean0(), c.OmegaM(1)*c.RhoCritical(1), 1e-12)
}
