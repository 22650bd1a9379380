package halo

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LBJ-Wade/GSKY/internal/cosmo"
	"github.com/LBJ-Wade/GSKY/internal/gskyerr"
)

var fiducialCosmo = cosmo.MustNew(cosmo.DefaultParams())

func TestParseMassDef(t *testing.T) {
	for _, name := range []string{"M200m", "M200c", "M500c"} {
		def, err := ParseMassDef(name)
		require.NoError(t, err)
		assert.Equal(t, name, def.String())
	}
	def, err := ParseMassDef("m500C")
	require.NoError(t, err)
	assert.Equal(t, M500c, def)

	_, err = ParseMassDef("M178m")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gskyerr.ErrConfig))
}

func TestRadius(t *testing.T) {
	rho := 200 * fiducialCosmo.RhoCritical(1)
	want := math.Cbrt(3e14 / (4 * math.Pi * rho))
	assert.InEpsilon(t, want, M200c.Radius(fiducialCosmo, 1e14, 1), 1e-12)

	// Comoving radius grows as 1/a at fixed physical size.
	r05 := M200m.Radius(fiducialCosmo, 1e14, 0.5)
	r1 := M200m.Radius(fiducialCosmo, 1e14, 1)
	assert.InEpsilon(t, r1, r05, 1e-9, "mean-density radius is constant in comoving units")
}

func TestDuffyConcentration(t *testing.T) {
	c200, err := NewConcentration(M200c)
	require.NoError(t, err)
	pivot := 2e12 / fiducialCosmo.Params().H
	assert.InDelta(t, 5.71, c200.Concentration(fiducialCosmo, pivot, 1), 1e-12)
	assert.Greater(t, c200.Concentration(fiducialCosmo, 1e12, 1), c200.Concentration(fiducialCosmo, 1e15, 1))

	c500, err := NewConcentration(M500c)
	require.NoError(t, err)
	cc5 := c500.Concentration(fiducialCosmo, 1e14, 1)
	cc2 := c200.Concentration(fiducialCosmo, 1e14, 1)
	assert.Less(t, cc5, cc2)
	assert.Greater(t, cc5, 0.5*cc2)

	_, err = NewConcentration(MassDef{Delta: 100, Ref: RefCritical})
	assert.True(t, errors.Is(err, gskyerr.ErrConfig))
}

func TestConvertConcentrationRoundTrip(t *testing.T) {
	c500 := convertConcentration(5, 200, 500)
	assert.InDelta(t, 5, convertConcentration(c500, 500, 200), 1e-6)
}

func TestMassFunctionAndBias(t *testing.T) {
	mf, err := NewTinker08(M200m)
	require.NoError(t, err)
	hb := NewTinker10(M200m)

	assert.Greater(t, mf.DnDlnM(fiducialCosmo, 1e13, 1), mf.DnDlnM(fiducialCosmo, 1e15, 1))
	assert.Greater(t, mf.DnDlnM(fiducialCosmo, 1e15, 1), mf.DnDlnM(fiducialCosmo, 1e15, 0.5),
		"massive halos are rarer at high redshift")

	assert.Greater(t, hb.Bias(fiducialCosmo, 1e15, 1), 1.0)
	assert.Less(t, hb.Bias(fiducialCosmo, 1e10, 1), 1.0)
	assert.Greater(t, hb.Bias(fiducialCosmo, 1e14, 0.5), hb.Bias(fiducialCosmo, 1e14, 1))
}
