// Package halo provides the halo-model ingredients: mass definitions,
// concentration-mass relations, the mass function and halo bias, the halo
// profiles of each probe, and the calculator that integrates them into
// power-spectrum surfaces.
package halo

import (
	"math"
	"strconv"
	"strings"

	"github.com/LBJ-Wade/GSKY/internal/cosmo"
	"github.com/LBJ-Wade/GSKY/internal/gskyerr"
)

// Reference is the background density a spherical overdensity is measured against.
type Reference int

const (
	RefMatter Reference = iota
	RefCritical
)

// MassDef is a spherical-overdensity halo mass definition.
type MassDef struct {
	Delta float64
	Ref   Reference
}

// The supported mass definitions.
var (
	M200m = MassDef{Delta: 200, Ref: RefMatter}
	M200c = MassDef{Delta: 200, Ref: RefCritical}
	M500c = MassDef{Delta: 500, Ref: RefCritical}
)

// ParseMassDef maps "M200m", "M200c" or "M500c" (any case) to a MassDef.
func ParseMassDef(s string) (MassDef, error) {
	switch strings.ToLower(s) {
	case "m200m":
		return M200m, nil
	case "m200c":
		return M200c, nil
	case "m500c":
		return M500c, nil
	}
	return MassDef{}, gskyerr.Config("only mass definitions M200m, M200c and M500c are supported").With("mass_def", s)
}

func (d MassDef) String() string {
	ref := "m"
	if d.Ref == RefCritical {
		ref = "c"
	}
	return "M" + strconv.FormatFloat(d.Delta, 'f', -1, 64) + ref
}

// DeltaMean returns the overdensity relative to the mean matter density at a.
func (d MassDef) DeltaMean(c cosmo.Model, a float64) float64 {
	if d.Ref == RefMatter {
		return d.Delta
	}
	return d.Delta / c.OmegaM(a)
}

// referenceDensity is the physical background density at a in Msun/Mpc³.
func (d MassDef) referenceDensity(c cosmo.Model, a float64) float64 {
	if d.Ref == RefMatter {
		return c.RhoMean0() / (a * a * a)
	}
	return c.RhoCritical(a)
}

// Radius returns the comoving halo radius in Mpc of mass m at scale factor a.
func (d MassDef) Radius(c cosmo.Model, m, a float64) float64 {
	rho := d.Delta * d.referenceDensity(c, a)
	return math.Cbrt(3*m/(4*math.Pi*rho)) / a
}
