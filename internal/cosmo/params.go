// Package cosmo provides the cosmology backend consumed by the halo model:
// flat ΛCDM background quantities, linear growth, the Eisenstein & Hu
// no-wiggle linear power spectrum normalized to σ8, top-hat σ(M), and the
// Takahashi et al. (2012) halofit non-linear power spectrum.
package cosmo

import (
	"github.com/LBJ-Wade/GSKY/internal/gskyerr"
)

// Params are the cosmological parameters of a flat ΛCDM model.
type Params struct {
	OmegaC float64 `yaml:"Omega_c" json:"Omega_c"`
	OmegaB float64 `yaml:"Omega_b" json:"Omega_b"`
	H      float64 `yaml:"h" json:"h"`
	Sigma8 float64 `yaml:"sigma8" json:"sigma8"`
	NS     float64 `yaml:"n_s" json:"n_s"`
}

// DefaultParams returns the fiducial cosmology used when none is supplied.
func DefaultParams() Params {
	return Params{
		OmegaC: 0.27,
		OmegaB: 0.045,
		H:      0.67,
		Sigma8: 0.83,
		NS:     0.96,
	}
}

// OmegaM returns the total matter density today.
func (p Params) OmegaM() float64 {
	return p.OmegaC + p.OmegaB
}

// Validate checks the parameters describe a usable flat cosmology.
func (p Params) Validate() error {
	switch {
	case p.OmegaC <= 0:
		return gskyerr.Config("Omega_c must be positive").With("Omega_c", p.OmegaC)
	case p.OmegaB < 0:
		return gskyerr.Config("Omega_b must be non-negative").With("Omega_b", p.OmegaB)
	case p.OmegaM() >= 1:
		return gskyerr.Config("Omega_m must be below 1 for a flat ΛCDM model").With("Omega_m", p.OmegaM())
	case p.H <= 0:
		return gskyerr.Config("h must be positive").With("h", p.H)
	case p.Sigma8 <= 0:
		return gskyerr.Config("sigma8 must be positive").With("sigma8", p.Sigma8)
	case p.NS <= 0:
		return gskyerr.Config("n_s must be positive").With("n_s", p.NS)
	}
	return nil
}
