// Package physconst provides the physical constants and the fixed
// wavenumber/scale-factor grid shared by every power-spectrum surface.
package physconst

import "gonum.org/v1/gonum/floats"

// Physical constants in the units used throughout the theory code
// (Mpc, solar masses, km/s, eV, cm).
const (
	// SpeedOfLight in km/s.
	SpeedOfLight = 299792.458

	// RhoCritical100 is the critical density today for h = 1, in Msun/Mpc³.
	RhoCritical100 = 2.77536627e11

	// DeltaCollapse is the linear spherical-collapse threshold.
	DeltaCollapse = 1.686

	// TCMB is the CMB temperature today in Kelvin.
	TCMB = 2.7255

	// ZCMB is the source redshift used by the CMB lensing kernel.
	ZCMB = 1150.0

	// SigmaTOverMeC2 is σ_T/(m_e c²) times one Mpc in cm, in cm³ eV⁻¹ Mpc⁻¹.
	// Multiplying an electron pressure in eV cm⁻³ gives a Compton-y
	// contribution per comoving Mpc.
	SigmaTOverMeC2 = 4.01710079e-06
)

// Grid bounds of every tabulated P(k, a) surface.
const (
	KMin = 1e-4
	KMax = 1e2
	NK   = 256

	AMin = 0.2
	AMax = 1.0
	NA   = 32
)

// KGrid returns the 256 log-spaced wavenumbers in [1e-4, 1e2] Mpc⁻¹.
func KGrid() []float64 {
	return floats.LogSpan(make([]float64, NK), KMin, KMax)
}

// AGrid returns the 32 linearly spaced scale factors in [0.2, 1].
func AGrid() []float64 {
	return floats.Span(make([]float64, NA), AMin, AMax)
}
