package tracer

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/interp"

	"github.com/LBJ-Wade/GSKY/internal/cosmo"
	"github.com/LBJ-Wade/GSKY/internal/gskyerr"
	"github.com/LBJ-Wade/GSKY/internal/physconst"
)

// Kernel is a line-of-sight projection kernel in comoving distance.
type Kernel interface {
	// Support returns the comoving-distance range where the kernel is non-zero.
	Support() (chiMin, chiMax float64)
	// Weight returns the kernel at comoving distance chi in Mpc.
	Weight(chi float64) float64
	// EllFactor is the multipole-dependent prefactor of the kernel.
	EllFactor(ell float64) float64
}

// Kernel sampling.
const (
	nKernel    = 1024
	zMaxTSZ    = 6.0
	zSourceCMB = physconst.ZCMB
)

// Projection is a kernel tabulated in comoving distance.
type Projection struct {
	quantity       Quantity
	chiMin, chiMax float64
	w              interp.PiecewiseLinear
}

func (p *Projection) Support() (float64, float64) { return p.chiMin, p.chiMax }

// Quantity returns the quantity the kernel projects.
func (p *Projection) Quantity() Quantity { return p.quantity }

func (p *Projection) Weight(chi float64) float64 {
	if chi < p.chiMin || chi > p.chiMax {
		return 0
	}
	return p.w.Predict(chi)
}

func (p *Projection) EllFactor(ell float64) float64 {
	lp := ell + 0.5
	switch p.quantity {
	case GalaxyShear:
		if ell < 2 {
			return 0
		}
		return math.Sqrt((ell+2)*(ell+1)*ell*(ell-1)) / (lp * lp)
	case CMBConvergence:
		return ell * (ell + 1) / (lp * lp)
	}
	return 1
}

func newProjection(q Quantity, chi, w []float64) (*Projection, error) {
	p := &Projection{quantity: q, chiMin: chi[0], chiMax: chi[len(chi)-1]}
	if err := p.w.Fit(chi, w); err != nil {
		return nil, gskyerr.Data("kernel tabulation failed").With("quantity", q.String()).WithCause(err)
	}
	return p, nil
}

// distances returns χ(z) for each z.
func distances(cos cosmo.Model, z []float64) []float64 {
	chi := make([]float64, len(z))
	for i, zz := range z {
		chi[i] = cosmo.ComovingDistanceZ(cos, zz)
	}
	return chi
}

// normalized returns nz divided by its integral over z.
func normalized(z, nz []float64) []float64 {
	out := append([]float64(nil), nz...)
	floats.Scale(1/integrate.Trapezoidal(z, nz), out)
	return out
}

// Bias is a linear galaxy bias b(z) table. The zero value is unit bias.
type Bias struct {
	Z, B []float64
}

func (b Bias) at(pl *interp.PiecewiseLinear, z float64) float64 {
	if len(b.Z) == 0 {
		return 1
	}
	if z <= b.Z[0] {
		return b.B[0]
	}
	if z >= b.Z[len(b.Z)-1] {
		return b.B[len(b.B)-1]
	}
	return pl.Predict(z)
}

// NewNumberCounts returns the galaxy clustering kernel b(z) n(z) H(z)/c
// with n normalized to unit integral.
func NewNumberCounts(cos cosmo.Model, z, nz []float64, bias Bias) (*Projection, error) {
	if err := checkDistribution(z, nz); err != nil {
		return nil, err
	}
	var bpl interp.PiecewiseLinear
	if len(bias.Z) > 0 {
		if len(bias.Z) != len(bias.B) || len(bias.Z) < 2 || !increasing(bias.Z) {
			return nil, gskyerr.Config("bias table needs matching z and b arrays with at least two increasing redshifts").
				With("z", len(bias.Z)).With("b", len(bias.B))
		}
		if err := bpl.Fit(bias.Z, bias.B); err != nil {
			return nil, gskyerr.Config("invalid bias table").WithCause(err)
		}
	}
	n := normalized(z, nz)
	w := make([]float64, len(z))
	for i, zz := range z {
		w[i] = bias.at(&bpl, zz) * n[i] * cos.HOverC(1/(1+zz))
	}
	return newProjection(GalaxyDensity, distances(cos, z), w)
}

// lensingPrefactor is 3/2 Ωm (H0/c)².
func lensingPrefactor(cos cosmo.Model) float64 {
	h0 := cos.HOverC(1)
	return 1.5 * cos.Params().OmegaM() * h0 * h0
}

// NewWeakLensing returns the cosmic-shear kernel of a source distribution:
// 3/2 Ωm (H0/c)² χ/a ∫_z n(z') (1 - χ/χ') dz'.
func NewWeakLensing(cos cosmo.Model, z, nz []float64) (*Projection, error) {
	if err := checkDistribution(z, nz); err != nil {
		return nil, err
	}
	zMax := z[len(z)-1]
	fine := floats.Span(make([]float64, nKernel), 0, zMax)
	var npl interp.PiecewiseLinear
	if err := npl.Fit(z, nz); err != nil {
		return nil, gskyerr.Data("invalid redshift distribution").WithCause(err)
	}
	n := make([]float64, nKernel)
	for i, zz := range fine {
		if zz >= z[0] && zz <= zMax {
			n[i] = npl.Predict(zz)
		}
	}
	n = normalized(fine, n)
	chi := distances(cos, fine)

	// Tail integrals ∫_z n dz' and ∫_z n/χ' dz' by trapezoid from the top.
	tailN := make([]float64, nKernel)
	tailNC := make([]float64, nKernel)
	over := func(i int) float64 {
		if chi[i] == 0 {
			return 0
		}
		return n[i] / chi[i]
	}
	for i := nKernel - 2; i >= 0; i-- {
		dz := fine[i+1] - fine[i]
		tailN[i] = tailN[i+1] + 0.5*dz*(n[i]+n[i+1])
		tailNC[i] = tailNC[i+1] + 0.5*dz*(over(i)+over(i+1))
	}

	pre := lensingPrefactor(cos)
	w := make([]float64, nKernel)
	for i, zz := range fine {
		q := math.Max(tailN[i]-chi[i]*tailNC[i], 0)
		w[i] = pre * chi[i] * (1 + zz) * q
	}
	return newProjection(GalaxyShear, chi, w)
}

// NewCMBLensing returns the CMB convergence kernel for a single source
// plane at the last-scattering redshift.
func NewCMBLensing(cos cosmo.Model) (*Projection, error) {
	chiS := cosmo.ComovingDistanceZ(cos, zSourceCMB)
	chi := floats.Span(make([]float64, nKernel), 0, chiS)
	pre := lensingPrefactor(cos)
	w := make([]float64, nKernel)
	for i, c := range chi {
		w[i] = pre * c / cos.ScaleFactor(c) * (chiS - c) / chiS
	}
	return newProjection(CMBConvergence, chi, w)
}

// NewTSZ returns the Compton-y kernel σ_T/(m_e c²) a, out to z = 6.
func NewTSZ(cos cosmo.Model) (*Projection, error) {
	chiMax := cosmo.ComovingDistanceZ(cos, zMaxTSZ)
	chi := floats.Span(make([]float64, nKernel), 0, chiMax)
	w := make([]float64, nKernel)
	for i, c := range chi {
		w[i] = physconst.SigmaTOverMeC2 * cos.ScaleFactor(c)
	}
	return newProjection(CMBTSZ, chi, w)
}
