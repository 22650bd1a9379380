package tracer

import (
	"gonum.org/v1/gonum/floats"

	"github.com/LBJ-Wade/GSKY/internal/gskyerr"
)

// PeakRedshift returns the redshift of the n(z) maximum, the pivot of the
// photo-z width transform.
func PeakRedshift(z, nz []float64) float64 {
	if len(nz) == 0 {
		return 0
	}
	return z[floats.MaxIdx(nz)]
}

// PhotoZ is a photometric-redshift systematic: a shift of the whole
// distribution plus a stretch about its peak.
type PhotoZ struct {
	Center float64
	Shift  float64
	Width  float64
}

// Apply maps each redshift to zc + (1+width)(z-zc) + shift. Samples pushed
// below z = 0 are dropped.
func (p PhotoZ) Apply(z, nz []float64) ([]float64, []float64, error) {
	if p.Shift == 0 && p.Width == 0 {
		return z, nz, nil
	}
	if 1+p.Width <= 0 {
		return nil, nil, gskyerr.Config("photo-z width must be greater than -1").With("width", p.Width)
	}
	outZ := make([]float64, 0, len(z))
	outN := make([]float64, 0, len(z))
	for i, zz := range z {
		zn := p.Center + (1+p.Width)*(zz-p.Center) + p.Shift
		if zn < 0 {
			continue
		}
		outZ = append(outZ, zn)
		outN = append(outN, nz[i])
	}
	if len(outZ) < 2 {
		return nil, nil, gskyerr.Config("photo-z shift leaves fewer than two redshift samples").
			With("shift", p.Shift).With("width", p.Width)
	}
	return outZ, outN, nil
}
