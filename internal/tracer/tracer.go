package tracer

import (
	"strconv"
	"strings"

	"github.com/LBJ-Wade/GSKY/internal/gskyerr"
)

// Tracer is one survey tracer as read from a data set.
type Tracer struct {
	Name     string
	Quantity Quantity
	Z        []float64
	NZ       []float64
	// Extra holds alternate n(z) estimates sampled on Z, by column name.
	Extra map[string][]float64
}

// Validate checks the redshift distribution of tracers that need one.
func (t Tracer) Validate() error {
	if t.Name == "" {
		return gskyerr.Data("tracer without a name")
	}
	if t.Quantity == QuantityUnknown {
		return gskyerr.Data("tracer has no quantity").With("tracer", t.Name)
	}
	if t.Quantity != GalaxyDensity && t.Quantity != GalaxyShear {
		return nil
	}
	if err := checkDistribution(t.Z, t.NZ); err != nil {
		return gskyerr.Data("invalid redshift distribution").With("tracer", t.Name).WithCause(err)
	}
	for col, nz := range t.Extra {
		if len(nz) != len(t.Z) {
			return gskyerr.Data("extra n(z) column length mismatch").
				With("tracer", t.Name).With("column", col)
		}
	}
	return nil
}

func checkDistribution(z, nz []float64) error {
	if len(z) < 2 {
		return gskyerr.Data("need at least two redshift samples")
	}
	if len(z) != len(nz) {
		return gskyerr.Data("z and n(z) lengths differ").With("z", len(z)).With("nz", len(nz))
	}
	if !increasing(z) || z[0] < 0 {
		return gskyerr.Data("redshifts must be non-negative and strictly increasing")
	}
	total := 0.0
	for _, v := range nz {
		if v < 0 {
			return gskyerr.Data("negative n(z)")
		}
		total += v
	}
	if total == 0 {
		return gskyerr.Data("n(z) is zero everywhere")
	}
	return nil
}

func increasing(xs []float64) bool {
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return false
		}
	}
	return true
}

// Column returns the named n(z) column, or NZ for an empty name.
func (t Tracer) Column(name string) ([]float64, error) {
	if name == "" {
		return t.NZ, nil
	}
	nz, ok := t.Extra[name]
	if !ok {
		return nil, gskyerr.Config("tracer has no such n(z) column").
			With("tracer", t.Name).With("column", name)
	}
	return nz, nil
}

// BinIndex parses the redshift-bin index from a tracer name: the integer
// after the last underscore, as in "wl_0" or "gc_12".
func BinIndex(name string) (int, bool) {
	i := strings.LastIndexByte(name, '_')
	if i < 0 || i == len(name)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(name[i+1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
