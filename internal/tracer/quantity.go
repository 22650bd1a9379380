// Package tracer describes survey tracers and builds their line-of-sight
// projection kernels.
package tracer

import (
	"log/slog"

	"github.com/LBJ-Wade/GSKY/internal/gskyerr"
)

// Quantity is the physical quantity a tracer measures.
type Quantity int

const (
	QuantityUnknown Quantity = iota
	GalaxyDensity
	GalaxyShear
	CMBTSZ
	CMBConvergence
)

var canonicalTags = map[Quantity]string{
	GalaxyDensity:  "galaxy_density",
	GalaxyShear:    "galaxy_shear",
	CMBTSZ:         "cmb_tSZ",
	CMBConvergence: "cmb_convergence",
}

var deprecatedTags = map[string]Quantity{
	"delta_g":      GalaxyDensity,
	"cosmic_shear": GalaxyShear,
	"Compton_y":    CMBTSZ,
	"kappa":        CMBConvergence,
}

func (q Quantity) String() string {
	if s, ok := canonicalTags[q]; ok {
		return s
	}
	return "unknown"
}

// ParseQuantity maps a quantity tag to its Quantity. Deprecated aliases are
// accepted with a warning.
func ParseQuantity(tag string) (Quantity, error) {
	for q, s := range canonicalTags {
		if s == tag {
			return q, nil
		}
	}
	if q, ok := deprecatedTags[tag]; ok {
		slog.Warn("deprecated quantity tag", "tag", tag, "use", q.String())
		return q, nil
	}
	return QuantityUnknown, gskyerr.Config("unknown tracer quantity").With("quantity", tag)
}

func (q Quantity) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

func (q *Quantity) UnmarshalText(b []byte) error {
	v, err := ParseQuantity(string(b))
	if err != nil {
		return err
	}
	*q = v
	return nil
}

// Lensing reports whether q is a lensing quantity, which traces matter.
func (q Quantity) Lensing() bool {
	return q == GalaxyShear || q == CMBConvergence
}
