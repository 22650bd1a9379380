// Package pk2d provides tabulated power-spectrum surfaces P(k, a).
package pk2d

import (
	"fmt"
	"math"
	"sort"
)

// GrowthFunc returns the linear growth factor at a scale factor. Surfaces
// use it to extrapolate below their smallest tabulated a.
type GrowthFunc func(a float64) float64

// Surface is a power spectrum tabulated on a (k, a) grid. Values are
// interpolated bilinearly in (ln k, a), on ln P when every value is
// positive. Beyond the k range the surface continues as a power law fitted
// to the two edge points; below the a range it scales with growth².
// A nil *Surface evaluates to zero everywhere.
type Surface struct {
	lnK    []float64
	a      []float64
	vals   [][]float64 // [ia][ik], ln P when logged
	logged bool
	growth GrowthFunc
}

// New builds a surface from k (increasing, Mpc⁻¹), a (increasing) and
// p[ia][ik]. The table is copied.
func New(k, a []float64, p [][]float64, growth GrowthFunc) (*Surface, error) {
	if len(k) < 2 || len(a) < 2 {
		return nil, fmt.Errorf("pk2d: need at least two k and two a samples, got %d and %d", len(k), len(a))
	}
	if len(p) != len(a) {
		return nil, fmt.Errorf("pk2d: %d rows for %d scale factors", len(p), len(a))
	}
	if !sort.Float64sAreSorted(k) || !sort.Float64sAreSorted(a) {
		return nil, fmt.Errorf("pk2d: grids must be increasing")
	}
	s := &Surface{
		lnK:    make([]float64, len(k)),
		a:      append([]float64(nil), a...),
		vals:   make([][]float64, len(a)),
		logged: true,
		growth: growth,
	}
	for i, kk := range k {
		if kk <= 0 {
			return nil, fmt.Errorf("pk2d: non-positive wavenumber %g", kk)
		}
		s.lnK[i] = math.Log(kk)
	}
	for i, row := range p {
		if len(row) != len(k) {
			return nil, fmt.Errorf("pk2d: row %d has %d values for %d wavenumbers", i, len(row), len(k))
		}
		for _, v := range row {
			if !(v > 0) {
				s.logged = false
			}
		}
	}
	for i, row := range p {
		s.vals[i] = make([]float64, len(row))
		for j, v := range row {
			if s.logged {
				s.vals[i][j] = math.Log(v)
			} else {
				s.vals[i][j] = v
			}
		}
	}
	return s, nil
}

// Product returns the pointwise product of s and t on s's grid.
// Both surfaces must share the same grid.
func (s *Surface) Product(t *Surface) (*Surface, error) {
	if s == nil || t == nil {
		return nil, nil
	}
	if len(s.lnK) != len(t.lnK) || len(s.a) != len(t.a) {
		return nil, fmt.Errorf("pk2d: grid mismatch in product")
	}
	k := make([]float64, len(s.lnK))
	for i, lk := range s.lnK {
		k[i] = math.Exp(lk)
	}
	p := make([][]float64, len(s.a))
	for i := range s.a {
		p[i] = make([]float64, len(k))
		for j := range k {
			p[i][j] = s.at(i, j) * t.at(i, j)
		}
	}
	return New(k, s.a, p, s.growth)
}

// At returns the tabulated value at grid indices (ia, ik).
func (s *Surface) At(ia, ik int) float64 {
	if s == nil {
		return 0
	}
	return s.at(ia, ik)
}

func (s *Surface) at(ia, ik int) float64 {
	if s.logged {
		return math.Exp(s.vals[ia][ik])
	}
	return s.vals[ia][ik]
}

// Eval returns P(k, a).
func (s *Surface) Eval(k, a float64) float64 {
	if s == nil || k <= 0 {
		return 0
	}
	scale := 1.0
	if a < s.a[0] {
		if s.growth != nil {
			g := s.growth(a) / s.growth(s.a[0])
			scale = g * g
		}
		a = s.a[0]
	}
	if a > s.a[len(s.a)-1] {
		a = s.a[len(s.a)-1]
	}

	ia, ta := bracket(s.a, a)
	lk := math.Log(k)
	v0 := s.rowValue(ia, lk)
	v1 := s.rowValue(ia+1, lk)
	v := v0 + ta*(v1-v0)
	if s.logged {
		return math.Exp(v) * scale
	}
	return v * scale
}

// rowValue interpolates or extrapolates one a-row in ln k.
func (s *Surface) rowValue(ia int, lk float64) float64 {
	row := s.vals[ia]
	n := len(s.lnK)
	var i int
	switch {
	case lk < s.lnK[0]:
		i = 0
	case lk > s.lnK[n-1]:
		i = n - 2
	default:
		i, _ = bracket(s.lnK, lk)
	}
	t := (lk - s.lnK[i]) / (s.lnK[i+1] - s.lnK[i])
	return row[i] + t*(row[i+1]-row[i])
}

// bracket returns i with xs[i] <= x <= xs[i+1] and the fractional position.
func bracket(xs []float64, x float64) (int, float64) {
	n := len(xs)
	i := sort.SearchFloat64s(xs, x) - 1
	if i < 0 {
		i = 0
	}
	if i > n-2 {
		i = n - 2
	}
	return i, (x - xs[i]) / (xs[i+1] - xs[i])
}
