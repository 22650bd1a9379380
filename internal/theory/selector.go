package theory

import (
	"log/slog"
	"time"

	"github.com/LBJ-Wade/GSKY/internal/gskyerr"
	"github.com/LBJ-Wade/GSKY/internal/halo"
	"github.com/LBJ-Wade/GSKY/internal/limber"
	"github.com/LBJ-Wade/GSKY/internal/pk2d"
	"github.com/LBJ-Wade/GSKY/internal/tracer"
)

// Branch names the physical combination a tracer pair projects.
type Branch string

const (
	BranchMM Branch = "MM" // matter × matter
	BranchYM Branch = "yM" // pressure × matter
	BranchGM Branch = "gM" // galaxies × matter
	BranchGY Branch = "gy" // galaxies × pressure
	BranchGG Branch = "gg" // galaxies × galaxies
)

type class int

const (
	classLensing class = iota
	classGalaxy
	classSZ
)

func classOf(q tracer.Quantity) class {
	switch q {
	case tracer.GalaxyDensity:
		return classGalaxy
	case tracer.CMBTSZ:
		return classSZ
	}
	return classLensing
}

// SelectBranch maps a pair of quantities to its branch, independently of
// order. ok is false for pairs the halo model does not cover.
func SelectBranch(qa, qb tracer.Quantity) (b Branch, ok bool) {
	ca, cb := classOf(qa), classOf(qb)
	if ca > cb {
		ca, cb = cb, ca
	}
	switch {
	case ca == classLensing && cb == classLensing:
		return BranchMM, true
	case ca == classLensing && cb == classSZ:
		return BranchYM, true
	case ca == classLensing && cb == classGalaxy:
		return BranchGM, true
	case ca == classGalaxy && cb == classSZ:
		return BranchGY, true
	case ca == classGalaxy && cb == classGalaxy:
		return BranchGG, true
	}
	return "", false
}

// cacheKey returns the cache key of a branch for entries a and b, which are
// in name order. Galaxy branches are keyed by tracer name when every galaxy
// tracer carries its own profile.
func (st *state) cacheKey(br Branch, a, b *entry) string {
	if st.set.hodMode != HODBin {
		return string(br)
	}
	switch br {
	case BranchGG:
		return string(br) + ":" + a.name + "|" + b.name
	case BranchGM, BranchGY:
		if a.quantity == tracer.GalaxyDensity {
			return string(br) + ":" + a.name
		}
		return string(br) + ":" + b.name
	}
	return string(br)
}

// power returns the surface of a branch for the pair, from cache when the
// entry was built under the configuration in force.
func (st *state) power(br Branch, a, b *entry) (*pk2d.Surface, error) {
	key := st.cacheKey(br, a, b)
	if c, ok := st.cache[key]; ok && c.stamp == st.stamp {
		pkCacheTotal.WithLabelValues(string(br), "hit").Inc()
		return c.pk, nil
	}
	pkCacheTotal.WithLabelValues(string(br), "miss").Inc()

	start := time.Now()
	pk, err := st.buildPower(br, a, b)
	if err != nil {
		return nil, err
	}
	pkBuildDuration.WithLabelValues(string(br)).Observe(time.Since(start).Seconds())
	slog.Debug("built power spectrum", "branch", br, "key", key, "elapsed", time.Since(start))
	st.cache[key] = cached{stamp: st.stamp, pk: pk}
	return pk, nil
}

func (st *state) buildPower(br Branch, a, b *entry) (*pk2d.Surface, error) {
	var p1, p2 halo.Profile
	switch br {
	case BranchMM:
		p1, p2 = st.matter, st.matter
	case BranchYM:
		p1, p2 = st.pressure, st.matter
	case BranchGM, BranchGY:
		g := a
		if g.quantity != tracer.GalaxyDensity {
			g = b
		}
		p1, p2 = g.profile, st.matter
		if br == BranchGY {
			p2 = st.pressure
		}
	case BranchGG:
		p1, p2 = a.profile, b.profile
	}
	pk, err := st.calc.Power(p1, p2)
	if err != nil {
		return nil, err
	}
	if !st.set.correct || (br != BranchMM && br != BranchYM && br != BranchGM) {
		return pk, nil
	}
	corr, err := st.correction()
	if err != nil {
		return nil, err
	}
	return pk.Product(corr)
}

// correction returns the halofit-matched correction ratio, built once per
// configuration.
func (st *state) correction() (*pk2d.Surface, error) {
	if st.corr != nil {
		return st.corr, nil
	}
	c, err := st.calc.CorrectionFactor(st.matter)
	if err != nil {
		return nil, err
	}
	st.corr = c
	return c, nil
}

// AngularCl returns the angular power spectrum of two configured tracers
// at the given multipoles, including the multiplicative shear bias of each.
// Pairs the halo model does not cover return zeros.
func (e *Engine) AngularCl(nameA, nameB string, ells []float64) ([]float64, error) {
	st := e.st
	a, ok := st.entries[nameA]
	if !ok {
		return nil, gskyerr.UnknownTracer(nameA)
	}
	b, ok := st.entries[nameB]
	if !ok {
		return nil, gskyerr.UnknownTracer(nameB)
	}
	if a.name > b.name {
		a, b = b, a
	}
	clEvaluations.Inc()

	br, ok := SelectBranch(a.quantity, b.quantity)
	if !ok {
		slog.Warn("tracer combination not implemented, returning zero",
			"error", gskyerr.Unsupported(a.name, b.name))
		return make([]float64, len(ells)), nil
	}
	pk, err := st.power(br, a, b)
	if err != nil {
		return nil, err
	}
	cl := limber.AngularCl(e.cos, a.kernel, b.kernel, pk, ells)
	if f := (1 + a.mBias) * (1 + b.mBias); f != 1 {
		for i := range cl {
			cl[i] *= f
		}
	}
	return cl, nil
}
