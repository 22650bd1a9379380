// Package theory is the halo-model prediction engine: it turns a tracer
// set, a cosmology and halo-model parameters into angular power spectra.
package theory

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/LBJ-Wade/GSKY/internal/cosmo"
	"github.com/LBJ-Wade/GSKY/internal/gskyerr"
	"github.com/LBJ-Wade/GSKY/internal/halo"
	"github.com/LBJ-Wade/GSKY/internal/pk2d"
	"github.com/LBJ-Wade/GSKY/internal/tracer"
)

// Engine computes angular power spectra for a fixed tracer set. An Engine
// is not safe for concurrent use; give each goroutine its own.
type Engine struct {
	tracers []tracer.Tracer
	params  Params
	cos     cosmo.Model
	st      *state
}

// state is everything derived from (tracers, params, cosmology). It is
// rebuilt whole and swapped in only on success.
type state struct {
	stamp string
	set   *settings
	calc  *halo.Calculator

	matter   *halo.NFW
	galaxy   *halo.HOD
	pressure halo.Profile

	entries map[string]*entry
	cache   map[string]cached
	corr    *pk2d.Surface
}

// entry is one configured tracer. profile is a non-owning reference to a
// profile of the state.
type entry struct {
	name     string
	quantity tracer.Quantity
	kernel   tracer.Kernel
	profile  halo.Profile
	mBias    float64
}

type cached struct {
	stamp string
	pk    *pk2d.Surface
}

// New configures an engine. A nil cosmology selects the default one; nil
// params select the default halo model. Missing default keys are filled in.
func New(tracers []tracer.Tracer, params Params, cos cosmo.Model) (*Engine, error) {
	if cos == nil {
		slog.Info("no cosmology provided, using defaults", "params", cosmo.DefaultParams())
		c, err := cosmo.New(cosmo.DefaultParams())
		if err != nil {
			return nil, err
		}
		cos = c
	}
	for _, t := range tracers {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	p, err := normalizeKeys(params)
	if err != nil {
		return nil, err
	}
	if err := checkKeys(p); err != nil {
		return nil, err
	}
	p = withDefaults(p)

	e := &Engine{tracers: slices.Clone(tracers), params: p, cos: cos}
	st, err := e.build(cos, p)
	engineRebuilds.WithLabelValues("new", outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	e.st = st
	return e, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// SetCosmology replaces the cosmology and rebuilds every derived quantity.
// On error the engine keeps its previous configuration.
func (e *Engine) SetCosmology(cos cosmo.Model) error {
	if cos == nil {
		return gskyerr.Config("nil cosmology")
	}
	slog.Info("setting cosmology", "id", cos.ID())
	st, err := e.build(cos, e.params)
	engineRebuilds.WithLabelValues("cosmology", outcome(err)).Inc()
	if err != nil {
		return err
	}
	e.cos, e.st = cos, st
	return nil
}

// SetParams merges delta into the current parameters and rebuilds. On
// error the engine keeps its previous configuration.
func (e *Engine) SetParams(delta Params) error {
	d, err := normalizeKeys(delta)
	if err != nil {
		return err
	}
	if err := checkKeys(d); err != nil {
		engineRebuilds.WithLabelValues("params", "error").Inc()
		return err
	}
	merged := Params{}
	for k, v := range e.params {
		merged[k] = v
	}
	for k, v := range d {
		merged[k] = v
	}
	slog.Info("updating parameters", "keys", len(d))
	st, err := e.build(e.cos, merged)
	engineRebuilds.WithLabelValues("params", outcome(err)).Inc()
	if err != nil {
		return err
	}
	e.params, e.st = merged, st
	return nil
}

// Reconfigure replaces the cosmology and the whole parameter set with one
// rebuild. Unlike SetParams nothing carries over from the previous
// parameters except defaults. On error the engine keeps its previous
// configuration.
func (e *Engine) Reconfigure(cos cosmo.Model, params Params) error {
	if cos == nil {
		return gskyerr.Config("nil cosmology")
	}
	p, err := normalizeKeys(params)
	if err != nil {
		return err
	}
	if err := checkKeys(p); err != nil {
		engineRebuilds.WithLabelValues("reconfigure", "error").Inc()
		return err
	}
	p = withDefaults(p)
	st, err := e.build(cos, p)
	engineRebuilds.WithLabelValues("reconfigure", outcome(err)).Inc()
	if err != nil {
		return err
	}
	e.cos, e.params, e.st = cos, p, st
	return nil
}

// Params returns a copy of the parameters in force.
func (e *Engine) Params() Params {
	out := Params{}
	for k, v := range e.params {
		out[k] = v
	}
	return out
}

// Cosmology returns the cosmology in force.
func (e *Engine) Cosmology() cosmo.Model { return e.cos }

// Tracers returns the configured tracer names in input order.
func (e *Engine) Tracers() []string {
	names := make([]string, len(e.tracers))
	for i, t := range e.tracers {
		names[i] = t.Name
	}
	return names
}

// Stamp identifies the configuration in force: the cosmology identity plus
// a hash of the parameters.
func (e *Engine) Stamp() string { return e.st.stamp }

// build derives a complete state without touching e.
func (e *Engine) build(cos cosmo.Model, p Params) (*state, error) {
	set, err := parseSettings(p)
	if err != nil {
		return nil, err
	}
	present := map[tracer.Quantity]bool{}
	for _, t := range e.tracers {
		present[t.Quantity] = true
	}
	if present[tracer.CMBTSZ] {
		if err := set.checkPressure(); err != nil {
			return nil, err
		}
	}

	conc, err := halo.NewConcentration(set.massDef)
	if err != nil {
		return nil, err
	}
	mf, err := halo.NewTinker08(set.massDef)
	if err != nil {
		return nil, fmt.Errorf("mass function: %w", err)
	}
	st := &state{
		stamp:   cos.ID() + "/" + p.Hash(),
		set:     set,
		calc:    halo.NewCalculator(cos, mf, halo.NewTinker10(set.massDef), set.massDef),
		entries: make(map[string]*entry, len(e.tracers)),
		cache:   make(map[string]cached),
	}

	// One profile per physical type. Satellites of the HOD follow the
	// matter profile, so it exists whenever galaxies do.
	if present[tracer.GalaxyShear] || present[tracer.CMBConvergence] || present[tracer.GalaxyDensity] {
		st.matter = halo.NewNFW(cos, set.massDef, conc)
	}
	if present[tracer.GalaxyDensity] && set.hodMode == HODZEvol {
		st.galaxy = halo.NewHOD(set.hod, st.matter)
	}
	if present[tracer.CMBTSZ] {
		if set.pressure == PressureArnaud {
			slog.Debug("using Arnaud pressure profile", "bhydro", set.bHydro)
			st.pressure = halo.NewArnaud(cos, set.bHydro)
		} else {
			slog.Debug("using Battaglia pressure profile")
			st.pressure = halo.NewBattaglia(cos)
		}
	}

	for _, t := range e.tracers {
		if _, dup := st.entries[t.Name]; dup {
			return nil, gskyerr.Config("duplicate tracer name").With("tracer", t.Name)
		}
		en, err := st.newEntry(cos, t)
		if err != nil {
			return nil, err
		}
		st.entries[t.Name] = en
	}
	return st, nil
}

// newEntry applies the tracer's systematics and builds its kernel.
func (st *state) newEntry(cos cosmo.Model, t tracer.Tracer) (*entry, error) {
	set := st.set
	bin, hasBin := tracer.BinIndex(t.Name)
	en := &entry{name: t.Name, quantity: t.Quantity}
	var err error

	// shifted returns the tracer's n(z) with the photo-z systematics of its bin.
	shifted := func() ([]float64, []float64, error) {
		col, err := set.nzColumn(bin, hasBin)
		if err != nil {
			return nil, nil, err
		}
		nz, err := t.Column(col)
		if err != nil {
			return nil, nil, err
		}
		if !hasBin {
			return t.Z, nz, nil
		}
		pz := tracer.PhotoZ{
			Center: tracer.PeakRedshift(t.Z, nz),
			Shift:  set.binFloat("zshift", bin, 0),
			Width:  set.binFloat("zwidth", bin, 0),
		}
		z, nz, err := pz.Apply(t.Z, nz)
		if err != nil {
			return nil, nil, gskyerr.Config("photo-z systematics").With("tracer", t.Name).WithCause(err)
		}
		return z, nz, nil
	}

	switch t.Quantity {
	case tracer.GalaxyDensity:
		z, nz, err := shifted()
		if err != nil {
			return nil, err
		}
		bz, bb, ok, err := set.biasTable(bin, hasBin)
		if err != nil {
			return nil, err
		}
		if !ok {
			slog.Debug("galaxy bias not provided, using unity", "tracer", t.Name)
		}
		if en.kernel, err = tracer.NewNumberCounts(cos, z, nz, tracer.Bias{Z: bz, B: bb}); err != nil {
			return nil, gskyerr.Config("number-count kernel").With("tracer", t.Name).WithCause(err)
		}
		if set.hodMode == HODZEvol {
			en.profile = st.galaxy
		} else {
			en.profile = halo.NewHOD(set.hodFor(bin, hasBin), st.matter)
		}

	case tracer.GalaxyShear:
		z, nz, err := shifted()
		if err != nil {
			return nil, err
		}
		if en.kernel, err = tracer.NewWeakLensing(cos, z, nz); err != nil {
			return nil, gskyerr.Config("lensing kernel").With("tracer", t.Name).WithCause(err)
		}
		en.profile = st.matter
		if hasBin {
			en.mBias = set.binFloat("m", bin, 0)
		}

	case tracer.CMBConvergence:
		if en.kernel, err = tracer.NewCMBLensing(cos); err != nil {
			return nil, err
		}
		en.profile = st.matter

	case tracer.CMBTSZ:
		if en.kernel, err = tracer.NewTSZ(cos); err != nil {
			return nil, err
		}
		en.profile = st.pressure

	default:
		return nil, gskyerr.Config("unsupported tracer quantity").With("tracer", t.Name)
	}
	return en, nil
}
