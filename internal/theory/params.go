package theory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/LBJ-Wade/GSKY/internal/gskyerr"
	"github.com/LBJ-Wade/GSKY/internal/halo"
)

// Params is a flat set of halo-model and systematics parameters.
type Params map[string]any

// HOD evolution modes.
const (
	HODZEvol = "zevol"
	HODBin   = "bin"
)

// Pressure profiles.
const (
	PressureBattaglia = "Battaglia"
	PressureArnaud    = "Arnaud"
)

var fixedKeys = map[string]bool{
	"HODmod": true, "mmin": true, "mminp": true, "m0": true, "m0p": true,
	"m1": true, "m1p": true, "bhydro": true, "mass_def": true, "pprof": true,
	"corr_halo_mod": true, "bz": true, "bb": true,
}

var (
	binKeyRe  = regexp.MustCompile(`^(zshift|zwidth|m|mmin|m0|m1)_bin\d+$`)
	biasKeyRe = regexp.MustCompile(`^(bz|bb|nz)_\d+$`)
)

// DefaultParams returns the fiducial halo model.
func DefaultParams() Params {
	return Params{
		"HODmod":   HODZEvol,
		"mmin":     12.02,
		"mminp":    -1.34,
		"m0":       6.6,
		"m0p":      -1.43,
		"m1":       13.27,
		"m1p":      0.323,
		"bhydro":   0.2,
		"mass_def": "M200c",
		"pprof":    PressureBattaglia,
	}
}

// normalizeKeys returns a copy of p with the massdef alias renamed.
func normalizeKeys(p Params) (Params, error) {
	out := maps.Clone(p)
	if out == nil {
		out = Params{}
	}
	if v, ok := out["massdef"]; ok {
		if _, dup := out["mass_def"]; dup {
			return nil, gskyerr.Config("both massdef and mass_def given")
		}
		delete(out, "massdef")
		out["mass_def"] = v
	}
	return out, nil
}

// checkKeys rejects any key outside the whitelist.
func checkKeys(p Params) error {
	for _, k := range slices.Sorted(maps.Keys(p)) {
		if !fixedKeys[k] && !binKeyRe.MatchString(k) && !biasKeyRe.MatchString(k) {
			return gskyerr.Config("parameter not recognized").With("key", k)
		}
	}
	return nil
}

// withDefaults fills every missing default key.
func withDefaults(p Params) Params {
	out := maps.Clone(p)
	if out == nil {
		out = Params{}
	}
	for _, k := range slices.Sorted(maps.Keys(DefaultParams())) {
		if _, ok := out[k]; !ok {
			v := DefaultParams()[k]
			slog.Info("parameter not provided, using default", "key", k, "value", v)
			out[k] = v
		}
	}
	return out
}

// Hash returns a SHA-256 of the canonical JSON encoding of p. Map keys are
// encoded in sorted order, so equal parameter sets hash equally.
func (p Params) Hash() string {
	b, err := json.Marshal(map[string]any(p))
	if err != nil {
		// Values come from YAML or JSON decoding and always encode.
		b = []byte(fmt.Sprint(map[string]any(p)))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// settings is the validated, typed view of a complete Params.
type settings struct {
	raw      Params
	hodMode  string
	hod      halo.HODParams
	bHydro   float64
	massDef  halo.MassDef
	pressure string
	correct  bool
}

func parseSettings(p Params) (*settings, error) {
	s := &settings{raw: p, hod: halo.DefaultHODParams()}
	var err error
	if s.hodMode, err = stringParam(p, "HODmod"); err != nil {
		return nil, err
	}
	if s.hodMode != HODZEvol && s.hodMode != HODBin {
		return nil, gskyerr.Config("HODmod must be zevol or bin").With("HODmod", s.hodMode)
	}
	floatsByKey := []struct {
		key string
		dst *float64
	}{
		{"mmin", &s.hod.LMmin}, {"mminp", &s.hod.LMminP},
		{"m0", &s.hod.LM0}, {"m0p", &s.hod.LM0P},
		{"m1", &s.hod.LM1}, {"m1p", &s.hod.LM1P},
		{"bhydro", &s.bHydro},
	}
	for _, f := range floatsByKey {
		if *f.dst, err = floatParam(p, f.key); err != nil {
			return nil, err
		}
	}
	if s.bHydro < 0 || s.bHydro >= 1 {
		return nil, gskyerr.Config("bhydro must lie in [0, 1)").With("bhydro", s.bHydro)
	}

	md, err := stringParam(p, "mass_def")
	if err != nil {
		return nil, err
	}
	if s.massDef, err = halo.ParseMassDef(md); err != nil {
		return nil, err
	}
	if s.pressure, err = stringParam(p, "pprof"); err != nil {
		return nil, err
	}
	if s.pressure != PressureBattaglia && s.pressure != PressureArnaud {
		return nil, gskyerr.Config("only pressure profiles Arnaud and Battaglia are implemented").With("pprof", s.pressure)
	}
	if _, ok := p["corr_halo_mod"]; ok {
		if s.correct, err = boolParam(p, "corr_halo_mod"); err != nil {
			return nil, err
		}
	}
	for _, k := range slices.Sorted(maps.Keys(p)) {
		if binKeyRe.MatchString(k) {
			if _, err := floatParam(p, k); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// checkPressure enforces the mass definition each pressure profile is
// calibrated for.
func (s *settings) checkPressure() error {
	want := halo.M200c
	if s.pressure == PressureArnaud {
		want = halo.M500c
	}
	if s.massDef != want {
		return gskyerr.Config("pressure profile requires a different mass definition").
			With("pprof", s.pressure).With("mass_def", s.massDef.String()).With("required", want.String())
	}
	return nil
}

// binFloat returns <prefix>_bin<i>, or fallback when absent.
func (s *settings) binFloat(prefix string, bin int, fallback float64) float64 {
	v, ok := s.raw[fmt.Sprintf("%s_bin%d", prefix, bin)]
	if !ok {
		return fallback
	}
	f, _ := toFloat(v)
	return f
}

// hodFor returns the occupation of galaxy bin i in bin mode.
func (s *settings) hodFor(bin int, hasBin bool) halo.HODParams {
	hp := s.hod
	if hasBin {
		hp.LMmin = s.binFloat("mmin", bin, hp.LMmin)
		hp.LM0 = s.binFloat("m0", bin, hp.LM0)
		hp.LM1 = s.binFloat("m1", bin, hp.LM1)
	}
	return hp
}

// biasTable returns the bias arrays bz_<i>/bb_<i>, else bz/bb. ok is false
// when neither is given.
func (s *settings) biasTable(bin int, hasBin bool) (z, b []float64, ok bool, err error) {
	keys := [][2]string{{"bz", "bb"}}
	if hasBin {
		keys = append([][2]string{{fmt.Sprintf("bz_%d", bin), fmt.Sprintf("bb_%d", bin)}}, keys...)
	}
	for _, k := range keys {
		if _, has := s.raw[k[1]]; !has {
			continue
		}
		if b, err = floatSliceParam(s.raw, k[1]); err != nil {
			return nil, nil, false, err
		}
		if z, err = floatSliceParam(s.raw, k[0]); err != nil {
			return nil, nil, false, err
		}
		return z, b, true, nil
	}
	return nil, nil, false, nil
}

// nzColumn returns the alternate n(z) column named by nz_<i>.
func (s *settings) nzColumn(bin int, hasBin bool) (string, error) {
	if !hasBin {
		return "", nil
	}
	key := fmt.Sprintf("nz_%d", bin)
	if _, ok := s.raw[key]; !ok {
		return "", nil
	}
	return stringParam(s.raw, key)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

func floatParam(p Params, key string) (float64, error) {
	f, ok := toFloat(p[key])
	if !ok {
		return 0, gskyerr.Config("parameter must be a number").With("key", key).With("value", p[key])
	}
	return f, nil
}

func stringParam(p Params, key string) (string, error) {
	s, ok := p[key].(string)
	if !ok {
		return "", gskyerr.Config("parameter must be a string").With("key", key).With("value", p[key])
	}
	return strings.TrimSpace(s), nil
}

func boolParam(p Params, key string) (bool, error) {
	switch x := p[key].(type) {
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(x) {
		case "true", "yes", "1":
			return true, nil
		case "false", "no", "0":
			return false, nil
		}
	default:
		if f, ok := toFloat(x); ok {
			return f != 0, nil
		}
	}
	return false, gskyerr.Config("parameter must be a boolean").With("key", key).With("value", p[key])
}

func floatSliceParam(p Params, key string) ([]float64, error) {
	switch x := p[key].(type) {
	case []float64:
		return slices.Clone(x), nil
	case []any:
		out := make([]float64, len(x))
		for i, v := range x {
			f, ok := toFloat(v)
			if !ok {
				return nil, gskyerr.Config("array parameter must hold numbers").With("key", key)
			}
			out[i] = f
		}
		return out, nil
	}
	return nil, gskyerr.Config("parameter must be an array of numbers").With("key", key)
}
