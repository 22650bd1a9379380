package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/LBJ-Wade/GSKY/internal/config"
	"github.com/LBJ-Wade/GSKY/internal/cosmo"
	"github.com/LBJ-Wade/GSKY/internal/persistence"
	"github.com/LBJ-Wade/GSKY/internal/sacc"
	"github.com/LBJ-Wade/GSKY/internal/tracer"
)

func gaussianNZ(mean float64) ([]float64, []float64) {
	z := floats.Span(make([]float64, 80), 0.02, 1.6)
	nz := make([]float64, len(z))
	for i, zz := range z {
		d := (zz - mean) / 0.15
		nz[i] = math.Exp(-0.5 * d * d)
	}
	return z, nz
}

func yamlList(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// writeWorkspace writes a config, a two-tracer data set and a sqlite DSN
// into a temp directory and returns the config path.
func writeWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	zg, nzg := gaussianNZ(0.5)
	zs, nzs := gaussianNZ(0.8)
	data := fmt.Sprintf(`tracers:
  - {name: gc_0, quantity: galaxy_density, z: %s, nz: %s}
  - {name: wl_0, quantity: galaxy_shear, z: %s, nz: %s}
data:
  - {tracer1: gc_0, tracer2: gc_0, ell: 100, value: 1.0e-5}
  - {tracer1: gc_0, tracer2: wl_0, ell: 100, value: 1.0e-7}
covariance:
  - [1.0e-12, 0]
  - [0, 1.0e-16]
`, yamlList(zg), yamlList(nzg), yamlList(zs), yamlList(nzs))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.yml"), []byte(data), 0o644))

	conf := fmt.Sprintf(`data:
  path: data.yml
  ells: [100, 1000]
storage:
  driver: sqlite
  dsn: %s
logging:
  level: warn
`, filepath.Join(dir, "runs.db"))
	path := filepath.Join(dir, "gsky.yaml")
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAllPairs(t *testing.T) {
	got := allPairs([]string{"a", "b", "c"})
	want := [][2]string{{"a", "a"}, {"a", "b"}, {"a", "c"}, {"b", "b"}, {"b", "c"}, {"c", "c"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("allPairs mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadGridMergesOverBase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`points:
  - cosmology: {sigma8: 0.8}
  - cosmology: {Omega_c: 0.25}
    params: {mmin: 12.5}
`), 0o644))

	base := cosmo.DefaultParams()
	points, err := loadGrid(path, base, map[string]any{"mmin": 12.0, "pprof": "Battaglia"})
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, 0.8, points[0].Cosmology.Sigma8)
	assert.Equal(t, base.OmegaC, points[0].Cosmology.OmegaC)
	assert.Equal(t, 12.0, points[0].Params["mmin"])

	assert.Equal(t, 0.25, points[1].Cosmology.OmegaC)
	assert.Equal(t, base.Sigma8, points[1].Cosmology.Sigma8)
	assert.Equal(t, 12.5, points[1].Params["mmin"])
	assert.Equal(t, "Battaglia", points[1].Params["pprof"])
}

func TestLoadGridRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("points: []\n"), 0o644))
	_, err := loadGrid(path, cosmo.DefaultParams(), nil)
	assert.Error(t, err)
}

func TestEvaluateGrid(t *testing.T) {
	zg, nzg := gaussianNZ(0.5)
	ds := &sacc.DataSet{
		Tracers: []tracer.Tracer{{Name: "gc_0", Quantity: tracer.GalaxyDensity, Z: zg, NZ: nzg}},
		Points:  []sacc.Point{{Tracer1: "gc_0", Tracer2: "gc_0", Ell: 200}},
	}

	fid := cosmo.DefaultParams()
	e, err := newEngine(config.Default(), ds)
	require.NoError(t, err)
	vec, err := ds.TheoryVector(e)
	require.NoError(t, err)
	ds.Points[0].Value = vec[0]
	ds.Covariance = [][]float64{{math.Pow(0.05*vec[0], 2)}}
	lk, err := newLikelihood(ds)
	require.NoError(t, err)

	high := fid
	high.Sigma8 = 0.95
	points := []gridPoint{
		{Cosmology: high, Params: map[string]any{}},
		{Cosmology: fid, Params: map[string]any{}},
		{Cosmology: high, Params: map[string]any{}},
	}
	results, err := evaluateGrid(context.Background(), ds, lk, nil, points, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
	assert.InDelta(t, 0, results[1].LogLike, 1e-9)
	assert.Less(t, results[0].LogLike, -1.0)
	assert.InDelta(t, results[0].LogLike, results[2].LogLike, 1e-9*math.Abs(results[0].LogLike))
}

func TestEvaluateGridReportsBadPoint(t *testing.T) {
	zg, nzg := gaussianNZ(0.5)
	ds := &sacc.DataSet{
		Tracers:    []tracer.Tracer{{Name: "gc_0", Quantity: tracer.GalaxyDensity, Z: zg, NZ: nzg}},
		Points:     []sacc.Point{{Tracer1: "gc_0", Tracer2: "gc_0", Ell: 200, Value: 1}},
		Covariance: [][]float64{{1}},
	}
	lk, err := newLikelihood(ds)
	require.NoError(t, err)

	points := []gridPoint{{Cosmology: cosmo.DefaultParams(), Params: map[string]any{"bogus_key": 1}}}
	_, err = evaluateGrid(context.Background(), ds, lk, nil, points, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "point 0")
}

func TestLikeRecordsRun(t *testing.T) {
	conf := writeWorkspace(t)

	out, err := execute(t, "--config", conf, "like")
	require.NoError(t, err)
	lnL, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(lnL))
	assert.LessOrEqual(t, lnL, 0.0)

	out, err = execute(t, "--config", conf, "runs", "show")
	require.NoError(t, err)
	var run persistence.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Equal(t, "loglike", run.Kind)
	require.NotNil(t, run.LogLike)
	assert.InDelta(t, lnL, *run.LogLike, 1e-6*math.Abs(lnL)+1e-12)
}

func TestClsCommand(t *testing.T) {
	conf := writeWorkspace(t)

	out, err := execute(t, "--config", conf, "cls", "--json", "gc_0", "wl_0")
	require.NoError(t, err)
	var spectra []persistence.Spectrum
	require.NoError(t, json.Unmarshal([]byte(out), &spectra))
	require.Len(t, spectra, 1)
	assert.Equal(t, []float64{100, 1000}, spectra[0].Ells)
	for _, cl := range spectra[0].Cls {
		assert.Greater(t, cl, 0.0)
	}

	_, err = execute(t, "--config", conf, "cls", "--json", "gc_0", "nope")
	assert.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "gsky.yaml")
	out, err := execute(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
