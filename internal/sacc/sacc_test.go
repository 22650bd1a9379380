package sacc

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LBJ-Wade/GSKY/internal/gskyerr"
	"github.com/LBJ-Wade/GSKY/internal/tracer"
)

const document = `
tracers:
  - name: gc_0
    quantity: delta_g
    nz_file: nz_gc0.txt
  - name: wl_0
    quantity: galaxy_shear
    z: [0.1, 0.5, 0.9]
    nz: [0.5, 1.0, 0.2]
  - name: y
    quantity: Compton_y
data:
  - {tracer1: gc_0, tracer2: gc_0, ell: 100, value: 1.0}
  - {tracer1: gc_0, tracer2: wl_0, ell: 100, value: 2.0}
  - {tracer1: gc_0, tracer2: gc_0, ell: 200, value: 3.0}
noise: [0.1, 0, 0.1]
covariance_file: cov.txt
`

const nzTable = `# z nz cosmos30
0.1 0.2 0.1
0.3 1.0 0.8
0.5 0.4 0.6
`

const covTable = `1 0 0
0 2 0
0 0 3
`

func writeDataSet(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.yml"), []byte(document), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nz_gc0.txt"), []byte(nzTable), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cov.txt"), []byte(covTable), 0o644))
	return filepath.Join(dir, "data.yml")
}

func TestLoad(t *testing.T) {
	ds, err := Load(writeDataSet(t))
	require.NoError(t, err)

	require.Len(t, ds.Tracers, 3)
	gc := ds.Tracers[0]
	assert.Equal(t, tracer.GalaxyDensity, gc.Quantity)
	assert.Equal(t, []float64{0.1, 0.3, 0.5}, gc.Z)
	assert.Equal(t, []float64{0.2, 1.0, 0.4}, gc.NZ)
	assert.Equal(t, []float64{0.1, 0.8, 0.6}, gc.Extra["cosmos30"])
	assert.Equal(t, tracer.CMBTSZ, ds.Tracers[2].Quantity)

	assert.Equal(t, []float64{1, 2, 3}, ds.Mean())
	assert.Equal(t, [][]float64{{1, 0, 0}, {0, 2, 0}, {0, 0, 3}}, ds.Covariance)
}

func TestBlocks(t *testing.T) {
	ds, err := Load(writeDataSet(t))
	require.NoError(t, err)
	want := []Block{
		{Tracer1: "gc_0", Tracer2: "gc_0", Ells: []float64{100, 200}, Index: []int{0, 2}},
		{Tracer1: "gc_0", Tracer2: "wl_0", Ells: []float64{100}, Index: []int{1}},
	}
	if diff := cmp.Diff(want, ds.Blocks()); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}
}

type fakeSource map[string]float64

func (f fakeSource) AngularCl(a, b string, ells []float64) ([]float64, error) {
	v, ok := f[a+"/"+b]
	if !ok {
		return nil, gskyerr.UnknownTracer(b)
	}
	out := make([]float64, len(ells))
	for i, l := range ells {
		out[i] = v * l
	}
	return out, nil
}

func TestTheoryVector(t *testing.T) {
	ds, err := Load(writeDataSet(t))
	require.NoError(t, err)

	got, err := ds.TheoryVector(fakeSource{"gc_0/gc_0": 1, "gc_0/wl_0": 10})
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 1000, 200}, got)

	_, err = ds.TheoryVector(fakeSource{"gc_0/gc_0": 1})
	assert.True(t, errors.Is(err, gskyerr.ErrUnknownTracer))
}

func TestValidateRejectsInconsistentSets(t *testing.T) {
	base := func() *DataSet {
		return &DataSet{
			Tracers:    []tracer.Tracer{{Name: "y", Quantity: tracer.CMBTSZ}},
			Points:     []Point{{Tracer1: "y", Tracer2: "y", Ell: 10, Value: 1}},
			Covariance: [][]float64{{1}},
		}
	}
	require.NoError(t, base().Validate())

	cases := map[string]func(*DataSet){
		"unknown tracer": func(ds *DataSet) { ds.Points[0].Tracer2 = "kappa" },
		"noise length":   func(ds *DataSet) { ds.Noise = []float64{1, 2} },
		"covariance":     func(ds *DataSet) { ds.Covariance = nil },
		"no points":      func(ds *DataSet) { ds.Points = nil },
		"duplicate":      func(ds *DataSet) { ds.Tracers = append(ds.Tracers, ds.Tracers[0]) },
	}
	for name, mutate := range cases {
		ds := base()
		mutate(ds)
		assert.True(t, errors.Is(ds.Validate(), gskyerr.ErrDataInvalid), name)
	}
}

func TestReadColumns(t *testing.T) {
	names, cols, err := readColumns(strings.NewReader("# a b\n1 2\n\n3 4\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
	assert.Equal(t, [][]float64{{1, 3}, {2, 4}}, cols)

	_, _, err = readColumns(strings.NewReader("1 2\n3\n"))
	assert.True(t, errors.Is(err, gskyerr.ErrDataInvalid))
	_, _, err = readColumns(strings.NewReader("1 x\n"))
	assert.True(t, errors.Is(err, gskyerr.ErrDataInvalid))
	_, _, err = readColumns(strings.NewReader("# only a comment\n"))
	assert.True(t, errors.Is(err, gskyerr.ErrDataInvalid))

	_, err = readMatrix(strings.NewReader("1 2\n3 4\n5 6\n"))
	assert.True(t, errors.Is(err, gskyerr.ErrDataInvalid))
}

func TestLoadRejectsUnknownQuantity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yml")
	doc := strings.Replace(document, "Compton_y", "gravy", 1)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
