// Package sacc reads survey data sets: tracers with their redshift
// distributions, a data vector of angular power spectra, its noise bias and
// covariance.
package sacc

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/LBJ-Wade/GSKY/internal/gskyerr"
	"github.com/LBJ-Wade/GSKY/internal/tracer"
)

// TracerSpec is one tracer of the data-set document. The redshift
// distribution is given inline or as a text file of "z nz [extra...]"
// columns.
type TracerSpec struct {
	Name     string          `yaml:"name"`
	Quantity tracer.Quantity `yaml:"quantity"`
	Z        []float64       `yaml:"z,omitempty"`
	NZ       []float64       `yaml:"nz,omitempty"`
	NZFile   string          `yaml:"nz_file,omitempty"`
}

// Point is one element of the data vector.
type Point struct {
	Tracer1 string  `yaml:"tracer1"`
	Tracer2 string  `yaml:"tracer2"`
	Ell     float64 `yaml:"ell"`
	Value   float64 `yaml:"value"`
}

// Document is the YAML layout of a data set.
type Document struct {
	Tracers        []TracerSpec `yaml:"tracers"`
	Data           []Point      `yaml:"data"`
	Noise          []float64    `yaml:"noise,omitempty"`
	Covariance     [][]float64  `yaml:"covariance,omitempty"`
	CovarianceFile string       `yaml:"covariance_file,omitempty"`
}

// DataSet is a loaded, validated data set.
type DataSet struct {
	Tracers    []tracer.Tracer
	Points     []Point
	Noise      []float64
	Covariance [][]float64
}

// Load reads a data-set document. Relative file references resolve against
// the document's directory.
func Load(path string) (*DataSet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data set: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, gskyerr.Data("parse data set").With("path", path).WithCause(err)
	}
	return doc.Resolve(filepath.Dir(path))
}

// Resolve loads referenced files relative to dir and validates the result.
func (doc *Document) Resolve(dir string) (*DataSet, error) {
	ds := &DataSet{Points: doc.Data, Noise: doc.Noise, Covariance: doc.Covariance}
	for _, ts := range doc.Tracers {
		t := tracer.Tracer{Name: ts.Name, Quantity: ts.Quantity, Z: ts.Z, NZ: ts.NZ}
		if ts.NZFile != "" {
			if err := readNZ(resolve(dir, ts.NZFile), &t); err != nil {
				return nil, fmt.Errorf("tracer %s: %w", ts.Name, err)
			}
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		ds.Tracers = append(ds.Tracers, t)
	}
	if doc.CovarianceFile != "" {
		f, err := os.Open(resolve(dir, doc.CovarianceFile))
		if err != nil {
			return nil, fmt.Errorf("open covariance: %w", err)
		}
		defer f.Close()
		if ds.Covariance, err = readMatrix(f); err != nil {
			return nil, fmt.Errorf("covariance %s: %w", doc.CovarianceFile, err)
		}
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func readNZ(path string, t *tracer.Tracer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open n(z): %w", err)
	}
	defer f.Close()
	names, cols, err := readColumns(f)
	if err != nil {
		return err
	}
	if len(cols) < 2 {
		return gskyerr.Data("n(z) file needs z and nz columns").With("path", path)
	}
	t.Z, t.NZ = cols[0], cols[1]
	for i := 2; i < len(cols); i++ {
		name := fmt.Sprintf("col%d", i)
		if names != nil {
			name = names[i]
		}
		if t.Extra == nil {
			t.Extra = map[string][]float64{}
		}
		t.Extra[name] = cols[i]
	}
	return nil
}

// Validate checks that every point names a known tracer and that the
// noise vector and covariance match the data vector.
func (ds *DataSet) Validate() error {
	known := map[string]bool{}
	for _, t := range ds.Tracers {
		if known[t.Name] {
			return gskyerr.Data("duplicate tracer").With("tracer", t.Name)
		}
		known[t.Name] = true
	}
	if len(ds.Points) == 0 {
		return gskyerr.Data("data set has no data points")
	}
	for i, p := range ds.Points {
		if !known[p.Tracer1] || !known[p.Tracer2] {
			return gskyerr.Data("data point references an unknown tracer").With("index", i).
				With("tracer1", p.Tracer1).With("tracer2", p.Tracer2)
		}
	}
	n := len(ds.Points)
	if ds.Noise != nil && len(ds.Noise) != n {
		return gskyerr.Data("noise length differs from data length").With("noise", len(ds.Noise)).With("data", n)
	}
	if len(ds.Covariance) != n {
		return gskyerr.Data("covariance size differs from data length").With("rows", len(ds.Covariance)).With("data", n)
	}
	return nil
}

// Mean returns the data vector.
func (ds *DataSet) Mean() []float64 {
	out := make([]float64, len(ds.Points))
	for i, p := range ds.Points {
		out[i] = p.Value
	}
	return out
}

// Block is the run of data points of one tracer pair.
type Block struct {
	Tracer1, Tracer2 string
	Ells             []float64
	Index            []int // positions in the data vector
}

// Blocks groups the data vector by tracer pair, in order of first
// appearance.
func (ds *DataSet) Blocks() []Block {
	var blocks []Block
	pos := map[[2]string]int{}
	for i, p := range ds.Points {
		key := [2]string{p.Tracer1, p.Tracer2}
		j, ok := pos[key]
		if !ok {
			j = len(blocks)
			pos[key] = j
			blocks = append(blocks, Block{Tracer1: p.Tracer1, Tracer2: p.Tracer2})
		}
		blocks[j].Ells = append(blocks[j].Ells, p.Ell)
		blocks[j].Index = append(blocks[j].Index, i)
	}
	return blocks
}

// ClSource produces angular power spectra for named tracer pairs.
type ClSource interface {
	AngularCl(a, b string, ells []float64) ([]float64, error)
}

// TheoryVector evaluates src at every data point, aligned with Mean.
func (ds *DataSet) TheoryVector(src ClSource) ([]float64, error) {
	out := make([]float64, len(ds.Points))
	for _, b := range ds.Blocks() {
		cl, err := src.AngularCl(b.Tracer1, b.Tracer2, b.Ells)
		if err != nil {
			return nil, fmt.Errorf("%s x %s: %w", b.Tracer1, b.Tracer2, err)
		}
		for k, i := range b.Index {
			out[i] = cl[k]
		}
	}
	return out, nil
}
