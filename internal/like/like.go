// Package like provides the Gaussian likelihood of a theory vector given a
// measured data vector and its covariance.
package like

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gonum.org/v1/gonum/mat"

	"github.com/LBJ-Wade/GSKY/internal/gskyerr"
)

var evaluations = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gsky_likelihood_evaluations_total",
	Help: "Gaussian log-likelihood evaluations",
})

// Gaussian is a multivariate normal likelihood with a fixed data vector and
// inverse covariance.
type Gaussian struct {
	data *mat.VecDense
	icov *mat.Dense
}

// New builds the likelihood. noise, when non-nil, is subtracted from data.
// The covariance is inverted once; a singular matrix fails with a
// SingularCovarianceError, an ill-conditioned one is kept with a warning.
func New(data, noise []float64, cov [][]float64) (*Gaussian, error) {
	n := len(data)
	if n == 0 {
		return nil, gskyerr.Data("empty data vector")
	}
	if noise != nil && len(noise) != n {
		return nil, gskyerr.Data("noise vector length mismatch").With("data", n).With("noise", len(noise))
	}
	if len(cov) != n {
		return nil, gskyerr.Data("covariance size mismatch").With("data", n).With("rows", len(cov))
	}
	c := mat.NewDense(n, n, nil)
	for i, row := range cov {
		if len(row) != n {
			return nil, gskyerr.Data("covariance is not square").With("row", i).With("length", len(row))
		}
		c.SetRow(i, row)
	}

	d := mat.NewVecDense(n, append([]float64(nil), data...))
	if noise != nil {
		d.SubVec(d, mat.NewVecDense(n, append([]float64(nil), noise...)))
	}

	var icov mat.Dense
	if err := icov.Inverse(c); err != nil {
		// Inverse returns a Condition error for ill-conditioned but
		// invertible matrices; only an infinite condition number is singular.
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, gskyerr.SingularCovariance(err)
		}
		slog.Warn("covariance is ill-conditioned", "condition", float64(cond), "size", n)
	}
	return &Gaussian{data: d, icov: &icov}, nil
}

// Len returns the size of the data vector.
func (g *Gaussian) Len() int { return g.data.Len() }

// LogLikelihood returns -½ (d - t)ᵀ C⁻¹ (d - t).
func (g *Gaussian) LogLikelihood(theory []float64) (float64, error) {
	if len(theory) != g.data.Len() {
		return 0, fmt.Errorf("like: theory vector has %d entries, data has %d", len(theory), g.data.Len())
	}
	evaluations.Inc()
	var delta mat.VecDense
	delta.SubVec(g.data, mat.NewVecDense(len(theory), append([]float64(nil), theory...)))
	return -0.5 * mat.Inner(&delta, g.icov, &delta), nil
}
