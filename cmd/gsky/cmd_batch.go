package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/LBJ-Wade/GSKY/internal/cosmo"
	"github.com/LBJ-Wade/GSKY/internal/like"
	"github.com/LBJ-Wade/GSKY/internal/persistence"
	"github.com/LBJ-Wade/GSKY/internal/sacc"
	"github.com/LBJ-Wade/GSKY/internal/theory"
)

var (
	batchWorkers int
	batchOut     string
)

var batchCmd = &cobra.Command{
	Use:   "batch <grid.yaml>",
	Short: "Evaluate the likelihood over a grid of parameter points",
	Long: `Evaluates the log-likelihood of the data set at every point of a grid
file, in parallel. Each worker owns its own engine.

Grid file layout:

  points:
    - cosmology: {sigma8: 0.80}
      params: {mmin: 12.1}
    - cosmology: {sigma8: 0.86}
      params: {pprof: Arnaud, mass_def: M500c}

Cosmology fields not given keep the config values; params are merged over
the config's halo_model section.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "j", runtime.NumCPU(), "Parallel workers")
	batchCmd.Flags().StringVarP(&batchOut, "out", "o", "", "Write results as YAML to this file")
}

// gridPoint is one parameter point of a batch.
type gridPoint struct {
	Cosmology cosmo.Params   `yaml:"cosmology"`
	Params    map[string]any `yaml:"params"`
}

type batchResult struct {
	Index     int            `yaml:"index"`
	Cosmology cosmo.Params   `yaml:"cosmology"`
	Params    map[string]any `yaml:"params,omitempty"`
	Stamp     string         `yaml:"stamp"`
	LogLike   float64        `yaml:"loglike"`
}

// loadGrid reads a grid file. Every point starts from base and the config's
// halo-model parameters.
func loadGrid(path string, base cosmo.Params, halo map[string]any) ([]gridPoint, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grid: %w", err)
	}
	var doc struct {
		Points []yaml.Node `yaml:"points"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse grid: %w", err)
	}
	if len(doc.Points) == 0 {
		return nil, fmt.Errorf("grid %s has no points", path)
	}
	points := make([]gridPoint, len(doc.Points))
	for i, n := range doc.Points {
		gp := gridPoint{Cosmology: base}
		if err := n.Decode(&gp); err != nil {
			return nil, fmt.Errorf("grid point %d: %w", i, err)
		}
		params := maps.Clone(halo)
		if params == nil {
			params = map[string]any{}
		}
		maps.Copy(params, gp.Params)
		gp.Params = params
		points[i] = gp
	}
	return points, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	ds, err := loadData(cfg)
	if err != nil {
		return err
	}
	lk, err := newLikelihood(ds)
	if err != nil {
		return err
	}
	points, err := loadGrid(args[0], cfg.Cosmology, cfg.HaloModel)
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	results, err := evaluateGrid(cmd.Context(), ds, lk, db, points, batchWorkers)
	if err != nil {
		return err
	}

	if batchOut != "" {
		b, err := yaml.Marshal(results)
		if err != nil {
			return fmt.Errorf("encode results: %w", err)
		}
		if err := os.WriteFile(batchOut, b, 0o644); err != nil {
			return fmt.Errorf("write results: %w", err)
		}
		slog.Info("results written", "path", batchOut, "points", len(results))
	}
	return writeBatchTable(cmd.OutOrStdout(), results)
}

// evaluateGrid spreads points over workers. The likelihood and data set are
// read-only and shared; engines are not.
func evaluateGrid(ctx context.Context, ds *sacc.DataSet, lk *like.Gaussian, db *persistence.DB,
	points []gridPoint, workers int) ([]batchResult, error) {
	workers = max(1, min(workers, len(points)))
	slog.Info("batch starting", "points", len(points), "workers", workers)

	jobs := make(chan int)
	results := make([]batchResult, len(points))
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for i := range points {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			var e *theory.Engine
			for i := range jobs {
				p := points[i]
				cos, err := cosmo.New(p.Cosmology)
				if err != nil {
					return fmt.Errorf("point %d: %w", i, err)
				}
				if e == nil {
					e, err = theory.New(ds.Tracers, p.Params, cos)
				} else {
					err = e.Reconfigure(cos, p.Params)
				}
				if err != nil {
					return fmt.Errorf("point %d: %w", i, err)
				}
				vec, err := ds.TheoryVector(e)
				if err != nil {
					return fmt.Errorf("point %d: %w", i, err)
				}
				lnL, err := lk.LogLikelihood(vec)
				if err != nil {
					return fmt.Errorf("point %d: %w", i, err)
				}
				results[i] = batchResult{
					Index:     i,
					Cosmology: p.Cosmology,
					Params:    p.Params,
					Stamp:     e.Stamp(),
					LogLike:   lnL,
				}
				record(db, e, &persistence.Run{Kind: "loglike", LogLike: &lnL})
				slog.Debug("point evaluated", "index", i, "loglike", lnL)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func writeBatchTable(w io.Writer, results []batchResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tSIGMA8\tOMEGA_C\tLOGLIKE")
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%.4f\t%.4f\t%.6g\n", r.Index, r.Cosmology.Sigma8, r.Cosmology.OmegaC, r.LogLike)
	}
	return tw.Flush()
}
