package main

import (
	"fmt"
	"log/slog"

	"github.com/LBJ-Wade/GSKY/internal/config"
	"github.com/LBJ-Wade/GSKY/internal/cosmo"
	"github.com/LBJ-Wade/GSKY/internal/like"
	"github.com/LBJ-Wade/GSKY/internal/persistence"
	"github.com/LBJ-Wade/GSKY/internal/sacc"
	"github.com/LBJ-Wade/GSKY/internal/theory"
)

// loadData reads the configured data set.
func loadData(c *config.Config) (*sacc.DataSet, error) {
	if c.Data.Path == "" {
		return nil, fmt.Errorf("no data set configured (data.path)")
	}
	ds, err := sacc.Load(c.Data.Path)
	if err != nil {
		return nil, err
	}
	slog.Info("data set loaded", "path", c.Data.Path,
		"tracers", len(ds.Tracers), "points", len(ds.Points))
	return ds, nil
}

// newEngine configures an engine for ds at the configured cosmology and
// halo-model parameters.
func newEngine(c *config.Config, ds *sacc.DataSet) (*theory.Engine, error) {
	cos, err := cosmo.New(c.Cosmology)
	if err != nil {
		return nil, fmt.Errorf("cosmology: %w", err)
	}
	e, err := theory.New(ds.Tracers, theory.Params(c.HaloModel), cos)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return e, nil
}

func newLikelihood(ds *sacc.DataSet) (*like.Gaussian, error) {
	return like.New(ds.Mean(), ds.Noise, ds.Covariance)
}

// openStore opens the run store, or returns nil when no DSN is configured.
func openStore(c *config.Config) (*persistence.DB, error) {
	if c.Storage.DSN == "" {
		return nil, nil
	}
	db, err := persistence.Open(c.Storage.Driver, c.Storage.DSN)
	if err != nil {
		return nil, err
	}
	slog.Info("run store opened", "driver", c.Storage.Driver)
	return db, nil
}

// record stores run stamped with e's configuration. Failures are logged;
// a lost record never fails an evaluation.
func record(db *persistence.DB, e *theory.Engine, run *persistence.Run) {
	if db == nil {
		return
	}
	run.Stamp = e.Stamp()
	run.Cosmology = e.Cosmology().Params()
	run.Params = e.Params()
	id, err := db.SaveRun(run)
	if err != nil {
		slog.Error("failed to record run", "kind", run.Kind, "error", err)
		return
	}
	if err := db.SaveMeta("last_run", id); err != nil {
		slog.Warn("failed to update last run", "error", err)
	}
	slog.Debug("run recorded", "id", id)
}
