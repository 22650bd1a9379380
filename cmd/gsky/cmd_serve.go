package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LBJ-Wade/GSKY/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine over HTTP",
	Long: `Starts the HTTP API over one engine configured from the data set and
the config. Prometheus metrics are exposed at /metrics.

Endpoints:
  GET  /api/v1/status       engine configuration summary
  GET  /api/v1/tracers      configured tracer names
  GET  /api/v1/params       parameters in force (POST merges new ones)
  POST /api/v1/cls          {tracer1, tracer2, ells}
  POST /api/v1/loglike      {cosmology?, params?}
  GET  /api/v1/runs[/<id>]  recorded runs`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (default: server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ds, err := loadData(cfg)
	if err != nil {
		return err
	}
	lk, err := newLikelihood(ds)
	if err != nil {
		return err
	}
	e, err := newEngine(cfg, ds)
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if last, err := db.GetMeta("last_run"); err == nil {
			slog.Info("run store has history", "last_run", last)
		}
	}

	limiter := api.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.Burst)
	limiter.TrustProxy = cfg.Server.TrustProxy

	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}
	s := &api.Server{
		Engine:  e,
		Data:    ds,
		Like:    lk,
		DB:      db,
		Limiter: limiter,
		Port:    port,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.ListenAndServe(ctx)
}
