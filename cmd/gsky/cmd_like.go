package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/LBJ-Wade/GSKY/internal/persistence"
)

var likeCmd = &cobra.Command{
	Use:   "like",
	Short: "Evaluate the Gaussian log-likelihood of the data set",
	Long: `Builds the theory vector of the configured data set at the configured
cosmology and halo-model parameters and prints -½ dᵀC⁻¹d.`,
	Args: cobra.NoArgs,
	RunE: runLike,
}

func runLike(cmd *cobra.Command, args []string) error {
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
	}

	vec, err := ds.TheoryVector(e)
	if err != nil {
		return err
	}
	lnL, err := lk.LogLikelihood(vec)
	if err != nil {
		return err
	}
	slog.Info("likelihood evaluated", "loglike", lnL, "points", lk.Len(), "stamp", e.Stamp())
	record(db, e, &persistence.Run{Kind: "loglike", LogLike: &lnL})

	fmt.Fprintf(cmd.OutOrStdout(), "%.10g\n", lnL)
	return nil
}
