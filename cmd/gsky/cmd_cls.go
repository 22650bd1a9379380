package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/LBJ-Wade/GSKY/internal/persistence"
	"github.com/LBJ-Wade/GSKY/internal/theory"
)

var (
	clsElls []float64
	clsJSON bool
)

var clsCmd = &cobra.Command{
	Use:   "cls [tracer1 tracer2]",
	Short: "Evaluate angular power spectra",
	Long: `Evaluates C_ell for one tracer pair, or for every unordered pair of the
data set's tracers when no pair is given.

Multipoles default to data.ells from the config.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("expected no arguments or a tracer pair, got %d arguments", len(args))
		}
		return nil
	},
	RunE: runCls,
}

func init() {
	clsCmd.Flags().Float64SliceVar(&clsElls, "ells", nil, "Multipoles (default: data.ells)")
	clsCmd.Flags().BoolVar(&clsJSON, "json", false, "Write JSON instead of a table")
}

func runCls(cmd *cobra.Command, args []string) error {
	ds, err := loadData(cfg)
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

	ells := clsElls
	if len(ells) == 0 {
		ells = cfg.Data.Ells
	}
	pairs := [][2]string{}
	if len(args) == 2 {
		pairs = append(pairs, [2]string{args[0], args[1]})
	} else {
		pairs = allPairs(e.Tracers())
	}

	spectra, err := evaluatePairs(e, pairs, ells)
	if err != nil {
		return err
	}
	record(db, e, &persistence.Run{Kind: "cls", Spectra: spectra})

	if clsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(spectra)
	}
	return writeClsTable(cmd.OutOrStdout(), spectra)
}

// allPairs lists every unordered pair of names, autos included.
func allPairs(names []string) [][2]string {
	var out [][2]string
	for i := range names {
		for j := i; j < len(names); j++ {
			out = append(out, [2]string{names[i], names[j]})
		}
	}
	return out
}

func evaluatePairs(e *theory.Engine, pairs [][2]string, ells []float64) ([]persistence.Spectrum, error) {
	out := make([]persistence.Spectrum, 0, len(pairs))
	for _, p := range pairs {
		cl, err := e.AngularCl(p[0], p[1], ells)
		if err != nil {
			return nil, fmt.Errorf("%s x %s: %w", p[0], p[1], err)
		}
		out = append(out, persistence.Spectrum{Tracer1: p[0], Tracer2: p[1], Ells: ells, Cls: cl})
	}
	return out, nil
}

func writeClsTable(w io.Writer, spectra []persistence.Spectrum) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRACER1\tTRACER2\tELL\tCL")
	for _, s := range spectra {
		for i, ell := range s.Ells {
			fmt.Fprintf(tw, "%s\t%s\t%g\t%.6e\n", s.Tracer1, s.Tracer2, ell, s.Cls[i])
		}
	}
	return tw.Flush()
}
