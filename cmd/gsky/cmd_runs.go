package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/LBJ-Wade/GSKY/internal/persistence"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded evaluation runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

var runsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one recorded run as JSON (default: the latest)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRunsShow,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to list")
	runsCmd.AddCommand(runsShowCmd)
}

func requireStore() (*persistence.DB, error) {
	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, fmt.Errorf("no run store configured (storage.dsn or GSKY_DB_DSN)")
	}
	return db, nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	db, err := requireStore()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.RecentRuns(runsLimit)
	if err != nil {
		return err
	}
	return writeRunsTable(cmd.OutOrStdout(), runs)
}

func writeRunsTable(w io.Writer, runs []*persistence.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tCREATED\tLOGLIKE")
	for _, r := range runs {
		ll := "-"
		if r.LogLike != nil {
			ll = fmt.Sprintf("%.6g", *r.LogLike)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Kind, r.CreatedAt.Format(time.RFC3339), ll)
	}
	return tw.Flush()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	db, err := requireStore()
	if err != nil {
		return err
	}
	defer db.Close()

	var id string
	if len(args) == 1 {
		id = args[0]
	} else if id, err = db.GetMeta("last_run"); err != nil {
		return fmt.Errorf("no runs recorded: %w", err)
	}
	run, err := db.GetRun(id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}
