// Command gsky evaluates halo-model angular power spectra and their
// Gaussian likelihood against a tomographic data set.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/LBJ-Wade/GSKY/internal/config"
)

var (
	// Global flags
	configPath string
	logLevel   string

	// Loaded in PersistentPreRunE.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gsky",
	Short: "Halo-model theory engine for cross-correlations of galaxies, shear, CMB lensing and tSZ",
	Long: `gsky computes angular power spectra between galaxy clustering, cosmic
shear, CMB lensing convergence and thermal SZ tracers from a halo model,
and evaluates the Gaussian likelihood of a measured data set.

Settings come from a YAML config (--config); GSKY_DB_DRIVER, GSKY_DB_DSN
and GSKY_PORT override the storage and server sections.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadOrDefault(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.Logging.Level = logLevel
		}
		level, err := c.LogLevel()
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "gsky.yaml", "Run configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config")

	rootCmd.AddCommand(clsCmd)
	rootCmd.AddCommand(likeCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
