// Command agrictl runs the rainfall and crop batch pipeline and answers questions
// about the merged dataset from the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"agri-platform/internal/app"
	"agri-platform/internal/config"
	"agri-platform/internal/repository"
	"agri-platform/pkg/database"
	"agri-platform/pkg/logging"
	"agri-platform/pkg/metrics"
)

var (
	// Global flags
	cfgFile   string
	flagDir   string
	flagDedup string

	cfg              *config.Config
	logger           *logging.StructuredLogger
	metricsCollector *metrics.Collector
)

var rootCmd = &cobra.Command{
	Use:           "agrictl",
	Short:         "Rainfall and crop production pipeline",
	Long:          `agrictl cleans the raw rainfall and crop production files, merges them on region and year, summarizes the result and answers questions about it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadConfig()
		}
		if err != nil {
			return err
		}

		// CLI overrides
		f := cmd.Flags()
		if f.Changed("data-dir") {
			cfg.Data.Dir = flagDir
		}
		if f.Changed("dedup") {
			cfg.Data.Dedup = flagDedup
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger = app.NewLogger(cfg, "agrictl")
		metricsCollector = metrics.NewCollector("agrictl")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default from "+config.ConfigFileEnv+" or built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&flagDir, "data-dir", "", "directory holding the pipeline files (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagDedup, "dedup", "", "duplicate rainfall policy: mean, first or none (overrides config)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

// openRepository connects when the database is enabled, or fails when required.
func openRepository(ctx context.Context, required bool) (*database.PostgresDB, repository.MergedRepository, error) {
	if required && !cfg.Database.Enabled {
		return nil, nil, fmt.Errorf("this command needs the database; set database.enabled or AGRI_DATABASE_ENABLED=true")
	}
	return app.OpenRepository(ctx, cfg, logger, metricsCollector)
}

func banner(title string) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", 80))
}
