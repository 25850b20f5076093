package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"agri-platform/internal/app"
	"agri-platform/internal/dataset"
	"agri-platform/internal/models"
	"agri-platform/internal/normalize"
	"agri-platform/internal/pipeline"
	"agri-platform/internal/services"
	"agri-platform/pkg/logging"
)

var runWithDB bool

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Clean the raw rainfall and crop files",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := services.NewPipelineService(nil, logger, metricsCollector)
		res, err := svc.Prepare(cmd.Context(), app.Paths(cfg))
		if err != nil {
			return err
		}
		printPrepare(res)
		return nil
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Join the cleaned files on region and year",
	RunE: func(cmd *cobra.Command, args []string) error {
		opt, err := app.PipelineOptions(cfg)
		if err != nil {
			return err
		}
		svc := services.NewPipelineService(nil, logger, metricsCollector)
		res, err := svc.Merge(cmd.Context(), app.Paths(cfg), opt)
		if err != nil {
			return err
		}
		printMerge(res)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Prepare, merge and summarize in one go",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		opt, err := app.PipelineOptions(cfg)
		if err != nil {
			return err
		}
		db, repo, err := openRepository(ctx, runWithDB)
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		svc := services.NewPipelineService(repo, logger, metricsCollector)
		prep, merged, err := svc.Run(ctx, app.Paths(cfg), opt)
		if err != nil {
			return err
		}
		printPrepare(prep)
		printMerge(merged)

		if repo != nil {
			n, err := svc.Store(ctx, merged.Records)
			if err != nil {
				return err
			}
			fmt.Printf("\nStored %d records in the database\n", n)
		}
		return summarize(ctx, services.NewStatisticsService(repo, logger, metricsCollector), merged.Records)
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Write per-region averages from the merged file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, stats, err := dataset.Load(cfg.Data.Path(cfg.Data.Merged))
		if err != nil {
			return err
		}
		if stats.DroppedYear > 0 {
			fmt.Printf("Skipped %d rows with an invalid year\n", stats.DroppedYear)
		}
		return summarize(cmd.Context(), services.NewStatisticsService(nil, logger, metricsCollector), ds.Records())
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Report regions that will not join after alias resolution",
	RunE: func(cmd *cobra.Command, args []string) error {
		opt, err := app.PipelineOptions(cfg)
		if err != nil {
			return err
		}
		paths := app.Paths(cfg)
		paths.Merged = ""
		svc := services.NewPipelineService(nil, logger, metricsCollector)
		res, err := svc.Merge(cmd.Context(), paths, opt)
		if err != nil {
			return err
		}

		banner("REGION ALIASES")
		for _, p := range opt.Normalizer.Aliases().Pairs() {
			fmt.Printf("  %-32s -> %s\n", p[0], p[1])
		}
		printValidation(res.Stats.Validation)
		if !res.Stats.Validation.Clean() {
			return fmt.Errorf("%d regions will not join", len(res.Stats.Validation.OnlyLeft)+len(res.Stats.Validation.OnlyRight))
		}
		return nil
	},
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Store the merged file and region summaries in Postgres",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, repo, err := openRepository(ctx, true)
		if err != nil {
			return err
		}
		defer db.Close()

		ds, _, err := dataset.Load(cfg.Data.Path(cfg.Data.Merged))
		if err != nil {
			return err
		}
		svc := services.NewPipelineService(repo, logger, metricsCollector)
		n, err := svc.Store(ctx, ds.Records())
		if err != nil {
			return err
		}

		stats := services.NewStatisticsService(repo, logger, metricsCollector)
		summaries := services.RegionSummaries(ds.Records())
		if err := stats.SyncSummaries(ctx, summaries); err != nil {
			return err
		}

		banner("LOAD COMPLETE")
		fmt.Printf("Records Stored:     %d\n", n)
		fmt.Printf("Region Summaries:   %d\n", len(summaries))
		logger.Info(ctx, "[LOAD_COMPLETE] Merged dataset stored", logging.Fields{
			"records": n,
			"regions": len(summaries),
		})
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runWithDB, "store", false, "also store the merged records in Postgres")

	rootCmd.AddCommand(prepareCmd, mergeCmd, runCmd, summaryCmd, validateCmd, loadCmd)
}

// summarize writes the summary files and, with a database, the summary table.
func summarize(ctx context.Context, stats *services.StatisticsService, records []models.MergedRecord) error {
	report := stats.Summarize(ctx, records)
	if path := cfg.Data.Path(cfg.Data.Summary); path != "" {
		if err := stats.WriteSummaryCSV(ctx, path, report.Regions); err != nil {
			return err
		}
	}
	if path := cfg.Data.Path(cfg.Data.SummaryXLSX); path != "" {
		if err := stats.WriteSummaryXLSX(ctx, path, report); err != nil {
			return err
		}
	}
	if err := stats.SyncSummaries(ctx, report.Regions); err != nil {
		return err
	}

	banner("REGION SUMMARY")
	fmt.Printf("%-32s %20s %26s\n", "Region", "Avg Rainfall (mm)", "Avg Production (tonnes)")
	for _, sum := range report.Regions {
		fmt.Printf("%-32s %20s %26s\n", sum.Region, formatAvg(sum.AvgRainfall), formatAvg(sum.AvgProduction))
	}
	fmt.Println()
	fmt.Printf("Records:            %d\n", report.Records)
	if report.Correlation.Defined {
		fmt.Printf("Correlation:        %.4f over %d pairs\n", report.Correlation.Coefficient, report.Correlation.Pairs)
	} else {
		fmt.Printf("Correlation:        n/a (%d pairs)\n", report.Correlation.Pairs)
	}
	if report.Wettest != nil {
		fmt.Printf("Wettest Region:     %s (%s mm)\n", report.Wettest.Region, formatAvg(report.Wettest.AvgRainfall))
	}
	return nil
}

func formatAvg(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func printPrepare(res *services.PrepareResult) {
	banner("PREPARE COMPLETE")
	for _, src := range []struct {
		name   string
		counts pipeline.RowCounts
	}{
		{"Rainfall", res.Rainfall},
		{"Crop", res.Crop},
	} {
		fmt.Printf("%-10s rows: %d  written: %d  failed: %d\n", src.name, src.counts.Total, src.counts.Written, src.counts.Failed)
		for _, e := range src.counts.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	fmt.Printf("Duration:           %v\n", res.Duration)
}

func printMerge(res *services.MergeResult) {
	banner("MERGE COMPLETE")
	s := res.Stats
	fmt.Printf("Crop Rows:          %d\n", s.CropRows)
	fmt.Printf("Rainfall Rows:      %d\n", s.RainfallRows)
	fmt.Printf("Dropped Rows:       %d\n", res.DroppedRows())
	fmt.Printf("Duplicate Keys:     %d\n", s.DuplicateKeys)
	fmt.Printf("Matched:            %d\n", s.Matched)
	fmt.Printf("Unmatched:          %d\n", s.Unmatched)
	fmt.Printf("Output Rows:        %d\n", s.Output)
	if res.Output != "" {
		fmt.Printf("Output File:        %s\n", res.Output)
	}
	fmt.Printf("Duration:           %v\n", res.Duration)

	if len(s.UnmatchedByRegion) > 0 {
		regions := make([]string, 0, len(s.UnmatchedByRegion))
		for r := range s.UnmatchedByRegion {
			regions = append(regions, r)
		}
		sort.Strings(regions)
		fmt.Printf("\nUnmatched crop rows by region (%d):\n", len(regions))
		for i, r := range regions {
			if i == 10 {
				fmt.Printf("  ... and %d more regions\n", len(regions)-10)
				break
			}
			fmt.Printf("  - %s: %d\n", r, s.UnmatchedByRegion[r])
		}
	}
	if len(res.Warnings) > 0 {
		printValidation(s.Validation)
	}
}

func printValidation(rep normalize.Report) {
	banner("REGION VALIDATION")
	fmt.Printf("Shared Regions:     %d\n", rep.SharedKeys)
	if rep.Clean() {
		fmt.Println("All regions join.")
		return
	}
	for _, w := range rep.Warnings() {
		fmt.Printf("  - %s\n", w)
	}
}
