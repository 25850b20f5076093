package services

import (
	"context"
	"fmt"
	"time"

	"agri-platform/internal/models"
	"agri-platform/internal/pipeline"
	"agri-platform/internal/repository"
	"agri-platform/internal/tabular"
	"agri-platform/pkg/logging"
	"agri-platform/pkg/metrics"
)

// PipelinePaths names the files read and written by the batch pipeline.
type PipelinePaths struct {
	RawRainfall   string
	RawCrop       string
	CleanRainfall string
	CleanCrop     string
	Merged        string
}

// PrepareResult contains per-source preparation statistics
type PrepareResult struct {
	Rainfall pipeline.RowCounts
	Crop     pipeline.RowCounts
	Duration time.Duration
}

// MergeResult contains merge statistics and the merged records
type MergeResult struct {
	Stats         pipeline.MergeStats
	CropParse     pipeline.ParseStats
	RainfallParse pipeline.ParseStats
	Records       []models.MergedRecord
	Output        string
	Duration      time.Duration
	Warnings      []string
}

// DroppedRows is the number of input rows excluded for an unparseable year.
func (r *MergeResult) DroppedRows() int {
	return r.CropParse.DroppedYear + r.RainfallParse.DroppedYear
}

// PipelineService runs the prepare and merge stages and optionally stores the result.
type PipelineService struct {
	repo    repository.MergedRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewPipelineService creates a new pipeline service. repo may be nil when no
// database is configured.
func NewPipelineService(repo repository.MergedRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *PipelineService {
	return &PipelineService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Prepare reads the two headerless raw files and writes the cleaned files.
func (s *PipelineService) Prepare(ctx context.Context, paths PipelinePaths) (*PrepareResult, error) {
	timer := s.metrics.NewTimer(s.metrics.PipelineDuration.WithLabelValues("prepare"))
	s.logger.Info(ctx, "[PREPARE_START] Preparing raw sources", logging.Fields{
		"raw_rainfall": paths.RawRainfall,
		"raw_crop":     paths.RawCrop,
		"stage":        "INITIALIZATION",
	})

	result := &PrepareResult{}
	var err error
	result.Rainfall, err = s.prepareOne(ctx, "rainfall", paths.RawRainfall, paths.CleanRainfall, pipeline.CleanRainfall)
	if err != nil {
		return nil, err
	}
	result.Crop, err = s.prepareOne(ctx, "crop", paths.RawCrop, paths.CleanCrop, pipeline.CleanCrop)
	if err != nil {
		return nil, err
	}

	result.Duration = timer.ObserveDuration()
	s.logger.Info(ctx, "[PREPARE_COMPLETE] Cleaned files written", logging.Fields{
		"rainfall_written": result.Rainfall.Written,
		"rainfall_failed":  result.Rainfall.Failed,
		"crop_written":     result.Crop.Written,
		"crop_failed":      result.Crop.Failed,
		"duration_seconds": result.Duration.Seconds(),
		"stage":            "COMPLETE",
	})
	return result, nil
}

func (s *PipelineService) prepareOne(ctx context.Context, source, in, out string, clean func(*tabular.Table) (*tabular.Table, pipeline.RowCounts)) (pipeline.RowCounts, error) {
	raw, err := tabular.ReadFile(in, tabular.ReadOptions{HasHeader: false})
	if err != nil {
		s.metrics.RecordPipelineError("read_error")
		return pipeline.RowCounts{}, fmt.Errorf("failed to read raw %s file: %w", source, err)
	}

	log := s.logger.WithFields(logging.Fields{"source": source, "input": in})
	table, counts := clean(raw)
	if err := table.WriteFile(out); err != nil {
		s.metrics.RecordPipelineError("write_error")
		log.Error(ctx, "[PREPARE_WRITE_ERROR] Failed to write clean file", logging.Fields{"output": out}, err)
		return counts, fmt.Errorf("failed to write clean %s file: %w", source, err)
	}

	s.metrics.RecordPipelineRows(source, "written", counts.Written)
	s.metrics.RecordPipelineRows(source, "failed", counts.Failed)
	if counts.Failed > 0 {
		log.Warn(ctx, "[PREPARE_ROWS_SKIPPED] Raw rows skipped", logging.Fields{
			"failed":        counts.Failed,
			"sample_errors": counts.Errors,
		})
	}
	log.Debug(ctx, "[PREPARE_SOURCE_DONE] Clean file written", logging.Fields{
		"output":  out,
		"written": counts.Written,
	})
	return counts, nil
}

// Merge reads the cleaned files, joins them and writes the merged file. An empty
// paths.Merged skips writing.
func (s *PipelineService) Merge(ctx context.Context, paths PipelinePaths, opt pipeline.Options) (*MergeResult, error) {
	timer := s.metrics.NewTimer(s.metrics.PipelineDuration.WithLabelValues("merge"))
	s.logger.Info(ctx, "[MERGE_START] Merging cleaned sources", logging.Fields{
		"clean_rainfall": paths.CleanRainfall,
		"clean_crop":     paths.CleanCrop,
		"dedup":          string(opt.Dedup),
		"stage":          "INITIALIZATION",
	})

	rainTable, err := tabular.ReadFile(paths.CleanRainfall, tabular.ReadOptions{HasHeader: true})
	if err != nil {
		s.metrics.RecordPipelineError("read_error")
		return nil, fmt.Errorf("failed to read rainfall file: %w", err)
	}
	cropTable, err := tabular.ReadFile(paths.CleanCrop, tabular.ReadOptions{HasHeader: true})
	if err != nil {
		s.metrics.RecordPipelineError("read_error")
		return nil, fmt.Errorf("failed to read crop file: %w", err)
	}

	rain, rainStats, err := pipeline.DecodeRainfall(rainTable)
	if err != nil {
		s.metrics.RecordPipelineError("schema_error")
		return nil, err
	}
	crops, cropStats, err := pipeline.DecodeCrop(cropTable)
	if err != nil {
		s.metrics.RecordPipelineError("schema_error")
		return nil, err
	}

	result := s.join(ctx, crops, rain, opt)
	result.CropParse = cropStats
	result.RainfallParse = rainStats
	s.recordParse("crop", cropStats)
	s.recordParse("rainfall", rainStats)

	if paths.Merged != "" {
		if err := pipeline.EncodeMerged(result.Records).WriteFile(paths.Merged); err != nil {
			s.metrics.RecordPipelineError("write_error")
			return nil, fmt.Errorf("failed to write merged file: %w", err)
		}
		result.Output = paths.Merged
	}

	result.Duration = timer.ObserveDuration()
	s.logger.Info(ctx, "[MERGE_COMPLETE] Merged dataset ready", logging.Fields{
		"output":           result.Output,
		"crop_rows":        result.Stats.CropRows,
		"rainfall_rows":    result.Stats.RainfallRows,
		"dropped_rows":     result.DroppedRows(),
		"duplicate_keys":   result.Stats.DuplicateKeys,
		"matched":          result.Stats.Matched,
		"unmatched":        result.Stats.Unmatched,
		"output_rows":      result.Stats.Output,
		"duration_seconds": result.Duration.Seconds(),
		"stage":            "COMPLETE",
	})
	return result, nil
}

// join runs the in-memory merge and reports its outcome.
func (s *PipelineService) join(ctx context.Context, crops []models.CropRecord, rain []models.RainfallRecord, opt pipeline.Options) *MergeResult {
	records, stats := pipeline.Merge(crops, rain, opt)
	result := &MergeResult{
		Stats:    stats,
		Records:  records,
		Warnings: stats.Validation.Warnings(),
	}

	s.metrics.RecordJoin(stats.Matched, stats.Unmatched)
	s.metrics.RecordPipelineRows("merged", "written", stats.Output)
	for _, w := range result.Warnings {
		s.logger.Warn(ctx, "[MERGE_KEY_MISMATCH] Region will not join", logging.Fields{
			"detail": w,
		})
	}
	if stats.DuplicateKeys > 0 {
		s.logger.Warn(ctx, "[MERGE_DUPLICATES] Duplicate rainfall keys", logging.Fields{
			"keys":   stats.DuplicateKeys,
			"policy": string(opt.Dedup),
		})
	}
	return result
}

func (s *PipelineService) recordParse(source string, stats pipeline.ParseStats) {
	s.metrics.RecordPipelineRows(source, "dropped_year", stats.DroppedYear)
	for column, n := range stats.CoercionFailures {
		s.metrics.RecordCoercionFailures(column, n)
	}
}

// Run prepares and merges in one go.
func (s *PipelineService) Run(ctx context.Context, paths PipelinePaths, opt pipeline.Options) (*PrepareResult, *MergeResult, error) {
	prep, err := s.Prepare(ctx, paths)
	if err != nil {
		return nil, nil, fmt.Errorf("prepare stage failed: %w", err)
	}
	merged, err := s.Merge(ctx, paths, opt)
	if err != nil {
		return prep, nil, fmt.Errorf("merge stage failed: %w", err)
	}
	return prep, merged, nil
}

// Store replaces the database copy of the merged dataset.
func (s *PipelineService) Store(ctx context.Context, records []models.MergedRecord) (int, error) {
	if s.repo == nil {
		return 0, fmt.Errorf("no database configured")
	}
	n, err := s.repo.ReplaceAll(ctx, records)
	if err != nil {
		s.metrics.RecordPipelineError("store_error")
		return 0, fmt.Errorf("failed to store merged records: %w", err)
	}
	return n, nil
}
