// Package app builds the shared runtime pieces the commands start from.
package app

import (
	"context"
	"fmt"

	"agri-platform/internal/config"
	"agri-platform/internal/dataset"
	"agri-platform/internal/insight"
	"agri-platform/internal/llm"
	"agri-platform/internal/normalize"
	"agri-platform/internal/pipeline"
	"agri-platform/internal/repository"
	"agri-platform/internal/services"
	"agri-platform/pkg/database"
	"agri-platform/pkg/logging"
	"agri-platform/pkg/metrics"
)

// Version is reported in logs and the API description.
const Version = "1.0.0"

// NewLogger creates the structured logger for a command.
func NewLogger(cfg *config.Config, service string) *logging.StructuredLogger {
	return logging.NewStructuredLogger(service, Version, logging.ParseLevel(cfg.Logging.Level))
}

// Paths resolves the pipeline file locations.
func Paths(cfg *config.Config) services.PipelinePaths {
	d := cfg.Data
	return services.PipelinePaths{
		RawRainfall:   d.Path(d.RawRainfall),
		RawCrop:       d.Path(d.RawCrop),
		CleanRainfall: d.Path(d.CleanRainfall),
		CleanCrop:     d.Path(d.CleanCrop),
		Merged:        d.Path(d.Merged),
	}
}

// Normalizer builds the region normalizer, layering the alias file over the
// built-in aliases when one is configured.
func Normalizer(cfg *config.Config) (*normalize.Normalizer, error) {
	if cfg.Data.AliasFile == "" {
		return normalize.New(nil), nil
	}
	table, err := normalize.LoadAliasFile(cfg.Data.Path(cfg.Data.AliasFile))
	if err != nil {
		return nil, err
	}
	return normalize.New(table), nil
}

// PipelineOptions builds the merge options from configuration.
func PipelineOptions(cfg *config.Config) (pipeline.Options, error) {
	norm, err := Normalizer(cfg)
	if err != nil {
		return pipeline.Options{}, err
	}
	policy, err := pipeline.ParseDedupPolicy(cfg.Data.Dedup)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{Normalizer: norm, Dedup: policy}, nil
}

// InsightOptions builds the analyzer options from configuration.
func InsightOptions(cfg *config.Config) (insight.Options, error) {
	mode, err := insight.ParseMatchMode(cfg.Insight.MatchMode)
	if err != nil {
		return insight.Options{}, err
	}
	return insight.Options{Mode: mode, Window: cfg.Insight.Window}, nil
}

// DatabaseConfig maps the database section onto the pool settings.
func DatabaseConfig(cfg *config.Config) *database.Config {
	return &database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}
}

// OpenRepository connects to Postgres when the database is enabled. Both return
// values are nil when it is disabled.
func OpenRepository(ctx context.Context, cfg *config.Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*database.PostgresDB, repository.MergedRepository, error) {
	if !cfg.Database.Enabled {
		return nil, nil, nil
	}
	db, err := database.NewPostgresDB(ctx, DatabaseConfig(cfg), logger, metricsCollector)
	if err != nil {
		return nil, nil, err
	}
	return db, repository.NewMergedRepository(db, logger, metricsCollector), nil
}

// LoadDataset loads the merged dataset from the database when configured to,
// otherwise from the merged file.
func LoadDataset(ctx context.Context, cfg *config.Config, repo repository.MergedRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*dataset.Dataset, error) {
	var ds *dataset.Dataset
	if cfg.Data.FromDatabase {
		if repo == nil {
			return nil, fmt.Errorf("data.from_database requires the database to be enabled")
		}
		records, err := repo.AllRecords(ctx)
		if err != nil {
			return nil, err
		}
		ds = dataset.New(records, "postgres:"+cfg.Database.Database)
	} else {
		path := cfg.Data.Path(cfg.Data.Merged)
		loaded, stats, err := dataset.Load(path)
		if err != nil {
			return nil, err
		}
		if stats.DroppedYear > 0 {
			logger.Warn(ctx, "[DATASET_ROWS_DROPPED] Rows with an invalid year were skipped", logging.Fields{
				"path":    path,
				"dropped": stats.DroppedYear,
			})
		}
		for column, n := range stats.CoercionFailures {
			metricsCollector.RecordCoercionFailures(column, n)
		}
		ds = loaded
	}

	metricsCollector.SetDataset(true, ds.Len())
	logger.Info(ctx, "[DATASET_LOADED] Merged dataset loaded", logging.Fields{
		"source":  ds.Source(),
		"records": ds.Len(),
		"regions": len(ds.Regions()),
		"crops":   len(ds.Crops()),
	})
	return ds, nil
}

// NewGenerator creates the Gemini client from configuration.
func NewGenerator(ctx context.Context, cfg *config.Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*llm.GeminiClient, error) {
	return llm.NewGeminiClient(ctx, llm.Config{
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		Temperature:  cfg.LLM.Temperature,
		TopK:         cfg.LLM.TopK,
		TopP:         cfg.LLM.TopP,
		MaxRetries:   cfg.LLM.MaxRetries,
		RetryBackoff: cfg.LLM.RetryBackoff,
		MaxBackoff:   cfg.LLM.MaxBackoff,
	}, logger, metricsCollector)
}
