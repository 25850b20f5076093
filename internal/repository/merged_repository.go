package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"agri-platform/internal/models"
	"agri-platform/pkg/database"
	"agri-platform/pkg/logging"
	"agri-platform/pkg/metrics"
)

// MergedRepository stores the merged dataset and per-region summaries in Postgres.
type MergedRepository interface {
	// Record operations
	ReplaceAll(ctx context.Context, records []models.MergedRecord) (int, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]*models.MergedRecord, int, error)
	AllRecords(ctx context.Context) ([]models.MergedRecord, error)

	// Summary operations
	ComputeRegionSummaries(ctx context.Context) ([]models.RegionSummary, error)
	SaveRegionSummaries(ctx context.Context, summaries []models.RegionSummary) error
	GetRegionSummary(ctx context.Context, region string) (*models.RegionSummary, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// RecordFilter defines filters for querying merged records. A record matches when
// its region is any of Regions and its crop any of Crops, compared case-insensitively.
// Empty lists match everything.
type RecordFilter struct {
	Regions  []string
	Crops    []string
	FromYear *int
	ToYear   *int
	Limit    int
	Offset   int
}

var recordColumns = []string{
	"region", "district", "year", "season", "crop",
	"area_hectare", "production_tonnes", "rainfall_mm",
}

type mergedRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewMergedRepository creates a Postgres-backed MergedRepository.
func NewMergedRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) MergedRepository {
	return &mergedRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ReplaceAll swaps the stored dataset for records in one transaction, streaming the
// rows with COPY.
func (r *mergedRepository) ReplaceAll(ctx context.Context, records []models.MergedRecord) (int, error) {
	start := time.Now()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `TRUNCATE merged_records`); err != nil {
		return 0, fmt.Errorf("failed to clear merged records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("merged_records", recordColumns...))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare copy: %w", err)
	}
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			rec.Region, rec.District, rec.Year, rec.Season, rec.Crop,
			rec.Area, rec.Production, rec.Rainfall,
		); err != nil {
			stmt.Close()
			return 0, fmt.Errorf("failed to copy record: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return 0, fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("failed to close copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.PipelineDuration.WithLabelValues("db_load").Observe(time.Since(start).Seconds())
	r.logger.Info(ctx, "[REPO_REPLACE] Merged records stored", logging.Fields{
		"count":       len(records),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return len(records), nil
}

// ListRecords returns one page of records and the total match count.
func (r *mergedRepository) ListRecords(ctx context.Context, filter RecordFilter) ([]*models.MergedRecord, int, error) {
	where, args := buildRecordWhere(filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM merged_records" + where
	if err := r.db.GetContext(ctx, "count_records", &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	query := "SELECT " + strings.Join(recordColumns, ", ") + " FROM merged_records" + where +
		" ORDER BY region, year, crop, district, id" +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	var records []*models.MergedRecord
	if err := r.db.SelectContext(ctx, "list_records", &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}
	return records, total, nil
}

// AllRecords returns the whole stored dataset in insertion order.
func (r *mergedRepository) AllRecords(ctx context.Context) ([]models.MergedRecord, error) {
	query := "SELECT " + strings.Join(recordColumns, ", ") + " FROM merged_records ORDER BY id"
	var records []models.MergedRecord
	if err := r.db.SelectContext(ctx, "all_records", &records, query); err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	return records, nil
}

// ComputeRegionSummaries averages rainfall and production per region. AVG skips
// NULLs, so missing values never count as zero.
func (r *mergedRepository) ComputeRegionSummaries(ctx context.Context) ([]models.RegionSummary, error) {
	query := `
		SELECT region,
		       AVG(rainfall_mm)       AS avg_rainfall_mm,
		       AVG(production_tonnes) AS avg_production_tonnes,
		       COUNT(*)               AS records
		FROM merged_records
		GROUP BY region
		ORDER BY region
	`
	var out []models.RegionSummary
	if err := r.db.SelectContext(ctx, "compute_region_summaries", &out, query); err != nil {
		return nil, fmt.Errorf("failed to compute region summaries: %w", err)
	}
	return out, nil
}

// SaveRegionSummaries upserts summaries by region.
func (r *mergedRepository) SaveRegionSummaries(ctx context.Context, summaries []models.RegionSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO region_summaries (region, avg_rainfall_mm, avg_production_tonnes, records, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (region) DO UPDATE SET
			avg_rainfall_mm = EXCLUDED.avg_rainfall_mm,
			avg_production_tonnes = EXCLUDED.avg_production_tonnes,
			records = EXCLUDED.records,
			updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, s := range summaries {
		if _, err := stmt.ExecContext(ctx, s.Region, s.AvgRainfall, s.AvgProduction, s.Records, now); err != nil {
			return fmt.Errorf("failed to upsert summary for %s: %w", s.Region, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	r.logger.Debug(ctx, "[REPO_SUMMARIES] Region summaries saved", logging.Fields{
		"count": len(summaries),
	})
	return nil
}

// GetRegionSummary returns the stored summary for one region.
func (r *mergedRepository) GetRegionSummary(ctx context.Context, region string) (*models.RegionSummary, error) {
	query := `
		SELECT region, avg_rainfall_mm, avg_production_tonnes, records
		FROM region_summaries
		WHERE LOWER(region) = LOWER($1)
	`
	var s models.RegionSummary
	err := r.db.GetContext(ctx, "get_region_summary", &s, query, region)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "region_summary", ID: region}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get region summary: %w", err)
	}
	return &s, nil
}

// HealthCheck performs a repository health check
func (r *mergedRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

func buildRecordWhere(filter RecordFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if len(filter.Regions) > 0 {
		add("LOWER(region) = ANY($%d)", pq.Array(lowerAll(filter.Regions)))
	}
	if len(filter.Crops) > 0 {
		add("LOWER(crop) = ANY($%d)", pq.Array(lowerAll(filter.Crops)))
	}
	if filter.FromYear != nil {
		add("year >= $%d", *filter.FromYear)
	}
	if filter.ToYear != nil {
		add("year <= $%d", *filter.ToYear)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
