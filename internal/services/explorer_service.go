package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"agri-platform/internal/dataset"
	"agri-platform/internal/insight"
	"agri-platform/internal/models"
	"agri-platform/internal/repository"
	"agri-platform/pkg/logging"
	"agri-platform/pkg/metrics"
)

// ErrNoDataset is returned by read operations when no dataset is loaded.
var ErrNoDataset = errors.New("dataset not loaded")

// headRows is how many records the insights overview previews.
const headRows = 10

// RecordQuery filters and pages merged records. A record matches when its region
// is any of Regions and its crop any of Crops; empty lists match everything.
type RecordQuery struct {
	Regions  []string
	Crops    []string
	FromYear int
	ToYear   int
	Limit    int
	Offset   int
}

func (q RecordQuery) filter() dataset.Filter {
	return dataset.Filter{Regions: nonEmpty(q.Regions), Crops: nonEmpty(q.Crops), FromYear: q.FromYear, ToYear: q.ToYear}
}

// Overview is the dashboard's insight panel for the selected regions, or for every
// region when none is selected.
type Overview struct {
	Regions     []string              `json:"regions,omitempty"`
	Crops       []string              `json:"crops,omitempty"`
	Records     int                   `json:"records"`
	Head        []models.MergedRecord `json:"head"`
	Correlation Correlation           `json:"correlation"`
	Summary     *models.RegionSummary `json:"summary,omitempty"`
	Wettest     *models.RegionSummary `json:"wettest,omitempty"`
}

// ExplorerService serves read-only views of the loaded dataset. When no dataset
// is loaded, record listing falls back to the database if one is configured.
type ExplorerService struct {
	ds       *dataset.Dataset
	analyzer *insight.Analyzer
	repo     repository.MergedRepository
	stats    *StatisticsService
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewExplorerService creates a new explorer service. ds, analyzer and repo may be nil.
func NewExplorerService(ds *dataset.Dataset, analyzer *insight.Analyzer, repo repository.MergedRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ExplorerService {
	return &ExplorerService{
		ds:       ds,
		analyzer: analyzer,
		repo:     repo,
		stats:    NewStatisticsService(repo, logger, metricsCollector),
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// Dataset returns the loaded dataset, or nil.
func (s *ExplorerService) Dataset() *dataset.Dataset {
	return s.ds
}

// Loaded reports whether a dataset is available.
func (s *ExplorerService) Loaded() bool {
	return s.ds != nil
}

// Regions returns the sorted distinct regions.
func (s *ExplorerService) Regions() []string {
	if s.ds == nil {
		return []string{}
	}
	return s.ds.Regions()
}

// LoadedAt returns when the dataset was loaded. ok is false without a dataset.
func (s *ExplorerService) LoadedAt() (time.Time, bool) {
	if s.ds == nil {
		return time.Time{}, false
	}
	return s.ds.LoadedAt(), true
}

// Crops returns the sorted distinct crops grown in any of regions, or every crop
// when no region is given.
func (s *ExplorerService) Crops(regions ...string) []string {
	if s.ds == nil {
		return []string{}
	}
	regions = nonEmpty(regions)
	if len(regions) == 0 {
		return s.ds.Crops()
	}
	set := make(map[string]bool)
	for _, region := range regions {
		for _, c := range s.ds.CropsIn(region) {
			set[c] = true
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// GetRecords returns one page of matching records and the total match count.
func (s *ExplorerService) GetRecords(ctx context.Context, q RecordQuery) ([]models.MergedRecord, int, error) {
	if s.ds == nil {
		if s.repo == nil {
			return nil, 0, ErrNoDataset
		}
		return s.recordsFromRepo(ctx, q)
	}

	matched := s.ds.Select(q.filter())
	total := len(matched)
	offset := max(q.Offset, 0)
	if offset >= total {
		return []models.MergedRecord{}, total, nil
	}
	end := total
	if q.Limit > 0 && q.Limit < total-offset {
		end = offset + q.Limit
	}
	return matched[offset:end], total, nil
}

func (s *ExplorerService) recordsFromRepo(ctx context.Context, q RecordQuery) ([]models.MergedRecord, int, error) {
	filter := repository.RecordFilter{
		Regions: nonEmpty(q.Regions),
		Crops:   nonEmpty(q.Crops),
		Limit:   q.Limit,
		Offset:  max(q.Offset, 0),
	}
	if q.FromYear != 0 {
		filter.FromYear = &q.FromYear
	}
	if q.ToYear != 0 {
		filter.ToYear = &q.ToYear
	}
	rows, total, err := s.repo.ListRecords(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.MergedRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out, total, nil
}

// Select returns every record matching q, ignoring paging.
func (s *ExplorerService) Select(q RecordQuery) ([]models.MergedRecord, error) {
	if s.ds == nil {
		return nil, ErrNoDataset
	}
	return s.ds.Select(q.filter()), nil
}

// Insights builds the overview panel for the records matching q. Paging is ignored.
func (s *ExplorerService) Insights(ctx context.Context, q RecordQuery) (*Overview, error) {
	records, err := s.Select(q)
	if err != nil {
		return nil, err
	}

	regions := nonEmpty(q.Regions)
	ov := &Overview{
		Regions:     regions,
		Crops:       nonEmpty(q.Crops),
		Records:     len(records),
		Correlation: RainfallProductionCorrelation(records),
	}
	head := records
	if len(head) > headRows {
		head = head[:headRows]
	}
	ov.Head = append([]models.MergedRecord{}, head...)

	summaries := RegionSummaries(records)
	if len(regions) == 1 && len(summaries) == 1 {
		ov.Summary = &summaries[0]
	}
	ov.Wettest = WettestRegion(summaries)

	s.logger.Debug(ctx, "[EXPLORER_INSIGHTS] Overview built", logging.Fields{
		"regions": regions,
		"records": len(records),
	})
	return ov, nil
}

// Yearly returns per (region, year) mean rainfall and total production.
func (s *ExplorerService) Yearly(q RecordQuery) ([]models.YearlyAggregate, error) {
	records, err := s.Select(q)
	if err != nil {
		return nil, err
	}
	return YearlyAggregates(records), nil
}

// Summaries returns the per-region averages of the loaded dataset. Without one they
// are recomputed from the database copy when a database is configured.
func (s *ExplorerService) Summaries(ctx context.Context) ([]models.RegionSummary, error) {
	if s.ds != nil {
		return RegionSummaries(s.ds.Records()), nil
	}
	if s.repo == nil {
		return nil, ErrNoDataset
	}
	out, err := s.stats.StoredSummaries(ctx)
	if err != nil {
		s.logger.Error(ctx, "[EXPLORER_SUMMARY_ERROR] Failed to read stored summaries", logging.Fields{}, err)
		return nil, err
	}
	return out, nil
}

// RegionSummary returns the averages of one region. An unknown region yields a
// *repository.NotFoundError. Without a loaded dataset the stored summary table
// is read instead.
func (s *ExplorerService) RegionSummary(ctx context.Context, region string) (*models.RegionSummary, error) {
	region = strings.TrimSpace(region)
	if s.ds != nil {
		records := s.ds.Select(dataset.Filter{Regions: []string{region}})
		if len(records) == 0 {
			return nil, &repository.NotFoundError{Resource: "region_summary", ID: region}
		}
		summaries := RegionSummaries(records)
		return &summaries[0], nil
	}
	if s.repo == nil {
		return nil, ErrNoDataset
	}
	return s.repo.GetRegionSummary(ctx, region)
}

// Trend returns the recent production trend for region and crop. ok is false when
// no year has production data.
func (s *ExplorerService) Trend(region, crop string) (*models.TrendSummary, bool, error) {
	if s.analyzer == nil {
		return nil, false, ErrNoDataset
	}
	t, ok := s.analyzer.Trend(region, crop)
	return t, ok, nil
}
