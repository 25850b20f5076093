package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/stat"

	"agri-platform/internal/models"
	"agri-platform/internal/repository"
	"agri-platform/internal/tabular"
	"agri-platform/pkg/logging"
	"agri-platform/pkg/metrics"
)

// SummaryColumns is the header of the per-region summary file.
var SummaryColumns = []string{"Region", "Average_Rainfall_mm", "Average_Production_Tonnes"}

// Correlation is the Pearson coefficient between rainfall and production over the
// records where both are present. Defined is false with fewer than two pairs or
// when either series is constant.
type Correlation struct {
	Coefficient float64 `json:"coefficient"`
	Pairs       int     `json:"pairs"`
	Defined     bool    `json:"defined"`
}

// SummaryReport is the output of the summary stage.
type SummaryReport struct {
	Regions     []models.RegionSummary `json:"regions"`
	Correlation Correlation            `json:"correlation"`
	Wettest     *models.RegionSummary  `json:"wettest,omitempty"`
	Records     int                    `json:"records"`
}

// StatisticsService computes aggregate views over merged records
type StatisticsService struct {
	repo    repository.MergedRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewStatisticsService creates a new statistics service. repo may be nil.
func NewStatisticsService(repo repository.MergedRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StatisticsService {
	return &StatisticsService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Summarize builds region summaries, the rainfall/production correlation and the
// wettest region.
func (s *StatisticsService) Summarize(ctx context.Context, records []models.MergedRecord) *SummaryReport {
	startTime := time.Now()
	report := &SummaryReport{
		Regions:     RegionSummaries(records),
		Correlation: RainfallProductionCorrelation(records),
		Records:     len(records),
	}
	report.Wettest = WettestRegion(report.Regions)

	s.metrics.PipelineDuration.WithLabelValues("summary").Observe(time.Since(startTime).Seconds())
	s.logger.Info(ctx, "[STATS_SUMMARY] Region summaries computed", logging.Fields{
		"regions":     len(report.Regions),
		"records":     len(records),
		"pairs":       report.Correlation.Pairs,
		"correlation": report.Correlation.Coefficient,
	})
	return report
}

// RegionSummaries averages rainfall and production per region, skipping missing
// values. Regions are returned in name order.
func RegionSummaries(records []models.MergedRecord) []models.RegionSummary {
	type acc struct {
		rainSum, prodSum float64
		rainN, prodN     int
		records          int
	}
	byRegion := make(map[string]*acc)
	for _, r := range records {
		a := byRegion[r.Region]
		if a == nil {
			a = &acc{}
			byRegion[r.Region] = a
		}
		a.records++
		if r.Rainfall != nil {
			a.rainSum += *r.Rainfall
			a.rainN++
		}
		if r.Production != nil {
			a.prodSum += *r.Production
			a.prodN++
		}
	}

	out := make([]models.RegionSummary, 0, len(byRegion))
	for region, a := range byRegion {
		sum := models.RegionSummary{Region: region, Records: a.records}
		if a.rainN > 0 {
			sum.AvgRainfall = models.Float(a.rainSum / float64(a.rainN))
		}
		if a.prodN > 0 {
			sum.AvgProduction = models.Float(a.prodSum / float64(a.prodN))
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Region < out[j].Region })
	return out
}

// RainfallProductionCorrelation computes Pearson's r over complete pairs.
func RainfallProductionCorrelation(records []models.MergedRecord) Correlation {
	var xs, ys []float64
	for _, r := range records {
		if r.Rainfall == nil || r.Production == nil {
			continue
		}
		xs = append(xs, *r.Rainfall)
		ys = append(ys, *r.Production)
	}
	c := Correlation{Pairs: len(xs)}
	if len(xs) < 2 {
		return c
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return c
	}
	c.Coefficient = r
	c.Defined = true
	return c
}

// YearlyAggregates groups records per (region, year) into mean rainfall and total
// production, ordered by region then year.
func YearlyAggregates(records []models.MergedRecord) []models.YearlyAggregate {
	type key struct {
		region string
		year   int
	}
	type acc struct {
		rainSum float64
		rainN   int
		prod    float64
	}
	groups := make(map[key]*acc)
	for _, r := range records {
		k := key{r.Region, r.Year}
		a := groups[k]
		if a == nil {
			a = &acc{}
			groups[k] = a
		}
		if r.Rainfall != nil {
			a.rainSum += *r.Rainfall
			a.rainN++
		}
		if r.Production != nil {
			a.prod += *r.Production
		}
	}

	out := make([]models.YearlyAggregate, 0, len(groups))
	for k, a := range groups {
		agg := models.YearlyAggregate{Region: k.region, Year: k.year, TotalProduction: a.prod}
		if a.rainN > 0 {
			agg.MeanRainfall = models.Float(a.rainSum / float64(a.rainN))
		}
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Region != out[j].Region {
			return out[i].Region < out[j].Region
		}
		return out[i].Year < out[j].Year
	})
	return out
}

// WettestRegion returns the summary with the highest average rainfall, or nil when
// no region has rainfall data.
func WettestRegion(summaries []models.RegionSummary) *models.RegionSummary {
	var best *models.RegionSummary
	for i := range summaries {
		s := &summaries[i]
		if s.AvgRainfall == nil {
			continue
		}
		if best == nil || *s.AvgRainfall > *best.AvgRainfall {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

func round2(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return models.Float(math.Round(*v*100) / 100)
}

// SummaryTable renders summaries with values rounded to two decimals.
func SummaryTable(summaries []models.RegionSummary) *tabular.Table {
	t := &tabular.Table{Header: append([]string(nil), SummaryColumns...)}
	for _, s := range summaries {
		t.Rows = append(t.Rows, []string{
			s.Region,
			tabular.FormatNumber(round2(s.AvgRainfall)),
			tabular.FormatNumber(round2(s.AvgProduction)),
		})
	}
	return t
}

// WriteSummaryCSV writes the per-region summary file.
func (s *StatisticsService) WriteSummaryCSV(ctx context.Context, path string, summaries []models.RegionSummary) error {
	if err := SummaryTable(summaries).WriteFile(path); err != nil {
		s.metrics.RecordPipelineError("write_error")
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	s.logger.Info(ctx, "[STATS_SUMMARY_WRITTEN] Summary file written", logging.Fields{
		"path":    path,
		"regions": len(summaries),
	})
	return nil
}

const (
	summarySheet = "Summary"
	regionsSheet = "Regions"
)

// WriteSummaryXLSX writes a workbook with an overview sheet and a per-region sheet.
// Nothing is saved when any cell fails to write.
func (s *StatisticsService) WriteSummaryXLSX(ctx context.Context, path string, report *SummaryReport) error {
	f, err := summaryWorkbook(report)
	if err != nil {
		s.metrics.RecordPipelineError("write_error")
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		s.metrics.RecordPipelineError("write_error")
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	s.logger.Info(ctx, "[STATS_XLSX_WRITTEN] Summary workbook written", logging.Fields{
		"path":    path,
		"regions": len(report.Regions),
	})
	return nil
}

// sheetWriter keeps the first excelize error so cell writes can be chained.
type sheetWriter struct {
	f   *excelize.File
	err error
}

func (w *sheetWriter) cell(sheet string, col, row int, v interface{}) {
	if w.err != nil {
		return
	}
	name, err := excelize.CoordinatesToCellName(col, row)
	if err == nil {
		err = w.f.SetCellValue(sheet, name, v)
	}
	if err != nil {
		w.err = fmt.Errorf("failed to write %s cell (%d,%d): %w", sheet, col, row, err)
	}
}

func (w *sheetWriter) width(sheet, from, to string, width float64) {
	if w.err != nil {
		return
	}
	if err := w.f.SetColWidth(sheet, from, to, width); err != nil {
		w.err = fmt.Errorf("failed to size %s columns %s:%s: %w", sheet, from, to, err)
	}
}

func summaryWorkbook(report *SummaryReport) (*excelize.File, error) {
	f := excelize.NewFile()
	w := &sheetWriter{f: f}

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	overview := [][2]interface{}{
		{"Generated", time.Now().UTC().Format(time.RFC3339)},
		{"Records", report.Records},
		{"Regions", len(report.Regions)},
		{"Rainfall/Production Pairs", report.Correlation.Pairs},
	}
	if report.Correlation.Defined {
		overview = append(overview, [2]interface{}{"Rainfall/Production Correlation", math.Round(report.Correlation.Coefficient*10000) / 10000})
	} else {
		overview = append(overview, [2]interface{}{"Rainfall/Production Correlation", "n/a"})
	}
	if report.Wettest != nil {
		overview = append(overview, [2]interface{}{"Wettest Region", report.Wettest.Region})
	}
	for i, row := range overview {
		w.cell(summarySheet, 1, i+1, row[0])
		w.cell(summarySheet, 2, i+1, row[1])
	}
	w.width(summarySheet, "A", "A", 34)
	w.width(summarySheet, "B", "B", 26)

	if _, err := f.NewSheet(regionsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	headers := append(append([]string(nil), SummaryColumns...), "Records")
	for i, h := range headers {
		w.cell(regionsSheet, i+1, 1, h)
	}
	w.width(regionsSheet, "A", "D", 26)
	for i, sum := range report.Regions {
		row := i + 2
		w.cell(regionsSheet, 1, row, sum.Region)
		if v := round2(sum.AvgRainfall); v != nil {
			w.cell(regionsSheet, 2, row, *v)
		}
		if v := round2(sum.AvgProduction); v != nil {
			w.cell(regionsSheet, 3, row, *v)
		}
		w.cell(regionsSheet, 4, row, sum.Records)
	}

	if w.err != nil {
		f.Close()
		return nil, w.err
	}
	return f, nil
}

// SyncSummaries stores summaries in the database when one is configured.
func (s *StatisticsService) SyncSummaries(ctx context.Context, summaries []models.RegionSummary) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.SaveRegionSummaries(ctx, summaries); err != nil {
		s.logger.Error(ctx, "[STATS_SAVE_ERROR] Failed to save region summaries", logging.Fields{
			"count": len(summaries),
		}, err)
		return fmt.Errorf("failed to save region summaries: %w", err)
	}
	return nil
}

// StoredSummaries recomputes summaries from the database copy of the dataset.
func (s *StatisticsService) StoredSummaries(ctx context.Context) ([]models.RegionSummary, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("no database configured")
	}
	out, err := s.repo.ComputeRegionSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stored summaries: %w", err)
	}
	return out, nil
}
