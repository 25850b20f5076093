package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"agri-platform/internal/models"
	"agri-platform/pkg/logging"
	"agri-platform/pkg/metrics"
)

func f(v float64) *float64 { return &v }

func statsRecords() []models.MergedRecord {
	return []models.MergedRecord{
		{Region: "Punjab", Year: 2015, Crop: "Wheat", Production: f(10), Rainfall: f(600)},
		{Region: "Punjab", Year: 2015, Crop: "Rice", Production: f(20), Rainfall: f(600)},
		{Region: "Punjab", Year: 2016, Crop: "Wheat", Production: f(12), Rainfall: f(700)},
		{Region: "Kerala", Year: 2015, Crop: "Rice", Production: f(5), Rainfall: f(3000.456)},
		{Region: "Kerala", Year: 2016, Crop: "Rice", Rainfall: f(2800)},
		{Region: "Goa", Year: 2015, Crop: "Cashew", Production: f(1)},
	}
}

func newTestStatisticsService() *StatisticsService {
	return NewStatisticsService(nil, logging.NewNopLogger(), metrics.NewCollector("test"))
}

func TestRegionSummaries(t *testing.T) {
	got := RegionSummaries(statsRecords())
	require.Len(t, got, 3)

	assert.Equal(t, "Goa", got[0].Region)
	assert.Nil(t, got[0].AvgRainfall)
	assert.InDelta(t, 1, *got[0].AvgProduction, 1e-9)

	assert.Equal(t, "Kerala", got[1].Region)
	assert.InDelta(t, 2900.228, *got[1].AvgRainfall, 1e-9)
	assert.InDelta(t, 5, *got[1].AvgProduction, 1e-9, "missing production is skipped, not counted as zero")
	assert.Equal(t, 2, got[1].Records)

	assert.Equal(t, "Punjab", got[2].Region)
	assert.InDelta(t, 14, *got[2].AvgProduction, 1e-9)
}

func TestWettestRegion(t *testing.T) {
	tests := []struct {
		name      string
		summaries []models.RegionSummary
		want      string
	}{
		{name: "highest average wins", summaries: RegionSummaries(statsRecords()), want: "Kerala"},
		{name: "no rainfall anywhere", summaries: []models.RegionSummary{{Region: "Goa"}}, want: ""},
		{name: "empty", summaries: nil, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WettestRegion(tt.summaries)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Region)
		})
	}
}

func TestRainfallProductionCorrelation(t *testing.T) {
	tests := []struct {
		name        string
		records     []models.MergedRecord
		wantDefined bool
		wantPairs   int
		want        float64
	}{
		{
			name: "perfect positive",
			records: []models.MergedRecord{
				{Rainfall: f(1), Production: f(2)},
				{Rainfall: f(2), Production: f(4)},
				{Rainfall: f(3), Production: f(6)},
			},
			wantDefined: true, wantPairs: 3, want: 1,
		},
		{
			name: "incomplete pairs skipped",
			records: []models.MergedRecord{
				{Rainfall: f(1), Production: f(3)},
				{Rainfall: f(2)},
				{Production: f(9)},
				{Rainfall: f(3), Production: f(1)},
			},
			wantDefined: true, wantPairs: 2, want: -1,
		},
		{
			name:      "single pair",
			records:   []models.MergedRecord{{Rainfall: f(1), Production: f(1)}},
			wantPairs: 1,
		},
		{
			name: "constant series",
			records: []models.MergedRecord{
				{Rainfall: f(5), Production: f(1)},
				{Rainfall: f(5), Production: f(2)},
			},
			wantPairs: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RainfallProductionCorrelation(tt.records)
			assert.Equal(t, tt.wantDefined, got.Defined)
			assert.Equal(t, tt.wantPairs, got.Pairs)
			if tt.wantDefined {
				assert.InDelta(t, tt.want, got.Coefficient, 1e-9)
			}
		})
	}
}

func TestYearlyAggregates(t *testing.T) {
	got := YearlyAggregates(statsRecords())
	require.Len(t, got, 5)

	assert.Equal(t, "Goa", got[0].Region)
	assert.Nil(t, got[0].MeanRainfall)

	punjab2015 := got[3]
	assert.Equal(t, "Punjab", punjab2015.Region)
	assert.Equal(t, 2015, punjab2015.Year)
	assert.InDelta(t, 600, *punjab2015.MeanRainfall, 1e-9)
	assert.InDelta(t, 30, punjab2015.TotalProduction, 1e-9)

	kerala2016 := got[2]
	assert.Equal(t, 2016, kerala2016.Year)
	assert.Zero(t, kerala2016.TotalProduction)
}

func TestWriteSummaryCSV(t *testing.T) {
	s := newTestStatisticsService()
	path := filepath.Join(t.TempDir(), "state_summary.csv")

	require.NoError(t, s.WriteSummaryCSV(context.Background(), path, RegionSummaries(statsRecords())))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"Region,Average_Rainfall_mm,Average_Production_Tonnes\n"+
			"Goa,,1\n"+
			"Kerala,2900.23,5\n"+
			"Punjab,633.33,14\n",
		string(data))
}

func TestWriteSummaryXLSX(t *testing.T) {
	s := newTestStatisticsService()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state_summary.xlsx")

	report := s.Summarize(ctx, statsRecords())
	require.NoError(t, s.WriteSummaryXLSX(ctx, path, report))

	wb, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer wb.Close()

	assert.Equal(t, []string{"Summary", "Regions"}, wb.GetSheetList())

	v, err := wb.GetCellValue("Summary", "B6")
	require.NoError(t, err)
	assert.Equal(t, "Kerala", v)

	v, err = wb.GetCellValue("Regions", "A3")
	require.NoError(t, err)
	assert.Equal(t, "Kerala", v)
	v, err = wb.GetCellValue("Regions", "B3")
	require.NoError(t, err)
	assert.Equal(t, "2900.23", v)
}

func TestSheetWriterKeepsFirstError(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *sheetWriter)
		want  string
	}{
		{
			name:  "missing sheet",
			write: func(w *sheetWriter) { w.cell("Nowhere", 1, 1, "x") },
			want:  "sheet Nowhere does not exist",
		},
		{
			name:  "row outside the grid",
			write: func(w *sheetWriter) { w.cell(summarySheet, 1, 0, "x") },
			want:  "failed to write Summary cell (1,0)",
		},
		{
			name:  "column too wide",
			write: func(w *sheetWriter) { w.width(summarySheet, "A", "A", 1000) },
			want:  "failed to size Summary columns A:A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb := excelize.NewFile()
			defer wb.Close()
			require.NoError(t, wb.SetSheetName("Sheet1", summarySheet))

			w := &sheetWriter{f: wb}
			tt.write(w)
			require.Error(t, w.err)
			assert.Contains(t, w.err.Error(), tt.want)

			first := w.err
			w.cell(summarySheet, 1, 1, "later")
			assert.Same(t, first, w.err, "later writes keep the first error")
			v, err := wb.GetCellValue(summarySheet, "A1")
			require.NoError(t, err)
			assert.Empty(t, v, "writes after a failure are skipped")
		})
	}
}

func TestSummaryWorkbookWritesEveryRegion(t *testing.T) {
	s := newTestStatisticsService()
	report := s.Summarize(context.Background(), statsRecords())

	wb, err := summaryWorkbook(report)
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows(regionsSheet)
	require.NoError(t, err)
	require.Len(t, rows, len(report.Regions)+1)
	assert.Equal(t, []string{"Region", "Average_Rainfall_mm", "Average_Production_Tonnes", "Records"}, rows[0])
	assert.Equal(t, []string{"Goa", "", "1", "1"}, rows[1], "missing rainfall leaves the cell empty")
}

func TestSyncSummariesWithoutDatabase(t *testing.T) {
	s := newTestStatisticsService()
	assert.NoError(t, s.SyncSummaries(context.Background(), RegionSummaries(statsRecords())))

	_, err := s.StoredSummaries(context.Background())
	assert.Error(t, err)
}
