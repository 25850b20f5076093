package pipeline

import (
	"fmt"
	"strconv"

	"agri-platform/internal/models"
	"agri-platform/internal/tabular"
)

// Header aliases accepted on cleaned and merged files. The IMD subdivision export
// uses SUBDIVISION/YEAR/ANNUAL; older merged files use State.
var columnAliases = map[string][]string{
	models.ColRegion:     {"State", "Subdivision", "State_Name"},
	models.ColDistrict:   {"District_Name"},
	models.ColYear:       {"Crop_Year"},
	models.ColArea:       {"Area"},
	models.ColProduction: {"Production"},
	models.ColRainfall:   {"Annual", "Rainfall"},
}

// ParseStats reports rows dropped and cells that failed coercion while decoding.
type ParseStats struct {
	Rows             int
	DroppedYear      int
	CoercionFailures map[string]int
}

// datedRows keeps the rows whose year cell parses and returns their years.
func (s *ParseStats) datedRows(rows [][]string, yearCol int) ([][]string, []int) {
	kept := make([][]string, 0, len(rows))
	years := make([]int, 0, len(rows))
	for _, row := range rows {
		year, ok := tabular.ParseYear(row[yearCol])
		if !ok {
			s.DroppedYear++
			continue
		}
		kept = append(kept, row)
		years = append(years, year)
	}
	return kept, years
}

// numeric coerces one column of rows and counts its failures under column.
func (s *ParseStats) numeric(rows [][]string, col int, column string) []*float64 {
	cells := make([]string, len(rows))
	for i, row := range rows {
		cells[i] = row[col]
	}
	values, failed := tabular.CoerceColumn(cells)
	if failed > 0 {
		if s.CoercionFailures == nil {
			s.CoercionFailures = make(map[string]int)
		}
		s.CoercionFailures[column] += failed
	}
	return values
}

// DecodeRainfall reads cleaned rainfall rows. Region names are returned as written;
// normalization happens in Merge.
func DecodeRainfall(t *tabular.Table) ([]models.RainfallRecord, ParseStats, error) {
	idx, err := t.RequireColumns(models.CleanRainfallColumns, columnAliases)
	if err != nil {
		return nil, ParseStats{}, fmt.Errorf("rainfall file: %w", err)
	}
	proj, short := t.Project(idx, models.CleanRainfallColumns)

	stats := ParseStats{Rows: len(t.Rows), DroppedYear: len(short)}
	rows, years := stats.datedRows(proj.Rows, 1)
	annual := stats.numeric(rows, 2, models.ColRainfall)

	out := make([]models.RainfallRecord, len(rows))
	for i, row := range rows {
		out[i] = models.RainfallRecord{Region: row[0], Year: years[i], Annual: annual[i]}
	}
	return out, stats, nil
}

// DecodeCrop reads cleaned crop rows.
func DecodeCrop(t *tabular.Table) ([]models.CropRecord, ParseStats, error) {
	idx, err := t.RequireColumns(models.CleanCropColumns, columnAliases)
	if err != nil {
		return nil, ParseStats{}, fmt.Errorf("crop file: %w", err)
	}
	proj, short := t.Project(idx, models.CleanCropColumns)

	stats := ParseStats{Rows: len(t.Rows), DroppedYear: len(short)}
	rows, years := stats.datedRows(proj.Rows, 2)
	area := stats.numeric(rows, 5, models.ColArea)
	production := stats.numeric(rows, 6, models.ColProduction)

	out := make([]models.CropRecord, len(rows))
	for i, row := range rows {
		out[i] = models.CropRecord{
			Region:     row[0],
			District:   row[1],
			Year:       years[i],
			Season:     row[3],
			Crop:       row[4],
			Area:       area[i],
			Production: production[i],
		}
	}
	return out, stats, nil
}

// EncodeMerged renders merged records as a table with the merged header.
func EncodeMerged(records []models.MergedRecord) *tabular.Table {
	t := &tabular.Table{Header: models.MergedColumns, Rows: make([][]string, 0, len(records))}
	for _, r := range records {
		t.Rows = append(t.Rows, []string{
			r.Region,
			r.District,
			strconv.Itoa(r.Year),
			r.Season,
			r.Crop,
			tabular.FormatNumber(r.Area),
			tabular.FormatNumber(r.Production),
			tabular.FormatNumber(r.Rainfall),
		})
	}
	return t
}

// DecodeMerged reads a merged dataset file back into records, applying the same
// year and numeric coercion used when it was produced.
func DecodeMerged(t *tabular.Table) ([]models.MergedRecord, ParseStats, error) {
	idx, err := t.RequireColumns(models.MergedColumns, columnAliases)
	if err != nil {
		return nil, ParseStats{}, fmt.Errorf("merged file: %w", err)
	}
	proj, short := t.Project(idx, models.MergedColumns)

	stats := ParseStats{Rows: len(t.Rows), DroppedYear: len(short)}
	rows, years := stats.datedRows(proj.Rows, 2)
	area := stats.numeric(rows, 5, models.ColArea)
	production := stats.numeric(rows, 6, models.ColProduction)
	rainfall := stats.numeric(rows, 7, models.ColRainfall)

	out := make([]models.MergedRecord, len(rows))
	for i, row := range rows {
		out[i] = models.MergedRecord{
			Region:     row[0],
			District:   row[1],
			Year:       years[i],
			Season:     row[3],
			Crop:       row[4],
			Area:       area[i],
			Production: production[i],
			Rainfall:   rainfall[i],
		}
	}
	return out, stats, nil
}
