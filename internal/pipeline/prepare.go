// Package pipeline reconciles the rainfall and crop sources into the merged dataset.
package pipeline

import (
	"fmt"

	"agri-platform/internal/models"
	"agri-platform/internal/tabular"
)

// RowCounts tallies what happened to the rows of one source.
type RowCounts struct {
	Total   int
	Written int
	Failed  int
	Errors  []string
}

func (c *RowCounts) fail(line int, err error) {
	c.Failed++
	if len(c.Errors) < maxRowErrors {
		c.Errors = append(c.Errors, fmt.Sprintf("line %d: %v", line, err))
	}
}

const maxRowErrors = 50

// CleanRainfall projects the headerless 19-column rainfall layout down to
// (Region, Year, Rainfall_mm). Rows that are too short or whose year does not parse
// are dropped; this also removes stray header lines.
func CleanRainfall(raw *tabular.Table) (*tabular.Table, RowCounts) {
	out := &tabular.Table{Header: models.CleanRainfallColumns}
	counts := RowCounts{Total: len(raw.Rows)}
	for i, row := range raw.Rows {
		rec, err := models.RawRainfallRow(row).ToRainfall()
		if err != nil {
			counts.fail(i+1, err)
			continue
		}
		out.Rows = append(out.Rows, []string{
			rec.Region,
			fmt.Sprint(rec.Year),
			tabular.FormatNumber(rec.Annual),
		})
	}
	counts.Written = len(out.Rows)
	return out, counts
}

// CleanCrop projects the headerless 8-column crop layout down to the cleaned crop
// columns, discarding the leading index column.
func CleanCrop(raw *tabular.Table) (*tabular.Table, RowCounts) {
	out := &tabular.Table{Header: models.CleanCropColumns}
	counts := RowCounts{Total: len(raw.Rows)}
	for i, row := range raw.Rows {
		rec, err := models.RawCropRow(row).ToCrop()
		if err != nil {
			counts.fail(i+1, err)
			continue
		}
		out.Rows = append(out.Rows, []string{
			rec.Region,
			rec.District,
			fmt.Sprint(rec.Year),
			rec.Season,
			rec.Crop,
			tabular.FormatNumber(rec.Area),
			tabular.FormatNumber(rec.Production),
		})
	}
	counts.Written = len(out.Rows)
	return out, counts
}
