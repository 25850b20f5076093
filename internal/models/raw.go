package models

import (
	"fmt"
	"strings"

	"agri-platform/internal/tabular"
)

// Raw source layouts. Both sources are headerless.
const (
	RawRainfallColumns = 19 // region, year, 12 months, annual, Jan-Feb, Jun-Sep, Oct-Dec, unused
	RawCropColumns     = 8  // index, region, district, year, season, crop, area, production
)

// RawRainfallRow is a single line of the raw rainfall file.
type RawRainfallRow []string

// RawCropRow is a single line of the raw crop production file.
type RawCropRow []string

// ToRainfall converts a raw rainfall line into a RainfallRecord.
// Measurement cells that do not parse become nil; an unparseable year is an error.
func (r RawRainfallRow) ToRainfall() (*RainfallRecord, error) {
	if len(r) < RawRainfallColumns-1 {
		return nil, &ValidationError{
			Field:   "row",
			Value:   strings.Join(r, ","),
			Message: fmt.Sprintf("invalid rainfall row: expected %d fields, got %d", RawRainfallColumns, len(r)),
		}
	}

	year, ok := tabular.ParseYear(r[1])
	if !ok {
		return nil, &ValidationError{
			Field:   "year",
			Value:   r[1],
			Message: "invalid rainfall year",
		}
	}

	rec := &RainfallRecord{
		Region: strings.TrimSpace(r[0]),
		Year:   year,
		Annual: tabular.ParseNumber(r[14]),
		JanFeb: tabular.ParseNumber(r[15]),
		JunSep: tabular.ParseNumber(r[16]),
		OctDec: tabular.ParseNumber(r[17]),
	}
	for m := 0; m < 12; m++ {
		rec.Monthly[m] = tabular.ParseNumber(r[2+m])
	}
	return rec, nil
}

// ToCrop converts a raw crop line into a CropRecord.
func (r RawCropRow) ToCrop() (*CropRecord, error) {
	if len(r) < RawCropColumns {
		return nil, &ValidationError{
			Field:   "row",
			Value:   strings.Join(r, ","),
			Message: fmt.Sprintf("invalid crop row: expected %d fields, got %d", RawCropColumns, len(r)),
		}
	}

	year, ok := tabular.ParseYear(r[3])
	if !ok {
		return nil, &ValidationError{
			Field:   "year",
			Value:   r[3],
			Message: "invalid crop year",
		}
	}

	return &CropRecord{
		Region:     strings.TrimSpace(r[1]),
		District:   strings.TrimSpace(r[2]),
		Year:       year,
		Season:     strings.TrimSpace(r[4]),
		Crop:       strings.TrimSpace(r[5]),
		Area:       tabular.ParseNumber(r[6]),
		Production: tabular.ParseNumber(r[7]),
	}, nil
}

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
