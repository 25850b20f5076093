package models

// Column names used in the cleaned and merged delimited files.
const (
	ColRegion     = "Region"
	ColDistrict   = "District"
	ColYear       = "Year"
	ColSeason     = "Season"
	ColCrop       = "Crop"
	ColArea       = "Area_Hectare"
	ColProduction = "Production_Tonnes"
	ColRainfall   = "Rainfall_mm"
)

// CleanRainfallColumns is the header of the cleaned rainfall file.
var CleanRainfallColumns = []string{ColRegion, ColYear, ColRainfall}

// CleanCropColumns is the header of the cleaned crop file.
var CleanCropColumns = []string{ColRegion, ColDistrict, ColYear, ColSeason, ColCrop, ColArea, ColProduction}

// MergedColumns is the header of the merged dataset file.
var MergedColumns = []string{ColRegion, ColDistrict, ColYear, ColSeason, ColCrop, ColArea, ColProduction, ColRainfall}

// RainfallRecord is one region-year row of the rainfall source.
// Missing measurements are nil.
type RainfallRecord struct {
	Region  string       `json:"region" db:"region"`
	Year    int          `json:"year" db:"year"`
	Monthly [12]*float64 `json:"monthly,omitempty" db:"-"`
	Annual  *float64     `json:"annual_mm,omitempty" db:"rainfall_mm"`
	JanFeb  *float64     `json:"jan_feb_mm,omitempty" db:"-"`
	JunSep  *float64     `json:"jun_sep_mm,omitempty" db:"-"`
	OctDec  *float64     `json:"oct_dec_mm,omitempty" db:"-"`
}

// CropRecord is one region/district/year/season/crop row of the production source.
type CropRecord struct {
	Region     string   `json:"region" db:"region"`
	District   string   `json:"district" db:"district"`
	Year       int      `json:"year" db:"year"`
	Season     string   `json:"season" db:"season"`
	Crop       string   `json:"crop" db:"crop"`
	Area       *float64 `json:"area_hectare,omitempty" db:"area_hectare"`
	Production *float64 `json:"production_tonnes,omitempty" db:"production_tonnes"`
}

// MergedRecord is a crop row with the matching annual rainfall attached.
// Rainfall is nil when the rainfall source has no row for (Region, Year).
type MergedRecord struct {
	Region     string   `json:"region" db:"region"`
	District   string   `json:"district" db:"district"`
	Year       int      `json:"year" db:"year"`
	Season     string   `json:"season" db:"season"`
	Crop       string   `json:"crop" db:"crop"`
	Area       *float64 `json:"area_hectare" db:"area_hectare"`
	Production *float64 `json:"production_tonnes" db:"production_tonnes"`
	Rainfall   *float64 `json:"rainfall_mm" db:"rainfall_mm"`
}

// NewMergedRecord left-joins a crop row with an optional annual rainfall value.
func NewMergedRecord(c CropRecord, rainfall *float64) MergedRecord {
	return MergedRecord{
		Region:     c.Region,
		District:   c.District,
		Year:       c.Year,
		Season:     c.Season,
		Crop:       c.Crop,
		Area:       c.Area,
		Production: c.Production,
		Rainfall:   rainfall,
	}
}

// RegionSummary holds per-region averages over the merged dataset.
type RegionSummary struct {
	Region        string   `json:"region" db:"region"`
	AvgRainfall   *float64 `json:"average_rainfall_mm" db:"avg_rainfall_mm"`
	AvgProduction *float64 `json:"average_production_tonnes" db:"avg_production_tonnes"`
	Records       int      `json:"records" db:"records"`
}

// YearlyAggregate is the per (region, year) view used by the comparison charts:
// mean rainfall and total production.
type YearlyAggregate struct {
	Region          string   `json:"region"`
	Year            int      `json:"year"`
	MeanRainfall    *float64 `json:"mean_rainfall_mm"`
	TotalProduction float64  `json:"total_production_tonnes"`
}

// TrendSummary is the recent-window production trend for one region and crop.
// ChangeDefined is false when the first year's total is zero.
type TrendSummary struct {
	Region        string    `json:"region"`
	Crop          string    `json:"crop"`
	Years         []int     `json:"years"`
	Totals        []float64 `json:"totals"`
	Mean          float64   `json:"mean"`
	PercentChange float64   `json:"percent_change"`
	ChangeDefined bool      `json:"change_defined"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
