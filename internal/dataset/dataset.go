// Package dataset holds the merged records loaded once at startup.
package dataset

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"agri-platform/internal/models"
	"agri-platform/internal/pipeline"
	"agri-platform/internal/tabular"
)

// Dataset is the read-only merged dataset plus its vocabulary. It is never mutated
// after construction, so it is safe to share across goroutines.
type Dataset struct {
	records  []models.MergedRecord
	regions  []string
	crops    []string
	minYear  int
	maxYear  int
	source   string
	loadedAt time.Time
}

// New builds a Dataset over records. The slice is copied.
func New(records []models.MergedRecord, source string) *Dataset {
	d := &Dataset{
		records:  append([]models.MergedRecord(nil), records...),
		source:   source,
		loadedAt: time.Now().UTC(),
	}

	regions := make(map[string]bool)
	crops := make(map[string]bool)
	for i, r := range d.records {
		if r.Region != "" {
			regions[r.Region] = true
		}
		if r.Crop != "" {
			crops[r.Crop] = true
		}
		if i == 0 || r.Year < d.minYear {
			d.minYear = r.Year
		}
		if i == 0 || r.Year > d.maxYear {
			d.maxYear = r.Year
		}
	}
	d.regions = sortedKeys(regions)
	d.crops = sortedKeys(crops)
	return d
}

// Load reads a merged dataset file.
func Load(path string) (*Dataset, pipeline.ParseStats, error) {
	t, err := tabular.ReadFile(path, tabular.ReadOptions{HasHeader: true})
	if err != nil {
		return nil, pipeline.ParseStats{}, fmt.Errorf("failed to read dataset: %w", err)
	}
	records, stats, err := pipeline.DecodeMerged(t)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to decode dataset: %w", err)
	}
	return New(records, path), stats, nil
}

// Records returns every record. Callers must not modify the returned slice.
func (d *Dataset) Records() []models.MergedRecord { return d.records }

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.records) }

// Source names where the dataset came from.
func (d *Dataset) Source() string { return d.source }

// LoadedAt returns the construction time.
func (d *Dataset) LoadedAt() time.Time { return d.loadedAt }

// Regions returns the sorted distinct regions.
func (d *Dataset) Regions() []string { return append([]string(nil), d.regions...) }

// Crops returns the sorted distinct crops.
func (d *Dataset) Crops() []string { return append([]string(nil), d.crops...) }

// YearRange returns the smallest and largest year. ok is false for an empty dataset.
func (d *Dataset) YearRange() (min, max int, ok bool) {
	if len(d.records) == 0 {
		return 0, 0, false
	}
	return d.minYear, d.maxYear, true
}

// CropsIn returns the sorted distinct crops grown in region.
func (d *Dataset) CropsIn(region string) []string {
	crops := make(map[string]bool)
	for _, r := range d.records {
		if strings.EqualFold(r.Region, region) && r.Crop != "" {
			crops[r.Crop] = true
		}
	}
	return sortedKeys(crops)
}

// Filter selects records. Empty fields match everything; region and crop
// comparisons are case-insensitive.
type Filter struct {
	Regions  []string
	Crops    []string
	FromYear int
	ToYear   int
}

// Matches reports whether r passes the filter.
func (f Filter) Matches(r models.MergedRecord) bool {
	if len(f.Regions) > 0 && !containsFold(f.Regions, r.Region) {
		return false
	}
	if len(f.Crops) > 0 && !containsFold(f.Crops, r.Crop) {
		return false
	}
	if f.FromYear != 0 && r.Year < f.FromYear {
		return false
	}
	if f.ToYear != 0 && r.Year > f.ToYear {
		return false
	}
	return true
}

// Select returns the records matching f in dataset order.
func (d *Dataset) Select(f Filter) []models.MergedRecord {
	var out []models.MergedRecord
	for _, r := range d.records {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
