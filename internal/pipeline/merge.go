package pipeline

import (
	"fmt"
	"strings"

	"agri-platform/internal/models"
	"agri-platform/internal/normalize"
)

// DedupPolicy decides what happens when the rainfall side has several rows for the
// same (region, year) after normalization.
type DedupPolicy string

const (
	// DedupMean averages the non-missing annual totals of the duplicates.
	DedupMean DedupPolicy = "mean"
	// DedupFirst keeps the first row in file order.
	DedupFirst DedupPolicy = "first"
	// DedupNone keeps every row, so each matching crop row is repeated once per
	// rainfall row.
	DedupNone DedupPolicy = "none"
)

// ParseDedupPolicy validates a policy name. The empty string means DedupMean.
func ParseDedupPolicy(s string) (DedupPolicy, error) {
	switch p := DedupPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DedupMean, nil
	case DedupMean, DedupFirst, DedupNone:
		return p, nil
	default:
		return "", fmt.Errorf("unknown rainfall dedup policy %q (want mean, first or none)", s)
	}
}

// Options configures Merge.
type Options struct {
	Normalizer *normalize.Normalizer
	Dedup      DedupPolicy
}

// MergeStats describes one Merge call.
type MergeStats struct {
	CropRows          int
	RainfallRows      int
	RainfallKeys      int
	DuplicateKeys     int
	Matched           int
	Unmatched         int
	Output            int
	Validation        normalize.Report
	UnmatchedByRegion map[string]int
}

type joinKey struct {
	region string
	year   int
}

// Merge left-joins crop rows onto rainfall rows by (canonical region, year).
// Inputs are not modified. Under DedupMean and DedupFirst every crop row yields
// exactly one merged row; under DedupNone duplicated rainfall keys fan out.
func Merge(crops []models.CropRecord, rainfall []models.RainfallRecord, opt Options) ([]models.MergedRecord, MergeStats) {
	norm := opt.Normalizer
	if norm == nil {
		norm = normalize.New(nil)
	}
	policy := opt.Dedup
	if policy == "" {
		policy = DedupMean
	}

	stats := MergeStats{
		CropRows:          len(crops),
		RainfallRows:      len(rainfall),
		UnmatchedByRegion: make(map[string]int),
	}

	index, rainRegions := indexRainfall(rainfall, norm)
	stats.RainfallKeys = len(index)
	for _, vals := range index {
		if len(vals) > 1 {
			stats.DuplicateKeys++
		}
	}

	cropRegions := make(map[string]bool)
	out := make([]models.MergedRecord, 0, len(crops))
	for _, c := range crops {
		c.Region = norm.Canonical(c.Region)
		cropRegions[c.Region] = true

		vals, ok := index[joinKey{c.Region, c.Year}]
		if !ok {
			stats.Unmatched++
			stats.UnmatchedByRegion[c.Region]++
			out = append(out, models.NewMergedRecord(c, nil))
			continue
		}
		stats.Matched++
		for _, v := range resolve(vals, policy) {
			out = append(out, models.NewMergedRecord(c, v))
		}
	}
	stats.Output = len(out)
	stats.Validation = normalize.Validate("crop", keys(cropRegions), "rainfall", keys(rainRegions))
	return out, stats
}

func indexRainfall(rainfall []models.RainfallRecord, norm *normalize.Normalizer) (map[joinKey][]*float64, map[string]bool) {
	index := make(map[joinKey][]*float64, len(rainfall))
	regions := make(map[string]bool)
	for _, r := range rainfall {
		region := norm.Canonical(r.Region)
		regions[region] = true
		k := joinKey{region, r.Year}
		index[k] = append(index[k], r.Annual)
	}
	return index, regions
}

func resolve(vals []*float64, policy DedupPolicy) []*float64 {
	if len(vals) <= 1 {
		return vals
	}
	switch policy {
	case DedupNone:
		return vals
	case DedupFirst:
		return vals[:1]
	default:
		sum, n := 0.0, 0
		for _, v := range vals {
			if v != nil {
				sum += *v
				n++
			}
		}
		if n == 0 {
			return []*float64{nil}
		}
		return []*float64{models.Float(sum / float64(n))}
	}
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
