// Package insight turns a free-text question into a local data summary: it detects
// the region and crop mentioned and computes the recent production trend.
package insight

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"agri-platform/internal/dataset"
	"agri-platform/internal/models"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat"
)

// MatchMode selects how vocabulary entries are found in a question.
type MatchMode string

const (
	// MatchToken requires the entry's words to appear as whole, contiguous words.
	MatchToken MatchMode = "token"
	// MatchSubstring accepts any case-insensitive substring occurrence, so "Goa"
	// also matches inside "Goat".
	MatchSubstring MatchMode = "substring"
)

// DefaultWindow is the number of most recent years in a trend.
const DefaultWindow = 10

// ParseMatchMode validates a mode name. The empty string means MatchToken.
func ParseMatchMode(s string) (MatchMode, error) {
	switch m := MatchMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MatchToken, nil
	case MatchToken, MatchSubstring:
		return m, nil
	default:
		return "", fmt.Errorf("unknown match mode %q (want token or substring)", s)
	}
}

// Options configures an Analyzer.
type Options struct {
	Mode   MatchMode
	Window int
}

// Detection is what Detect found in a question. Empty fields were not detected.
type Detection struct {
	Region string `json:"region,omitempty"`
	Crop   string `json:"crop,omitempty"`
}

// Outcome labels the detection for logs and metrics.
func (d Detection) Outcome() string {
	switch {
	case d.Region != "" && d.Crop != "":
		return "region_and_crop"
	case d.Region != "":
		return "region_only"
	case d.Crop != "":
		return "crop_only"
	default:
		return "none"
	}
}

// Analyzer answers questions against one dataset. It holds no mutable state.
type Analyzer struct {
	ds      *dataset.Dataset
	mode    MatchMode
	window  int
	regions []vocabEntry
	crops   []vocabEntry
}

type vocabEntry struct {
	name   string
	lower  string
	tokens []string
}

// NewAnalyzer prepares the detection vocabulary for ds.
func NewAnalyzer(ds *dataset.Dataset, opt Options) *Analyzer {
	if opt.Mode == "" {
		opt.Mode = MatchToken
	}
	if opt.Window <= 0 {
		opt.Window = DefaultWindow
	}
	return &Analyzer{
		ds:      ds,
		mode:    opt.Mode,
		window:  opt.Window,
		regions: buildVocab(ds.Regions()),
		crops:   buildVocab(ds.Crops()),
	}
}

// Window returns the trend window in years.
func (a *Analyzer) Window() int { return a.window }

func buildVocab(names []string) []vocabEntry {
	out := make([]vocabEntry, 0, len(names))
	for _, n := range names {
		toks := tokenize(n)
		if len(toks) == 0 {
			continue
		}
		out = append(out, vocabEntry{name: n, lower: strings.ToLower(n), tokens: toks})
	}
	return out
}

// Detect finds the region and crop named in question. When several entries match,
// the longest wins and ties go to the alphabetically first.
func (a *Analyzer) Detect(question string) Detection {
	lower := strings.ToLower(question)
	qtoks := tokenize(question)
	return Detection{
		Region: a.best(a.regions, lower, qtoks),
		Crop:   a.best(a.crops, lower, qtoks),
	}
}

func (a *Analyzer) best(vocab []vocabEntry, lower string, qtoks []string) string {
	best := ""
	for _, e := range vocab {
		var hit bool
		if a.mode == MatchSubstring {
			hit = strings.Contains(lower, e.lower)
		} else {
			hit = containsSequence(qtoks, e.tokens)
		}
		if !hit {
			continue
		}
		if best == "" || len(e.name) > len(best) || (len(e.name) == len(best) && e.name < best) {
			best = e.name
		}
	}
	return best
}

// Trend sums production per year for region and crop over the most recent window
// of years that have at least one production value. ok is false when no such year
// exists.
func (a *Analyzer) Trend(region, crop string) (summary *models.TrendSummary, ok bool) {
	totals := make(map[int]float64)
	f := dataset.Filter{Regions: []string{region}, Crops: []string{crop}}
	for _, r := range a.ds.Records() {
		if r.Production == nil || !f.Matches(r) {
			continue
		}
		totals[r.Year] += *r.Production
	}
	if len(totals) == 0 {
		return nil, false
	}

	years := make([]int, 0, len(totals))
	for y := range totals {
		years = append(years, y)
	}
	sort.Ints(years)
	if len(years) > a.window {
		years = years[len(years)-a.window:]
	}

	t := &models.TrendSummary{Region: region, Crop: crop, Years: years, ChangeDefined: true}
	for _, y := range years {
		t.Totals = append(t.Totals, totals[y])
	}
	t.Mean = stat.Mean(t.Totals, nil)
	if len(t.Totals) > 1 {
		first, last := t.Totals[0], t.Totals[len(t.Totals)-1]
		if first == 0 {
			t.ChangeDefined = false
		} else {
			t.PercentChange = (last - first) / first * 100
		}
	}
	return t, true
}

// Summary is the local analysis of one question.
type Summary struct {
	Detection Detection
	Trend     *models.TrendSummary
	Text      string
}

// Summarize detects the region and crop in question and renders the trend text, or
// the fallback text when either is missing.
func (a *Analyzer) Summarize(question string) Summary {
	det := a.Detect(question)
	s := Summary{Detection: det}
	if det.Region == "" || det.Crop == "" {
		s.Text = FallbackText
		return s
	}
	trend, ok := a.Trend(det.Region, det.Crop)
	if !ok {
		s.Text = NoDataText(det.Region, det.Crop)
		return s
	}
	s.Trend = trend
	s.Text = FormatTrend(trend)
	return s
}

// FallbackText is used when the question does not name both a region and a crop.
const FallbackText = "🔍 Could not find a clear match for crop or state.\n" +
	"The model will still try to answer the question based on general data context.\n"

// NoDataText is used when the region and crop were detected but have no production data.
func NoDataText(region, crop string) string {
	return fmt.Sprintf("No data found for %s in %s.", crop, region)
}

// FormatTrend renders a trend as the per-year series, its mean and the change over
// the period.
func FormatTrend(t *models.TrendSummary) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s Production in %s (Last Decade):\n", t.Crop, t.Region)
	b.WriteString("Year  Production_Tonnes\n")
	for i, y := range t.Years {
		fmt.Fprintf(&b, "%d  %s\n", y, p.Sprintf("%.2f", t.Totals[i]))
	}
	b.WriteString("\n")
	p.Fprintf(&b, "Average Production: %.2f tonnes\n", t.Mean)
	if t.ChangeDefined {
		fmt.Fprintf(&b, "Change Over Period: %+.2f%%\n", t.PercentChange)
	} else {
		b.WriteString("Change Over Period: n/a (first-year production is zero)\n")
	}
	return b.String()
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsSequence(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, tok := range needle {
			if haystack[i+j] != tok {
				continue outer
			}
		}
		return true
	}
	return false
}
