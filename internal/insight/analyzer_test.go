package insight

import (
	"testing"

	"agri-platform/internal/dataset"
	"agri-platform/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func punjabWheat() []models.MergedRecord {
	var recs []models.MergedRecord
	for i, p := range []float64{10, 12, 14, 13, 15, 16} {
		recs = append(recs, models.MergedRecord{Region: "Punjab", Crop: "Wheat", Year: 2015 + i, Production: f(p)})
	}
	return recs
}

func TestTrendPunjabWheat(t *testing.T) {
	a := NewAnalyzer(dataset.New(punjabWheat(), "test"), Options{})

	tr, ok := a.Trend("Punjab", "Wheat")
	require.True(t, ok)
	assert.Equal(t, []int{2015, 2016, 2017, 2018, 2019, 2020}, tr.Years)
	assert.InDelta(t, 13.333, tr.Mean, 0.001)
	assert.True(t, tr.ChangeDefined)
	assert.InDelta(t, 60.0, tr.PercentChange, 1e-9)

	text := FormatTrend(tr)
	assert.Contains(t, text, "Average Production: 13.33 tonnes")
	assert.Contains(t, text, "Change Over Period: +60.00%")
	assert.Contains(t, text, "2015  10.00")
}

func TestTrendSumsPerYearAndKeepsRecentWindow(t *testing.T) {
	var recs []models.MergedRecord
	for y := 2000; y < 2015; y++ {
		recs = append(recs,
			models.MergedRecord{Region: "Kerala", Crop: "Rice", Year: y, Production: f(1)},
			models.MergedRecord{Region: "kerala", Crop: "RICE", Year: y, Production: f(2)},
		)
	}
	recs = append(recs, models.MergedRecord{Region: "Kerala", Crop: "Rice", Year: 2015})

	a := NewAnalyzer(dataset.New(recs, "test"), Options{Window: 10})
	tr, ok := a.Trend("Kerala", "Rice")
	require.True(t, ok)
	require.Len(t, tr.Years, 10)
	assert.Equal(t, 2005, tr.Years[0], "2015 has no production value and is excluded")
	assert.Equal(t, 2014, tr.Years[9])
	for _, total := range tr.Totals {
		assert.Equal(t, 3.0, total)
	}
	assert.Zero(t, tr.PercentChange)
}

func TestTrendSingleYearAndZeroStart(t *testing.T) {
	recs := []models.MergedRecord{
		{Region: "Goa", Crop: "Rice", Year: 2010, Production: f(5)},
		{Region: "Goa", Crop: "Cashew", Year: 2010, Production: f(0)},
		{Region: "Goa", Crop: "Cashew", Year: 2011, Production: f(4)},
	}
	a := NewAnalyzer(dataset.New(recs, "test"), Options{})

	tr, ok := a.Trend("Goa", "Rice")
	require.True(t, ok)
	assert.True(t, tr.ChangeDefined)
	assert.Zero(t, tr.PercentChange)

	tr, ok = a.Trend("Goa", "Cashew")
	require.True(t, ok)
	assert.False(t, tr.ChangeDefined)
	assert.Contains(t, FormatTrend(tr), "n/a (first-year production is zero)")

	_, ok = a.Trend("Goa", "Wheat")
	assert.False(t, ok)
}

func TestDetect(t *testing.T) {
	recs := []models.MergedRecord{
		{Region: "Goa", Crop: "Rice"},
		{Region: "Bengal", Crop: "Wheat"},
		{Region: "West Bengal", Crop: "Rice"},
		{Region: "Punjab", Crop: "Wheat"},
	}
	ds := dataset.New(recs, "test")

	tests := []struct {
		name     string
		mode     MatchMode
		question string
		want     Detection
	}{
		{name: "both", question: "How has wheat production changed in Punjab?", want: Detection{Region: "Punjab", Crop: "Wheat"}},
		{name: "longest wins", question: "rice in west bengal", want: Detection{Region: "West Bengal", Crop: "Rice"}},
		{name: "token mode ignores partial words", question: "goats in punjab", want: Detection{Region: "Punjab"}},
		{name: "substring mode matches partial words", mode: MatchSubstring, question: "goats and wheat", want: Detection{Region: "Goa", Crop: "Wheat"}},
		{name: "nothing", question: "what is the weather like", want: Detection{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalyzer(ds, Options{Mode: tt.mode})
			assert.Equal(t, tt.want, a.Detect(tt.question))
		})
	}
}

func TestDetectTieBreaksAlphabetically(t *testing.T) {
	ds := dataset.New([]models.MergedRecord{{Region: "Assam", Crop: "Jute"}, {Region: "Bihar", Crop: "Jute"}}, "test")
	a := NewAnalyzer(ds, Options{})
	assert.Equal(t, "Assam", a.Detect("bihar or assam jute").Region)
}

func TestSummarize(t *testing.T) {
	recs := append(punjabWheat(), models.MergedRecord{Region: "Kerala", Crop: "Coconut", Year: 2010})
	a := NewAnalyzer(dataset.New(recs, "test"), Options{})

	s := a.Summarize("Tell me about wheat in punjab")
	require.NotNil(t, s.Trend)
	assert.Equal(t, "region_and_crop", s.Detection.Outcome())
	assert.Contains(t, s.Text, "Wheat Production in Punjab")

	s = a.Summarize("How is Punjab doing?")
	assert.Nil(t, s.Trend)
	assert.Equal(t, FallbackText, s.Text)
	assert.Equal(t, "region_only", s.Detection.Outcome())

	s = a.Summarize("coconut in kerala")
	assert.Equal(t, "No data found for Coconut in Kerala.", s.Text)
}

func TestParseMatchMode(t *testing.T) {
	m, err := ParseMatchMode("")
	require.NoError(t, err)
	assert.Equal(t, MatchToken, m)

	m, err = ParseMatchMode("Substring")
	require.NoError(t, err)
	assert.Equal(t, MatchSubstring, m)

	_, err = ParseMatchMode("fuzzy")
	assert.Error(t, err)
}
