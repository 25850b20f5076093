package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"agri-platform/internal/models"
	"agri-platform/internal/services"
	"agri-platform/pkg/logging"
	"agri-platform/pkg/metrics"
)

const (
	chartWidth  = 9 * vg.Inch
	chartHeight = 5 * vg.Inch

	// maxChartRegions caps the number of lines drawn on the yearly charts.
	maxChartRegions = 8
)

var (
	rainColor = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	prodColor = color.RGBA{R: 34, G: 139, B: 34, A: 255}
)

// ChartHandler renders PNG charts of the current selection
type ChartHandler struct {
	explorer *services.ExplorerService
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewChartHandler creates a new chart handler
func NewChartHandler(explorer *services.ExplorerService, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ChartHandler {
	return &ChartHandler{
		explorer: explorer,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

type chartFunc func(records []models.MergedRecord) (*plot.Plot, error)

func (h *ChartHandler) serve(name string, build chartFunc) http.HandlerFunc {
	endpoint := "/charts/" + name + ".png"
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()
		defer func() {
			h.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}()

		query, err := parseQuery(r)
		if err != nil {
			h.metrics.RecordAPIRequest(endpoint, r.Method, "400")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var p *plot.Plot
		records, err := h.explorer.Select(query)
		if errors.Is(err, services.ErrNoDataset) {
			p = placeholder("Dataset not loaded")
		} else if len(records) == 0 {
			p = placeholder("No data for this selection")
		} else if p, err = build(records); err != nil {
			h.logger.Error(ctx, "[CHART_ERROR] Failed to build chart", logging.Fields{
				"chart": name,
				"query": r.URL.RawQuery,
			}, err)
			h.metrics.RecordAPIError("chart_error", endpoint)
			h.metrics.RecordAPIRequest(endpoint, r.Method, "500")
			http.Error(w, "failed to render chart", http.StatusInternalServerError)
			return
		}

		png, err := renderPNG(p)
		if err != nil {
			h.logger.Error(ctx, "[CHART_RENDER_ERROR] Failed to render chart", logging.Fields{
				"chart": name,
			}, err)
			h.metrics.RecordAPIError("chart_error", endpoint)
			h.metrics.RecordAPIRequest(endpoint, r.Method, "500")
			http.Error(w, "failed to render chart", http.StatusInternalServerError)
			return
		}

		h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		w.WriteHeader(http.StatusOK)
		w.Write(png)
	}
}

func renderPNG(p *plot.Plot) ([]byte, error) {
	wt, err := p.WriterTo(chartWidth, chartHeight, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = x
	p.Y.Label.Text = y
	return p
}

func placeholder(msg string) *plot.Plot {
	p := newPlot(msg, "", "")
	p.HideAxes()
	return p
}

// regionBars draws one bar per region from the summary value picked by pick.
func regionBars(records []models.MergedRecord, title, ylabel string, c color.Color, pick func(models.RegionSummary) *float64) (*plot.Plot, error) {
	var values plotter.Values
	var labels []string
	for _, s := range services.RegionSummaries(records) {
		v := pick(s)
		if v == nil {
			continue
		}
		values = append(values, *v)
		labels = append(labels, s.Region)
	}
	if len(values) == 0 {
		return placeholder("No values for this selection"), nil
	}

	p := newPlot(title, "Region", ylabel)
	bars, err := plotter.NewBarChart(values, vg.Points(14))
	if err != nil {
		return nil, fmt.Errorf("failed to build bar chart: %w", err)
	}
	bars.Color = c
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars, plotter.NewGrid())
	p.NominalX(labels...)
	if len(labels) > 6 {
		p.X.Tick.Label.Rotation = math.Pi / 3
		p.X.Tick.Label.YAlign = draw.YCenter
		p.X.Tick.Label.XAlign = draw.XRight
	}
	return p, nil
}

func rainfallChart(records []models.MergedRecord) (*plot.Plot, error) {
	return regionBars(records, "Average Annual Rainfall by Region", "Rainfall (mm)", rainColor,
		func(s models.RegionSummary) *float64 { return s.AvgRainfall })
}

func productionChart(records []models.MergedRecord) (*plot.Plot, error) {
	return regionBars(records, "Average Crop Production by Region", "Production (tonnes)", prodColor,
		func(s models.RegionSummary) *float64 { return s.AvgProduction })
}

func scatterChart(records []models.MergedRecord) (*plot.Plot, error) {
	var pts plotter.XYs
	for _, r := range records {
		if r.Rainfall == nil || r.Production == nil {
			continue
		}
		pts = append(pts, plotter.XY{X: *r.Rainfall, Y: *r.Production})
	}
	if len(pts) == 0 {
		return placeholder("No records with both rainfall and production"), nil
	}

	corr := services.RainfallProductionCorrelation(records)
	title := "Rainfall vs Production"
	if corr.Defined {
		title = fmt.Sprintf("Rainfall vs Production (r = %.2f)", corr.Coefficient)
	}
	p := newPlot(title, "Annual Rainfall (mm)", "Production (tonnes)")
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to build scatter: %w", err)
	}
	s.GlyphStyle.Color = rainColor
	s.GlyphStyle.Radius = vg.Points(2)
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(s, plotter.NewGrid())
	return p, nil
}

// yearlyLines draws one line per region over the per-year aggregates. Only the
// regions with the most years are kept when there are too many.
func yearlyLines(records []models.MergedRecord, title, ylabel string, pick func(models.YearlyAggregate) (float64, bool)) (*plot.Plot, error) {
	series := make(map[string]plotter.XYs)
	for _, a := range services.YearlyAggregates(records) {
		if v, ok := pick(a); ok {
			series[a.Region] = append(series[a.Region], plotter.XY{X: float64(a.Year), Y: v})
		}
	}
	if len(series) == 0 {
		return placeholder("No values for this selection"), nil
	}

	regions := make([]string, 0, len(series))
	for region := range series {
		regions = append(regions, region)
	}
	sort.Slice(regions, func(i, j int) bool {
		if len(series[regions[i]]) != len(series[regions[j]]) {
			return len(series[regions[i]]) > len(series[regions[j]])
		}
		return regions[i] < regions[j]
	})
	if len(regions) > maxChartRegions {
		regions = regions[:maxChartRegions]
		title += fmt.Sprintf(" (top %d regions)", maxChartRegions)
	}
	sort.Strings(regions)

	p := newPlot(title, "Year", ylabel)
	p.Add(plotter.NewGrid())
	var lines []interface{}
	for _, region := range regions {
		lines = append(lines, region, series[region])
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return nil, fmt.Errorf("failed to add lines: %w", err)
	}
	p.Legend.Top = true
	p.X.Tick.Marker = plot.TickerFunc(yearTicks)
	return p, nil
}

func yearTicks(min, max float64) []plot.Tick {
	step := math.Max(1, math.Ceil((max-min)/10))
	var ticks []plot.Tick
	for y := math.Ceil(min); y <= max; y += step {
		ticks = append(ticks, plot.Tick{Value: y, Label: strconv.Itoa(int(y))})
	}
	return ticks
}

func yearlyRainfallChart(records []models.MergedRecord) (*plot.Plot, error) {
	return yearlyLines(records, "Mean Annual Rainfall per Year", "Rainfall (mm)",
		func(a models.YearlyAggregate) (float64, bool) {
			if a.MeanRainfall == nil {
				return 0, false
			}
			return *a.MeanRainfall, true
		})
}

func yearlyProductionChart(records []models.MergedRecord) (*plot.Plot, error) {
	return yearlyLines(records, "Total Production per Year", "Production (tonnes)",
		func(a models.YearlyAggregate) (float64, bool) { return a.TotalProduction, true })
}

// RegisterRoutes registers all chart routes
func (h *ChartHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/charts/rainfall.png", h.serve("rainfall", rainfallChart)).Methods("GET")
	router.HandleFunc("/charts/production.png", h.serve("production", productionChart)).Methods("GET")
	router.HandleFunc("/charts/scatter.png", h.serve("scatter", scatterChart)).Methods("GET")
	router.HandleFunc("/charts/yearly-rainfall.png", h.serve("yearly-rainfall", yearlyRainfallChart)).Methods("GET")
	router.HandleFunc("/charts/yearly-production.png", h.serve("yearly-production", yearlyProductionChart)).Methods("GET")
}
