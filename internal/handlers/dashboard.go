package handlers

import (
	"bytes"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"agri-platform/internal/services"
	"agri-platform/internal/voice"
	"agri-platform/pkg/logging"
	"agri-platform/pkg/metrics"
)

// DashboardHandler serves the HTML dashboard
type DashboardHandler struct {
	explorer  *services.ExplorerService
	assistant *voice.Assistant
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewDashboardHandler creates a new dashboard handler. assistant may be nil.
func NewDashboardHandler(explorer *services.ExplorerService, assistant *voice.Assistant, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *DashboardHandler {
	return &DashboardHandler{
		explorer:  explorer,
		assistant: assistant,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

type dashboardView struct {
	Loaded      bool
	Source      string
	Records     int
	Regions     []string
	Crops       []string
	MinYear     int
	MaxYear     int
	Query       services.RecordQuery
	ChartQuery  template.URL
	Overview    *services.Overview
	Voice       voice.Capabilities
	SourcesText string
	Error       string
}

// Index handles GET /
func (h *DashboardHandler) Index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/").Observe(time.Since(start).Seconds())
	}()

	view := dashboardView{
		Loaded:      h.explorer.Loaded(),
		Regions:     h.explorer.Regions(),
		SourcesText: services.SourcesText,
	}
	if h.assistant != nil {
		view.Voice = h.assistant.Capabilities()
	} else {
		view.Voice.Reason = "voice features are disabled"
	}

	query, err := parseQuery(r)
	if err != nil {
		view.Error = err.Error()
		query = services.RecordQuery{}
	}
	view.Query = query
	view.Crops = h.explorer.Crops(query.Regions...)
	view.ChartQuery = template.URL(chartQuery(query))

	if ds := h.explorer.Dataset(); ds != nil {
		view.Source = ds.Source()
		view.Records = ds.Len()
		view.MinYear, view.MaxYear, _ = ds.YearRange()
		if ov, err := h.explorer.Insights(ctx, query); err == nil {
			view.Overview = ov
		}
	}

	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, view); err != nil {
		h.logger.Error(ctx, "[DASHBOARD_ERROR] Failed to render dashboard", logging.Fields{}, err)
		h.metrics.RecordAPIError("template_error", "/")
		h.metrics.RecordAPIRequest("/", r.Method, "500")
		http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
		return
	}
	h.metrics.RecordAPIRequest("/", r.Method, "200")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func chartQuery(q services.RecordQuery) string {
	v := url.Values{}
	for _, region := range q.Regions {
		v.Add("region", region)
	}
	for _, crop := range q.Crops {
		v.Add("crop", crop)
	}
	if q.FromYear != 0 {
		v.Set("from", strconv.Itoa(q.FromYear))
	}
	if q.ToYear != 0 {
		v.Set("to", strconv.Itoa(q.ToYear))
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func fmtFloat(v *float64) string {
	if v == nil {
		return "—"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

var dashboardTemplate = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"num": fmtFloat,
	"has": func(list []string, s string) bool {
		for _, v := range list {
			if strings.EqualFold(v, s) {
				return true
			}
		}
		return false
	},
	"join": func(list []string) string { return strings.Join(list, ", ") },
	"corr": func(c services.Correlation) string {
		if !c.Defined {
			return "n/a"
		}
		return strconv.FormatFloat(c.Coefficient, 'f', 2, 64)
	},
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Agricultural Insights Dashboard</title>
    <style>
        body { font-family: system-ui, sans-serif; margin: 0; background: #f6f8f4; color: #1f2d1f; }
        header { background: #2e6b34; color: #fff; padding: 16px 24px; }
        header small { opacity: .85; }
        main { padding: 16px 24px; max-width: 1200px; }
        section { background: #fff; border-radius: 6px; padding: 16px; margin-bottom: 16px; box-shadow: 0 1px 2px rgba(0,0,0,.08); }
        form.filters label { margin-right: 12px; }
        table { border-collapse: collapse; width: 100%; font-size: 14px; }
        th, td { border-bottom: 1px solid #e3e8e0; padding: 4px 8px; text-align: left; }
        img.chart { max-width: 100%; margin-bottom: 12px; }
        .notice { background: #fff4e5; border-left: 4px solid #f0a020; padding: 8px 12px; }
        .metric { font-size: 28px; font-weight: bold; }
        #answer { white-space: pre-wrap; background: #f0f4ee; padding: 12px; min-height: 2em; }
        .muted { color: #6a7a6a; font-size: 13px; }
    </style>
</head>
<body>
<header>
    <h1>🌾 Agricultural Insights Dashboard</h1>
    <small>IMD rainfall and crop production data from data.gov.in, with Gemini-assisted answers</small>
</header>
<main>
{{if .Error}}<p class="notice">{{.Error}}</p>{{end}}
{{if not .Loaded}}
    <p class="notice">⚠️ Data not loaded. Run the pipeline to produce final_merged_data.csv and restart the server.</p>
{{else}}
    <p class="muted">{{.Records}} records from {{.Source}}, years {{.MinYear}}–{{.MaxYear}}.</p>
{{end}}

<section id="insights">
    <h2>📊 Data Insights</h2>
    <form class="filters" method="get" action="/">
        <label>Regions
            <select name="region" multiple size="6" title="None selected means all regions">
                {{range .Regions}}<option value="{{.}}"{{if has $.Query.Regions .}} selected{{end}}>{{.}}</option>{{end}}
            </select>
        </label>
        <label>Crops
            <select name="crop" multiple size="6" title="None selected means all crops">
                {{range .Crops}}<option value="{{.}}"{{if has $.Query.Crops .}} selected{{end}}>{{.}}</option>{{end}}
            </select>
        </label>
        <label>From <input type="number" name="from" min="{{.MinYear}}" max="{{.MaxYear}}" value="{{if .Query.FromYear}}{{.Query.FromYear}}{{end}}"></label>
        <label>To <input type="number" name="to" min="{{.MinYear}}" max="{{.MaxYear}}" value="{{if .Query.ToYear}}{{.Query.ToYear}}{{end}}"></label>
        <button type="submit">Apply</button>
    </form>
    {{with .Overview}}
    <h3>📍 Overview{{if .Regions}} for {{join .Regions}}{{end}}{{if .Crops}} ({{join .Crops}}){{end}}</h3>
    <p>Correlation (rainfall vs production): <span class="metric">{{corr .Correlation}}</span>
       <span class="muted">over {{.Correlation.Pairs}} records</span></p>
    {{with .Summary}}<p>Average rainfall {{num .AvgRainfall}} mm, average production {{num .AvgProduction}} tonnes.</p>{{end}}
    {{with .Wettest}}<p>Wettest region in view: <strong>{{.Region}}</strong> ({{num .AvgRainfall}} mm).</p>{{end}}
    <table>
        <tr><th>Region</th><th>District</th><th>Year</th><th>Season</th><th>Crop</th><th>Area (ha)</th><th>Production (t)</th><th>Rainfall (mm)</th></tr>
        {{range .Head}}<tr><td>{{.Region}}</td><td>{{.District}}</td><td>{{.Year}}</td><td>{{.Season}}</td><td>{{.Crop}}</td><td>{{num .Area}}</td><td>{{num .Production}}</td><td>{{num .Rainfall}}</td></tr>{{end}}
    </table>
    {{end}}
    <p class="muted">{{.SourcesText}}</p>
</section>

<section id="analytics">
    <h2>📈 Advanced Analytics</h2>
    <img class="chart" alt="Rainfall by region" src="/charts/rainfall.png{{.ChartQuery}}">
    <img class="chart" alt="Production by region" src="/charts/production.png{{.ChartQuery}}">
    <img class="chart" alt="Rainfall vs production" src="/charts/scatter.png{{.ChartQuery}}">
    <img class="chart" alt="Yearly rainfall" src="/charts/yearly-rainfall.png{{.ChartQuery}}">
    <img class="chart" alt="Yearly production" src="/charts/yearly-production.png{{.ChartQuery}}">
</section>

<section id="ask">
    <h2>💬 Ask a Question</h2>
    <form id="ask-form">
        <input type="text" id="question" size="80" placeholder="e.g. How has rice production changed in Kerala?">
        <label><input type="checkbox" id="sources" checked> Include source citations</label>
        <button type="submit">Ask</button>
    </form>
    <div id="answer"></div>
</section>

<section id="voice">
    <h2>🎤 Voice</h2>
    {{if .Voice.Available}}
    <form id="voice-form" enctype="multipart/form-data">
        <input type="file" name="audio" accept="audio/*">
        <button type="submit">Ask by voice</button>
    </form>
    <div id="voice-answer"></div>
    <audio id="voice-audio" controls hidden></audio>
    {{if .Voice.Reason}}<p class="muted">{{.Voice.Reason}}</p>{{end}}
    {{else}}
    <p class="notice">🎙️ Voice features are not supported here: {{.Voice.Reason}}.</p>
    {{end}}
</section>

<section id="about">
    <h2>ℹ️ About</h2>
    <ol>
        <li><strong>Data:</strong> IMD sub-division rainfall and district crop production, cleaned and joined by region and year.</li>
        <li><strong>Insights:</strong> trends are computed locally from the merged dataset.</li>
        <li><strong>Answers:</strong> the local summary is passed to Gemini together with the question.</li>
    </ol>
    <p class="muted">API documentation: <a href="/api/docs">/api/docs</a> · Metrics: <a href="/metrics">/metrics</a></p>
</section>
</main>
<script>
document.getElementById('ask-form').addEventListener('submit', async (e) => {
    e.preventDefault();
    const out = document.getElementById('answer');
    out.textContent = 'Thinking…';
    const res = await fetch('/api/ask', {
        method: 'POST',
        headers: {'Content-Type': 'application/json'},
        body: JSON.stringify({
            question: document.getElementById('question').value,
            include_sources: document.getElementById('sources').checked
        })
    });
    const body = await res.json();
    out.textContent = body.answer || body.message;
});
const vf = document.getElementById('voice-form');
if (vf) {
    vf.addEventListener('submit', async (e) => {
        e.preventDefault();
        const out = document.getElementById('voice-answer');
        out.textContent = 'Listening…';
        const res = await fetch('/api/voice/ask', {method: 'POST', body: new FormData(vf)});
        const body = await res.json();
        out.textContent = body.question ? '🗣 ' + body.question + '\n\n' + body.answer : body.message;
        const player = document.getElementById('voice-audio');
        if (body.audio_url) { player.src = body.audio_url; player.hidden = false; player.play(); }
    });
}
</script>
</body>
</html>`))

// RegisterRoutes registers the dashboard route
func (h *DashboardHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.Index).Methods("GET")
}
