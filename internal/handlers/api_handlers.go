package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"agri-platform/internal/repository"
	"agri-platform/internal/services"
	"agri-platform/internal/voice"
	"agri-platform/pkg/logging"
	"agri-platform/pkg/metrics"
)

// APIHandler handles the dashboard's JSON endpoints
type APIHandler struct {
	explorer  *services.ExplorerService
	qa        *services.QAService
	assistant *voice.Assistant
	maxUpload int64
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewAPIHandler creates a new API handler. assistant may be nil when voice is disabled.
func NewAPIHandler(
	explorer *services.ExplorerService,
	qa *services.QAService,
	assistant *voice.Assistant,
	maxUpload int64,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *APIHandler {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &APIHandler{
		explorer:  explorer,
		qa:        qa,
		assistant: assistant,
		maxUpload: maxUpload,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// AskRequest is the body of POST /api/ask.
type AskRequest struct {
	Question       string `json:"question"`
	IncludeSources bool   `json:"include_sources"`
}

// AskResponse is returned by the ask endpoints.
type AskResponse struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Region    string `json:"region,omitempty"`
	Crop      string `json:"crop,omitempty"`
	Failed    bool   `json:"failed"`
	AudioURL  string `json:"audio_url,omitempty"`
	AudioNote string `json:"audio_note,omitempty"`
}

// parseQuery reads the shared region, crop and year-range parameters. region and
// crop may repeat to compare several at once.
func parseQuery(r *http.Request) (services.RecordQuery, error) {
	q := r.URL.Query()
	query := services.RecordQuery{
		Regions: queryList(q["region"]),
		Crops:   queryList(q["crop"]),
	}
	var err error
	if query.FromYear, err = parseYearParam(q.Get("from")); err != nil {
		return query, errors.New("invalid from, expected a four-digit year")
	}
	if query.ToYear, err = parseYearParam(q.Get("to")); err != nil {
		return query, errors.New("invalid to, expected a four-digit year")
	}
	if query.FromYear != 0 && query.ToYear != 0 && query.FromYear > query.ToYear {
		return query, errors.New("from must not be after to")
	}
	return query, nil
}

// queryList trims repeated values and drops blanks and duplicates.
func queryList(values []string) []string {
	var out []string
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		out = append(out, v)
	}
	return out
}

func parseYearParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	y, err := strconv.Atoi(s)
	if err != nil || y < 1000 || y > 9999 {
		return 0, errors.New("invalid year")
	}
	return y, nil
}

// GetRegions handles GET /api/regions
func (h *APIHandler) GetRegions(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/regions", time.Now())
	h.ok(w, r, "/api/regions", map[string]interface{}{"regions": h.explorer.Regions()})
}

// GetCrops handles GET /api/crops
func (h *APIHandler) GetCrops(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/crops", time.Now())
	regions := queryList(r.URL.Query()["region"])
	h.ok(w, r, "/api/crops", map[string]interface{}{"regions": regions, "crops": h.explorer.Crops(regions...)})
}

// GetRecords handles GET /api/records
func (h *APIHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/records", time.Now())

	query, err := parseQuery(r)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	// Default pagination
	page := 1
	limit := 100
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 1000 {
		limit = l
	}
	if page > math.MaxInt/limit {
		h.sendError(w, r, "page out of range", http.StatusBadRequest)
		return
	}
	query.Limit = limit
	query.Offset = (page - 1) * limit

	records, total, err := h.explorer.GetRecords(ctx, query)
	if err != nil {
		h.fail(w, r, "/api/records", "failed to retrieve records", err)
		return
	}

	h.ok(w, r, "/api/records", PaginatedResponse{
		Data:       records,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	})
}

// GetInsights handles GET /api/insights
func (h *APIHandler) GetInsights(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/insights", time.Now())

	query, err := parseQuery(r)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	ov, err := h.explorer.Insights(r.Context(), query)
	if err != nil {
		h.fail(w, r, "/api/insights", "failed to build insights", err)
		return
	}
	h.ok(w, r, "/api/insights", ov)
}

// GetYearly handles GET /api/yearly
func (h *APIHandler) GetYearly(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/yearly", time.Now())

	query, err := parseQuery(r)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	yearly, err := h.explorer.Yearly(query)
	if err != nil {
		h.fail(w, r, "/api/yearly", "failed to aggregate records", err)
		return
	}
	h.ok(w, r, "/api/yearly", map[string]interface{}{"data": yearly})
}

// GetTrend handles GET /api/trend
func (h *APIHandler) GetTrend(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/trend", time.Now())

	region := strings.TrimSpace(r.URL.Query().Get("region"))
	crop := strings.TrimSpace(r.URL.Query().Get("crop"))
	if region == "" || crop == "" {
		h.sendError(w, r, "region and crop are required", http.StatusBadRequest)
		return
	}

	trend, ok, err := h.explorer.Trend(region, crop)
	if err != nil {
		h.fail(w, r, "/api/trend", "failed to compute trend", err)
		return
	}
	if !ok {
		h.sendError(w, r, "No data found for "+crop+" in "+region+".", http.StatusNotFound)
		return
	}
	h.ok(w, r, "/api/trend", trend)
}

// GetSummary handles GET /api/summary. With ?region= it returns that region only.
func (h *APIHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/summary", time.Now())

	if region := strings.TrimSpace(r.URL.Query().Get("region")); region != "" {
		sum, err := h.explorer.RegionSummary(r.Context(), region)
		if err != nil {
			h.fail(w, r, "/api/summary", "failed to summarize region", err)
			return
		}
		h.ok(w, r, "/api/summary", sum)
		return
	}

	summaries, err := h.explorer.Summaries(r.Context())
	if err != nil {
		h.fail(w, r, "/api/summary", "failed to summarize", err)
		return
	}
	h.ok(w, r, "/api/summary", map[string]interface{}{
		"regions": summaries,
		"wettest": services.WettestRegion(summaries),
	})
}

// Ask handles POST /api/ask
func (h *APIHandler) Ask(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/ask", time.Now())

	var req AskRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		h.sendError(w, r, "invalid JSON body", http.StatusBadRequest)
		return
	}

	ans := h.qa.Ask(r.Context(), req.Question, services.AskOptions{IncludeSources: req.IncludeSources})
	h.ok(w, r, "/api/ask", AskResponse{
		Question: ans.Question,
		Answer:   ans.Text,
		Region:   ans.Detection.Region,
		Crop:     ans.Detection.Crop,
		Failed:   ans.Failed,
	})
}

// GetVoiceStatus handles GET /api/voice
func (h *APIHandler) GetVoiceStatus(w http.ResponseWriter, r *http.Request) {
	caps := voice.Capabilities{Reason: "voice features are disabled"}
	if h.assistant != nil {
		caps = h.assistant.Capabilities()
	}
	h.ok(w, r, "/api/voice", caps)
}

// VoiceAsk handles POST /api/voice/ask with a multipart "audio" file.
func (h *APIHandler) VoiceAsk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/voice/ask", time.Now())

	if h.assistant == nil || !h.assistant.Capabilities().Available() {
		h.sendError(w, r, "voice input is not available on this server", http.StatusNotImplemented)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.sendError(w, r, "invalid or oversized audio upload", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		h.sendError(w, r, "missing audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil || len(audio) == 0 {
		h.sendError(w, r, "empty audio file", http.StatusBadRequest)
		return
	}
	mime := header.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = "audio/wav"
	}

	question, err := h.assistant.Transcribe(ctx, audio, mime)
	if err != nil {
		h.logger.Error(ctx, "[API_VOICE_TRANSCRIBE_ERROR] Transcription failed", logging.Fields{
			"bytes": len(audio),
			"mime":  mime,
		}, err)
		h.metrics.RecordAPIError("transcription_error", "/api/voice/ask")
		if errors.Is(err, context.DeadlineExceeded) {
			h.sendError(w, r, "speech recognition timed out", http.StatusGatewayTimeout)
			return
		}
		h.sendError(w, r, "could not understand the audio", http.StatusBadGateway)
		return
	}

	ans := h.qa.Ask(ctx, question, services.AskOptions{IncludeSources: r.FormValue("include_sources") == "true"})
	resp := AskResponse{
		Question: ans.Question,
		Answer:   ans.Text,
		Region:   ans.Detection.Region,
		Crop:     ans.Detection.Crop,
		Failed:   ans.Failed,
	}
	if h.assistant.Capabilities().TextToSpeech && !ans.Failed {
		id, err := h.assistant.Speak(ctx, ans.Text)
		if err != nil {
			h.logger.Warn(ctx, "[API_VOICE_TTS_ERROR] Speech synthesis failed", logging.Fields{
				"error": err.Error(),
			})
			resp.AudioNote = "audio reply unavailable"
		} else {
			resp.AudioURL = "/api/voice/audio/" + id
		}
	}
	h.ok(w, r, "/api/voice/ask", resp)
}

// GetVoiceAudio handles GET /api/voice/audio/{id}
func (h *APIHandler) GetVoiceAudio(w http.ResponseWriter, r *http.Request) {
	if h.assistant == nil {
		h.sendError(w, r, "voice output is not available on this server", http.StatusNotImplemented)
		return
	}
	clip, ok := h.assistant.Clip(mux.Vars(r)["id"])
	if !ok {
		h.sendError(w, r, "audio clip not found", http.StatusNotFound)
		return
	}
	h.metrics.RecordAPIRequest("/api/voice/audio", r.Method, "200")
	w.Header().Set("Content-Type", clip.MIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(clip.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(clip.Data)
}

// HealthCheck handles GET /health
func (h *APIHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"dataset":   h.explorer.Loaded(),
	}
	if ds := h.explorer.Dataset(); ds != nil {
		status["records"] = ds.Len()
		status["source"] = ds.Source()
		if at, ok := h.explorer.LoadedAt(); ok {
			status["loaded_at"] = at.Format(time.RFC3339)
		}
	} else {
		status["status"] = "degraded"
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

func (h *APIHandler) observe(endpoint string, start time.Time) {
	h.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (h *APIHandler) ok(w http.ResponseWriter, r *http.Request, endpoint string, data interface{}) {
	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.sendJSON(w, data, http.StatusOK)
}

// fail maps a service error to a response. A missing dataset is a 503, an unknown
// resource a 404, anything else a 500.
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, endpoint, message string, err error) {
	if errors.Is(err, services.ErrNoDataset) {
		h.sendError(w, r, "dataset not loaded; run the pipeline and restart the server", http.StatusServiceUnavailable)
		return
	}
	var notFound *repository.NotFoundError
	if errors.As(err, &notFound) {
		h.sendError(w, r, "no data found for "+notFound.ID, http.StatusNotFound)
		return
	}
	h.logger.Error(r.Context(), "[API_ERROR] Request failed", logging.Fields{
		"endpoint": endpoint,
		"query":    r.URL.RawQuery,
	}, err)
	h.metrics.RecordAPIError("internal_error", endpoint)
	h.sendError(w, r, message, http.StatusInternalServerError)
}

// sendJSON sends a JSON response
func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	sendJSON(w, data, statusCode)
}

// sendError sends an error response
func (h *APIHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

func sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// RegisterRoutes registers all JSON API routes
func (h *APIHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/regions", h.GetRegions).Methods("GET")
	router.HandleFunc("/api/crops", h.GetCrops).Methods("GET")
	router.HandleFunc("/api/records", h.GetRecords).Methods("GET")
	router.HandleFunc("/api/insights", h.GetInsights).Methods("GET")
	router.HandleFunc("/api/yearly", h.GetYearly).Methods("GET")
	router.HandleFunc("/api/trend", h.GetTrend).Methods("GET")
	router.HandleFunc("/api/summary", h.GetSummary).Methods("GET")
	router.HandleFunc("/api/ask", h.Ask).Methods("POST")
	router.HandleFunc("/api/voice", h.GetVoiceStatus).Methods("GET")
	router.HandleFunc("/api/voice/ask", h.VoiceAsk).Methods("POST")
	router.HandleFunc("/api/voice/audio/{id}", h.GetVoiceAudio).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
