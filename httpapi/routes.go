package httpapi

import (
	"io"
	"log"
	"net/http"

	"enginewatch/sensor"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	routeQuery   = "/sensors/test"
	routeIngest  = "/sensors/ingest"
	routeAnalyze = "/sensors/analyze"
	routeAlerts  = "/alerts"
	routeMetrics = "/metrics"
	routeHealth  = "/healthz"

	maxBodyBytes = 1 << 20
)

// handler contains the HTTP handlers and shared dependencies for the API.
type handler struct {
	service Service
	health  func() any
}

func registerRoutes(router chi.Router, h *handler) {
	router.Get(routeQuery, h.handleQuery)
	router.Post(routeIngest, h.handleIngest)
	router.Post(routeAnalyze, h.handleAnalyze)
	router.Get(routeHealth, h.handleHealth)
}

type ingestResponse struct {
	OK    bool `json:"ok"`
	Count int  `json:"count"`
}

type analyzeResponse struct {
	Severity string `json:"severity"`
}

// handleQuery forces one simulate and returns the store content.
func (h *handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	snap := h.service.Query(r.Context())
	body, err := sensor.Marshal(snap)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "encode snapshot failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleIngest never rejects a body: anything without a usable "sensors"
// array ingests as an empty batch.
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Printf("Ingest: body read from %s failed: %v (treating as empty)", r.RemoteAddr, err)
		body = nil
	}
	n := h.service.Ingest(sensor.DecodeBatch(body))
	h.writeJSON(w, http.StatusOK, ingestResponse{OK: true, Count: n})
}

func (h *handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "read body failed")
		return
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid reading")
		return
	}
	sev := h.service.Classify(r.Context(), sensor.FromMap(raw))
	h.writeJSON(w, http.StatusOK, analyzeResponse{Severity: sev.String()})
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	var payload any = map[string]string{"status": "ok"}
	if h.health != nil {
		payload = h.health()
	}
	h.writeJSON(w, http.StatusOK, payload)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (h *handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message, Code: status})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
