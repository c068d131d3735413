package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pegut0/ClassificadorSomIA/internal/classifier"
	"github.com/pegut0/ClassificadorSomIA/internal/config"
	"github.com/pegut0/ClassificadorSomIA/internal/metrics"
	"github.com/pegut0/ClassificadorSomIA/internal/pipeline"
)

const (
	serviceName    = "classificador-som"
	serviceVersion = "1.0.0"

	// multipart field carrying the clip
	audioField = "audio"
)

// Messages returned to clients. Internal error detail is only logged.
const (
	msgModelNotLoaded  = "Modelo não está carregado."
	msgNoAudio         = "Nenhum dado de áudio recebido."
	msgFeatureFailure  = "Falha ao processar as features."
	msgProcessFailure  = "Falha ao processar o arquivo de audio no servidor."
	msgPayloadTooLarge = "Arquivo de áudio excede o tamanho máximo permitido."
)

// Engine classifies raw audio bytes
type Engine interface {
	Classify(ctx context.Context, data []byte) (pipeline.Verdict, error)
	Ready() error
	GetStats() pipeline.Stats
}

// ModelStats exposes model client statistics
type ModelStats interface {
	GetStats() classifier.ClientStats
}

// HTTPServer serves the prediction endpoint plus monitoring endpoints
type HTTPServer struct {
	server       *http.Server
	handler      http.Handler
	logger       *slog.Logger
	config       *config.Config
	engine       Engine
	model        ModelStats
	metrics      *metrics.Metrics
	gatherer     prometheus.Gatherer
	maxBodyBytes int64

	startTime time.Time
}

// Options contains optional HTTP server collaborators
type Options struct {
	Model    ModelStats          // model client statistics for /stats, may be nil
	Metrics  *metrics.Metrics    // may be nil
	Gatherer prometheus.Gatherer // source for /metrics, defaults to the global registry
}

// predictResponse is the body of a successful /predict call
type predictResponse struct {
	Prediction string `json:"prediction"`
	Confidence string `json:"confidence"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config, engine Engine, opts Options) *HTTPServer {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:       logger,
		config:       appConfig,
		engine:       engine,
		model:        opts.Model,
		metrics:      opts.Metrics,
		gatherer:     opts.Gatherer,
		maxBodyBytes: cfg.MaxBodyBytes,
		startTime:    time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.GetReadTimeoutDuration(),
		WriteTimeout: cfg.GetWriteTimeoutDuration(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/predict", h.withMetrics("/predict", h.handlePredict))

	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/api", h.withMetrics("/api", h.handleAPIDoc))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
		slog.Int64("max_body_bytes", h.maxBodyBytes),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handlePredict implements the /predict endpoint. The clip is either the raw
// request body or the "audio" field of a multipart form.
func (h *HTTPServer) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", requestID)

	if err := h.engine.Ready(); err != nil {
		h.logger.Error("Prediction refused, model unavailable",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, msgModelNotLoaded)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.logger.Warn("Payload too large",
				slog.String("request_id", requestID),
				slog.Int64("limit", maxErr.Limit))
			writeError(w, http.StatusRequestEntityTooLarge, msgPayloadTooLarge)
			return
		}
		h.logger.Warn("Failed to read request body",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, msgNoAudio)
		return
	}

	data, err := extractAudio(r.Header.Get("Content-Type"), body)
	if err != nil {
		h.logger.Warn("Invalid multipart request",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, msgNoAudio)
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, msgNoAudio)
		return
	}

	ctx := pipeline.WithRequestID(r.Context(), requestID)
	verdict, err := h.engine.Classify(ctx, data)
	if err != nil {
		h.logger.Error("Prediction failed",
			slog.String("request_id", requestID),
			slog.String("kind", string(pipeline.KindOf(err))),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, errorMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, predictResponse{
		Prediction: verdict.Label,
		Confidence: verdict.ConfidenceString(),
	})
}

// extractAudio returns the clip bytes from a raw or multipart body
func extractAudio(contentType string, body []byte) ([]byte, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return body, nil
	}

	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("multipart body without boundary")
	}

	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read multipart body: %w", err)
		}

		if part.FormName() == audioField {
			data, err := io.ReadAll(part)
			part.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to read audio field: %w", err)
			}
			return data, nil
		}
		part.Close()
	}
}

// errorMessage maps a pipeline failure to its client message
func errorMessage(err error) string {
	switch pipeline.KindOf(err) {
	case pipeline.KindModelUnavailable:
		return msgModelNotLoaded
	case pipeline.KindFeature:
		return msgFeatureFailure
	default:
		return msgProcessFailure
	}
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, code := "healthy", http.StatusOK
	model := map[string]interface{}{"status": "available"}
	if err := h.engine.Ready(); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		model = map[string]interface{}{
			"status": "unavailable",
			"error":  err.Error(),
		}
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]interface{}{
			"model": model,
		},
	}

	writeJSON(w, code, health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c := h.config
	sanitizedConfig := map[string]interface{}{
		"http": map[string]interface{}{
			"port":           c.HTTP.Port,
			"address":        c.HTTP.Address,
			"max_body_bytes": c.HTTP.MaxBodyBytes,
		},
		"audio": map[string]interface{}{
			"sample_rate": c.Audio.SampleRate,
			"duration":    c.Audio.Duration,
		},
		"features": map[string]interface{}{
			"fft_size":   c.Features.FFTSize,
			"hop_length": c.Features.HopLength,
			"num_mels":   c.Features.NumMels,
			"low_freq":   c.Features.LowFreq,
			"high_freq":  c.Features.HighFreq,
			"top_db":     c.Features.TopDB,
		},
		"gates": map[string]interface{}{
			"silence":      c.Gates.Silence,
			"stationarity": c.Gates.Stationarity,
			"clarity":      c.Gates.Clarity,
		},
		"model": map[string]interface{}{
			"name":           c.Model.Name,
			"timeout":        c.Model.Timeout,
			"max_retries":    c.Model.MaxRetries,
			"max_concurrent": c.Model.MaxConcurrent,
			"classes":        c.Model.Classes,
			// endpoint omitted, it may embed credentials
		},
		"labels": map[string]interface{}{
			"unrecognized": c.Labels.Unrecognized,
			"translations": c.Labels.Translations,
		},
		"logging": map[string]interface{}{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
			"output": c.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"pipeline":  h.engine.GetStats(),
	}
	if h.model != nil {
		stats["model"] = h.model.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleAPIDoc implements the /api endpoint with API documentation
func (h *HTTPServer) handleAPIDoc(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Sound Classification Service",
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":         "Landing page",
			"GET /api":      "API documentation",
			"POST /predict": "Classify an audio clip (raw body or multipart field 'audio')",
			"GET /health":   "Service health check",
			"GET /config":   "Get service configuration",
			"GET /stats":    "Get service statistics",
			"GET /metrics":  "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

// handleRoot implements the / landing page
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<h1>Servidor de Classificação de Som está no ar!</h1>")
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
