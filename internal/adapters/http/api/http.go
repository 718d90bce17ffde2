// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/solarbatch/internal/adapters/csvexport"
	"github.com/okian/solarbatch/internal/domain/flatten"
	"github.com/okian/solarbatch/internal/domain/model"
	"github.com/okian/solarbatch/pkg/logger"
)

// Response headers set by the batch endpoint.
const (
	HeaderBatchID    = "X-Batch-ID"
	HeaderExportPath = "X-Export-Path"
)

// defaultMaxBodyBytes bounds the request body of a batch.
const defaultMaxBodyBytes = 8 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// ProcessBatch runs one batch and returns its rows in input order.
	// A non-nil error is a storage failure; the rows are still valid.
	ProcessBatch(ctx context.Context, apiKey string, coords []model.CoordinateRequest) ([]*flatten.Row, *csvexport.Artifact, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	insightsHandler *InsightsHandler
}

// Option applies a configuration option to the Server.
type Option func(*InsightsHandler)

// WithMaxBatchSize limits the number of coordinates per request. Zero disables the limit.
func WithMaxBatchSize(n int) Option {
	return func(h *InsightsHandler) {
		if n >= 0 {
			h.maxItems = n
		}
	}
}

// WithMaxBodyBytes limits the request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(h *InsightsHandler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithLogger sets a custom logger for the handlers.
func WithLogger(l logger.Logger) Option {
	return func(h *InsightsHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		insightsHandler: NewInsightsHandler(deps, opts...),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/solar/buildingInsights", MetricsMiddleware(s.insightsHandler.HandlePostBatch, "building_insights"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// batchErrorResponse is returned when a batch ran but its export failed.
type batchErrorResponse struct {
	errorResponse
	Rows []*flatten.Row `json:"rows"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
