package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/okian/solarbatch/internal/domain/model"
	"github.com/okian/solarbatch/pkg/logger"
)

// InsightsHandler handles building insights batch requests.
type InsightsHandler struct {
	deps         Dependencies
	maxItems     int
	maxBodyBytes int64
	logger       logger.Logger
}

// NewInsightsHandler creates a new batch handler.
func NewInsightsHandler(deps Dependencies, opts ...Option) *InsightsHandler {
	h := &InsightsHandler{deps: deps, maxBodyBytes: defaultMaxBodyBytes}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Named("api")
	}
	return h
}

// HandlePostBatch handles POST /solar/buildingInsights requests.
//
// The batch runs to completion even if the client goes away, so the
// exported artifact always matches what was fetched.
func (h *InsightsHandler) HandlePostBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", ErrBodyTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}

	req, err := model.DecodeBatchRequest(body, h.maxItems)
	if err != nil {
		h.logger.Warn(r.Context(), "rejected batch request", logger.Error(err))
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	id := uuid.NewString()
	w.Header().Set(HeaderBatchID, id)
	ctx := model.WithBatchID(context.WithoutCancel(r.Context()), id)

	rows, artifact, err := h.deps.ProcessBatch(ctx, req.Key, req.Parameters)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, batchErrorResponse{
			errorResponse: errorResponse{Code: "storage_error", Message: err.Error()},
			Rows:          rows,
		})
		return
	}
	if artifact != nil {
		w.Header().Set(HeaderExportPath, artifact.Path)
	}
	writeJSON(w, http.StatusOK, rows)
}
