// Package handlers provides HTTP handlers for training and scoring.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/finz/cashflow-risk/internal/modules/artifacts"
	"github.com/finz/cashflow-risk/internal/services"
	"github.com/rs/zerolog"
)

// maxBatchSize caps the business IDs accepted by one batch request
const maxBatchSize = 1000

// RiskService is the subset of services.RiskService the handlers need
type RiskService interface {
	Train(ctx context.Context) (*services.TrainResponse, error)
	Score(ctx context.Context, businessID string) (*services.ScoreResponse, error)
	ScoreBatch(ctx context.Context, businessIDs []string) []services.BatchItem
	LatestModel(ctx context.Context) (*artifacts.ModelArtifact, error)
}

// Handler handles risk HTTP requests
type Handler struct {
	service RiskService
	log     zerolog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(service RiskService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "risk").Logger(),
	}
}

// ScoreRequest is the body of POST /api/score
type ScoreRequest struct {
	BusinessID string `json:"business_id"`
}

// BatchScoreRequest is the body of POST /api/score/batch
type BatchScoreRequest struct {
	BusinessIDs []string `json:"business_ids"`
}

// HandleTrain handles POST /api/train
func (h *Handler) HandleTrain(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Train(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Training failed")
		return
	}
	h.writeData(w, resp)
}

// HandleScore handles POST /api/score
func (h *Handler) HandleScore(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	if req.BusinessID == "" {
		h.writeError(w, http.StatusBadRequest, "business_id is required")
		return
	}

	resp, err := h.service.Score(r.Context(), req.BusinessID)
	if err != nil {
		h.writeServiceError(w, err, "Scoring failed")
		return
	}
	h.writeData(w, resp)
}

// HandleScoreBatch handles POST /api/score/batch.
// Per-business failures are reported inline; the request itself succeeds.
func (h *Handler) HandleScoreBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.BusinessIDs) > maxBatchSize {
		h.writeError(w, http.StatusBadRequest, "Too many business_ids")
		return
	}

	items := h.service.ScoreBatch(r.Context(), req.BusinessIDs)

	failed := 0
	for _, item := range items {
		if item.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		h.log.Warn().Int("failed", failed).Int("total", len(items)).Msg("Batch scoring had failures")
	}

	h.writeData(w, items)
}

// HandleLatestModel handles GET /api/models/latest
func (h *Handler) HandleLatestModel(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.service.LatestModel(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to load model")
		return
	}
	h.writeData(w, artifact)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, msg string) {
	var schemaErr *domain.SchemaError
	switch {
	case errors.As(err, &schemaErr):
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   schemaErr.Error(),
			"missing": schemaErr.Missing,
			"found":   schemaErr.Found,
		})
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConfiguration):
		h.log.Error().Err(err).Msg(msg)
		h.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		h.log.Error().Err(err).Msg(msg)
		h.writeError(w, http.StatusInternalServerError, msg)
	}
}

func (h *Handler) writeData(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
