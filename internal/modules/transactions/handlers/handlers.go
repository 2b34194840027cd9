// Package handlers provides HTTP handlers for transaction ingestion.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/finz/cashflow-risk/internal/modules/transactions"
	"github.com/rs/zerolog"
)

// maxUploadBytes caps an ingested file
const maxUploadBytes = 64 << 20

// Handler handles ingestion HTTP requests
type Handler struct {
	service *transactions.Service
	log     zerolog.Logger
}

// NewHandler creates a new ingestion handler
func NewHandler(service *transactions.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "transactions").Logger(),
	}
}

// HandleIngest handles POST /api/data/ingest.
// Accepts a raw CSV/TSV body or a multipart form with a "file" field.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Missing file field: "+err.Error())
			return
		}
		defer file.Close()
		body = file
	}

	result, err := h.service.Ingest(r.Context(), body)
	if err != nil {
		var schemaErr *domain.SchemaError
		if errors.As(err, &schemaErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":   schemaErr.Error(),
				"missing": schemaErr.Missing,
				"found":   schemaErr.Found,
			})
			return
		}
		h.log.Error().Err(err).Msg("Ingestion failed")
		h.writeError(w, http.StatusInternalServerError, "Ingestion failed: "+err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleListBusinesses handles GET /api/data/businesses
func (h *Handler) HandleListBusinesses(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.BusinessIDs(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list businesses")
		h.writeError(w, http.StatusInternalServerError, "Failed to list businesses")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"business_ids": ids,
			"count":        len(ids),
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
