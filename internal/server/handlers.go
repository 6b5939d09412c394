package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/shahar-caura/salestalk/internal/intent"
)

// Classifier is the part of *intent.Classifier the API needs.
type Classifier interface {
	Classify(ctx context.Context, req intent.Request) (*intent.Result, error)
}

// Handlers serves the JSON API.
type Handlers struct {
	Classifier Classifier
	Taxonomy   intent.Source
	Version    string
	StartTime  time.Time
	Logger     *slog.Logger
}

func (h *Handlers) Classify(w http.ResponseWriter, r *http.Request) {
	var req intent.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get(RequestIDHeader)
	}

	res, err := h.Classifier.Classify(r.Context(), req)
	if err != nil {
		status := classifyStatus(err)
		if status >= http.StatusInternalServerError {
			h.Logger.Warn("classify failed", "status", status, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	w.Header().Set(RequestIDHeader, res.Metadata.RequestID)
	writeJSON(w, http.StatusOK, res)
}

// classifyStatus maps classifier errors onto HTTP status codes.
func classifyStatus(err error) int {
	switch {
	case errors.Is(err, intent.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, intent.ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) GetHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:          "ok",
		Version:         h.Version,
		TaxonomyVersion: h.Taxonomy.Current().ID(),
		UptimeSeconds:   int(time.Since(h.StartTime).Seconds()),
	})
}

func (h *Handlers) GetTaxonomy(w http.ResponseWriter, r *http.Request) {
	var section *string
	if err := runtime.BindQueryParameter("form", true, false, "section", r.URL.Query(), &section); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s := ""
	if section != nil {
		s = *section
	}
	writeJSON(w, http.StatusOK, describe(h.Taxonomy.Current(), s))
}
