package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/inventar-eval/internal/config"
	"github.com/lehigh-university-libraries/inventar-eval/internal/observability"
	"github.com/lehigh-university-libraries/inventar-eval/internal/storage"
)

// Uploaded tables are limited to 10MB each
const maxUploadSize = 10 * 1024 * 1024

type Handler struct {
	cfg     *config.Config
	store   *storage.RunStore
	metrics *observability.Metrics
}

// New creates the HTTP handlers. store and metrics may be nil.
func New(cfg *config.Config, store *storage.RunStore, metrics *observability.Metrics) *Handler {
	return &Handler{
		cfg:     cfg,
		store:   store,
		metrics: metrics,
	}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

// Run history helpers
func (h *Handler) storeOrError(w http.ResponseWriter) (*storage.RunStore, bool) {
	if h.store == nil {
		h.writeError(w, "Run history is not enabled", http.StatusNotFound)
		return nil, false
	}
	return h.store, true
}
