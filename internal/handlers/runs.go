package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/inventar-eval/internal/storage"
)

func (h *Handler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	store, ok := h.storeOrError(w)
	if !ok {
		return
	}

	limit := 50
	if value := r.URL.Query().Get("limit"); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			h.writeError(w, "Invalid limit: "+err.Error(), http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := store.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, runs)
}

func (h *Handler) HandleRunDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	store, ok := h.storeOrError(w)
	if !ok {
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	report, err := store.Get(r.Context(), runID)
	if errors.Is(err, storage.ErrRunNotFound) {
		h.writeError(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, report)
}
