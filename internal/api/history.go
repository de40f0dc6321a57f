package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"streetroll/pkg/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryHandler serves the recorded route runs.
type HistoryHandler struct {
	runs store.RunStore
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(rs store.RunStore) *HistoryHandler {
	return &HistoryHandler{runs: rs}
}

// HandleList returns the most recent runs, newest first. ?limit= caps the count.
func (h *HistoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	runs, err := h.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to load route history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
