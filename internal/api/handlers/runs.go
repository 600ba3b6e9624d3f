package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/LucaNori/arrranger/internal/models"
	"github.com/sirupsen/logrus"
)

const defaultRunLimit = 50

// RunsHandler lists recent run records
type RunsHandler struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(db *models.Database, logger *logrus.Logger) *RunsHandler {
	return &RunsHandler{
		db:     db,
		logger: logger,
	}
}

// ServeHTTP handles the runs endpoint; ?limit=N bounds the result
func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.db.RunRecords(limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list run records")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}
