package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/LucaNori/arrranger/internal/models"
	"github.com/sirupsen/logrus"
)

// StatusHandler reports per-instance backup state
type StatusHandler struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		db:     db,
		logger: logger,
	}
}

// InstanceStatus summarizes one instance for the status endpoint
type InstanceStatus struct {
	Name         string     `json:"name"`
	Kind         string     `json:"kind"`
	ItemCount    int        `json:"item_count"`
	SnapshotAt   *time.Time `json:"snapshot_at,omitempty"`
	LastAction   string     `json:"last_action,omitempty"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	LastRunError string     `json:"last_run_error,omitempty"`
}

// StatusResponse represents the status response
type StatusResponse struct {
	Instances []InstanceStatus `json:"instances"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	instances, err := h.db.Instances()
	if err != nil {
		h.logger.WithError(err).Error("Failed to list instances")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := StatusResponse{Instances: make([]InstanceStatus, 0, len(instances))}
	for _, inst := range instances {
		status := InstanceStatus{
			Name: inst.Name,
			Kind: string(inst.Kind),
		}

		if snap, err := h.db.LatestSnapshot(inst.Name); err == nil {
			status.ItemCount = len(snap.Items)
			status.SnapshotAt = &snap.CapturedAt
		} else if !models.IsNotFound(err) {
			h.logger.WithError(err).Error("Failed to load snapshot")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if run, err := h.db.LastRun(inst.Name); err == nil && run != nil {
			status.LastAction = string(run.Action)
			status.LastRunAt = &run.StartedAt
			status.LastRunError = run.Error
		}

		response.Instances = append(response.Instances, status)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
