package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/LucaNori/arrranger/internal/scheduler"
	"github.com/sirupsen/logrus"
)

// TriggerHandler accepts manual backup/sync triggers. The job runs in the
// background through the scheduler's overlap guard, so a manual trigger
// can never interleave with a scheduled run of the same job.
type TriggerHandler struct {
	sched  *scheduler.Scheduler
	logger *logrus.Logger
}

// NewTriggerHandler creates a new trigger handler
func NewTriggerHandler(sched *scheduler.Scheduler, logger *logrus.Logger) *TriggerHandler {
	return &TriggerHandler{
		sched:  sched,
		logger: logger,
	}
}

// Backup handles POST /api/backup/{instance}
func (h *TriggerHandler) Backup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	instance := strings.TrimPrefix(r.URL.Path, "/api/backup/")
	if instance == "" || strings.Contains(instance, "/") {
		http.Error(w, "Instance name required", http.StatusBadRequest)
		return
	}
	withHistory := r.URL.Query().Get("history") == "true"

	h.logger.WithField("instance", instance).Info("Manual backup triggered")
	go h.sched.TriggerBackup(instance, withHistory)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted", "instance": instance})
}

// Sync handles POST /api/sync/{child}
func (h *TriggerHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	child := strings.TrimPrefix(r.URL.Path, "/api/sync/")
	if child == "" || strings.Contains(child, "/") {
		http.Error(w, "Instance name required", http.StatusBadRequest)
		return
	}

	h.logger.WithField("child", child).Info("Manual sync triggered")
	sched := h.sched
	go func() {
		if err := sched.TriggerSync(child); err != nil {
			h.logger.WithField("child", child).WithError(err).Error("Manual sync rejected")
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted", "instance": child})
}
