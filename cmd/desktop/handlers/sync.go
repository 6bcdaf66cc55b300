package handlers

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/medadhere/backend/internal/models"
	syncpkg "github.com/medadhere/backend/internal/sync"
)

// SyncHandler exposes the orchestrator over REST.
type SyncHandler struct {
	orch *syncpkg.Orchestrator
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(orch *syncpkg.Orchestrator) *SyncHandler {
	return &SyncHandler{orch: orch}
}

// =====================================================
// Status and Trigger
// =====================================================

// GetStatus handles GET /api/sync/status.
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.GetSyncStatus())
}

// TriggerSync handles POST /api/sync. It blocks until the cycle finishes.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.SyncNow(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.orch.GetSyncStatus())
}

// QueueAction handles POST /api/sync/queue.
func (h *SyncHandler) QueueAction(w http.ResponseWriter, r *http.Request) {
	var action models.QueuedAction
	if err := decode(r, &action); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if !action.Type.Valid() {
		badRequest(w, "type must be create, update or delete")
		return
	}
	if _, err := models.ParseKind(string(action.Kind)); err != nil {
		badRequest(w, err.Error())
		return
	}
	if action.RecordID == "" && action.Data.ID == "" {
		badRequest(w, "recordId is required")
		return
	}

	writeJSON(w, http.StatusAccepted, h.orch.QueueForSync(action))
}

// =====================================================
// Conflicts
// =====================================================

// ListConflicts handles GET /api/sync/conflicts.
func (h *SyncHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts := h.orch.GetUnresolvedConflicts()
	if conflicts == nil {
		conflicts = []models.UnresolvableConflict{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conflicts": conflicts})
}

// ResolveConflict handles POST /api/sync/conflicts/{id}/resolve.
func (h *SyncHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Choice models.Winner `json:"choice"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	rec, err := h.orch.ResolveConflictManually(r.PathValue("id"), req.Choice)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// =====================================================
// Diagnostics and Config
// =====================================================

// GetDiagnostics handles GET /api/sync/diagnostics.
func (h *SyncHandler) GetDiagnostics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.Diagnostics())
}

// GetLogs handles GET /api/sync/logs?limit=n.
func (h *SyncHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": h.orch.GetRecentLogs(limit)})
}

// ConfigBody is the wire form of the sync config. Durations are milliseconds.
type ConfigBody struct {
	AutoSyncIntervalMs *int64 `json:"autoSyncIntervalMs,omitempty"`
	RetryDelayMs       *int64 `json:"retryDelayMs,omitempty"`
	MaxRetries         *int   `json:"maxRetries,omitempty"`
	BatchSize          *int   `json:"batchSize,omitempty"`
}

func configBody(c syncpkg.Config) ConfigBody {
	interval := c.AutoSyncInterval.Milliseconds()
	delay := c.RetryDelay.Milliseconds()
	return ConfigBody{
		AutoSyncIntervalMs: &interval,
		RetryDelayMs:       &delay,
		MaxRetries:         &c.MaxRetries,
		BatchSize:          &c.BatchSize,
	}
}

// GetConfig handles GET /api/sync/config.
func (h *SyncHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configBody(h.orch.Config()))
}

// UpdateConfig handles PUT /api/sync/config. Omitted fields keep their value.
// maxMillis is the largest millisecond count a time.Duration can hold.
const maxMillis = math.MaxInt64 / int64(time.Millisecond)

// millis converts a non-negative millisecond count without overflowing.
func millis(ms int64) (time.Duration, bool) {
	if ms < 0 || ms > maxMillis {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

func (h *SyncHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigBody
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	cfg := h.orch.Config()
	if req.AutoSyncIntervalMs != nil {
		d, ok := millis(*req.AutoSyncIntervalMs)
		if !ok {
			badRequest(w, "autoSyncIntervalMs out of range")
			return
		}
		cfg.AutoSyncInterval = d
	}
	if req.RetryDelayMs != nil {
		d, ok := millis(*req.RetryDelayMs)
		if !ok {
			badRequest(w, "retryDelayMs out of range")
			return
		}
		cfg.RetryDelay = d
	}
	if req.MaxRetries != nil {
		cfg.MaxRetries = *req.MaxRetries
	}
	if req.BatchSize != nil {
		cfg.BatchSize = *req.BatchSize
	}

	if err := h.orch.SetConfig(cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configBody(h.orch.Config()))
}
