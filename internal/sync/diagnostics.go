package sync

import (
	"github.com/medadhere/backend/internal/logging"
	"github.com/medadhere/backend/internal/models"
)

// Diagnostics is a point-in-time view of the sync core for tooling.
type Diagnostics struct {
	Status        models.SyncState              `json:"status"`
	Config        Config                        `json:"config"`
	Online        bool                          `json:"online"`
	SignedIn      bool                          `json:"signedIn"`
	Syncing       bool                          `json:"syncing"`
	Cycles        int64                         `json:"cycles"`
	RetryCount    int                           `json:"retryCount"`
	Queue         []models.QueuedAction         `json:"queue"`
	QueueStats    map[string]int                `json:"queueStats"`
	QueueDegraded bool                          `json:"queueDegraded"`
	Conflicts     models.ConflictStatistics     `json:"conflicts"`
	ConflictLog   []models.ConflictLogEntry     `json:"conflictLog"`
	Unresolved    []models.UnresolvableConflict `json:"unresolved"`
	RecentLogs    []logging.LogEntry            `json:"recentLogs"`
}

// DiagnosticsLogSize is how many recent log entries Diagnostics includes.
const DiagnosticsLogSize = 50

// Diagnostics collects the current state of every sync component.
func (o *Orchestrator) Diagnostics() Diagnostics {
	o.mu.Lock()
	cfg, retries := o.cfg, o.retries
	o.mu.Unlock()

	return Diagnostics{
		Status:        o.status.Get(),
		Config:        cfg,
		Online:        o.network.Online(),
		SignedIn:      o.session.CurrentUser() != nil,
		Syncing:       o.syncing.Load(),
		Cycles:        o.cycles.Load(),
		RetryCount:    retries,
		Queue:         o.queue.List(),
		QueueStats:    o.queue.GetStats(),
		QueueDegraded: o.queue.Degraded(),
		Conflicts:     o.resolver.GetStatistics(),
		ConflictLog:   o.resolver.GetConflictLog(),
		Unresolved:    o.resolver.GetUnresolvedConflicts(),
		RecentLogs:    logging.Recent(DiagnosticsLogSize),
	}
}
