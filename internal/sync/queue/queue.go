// Package queue provides the durable offline action queue.
// Actions are replayed strictly in insertion order; a failed action stays
// at the head of the queue and halts the drain.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/medadhere/backend/internal/db"
	apperrors "github.com/medadhere/backend/internal/errors"
	"github.com/medadhere/backend/internal/logging"
	"github.com/medadhere/backend/internal/models"
	"github.com/medadhere/backend/internal/uuid"
)

// StorageKey is the key-value key holding the persisted queue.
const StorageKey = "medadhere_offline_queue"

// Applier applies one queued action against the remote store.
type Applier interface {
	Apply(ctx context.Context, action models.QueuedAction) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(ctx context.Context, action models.QueuedAction) error

// Apply implements Applier.
func (f ApplierFunc) Apply(ctx context.Context, action models.QueuedAction) error {
	return f(ctx, action)
}

// ReplayResult summarises one drain.
type ReplayResult struct {
	Applied   int `json:"applied"`
	Remaining int `json:"remaining"`
}

// OfflineQueue is a FIFO of pending mutations persisted to a KeyValueStore.
type OfflineQueue struct {
	kv  db.KeyValueStore
	now func() time.Time

	mu       sync.Mutex
	items    []models.QueuedAction
	degraded bool
	// unread is set while the persisted queue could not be loaded; writes
	// are held back until a read succeeds so those actions are not overwritten.
	unread bool

	// drainMu serialises DrainAndReplay calls.
	drainMu sync.Mutex
}

// New creates a queue and restores any persisted actions.
func New(kv db.KeyValueStore) *OfflineQueue {
	q := &OfflineQueue{kv: kv, now: time.Now}

	var items []models.QueuedAction
	_, err := db.GetJSON(kv, StorageKey, &items)
	switch {
	case apperrors.Is(err, apperrors.ErrCorruptedData):
		logging.Warn("Discarding malformed offline queue", map[string]interface{}{"error": err.Error()})
	case err != nil:
		logging.Warn("Offline queue storage unavailable, using memory only", map[string]interface{}{"error": err.Error()})
		q.degraded = true
		q.unread = true
	default:
		q.items = items
	}

	if len(q.items) > 0 {
		logging.Info("Restored offline queue", map[string]interface{}{"size": len(q.items)})
	}
	return q
}

// SetClock overrides the time source.
func (q *OfflineQueue) SetClock(now func() time.Time) {
	q.now = now
}

// Enqueue appends action and persists the queue. It never fails: when the
// store rejects the write the action is kept in memory for this session.
func (q *OfflineQueue) Enqueue(action models.QueuedAction) models.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	if action.ID == "" {
		action.ID = uuid.New()
	}
	if action.Timestamp == 0 {
		action.Timestamp = q.now().UnixMilli()
	}
	if action.RecordID == "" {
		action.RecordID = action.Data.ID
	}
	action.Data = action.Data.Clone()

	q.items = append(q.items, action)
	q.persistLocked()

	logging.Debug("Enqueued offline action", map[string]interface{}{
		"id":       action.ID,
		"type":     string(action.Type),
		"kind":     string(action.Kind),
		"recordId": action.RecordID,
	})
	return action
}

// DrainAndReplay applies queued actions in FIFO order. Only actions present
// when the drain starts are attempted. A failure increments the action's
// retry count, leaves it at the head and aborts the drain.
func (q *OfflineQueue) DrainAndReplay(ctx context.Context, applier Applier) (ReplayResult, error) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	q.mu.Lock()
	budget := len(q.items)
	q.mu.Unlock()

	var result ReplayResult
	for i := 0; i < budget; i++ {
		if err := ctx.Err(); err != nil {
			result.Remaining = q.Size()
			return result, apperrors.Wrap(apperrors.ErrSyncQueueReplay, "replay interrupted", err)
		}

		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			break
		}
		head := q.items[0]
		q.mu.Unlock()

		if err := applier.Apply(ctx, head); err != nil {
			q.markFailed(head.ID, err)
			result.Remaining = q.Size()
			logging.Warn("Offline action replay failed", map[string]interface{}{
				"id":         head.ID,
				"type":       string(head.Type),
				"kind":       string(head.Kind),
				"retryCount": head.RetryCount + 1,
				"error":      err.Error(),
			})
			return result, apperrors.Wrap(apperrors.ErrSyncQueueReplay, "replay "+string(head.Type)+" "+head.ID, err)
		}

		q.remove(head.ID)
		result.Applied++
	}

	result.Remaining = q.Size()
	if result.Applied > 0 {
		logging.Info("Offline queue replayed", map[string]interface{}{
			"applied":   result.Applied,
			"remaining": result.Remaining,
		})
	}
	return result, nil
}

func (q *OfflineQueue) remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.ID == id {
			q.items = append(q.items[:i:i], q.items[i+1:]...)
			break
		}
	}
	q.persistLocked()
}

func (q *OfflineQueue) markFailed(id string, cause error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].ID == id {
			q.items[i].RetryCount++
			q.items[i].LastError = cause.Error()
			break
		}
	}
	q.persistLocked()
}

// persistLocked writes the queue; failures flip the queue into memory-only mode
// until a later write succeeds.
func (q *OfflineQueue) persistLocked() {
	if q.unread && !q.reloadLocked() {
		q.degraded = true
		return
	}

	items := q.items
	if items == nil {
		items = []models.QueuedAction{}
	}
	if err := db.SetJSON(q.kv, StorageKey, items); err != nil {
		if !q.degraded {
			logging.Warn("Offline queue persistence failed, continuing in memory", map[string]interface{}{"error": err.Error()})
		}
		q.degraded = true
		return
	}
	if q.degraded {
		logging.Info("Offline queue persistence restored")
	}
	q.degraded = false
}

// reloadLocked retries the initial read. Actions persisted by an earlier
// session keep their place ahead of anything enqueued since.
func (q *OfflineQueue) reloadLocked() bool {
	var stored []models.QueuedAction
	_, err := db.GetJSON(q.kv, StorageKey, &stored)
	switch {
	case apperrors.Is(err, apperrors.ErrCorruptedData):
		logging.Warn("Discarding malformed offline queue", map[string]interface{}{"error": err.Error()})
	case err != nil:
		return false
	default:
		q.items = append(stored, q.items...)
		if len(stored) > 0 {
			logging.Info("Restored offline queue", map[string]interface{}{"size": len(stored)})
		}
	}
	q.unread = false
	return true
}

// Degraded reports whether the last write to storage failed.
func (q *OfflineQueue) Degraded() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.degraded
}

// Size returns the number of queued actions.
func (q *OfflineQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// List returns a copy of the queued actions in replay order.
func (q *OfflineQueue) List() []models.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.QueuedAction, len(q.items))
	for i, it := range q.items {
		it.Data = it.Data.Clone()
		out[i] = it
	}
	return out
}

// Clear removes all queued actions.
func (q *OfflineQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.persistLocked()
	logging.Info("Offline queue cleared")
}

// GetStats returns queue statistics.
func (q *OfflineQueue) GetStats() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := map[string]int{
		"total":    len(q.items),
		"create":   0,
		"update":   0,
		"delete":   0,
		"retrying": 0,
	}
	for _, it := range q.items {
		stats[string(it.Type)]++
		if it.RetryCount > 0 {
			stats["retrying"]++
		}
	}
	return stats
}
