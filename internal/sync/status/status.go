// Package status publishes the current sync state to observers and persists
// the durable subset across sessions.
package status

import (
	"sync"

	"github.com/medadhere/backend/internal/db"
	"github.com/medadhere/backend/internal/logging"
	"github.com/medadhere/backend/internal/models"
)

// StorageKey is the key-value key holding the persisted state.
const StorageKey = "medadhere_sync_state"

// Publisher holds the SyncState and fans out changes.
type Publisher struct {
	kv db.KeyValueStore

	mu        sync.RWMutex
	state     models.SyncState
	listeners map[int]func(models.SyncState)
	nextID    int
}

// NewPublisher restores lastSyncTime and pendingChanges from kv.
// The initial status is pending when changes are outstanding, otherwise synced.
func NewPublisher(kv db.KeyValueStore) *Publisher {
	p := &Publisher{
		kv:        kv,
		listeners: make(map[int]func(models.SyncState)),
		state:     models.SyncState{Status: models.StatusSynced},
	}

	var persisted models.PersistedSyncState
	if _, err := db.GetJSON(kv, StorageKey, &persisted); err != nil {
		logging.Warn("Ignoring persisted sync state", map[string]interface{}{"error": err.Error()})
	} else {
		p.state.LastSyncTime = persisted.LastSyncTime
		p.state.PendingChanges = persisted.PendingChanges
	}
	if p.state.PendingChanges > 0 {
		p.state.Status = models.StatusPending
	}
	return p
}

// Get returns a snapshot of the current state.
func (p *Publisher) Get() models.SyncState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Update applies fn to the state, persists it and notifies subscribers.
// The write happens under the lock so storage never lags behind an older state.
func (p *Publisher) Update(fn func(*models.SyncState)) models.SyncState {
	p.mu.Lock()
	prev := p.state
	fn(&p.state)
	next := p.state
	if prev.LastSyncTime != next.LastSyncTime || prev.PendingChanges != next.PendingChanges {
		p.persist(next)
	}
	cbs := make([]func(models.SyncState), 0, len(p.listeners))
	for _, cb := range p.listeners {
		cbs = append(cbs, cb)
	}
	p.mu.Unlock()

	if prev != next {
		for _, cb := range cbs {
			cb(next)
		}
	}
	return next
}

// Subscribe registers cb for state changes. The returned func unsubscribes.
func (p *Publisher) Subscribe(cb func(models.SyncState)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = cb
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *Publisher) persist(s models.SyncState) {
	err := db.SetJSON(p.kv, StorageKey, models.PersistedSyncState{
		LastSyncTime:   s.LastSyncTime,
		PendingChanges: s.PendingChanges,
	})
	if err != nil {
		logging.Warn("Failed to persist sync state", map[string]interface{}{"error": err.Error()})
	}
}
