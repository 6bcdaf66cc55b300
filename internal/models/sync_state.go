package models

import "time"

// ActionType is the kind of mutation captured by a QueuedAction.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
)

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// QueuedAction is an intent to mutate a remote record, captured while offline.
type QueuedAction struct {
	ID         string     `json:"id"`
	Type       ActionType `json:"type"`
	Kind       Kind       `json:"kind"`
	RecordID   string     `json:"recordId"`
	Data       Record     `json:"data"`
	Timestamp  int64      `json:"timestamp"`
	RetryCount int        `json:"retryCount,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
}

// SyncStatus is the orchestrator's state.
type SyncStatus string

const (
	StatusSynced  SyncStatus = "synced"
	StatusSyncing SyncStatus = "syncing"
	StatusPending SyncStatus = "pending"
	StatusError   SyncStatus = "error"
	StatusOffline SyncStatus = "offline"
)

// SyncState is the snapshot published to status observers.
type SyncState struct {
	Status         SyncStatus `json:"status"`
	LastSyncTime   int64      `json:"lastSyncTime,omitempty"`
	PendingChanges int        `json:"pendingChanges"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
}

// LastSyncTimeTime returns LastSyncTime as time.Time; zero if never synced.
func (s SyncState) LastSyncTimeTime() time.Time {
	if s.LastSyncTime == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.LastSyncTime)
}

// PersistedSyncState is the durable subset of SyncState.
type PersistedSyncState struct {
	LastSyncTime   int64 `json:"lastSyncTime"`
	PendingChanges int   `json:"pendingChanges"`
}
