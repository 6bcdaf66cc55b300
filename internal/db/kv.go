package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/medadhere/backend/internal/errors"
)

// KeyValueStore is a synchronous key→document store.
type KeyValueStore interface {
	// Get returns the stored value and whether the key exists.
	Get(key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(key string, value []byte) error
}

// SQLiteKV stores documents in the kv table.
type SQLiteKV struct {
	db  *DB
	now func() time.Time
}

// NewSQLiteKV creates a KeyValueStore over a migrated database.
func NewSQLiteKV(db *DB) *SQLiteKV {
	return &SQLiteKV{db: db, now: time.Now}
}

// Get implements KeyValueStore.
func (s *SQLiteKV) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrStorageUnavailable, "read "+key, err)
	}
	return value, true, nil
}

// Set implements KeyValueStore.
func (s *SQLiteKV) Set(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UnixMilli())
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "write "+key, err)
	}
	return nil
}

// MemoryKV is a process-local KeyValueStore.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV creates an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

// Get implements KeyValueStore.
func (m *MemoryKV) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set implements KeyValueStore.
func (m *MemoryKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// GetJSON decodes the document at key into v. It reports false when the key is absent.
// Undecodable documents return a CORRUPTED_DATA error.
func GetJSON(kv KeyValueStore, key string, v interface{}) (bool, error) {
	raw, ok, err := kv.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, apperrors.Wrap(apperrors.ErrCorruptedData, "malformed document "+key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(kv KeyValueStore, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return kv.Set(key, raw)
}
