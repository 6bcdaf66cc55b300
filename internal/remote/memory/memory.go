// Package memory provides an in-process remote backend used by the demo
// server and by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/medadhere/backend/internal/models"
	"github.com/medadhere/backend/internal/remote"
	"github.com/medadhere/backend/internal/uuid"
)

type bucket struct {
	owner string
	kind  models.Kind
}

// Backend keeps records in maps keyed by owner, kind and cloud id.
type Backend struct {
	mu   sync.RWMutex
	data map[bucket]map[string]models.Record
	now  func() time.Time
}

var _ remote.Backend = (*Backend)(nil)

// New creates an empty backend.
func New() *Backend {
	return &Backend{
		data: make(map[bucket]map[string]models.Record),
		now:  time.Now,
	}
}

// SetClock overrides the server clock.
func (b *Backend) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

// Create implements remote.Backend.
func (b *Backend) Create(_ context.Context, ownerID string, kind models.Kind, rec models.Record) (models.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now().UnixMilli()
	out := rec.Clone()
	out.CloudID = uuid.New()
	out.OwnerID = ownerID
	out.UpdatedAt = now
	out.SyncedAt = now
	if out.Deleted && out.DeletedAt == 0 {
		out.DeletedAt = now
	}

	key := bucket{ownerID, kind}
	if b.data[key] == nil {
		b.data[key] = make(map[string]models.Record)
	}
	b.data[key][out.CloudID] = out
	return out.Clone(), nil
}

// List implements remote.Backend. Records are ordered by updatedAt then cloud id.
func (b *Backend) List(_ context.Context, ownerID string, kind models.Kind) ([]models.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	recs := make([]models.Record, 0, len(b.data[bucket{ownerID, kind}]))
	for _, r := range b.data[bucket{ownerID, kind}] {
		recs = append(recs, r.Clone())
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].UpdatedAt != recs[j].UpdatedAt {
			return recs[i].UpdatedAt < recs[j].UpdatedAt
		}
		return recs[i].CloudID < recs[j].CloudID
	})
	return recs, nil
}

// Update implements remote.Backend.
func (b *Backend) Update(_ context.Context, ownerID string, kind models.Kind, cloudID string, rec models.Record) (models.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := bucket{ownerID, kind}
	if _, ok := b.data[key][cloudID]; !ok {
		return models.Record{}, remote.ErrNotFound
	}

	now := b.now().UnixMilli()
	out := rec.Clone()
	out.CloudID = cloudID
	out.OwnerID = ownerID
	out.UpdatedAt = now
	out.SyncedAt = now
	b.data[key][cloudID] = out
	return out.Clone(), nil
}

// Delete implements remote.Backend.
func (b *Backend) Delete(_ context.Context, ownerID string, kind models.Kind, cloudID string) (models.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := bucket{ownerID, kind}
	cur, ok := b.data[key][cloudID]
	if !ok {
		return models.Record{}, remote.ErrNotFound
	}

	now := b.now().UnixMilli()
	cur.Deleted = true
	cur.DeletedAt = now
	cur.UpdatedAt = now
	cur.SyncedAt = now
	b.data[key][cloudID] = cur
	return cur.Clone(), nil
}

// Count returns the number of stored records for owner and kind, tombstones included.
func (b *Backend) Count(ownerID string, kind models.Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data[bucket{ownerID, kind}])
}
