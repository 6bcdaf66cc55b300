// Package services provides local record mutations for the sync core.
package services

import (
	"sync"
	"time"

	"github.com/medadhere/backend/internal/db"
	apperrors "github.com/medadhere/backend/internal/errors"
	"github.com/medadhere/backend/internal/logging"
	"github.com/medadhere/backend/internal/models"
	"github.com/medadhere/backend/internal/uuid"
)

// Syncer is the part of the orchestrator the service reports mutations to.
type Syncer interface {
	QueueForSync(action models.QueuedAction) models.QueuedAction
	NotifyLocalChange()
}

// Reachability reports whether the remote store is reachable.
type Reachability interface {
	Online() bool
}

// RecordService creates, updates and tombstones local records. Every write
// moves updatedAt strictly forward so incremental push sees it.
type RecordService struct {
	store  *db.RecordStore
	syncer Syncer
	net    Reachability

	mu  sync.Mutex
	now func() time.Time
}

// NewRecordService creates a RecordService. syncer may be nil for local-only use.
func NewRecordService(store *db.RecordStore, syncer Syncer, net Reachability) *RecordService {
	return &RecordService{store: store, syncer: syncer, net: net, now: time.Now}
}

// SetClock overrides the time source.
func (s *RecordService) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *RecordService) nowMillis() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().UnixMilli()
}

// List returns the records of kind, omitting tombstones unless includeDeleted.
func (s *RecordService) List(kind models.Kind, includeDeleted bool) ([]models.Record, error) {
	recs, err := s.store.Load(kind)
	if err != nil {
		return nil, err
	}
	if includeDeleted {
		return recs, nil
	}
	out := make([]models.Record, 0, len(recs))
	for _, r := range recs {
		if !r.Deleted {
			out = append(out, r)
		}
	}
	return out, nil
}

// Get returns one record by local id.
func (s *RecordService) Get(kind models.Kind, id string) (models.Record, error) {
	rec, ok, err := s.store.Get(kind, id)
	if err != nil {
		return models.Record{}, err
	}
	if !ok {
		return models.Record{}, apperrors.New(apperrors.ErrRecordNotFound, string(kind)+" "+id+" not found")
	}
	return rec, nil
}

// Create stores a new record with a fresh id and timestamps.
func (s *RecordService) Create(kind models.Kind, rec models.Record) (models.Record, error) {
	now := s.nowMillis()
	rec = rec.Clone()
	rec.ID = uuid.New()
	rec.CloudID, rec.OwnerID, rec.SyncedAt = "", "", 0
	rec.CreatedAt, rec.UpdatedAt = now, now
	rec.Deleted, rec.DeletedAt = false, 0
	if kind == models.KindADRReport && rec.Timestamp == 0 {
		rec.Timestamp = now
	}
	if err := rec.Validate(kind); err != nil {
		return models.Record{}, apperrors.Wrap(apperrors.ErrRecordInvalid, "invalid "+string(kind)+" record", err)
	}

	err := s.store.Update(kind, func(recs []models.Record) ([]models.Record, error) {
		return append(recs, rec), nil
	})
	if err != nil {
		return models.Record{}, err
	}

	s.report(models.ActionCreate, kind, rec)
	return rec, nil
}

// Update replaces the user-editable fields of record id with those of patch.
// Identity and sync metadata are kept.
func (s *RecordService) Update(kind models.Kind, id string, patch models.Record) (models.Record, error) {
	var out models.Record
	err := s.store.Update(kind, func(recs []models.Record) ([]models.Record, error) {
		i := indexOf(recs, id)
		if i < 0 || recs[i].Deleted {
			return nil, apperrors.New(apperrors.ErrRecordNotFound, string(kind)+" "+id+" not found")
		}
		cur := recs[i]

		next := patch.Clone()
		next.ID, next.CloudID, next.OwnerID = cur.ID, cur.CloudID, cur.OwnerID
		next.CreatedAt, next.SyncedAt = cur.CreatedAt, cur.SyncedAt
		next.Deleted, next.DeletedAt = false, 0
		if next.Timestamp == 0 {
			next.Timestamp = cur.Timestamp
		}
		next.UpdatedAt = monotonic(s.nowMillis(), max(cur.UpdatedAt, cur.SyncedAt))
		if err := next.Validate(kind); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrRecordInvalid, "invalid "+string(kind)+" record", err)
		}

		recs[i] = next
		out = next
		return recs, nil
	})
	if err != nil {
		return models.Record{}, err
	}

	s.report(models.ActionUpdate, kind, out)
	return out, nil
}

// Delete tombstones record id. Deleting a tombstone is a no-op.
func (s *RecordService) Delete(kind models.Kind, id string) (models.Record, error) {
	var out models.Record
	changed := false
	err := s.store.Update(kind, func(recs []models.Record) ([]models.Record, error) {
		i := indexOf(recs, id)
		if i < 0 {
			return nil, apperrors.New(apperrors.ErrRecordNotFound, string(kind)+" "+id+" not found")
		}
		if recs[i].Deleted {
			out = recs[i]
			return recs, nil
		}
		now := monotonic(s.nowMillis(), max(recs[i].UpdatedAt, recs[i].SyncedAt))
		recs[i].Deleted = true
		recs[i].DeletedAt = now
		recs[i].UpdatedAt = now
		out = recs[i]
		changed = true
		return recs, nil
	})
	if err != nil {
		return models.Record{}, err
	}

	if changed {
		s.report(models.ActionDelete, kind, out)
	}
	return out, nil
}

// report queues the mutation while offline, otherwise lets the next push pick it up.
func (s *RecordService) report(t models.ActionType, kind models.Kind, rec models.Record) {
	logging.Debug("Local record changed", map[string]interface{}{
		"action":   string(t),
		"kind":     string(kind),
		"recordId": rec.ID,
	})
	if s.syncer == nil {
		return
	}
	if s.net != nil && !s.net.Online() {
		s.syncer.QueueForSync(models.QueuedAction{Type: t, Kind: kind, RecordID: rec.ID, Data: rec})
		return
	}
	s.syncer.NotifyLocalChange()
}

func indexOf(recs []models.Record, id string) int {
	for i := range recs {
		if recs[i].ID == id {
			return i
		}
	}
	return -1
}

// monotonic returns now, or prev+1 when the clock has not moved past prev.
// Callers pass the later of updatedAt and syncedAt so an edit always sorts
// after the last exchange with the remote store.
func monotonic(now, prev int64) int64 {
	if now <= prev {
		return prev + 1
	}
	return now
}
