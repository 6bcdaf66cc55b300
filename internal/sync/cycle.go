package sync

import (
	"context"

	apperrors "github.com/medadhere/backend/internal/errors"
	"github.com/medadhere/backend/internal/logging"
	"github.com/medadhere/backend/internal/models"
	"github.com/medadhere/backend/internal/sync/conflict"
	"github.com/medadhere/backend/internal/sync/queue"
	"github.com/medadhere/backend/internal/uuid"
)

// writeMarks records, per record, the local version written to the remote
// store during the current cycle. Pull uses it to tell our own write apart
// from a change made elsewhere.
type writeMarks map[string]int64

func (m writeMarks) set(kind models.Kind, id string, version int64) {
	m[string(kind)+"/"+id] = version
}

func (m writeMarks) get(kind models.Kind, id string) (int64, bool) {
	v, ok := m[string(kind)+"/"+id]
	return v, ok
}

// replayer applies queued actions to the remote store, writing cloud ids
// back to the local record as soon as they are assigned.
func (o *Orchestrator) replayer(marks writeMarks) queue.Applier {
	return queue.ApplierFunc(func(ctx context.Context, a models.QueuedAction) error {
		switch a.Type {
		case models.ActionCreate:
			if local, ok, err := o.store.Get(a.Kind, a.RecordID); err == nil && ok && local.HasCloudID() {
				return nil
			}
			if err := o.createRemote(ctx, a.Kind, a.RecordID, a.Data); err != nil {
				return err
			}
			marks.set(a.Kind, a.RecordID, a.Data.OrderingTime())
			return nil

		case models.ActionUpdate:
			cloudID := o.cloudIDFor(a)
			var err error
			if cloudID == "" {
				err = o.createRemote(ctx, a.Kind, a.RecordID, a.Data)
			} else {
				err = o.remote.Update(ctx, a.Kind, cloudID, a.Data)
			}
			if err != nil {
				return err
			}
			marks.set(a.Kind, a.RecordID, a.Data.OrderingTime())
			return nil

		case models.ActionDelete:
			cloudID := o.cloudIDFor(a)
			if cloudID == "" {
				return nil
			}
			local, ok, _ := o.store.Get(a.Kind, a.RecordID)
			err := o.remote.Delete(ctx, a.Kind, cloudID)
			if apperrors.Is(err, apperrors.ErrRecordNotFound) {
				if ok && local.Deleted {
					return o.settle(a.Kind, a.RecordID, local.OrderingTime())
				}
				return nil
			}
			if err != nil {
				return err
			}
			if ok && local.Deleted {
				marks.set(a.Kind, a.RecordID, local.OrderingTime())
			}
			return nil
		}
		return apperrors.New(apperrors.ErrInvalid, "unknown action type "+string(a.Type))
	})
}

// cloudIDFor prefers the cloud id on the local record, which may have been
// assigned after the action was queued.
func (o *Orchestrator) cloudIDFor(a models.QueuedAction) string {
	if local, ok, err := o.store.Get(a.Kind, a.RecordID); err == nil && ok && local.HasCloudID() {
		return local.CloudID
	}
	return a.Data.CloudID
}

func (o *Orchestrator) createRemote(ctx context.Context, kind models.Kind, localID string, rec models.Record) error {
	cloudID, err := o.remote.Create(ctx, kind, rec)
	if err != nil {
		return err
	}
	if err := o.store.SetCloudID(kind, localID, cloudID); err != nil {
		if apperrors.Is(err, apperrors.ErrRecordNotFound) {
			logging.Warn("Created remote copy of a record missing locally", map[string]interface{}{
				"kind":     string(kind),
				"recordId": localID,
				"cloudId":  cloudID,
			})
			return nil
		}
		return err
	}
	return nil
}

// settle marks a tombstone whose remote copy no longer exists as synced, so
// it is not pushed again. Nothing changes if the record moved past version.
func (o *Orchestrator) settle(kind models.Kind, id string, version int64) error {
	return o.store.Update(kind, func(recs []models.Record) ([]models.Record, error) {
		for i := range recs {
			if recs[i].ID == id && recs[i].OrderingTime() == version {
				recs[i].SyncedAt = version
			}
		}
		return recs, nil
	})
}

// dirty reports whether rec holds a local change the remote store has not
// seen. A record's syncedAt is the remote stamp of the last exchange, and
// local edits always move updatedAt past it.
func dirty(rec models.Record) bool {
	if !rec.HasCloudID() {
		return !rec.Deleted
	}
	return rec.SyncedAt == 0 || rec.OrderingTime() > rec.SyncedAt
}

// push sends local changes of kind to the remote store in batches. Records
// already written at their current version this cycle are skipped.
func (o *Orchestrator) push(ctx context.Context, kind models.Kind, marks writeMarks) error {
	records, err := o.store.Load(kind)
	if err != nil {
		return err
	}

	var pending []models.Record
	for _, r := range records {
		if !dirty(r) {
			continue
		}
		if v, ok := marks.get(kind, r.ID); ok && v == r.OrderingTime() {
			continue
		}
		pending = append(pending, r)
	}
	if len(pending) == 0 {
		return nil
	}

	batch := o.Config().BatchSize
	for start := 0; start < len(pending); start += batch {
		end := start + batch
		if end > len(pending) {
			end = len(pending)
		}
		for _, rec := range pending[start:end] {
			if err := o.pushOne(ctx, kind, rec, marks); err != nil {
				return err
			}
		}
		logging.Debug("Pushed batch", map[string]interface{}{
			"kind":  string(kind),
			"count": end - start,
			"total": len(pending),
		})
	}
	return nil
}

func (o *Orchestrator) pushOne(ctx context.Context, kind models.Kind, rec models.Record, marks writeMarks) error {
	var err error
	switch {
	case !rec.HasCloudID():
		err = o.createRemote(ctx, kind, rec.ID, rec)
	case rec.Deleted:
		err = o.remote.Delete(ctx, kind, rec.CloudID)
		if apperrors.Is(err, apperrors.ErrRecordNotFound) {
			return o.settle(kind, rec.ID, rec.OrderingTime())
		}
	default:
		err = o.remote.Update(ctx, kind, rec.CloudID, rec)
		if apperrors.Is(err, apperrors.ErrRecordNotFound) {
			// The remote copy is gone; recreate it under a new cloud id.
			err = o.createRemote(ctx, kind, rec.ID, rec)
		}
	}
	if err != nil {
		return err
	}
	marks.set(kind, rec.ID, rec.OrderingTime())
	return nil
}

// pull lists remote records of kind and merges them into the local collection.
//
// A record written this cycle takes the remote copy, which carries the
// remote stamps, unless it was edited again in the meantime. A record whose
// remote copy has not moved since the last exchange is left alone. A clean
// record takes a newer remote copy directly. Only a local change racing a
// remote one goes through the conflict resolver.
func (o *Orchestrator) pull(ctx context.Context, kind models.Kind, ownerID string, marks writeMarks) error {
	remoteRecords, err := o.remote.List(ctx, kind, ownerID)
	if err != nil {
		return err
	}

	var refreshed, merged, inserted int
	err = o.store.Update(kind, func(local []models.Record) ([]models.Record, error) {
		byCloudID := make(map[string]int, len(local))
		for i, r := range local {
			if r.HasCloudID() {
				byCloudID[r.CloudID] = i
			}
		}

		for _, rr := range remoteRecords {
			i, ok := byCloudID[rr.CloudID]
			if !ok {
				if rr.Deleted {
					continue
				}
				rec := rr.Clone()
				rec.ID = uuid.New()
				local = append(local, rec)
				byCloudID[rec.CloudID] = len(local) - 1
				inserted++
				continue
			}

			cur := local[i]
			if v, marked := marks.get(kind, cur.ID); marked {
				if v == cur.OrderingTime() {
					local[i] = adopt(cur, rr)
					refreshed++
				}
				continue
			}
			if cur.SyncedAt != 0 && cur.SyncedAt == rr.SyncedAt {
				continue
			}
			if !dirty(cur) {
				local[i] = adopt(cur, rr)
				refreshed++
				continue
			}

			res := o.resolver.ResolveDetailed(cur, rr, conflict.Options{StorageKey: kind.StorageKey()})
			rec := res.Record
			if res.Winner == models.WinnerLocal {
				// still ahead of the remote copy; goes up next cycle
				rec.SyncedAt = cur.SyncedAt
			}
			local[i] = rec
			merged++
		}
		return local, nil
	})
	if err != nil {
		return err
	}

	if refreshed > 0 || merged > 0 || inserted > 0 {
		logging.Info("Merged remote records", map[string]interface{}{
			"kind":      string(kind),
			"refreshed": refreshed,
			"merged":    merged,
			"inserted":  inserted,
			"remote":    len(remoteRecords),
		})
	}
	return nil
}

// adopt returns the remote copy under the local id.
func adopt(local, remote models.Record) models.Record {
	out := remote.Clone()
	out.ID = local.ID
	if out.CloudID == "" {
		out.CloudID = local.CloudID
	}
	return out
}
