package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/medadhere/backend/internal/models"
	"github.com/medadhere/backend/internal/remote"
	"github.com/medadhere/backend/internal/uuid"
)

// Backend stores one row per record. The jsonb payload holds the domain
// fields; server-owned metadata lives in columns.
type Backend struct {
	db  *DB
	now func() time.Time
}

var _ remote.Backend = (*Backend)(nil)

// NewBackend creates a Backend over db.
func NewBackend(db *DB) *Backend {
	return &Backend{db: db, now: time.Now}
}

// SetClock overrides the server clock.
func (b *Backend) SetClock(now func() time.Time) {
	b.now = now
}

// Ping checks connectivity.
func (b *Backend) Ping(ctx context.Context) error {
	return b.db.Pool.Ping(ctx)
}

func encodePayload(rec models.Record) ([]byte, error) {
	p := rec.Clone()
	p.CloudID, p.OwnerID = "", ""
	p.UpdatedAt, p.SyncedAt = 0, 0
	p.Deleted, p.DeletedAt = false, 0
	return json.Marshal(p)
}

// Create implements remote.Backend.
func (b *Backend) Create(ctx context.Context, ownerID string, kind models.Kind, rec models.Record) (models.Record, error) {
	payload, err := encodePayload(rec)
	if err != nil {
		return models.Record{}, err
	}

	out := rec.Clone()
	out.CloudID = uuid.New()
	out.OwnerID = ownerID
	now := b.now().UnixMilli()
	out.UpdatedAt, out.SyncedAt = now, now
	if out.Deleted && out.DeletedAt == 0 {
		out.DeletedAt = now
	}

	_, err = b.db.Pool.Exec(ctx,
		`INSERT INTO records (cloud_id, owner_id, kind, payload, updated_at, synced_at, deleted, deleted_at) VALUES ($1,$2,$3,$4,$5,$5,$6,$7)`,
		out.CloudID, ownerID, string(kind), string(payload), now, out.Deleted, out.DeletedAt)
	if err != nil {
		return models.Record{}, fmt.Errorf("insert record: %w", err)
	}
	return out, nil
}

// List implements remote.Backend.
func (b *Backend) List(ctx context.Context, ownerID string, kind models.Kind) ([]models.Record, error) {
	rows, err := b.db.Pool.Query(ctx,
		`SELECT cloud_id, payload, updated_at, synced_at, deleted, deleted_at FROM records WHERE owner_id=$1 AND kind=$2 ORDER BY updated_at, cloud_id`,
		ownerID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		rec.OwnerID = ownerID
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (models.Record, error) {
	var (
		cloudID   string
		payload   []byte
		rec       models.Record
		updatedAt int64
		syncedAt  int64
		deleted   bool
		deletedAt int64
	)
	if err := row.Scan(&cloudID, &payload, &updatedAt, &syncedAt, &deleted, &deletedAt); err != nil {
		return models.Record{}, err
	}
	if err := json.Unmarshal(payload, &rec); err != nil {
		return models.Record{}, fmt.Errorf("decode payload of %s: %w", cloudID, err)
	}
	rec.CloudID = cloudID
	rec.UpdatedAt = updatedAt
	rec.SyncedAt = syncedAt
	rec.Deleted = deleted
	rec.DeletedAt = deletedAt
	return rec, nil
}

// Update implements remote.Backend. The payload is replaced wholesale.
func (b *Backend) Update(ctx context.Context, ownerID string, kind models.Kind, cloudID string, rec models.Record) (models.Record, error) {
	payload, err := encodePayload(rec)
	if err != nil {
		return models.Record{}, err
	}
	now := b.now().UnixMilli()
	deletedAt := rec.DeletedAt
	if !rec.Deleted {
		deletedAt = 0
	}

	tag, err := b.db.Pool.Exec(ctx,
		`UPDATE records SET payload=$4, updated_at=$5, synced_at=$5, deleted=$6, deleted_at=$7 WHERE owner_id=$1 AND kind=$2 AND cloud_id=$3`,
		ownerID, string(kind), cloudID, string(payload), now, rec.Deleted, deletedAt)
	if err != nil {
		return models.Record{}, fmt.Errorf("update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.Record{}, remote.ErrNotFound
	}

	out := rec.Clone()
	out.CloudID, out.OwnerID = cloudID, ownerID
	out.UpdatedAt, out.SyncedAt = now, now
	out.DeletedAt = deletedAt
	return out, nil
}

// Delete implements remote.Backend.
func (b *Backend) Delete(ctx context.Context, ownerID string, kind models.Kind, cloudID string) (rec models.Record, err error) {
	tx, err := b.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Record{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	rec, err = scanRecord(tx.QueryRow(ctx,
		`SELECT cloud_id, payload, updated_at, synced_at, deleted, deleted_at FROM records WHERE owner_id=$1 AND kind=$2 AND cloud_id=$3 FOR UPDATE`,
		ownerID, string(kind), cloudID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Record{}, remote.ErrNotFound
	}
	if err != nil {
		return models.Record{}, fmt.Errorf("load record: %w", err)
	}

	now := b.now().UnixMilli()
	if _, err = tx.Exec(ctx,
		`UPDATE records SET deleted=true, deleted_at=$4, updated_at=$4, synced_at=$4 WHERE owner_id=$1 AND kind=$2 AND cloud_id=$3`,
		ownerID, string(kind), cloudID, now); err != nil {
		return models.Record{}, fmt.Errorf("tombstone record: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Record{}, err
	}

	rec.OwnerID = ownerID
	rec.Deleted = true
	rec.DeletedAt, rec.UpdatedAt, rec.SyncedAt = now, now, now
	return rec, nil
}
