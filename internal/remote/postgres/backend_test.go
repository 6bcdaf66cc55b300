package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/medadhere/backend/internal/models"
	"github.com/medadhere/backend/internal/remote"
)

var testNow = time.UnixMilli(1_700_000_000_000)

func newBackend(t *testing.T) (*Backend, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	b := NewBackend(&DB{Pool: mock})
	b.SetClock(func() time.Time { return testNow })
	return b, mock
}

var recordColumns = []string{"cloud_id", "payload", "updated_at", "synced_at", "deleted", "deleted_at"}

func TestBackend_Create_OK(t *testing.T) {
	b, mock := newBackend(t)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO records \(cloud_id, owner_id, kind, payload, updated_at, synced_at, deleted, deleted_at\)`).
		WithArgs(pgxmock.AnyArg(), "u1", "medications", pgxmock.AnyArg(), testNow.UnixMilli(), false, int64(0)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec, err := b.Create(context.Background(), "u1", models.KindMedication, models.Record{Name: "enc:v1:x"})
	require.NoError(t, err)
	require.NotEmpty(t, rec.CloudID)
	require.Equal(t, "u1", rec.OwnerID)
	require.Equal(t, testNow.UnixMilli(), rec.UpdatedAt)
	require.Equal(t, testNow.UnixMilli(), rec.SyncedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackend_Create_Error(t *testing.T) {
	b, mock := newBackend(t)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO records`).WillReturnError(errors.New("db down"))

	_, err := b.Create(context.Background(), "u1", models.KindMedication, models.Record{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackend_List_OK(t *testing.T) {
	b, mock := newBackend(t)
	defer mock.Close()

	rows := pgxmock.NewRows(recordColumns).
		AddRow("c1", []byte(`{"id":"","name":"Aspirin","taken":true,"updatedAt":1}`), int64(10), int64(10), false, int64(0)).
		AddRow("c2", []byte(`{"id":"","name":"Old","taken":false}`), int64(20), int64(20), true, int64(20))
	mock.ExpectQuery(`SELECT cloud_id, payload, updated_at, synced_at, deleted, deleted_at FROM records WHERE owner_id=\$1 AND kind=\$2`).
		WithArgs("u1", "medications").
		WillReturnRows(rows)

	recs, err := b.List(context.Background(), "u1", models.KindMedication)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	require.Equal(t, "c1", recs[0].CloudID)
	require.Equal(t, "Aspirin", recs[0].Name)
	require.True(t, recs[0].Taken)
	require.EqualValues(t, 10, recs[0].UpdatedAt, "column value overrides payload")
	require.Equal(t, "u1", recs[0].OwnerID)

	require.True(t, recs[1].Deleted)
	require.EqualValues(t, 20, recs[1].DeletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackend_List_BadPayload(t *testing.T) {
	b, mock := newBackend(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT cloud_id`).
		WithArgs("u1", "adrReports").
		WillReturnRows(pgxmock.NewRows(recordColumns).AddRow("c1", []byte(`{`), int64(1), int64(1), false, int64(0)))

	_, err := b.List(context.Background(), "u1", models.KindADRReport)
	require.Error(t, err)
}

func TestBackend_Update_OK(t *testing.T) {
	b, mock := newBackend(t)
	defer mock.Close()

	mock.ExpectExec(`UPDATE records SET payload=\$4, updated_at=\$5, synced_at=\$5, deleted=\$6, deleted_at=\$7 WHERE owner_id=\$1 AND kind=\$2 AND cloud_id=\$3`).
		WithArgs("u1", "medications", "c1", pgxmock.AnyArg(), testNow.UnixMilli(), false, int64(0)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	rec, err := b.Update(context.Background(), "u1", models.KindMedication, "c1", models.Record{Name: "x", DeletedAt: 99})
	require.NoError(t, err)
	require.Equal(t, "c1", rec.CloudID)
	require.Zero(t, rec.DeletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackend_Update_NotFound(t *testing.T) {
	b, mock := newBackend(t)
	defer mock.Close()

	mock.ExpectExec(`UPDATE records SET payload`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err := b.Update(context.Background(), "u1", models.KindMedication, "missing", models.Record{})
	require.True(t, errors.Is(err, remote.ErrNotFound))
}

func TestBackend_Delete_OK(t *testing.T) {
	b, mock := newBackend(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT cloud_id, payload, updated_at, synced_at, deleted, deleted_at FROM records WHERE owner_id=\$1 AND kind=\$2 AND cloud_id=\$3 FOR UPDATE`).
		WithArgs("u1", "adherenceHistory", "c1").
		WillReturnRows(pgxmock.NewRows(recordColumns).AddRow("c1", []byte(`{"id":"","medicationId":"m1","taken":true}`), int64(5), int64(5), false, int64(0)))
	mock.ExpectExec(`UPDATE records SET deleted=true, deleted_at=\$4, updated_at=\$4, synced_at=\$4`).
		WithArgs("u1", "adherenceHistory", "c1", testNow.UnixMilli()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	rec, err := b.Delete(context.Background(), "u1", models.KindAdherence, "c1")
	require.NoError(t, err)
	require.True(t, rec.Deleted)
	require.Equal(t, "m1", rec.MedicationID)
	require.Equal(t, testNow.UnixMilli(), rec.DeletedAt)
	require.Equal(t, testNow.UnixMilli(), rec.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackend_Delete_NotFound(t *testing.T) {
	b, mock := newBackend(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT cloud_id`).
		WithArgs("u1", "medications", "missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := b.Delete(context.Background(), "u1", models.KindMedication, "missing")
	require.True(t, errors.Is(err, remote.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackend_Ping(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	b := NewBackend(&DB{Pool: mock})

	mock.ExpectPing().WillReturnError(errors.New("unreachable"))
	require.Error(t, b.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
