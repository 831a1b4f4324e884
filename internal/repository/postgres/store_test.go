package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository"
)

func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStore(sqlx.NewDb(db, "postgres"), 1500*time.Millisecond), mock
}

var admissionCols = []string{
	"id", "reference", "patient_id", "doctor_id", "admitted_at", "discharged_at", "bed_id",
	"kind", "diagnosis", "discharge_summary", "state", "created_by", "updated_by", "created_at", "updated_at",
}

func TestWithinTxSetsLockTimeoutAndCommits(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout = '1500ms'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO beds`).
		WithArgs(sqlmock.AnyArg(), "B-101", nil, "standard", "free", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(tx repository.Repositories) error {
		return tx.Beds().Create(context.Background(), &model.Bed{
			Name: "B-101", Type: model.BedTypeStandard, State: model.BedStateFree,
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	store, mock := setupMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(tx repository.Repositories) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockMapsLockNotAvailable(t *testing.T) {
	store, mock := setupMockStore(t)
	bedID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM beds WHERE id = ANY\(\$1::uuid\[\]\) ORDER BY id FOR UPDATE`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"})
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(tx repository.Repositories) error {
		_, err := tx.Beds().Lock(context.Background(), bedID)
		return err
	})

	assert.ErrorIs(t, err, model.ErrLockTimeout)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockReportsMissingBed(t *testing.T) {
	store, mock := setupMockStore(t)
	a, b := uuid.New(), uuid.New()

	rows := sqlmock.NewRows([]string{"id", "name", "room_id", "bed_type", "state", "created_at", "updated_at"}).
		AddRow(a.String(), "A", nil, "standard", "free", time.Now(), time.Now())
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(sqlmock.AnyArg()).WillReturnRows(rows)

	_, err := store.Beds().Lock(context.Background(), a, b)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStateCompareAndSwap(t *testing.T) {
	store, mock := setupMockStore(t)
	bedID := uuid.New()

	mock.ExpectExec(`UPDATE beds SET state = \$1, updated_at = \$2 WHERE id = \$3 AND state = \$4`).
		WithArgs("occupied", sqlmock.AnyArg(), bedID, "free").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := store.Beds().SetState(context.Background(), bedID, model.BedStateFree, model.BedStateOccupied)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(`UPDATE beds SET state`).
		WithArgs("occupied", sqlmock.AnyArg(), bedID, "free").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(bedID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err = store.Beds().SetState(context.Background(), bedID, model.BedStateFree, model.BedStateOccupied)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBedDuplicateName(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec(`INSERT INTO beds`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "beds_name_unique"})

	err := store.Beds().Create(context.Background(), &model.Bed{Name: "B-1", State: model.BedStateFree})
	assert.ErrorIs(t, err, model.ErrDuplicate)
	assert.ErrorContains(t, err, "beds_name_unique")
}

func TestDeleteReferencedBed(t *testing.T) {
	store, mock := setupMockStore(t)
	bedID := uuid.New()

	mock.ExpectExec(`DELETE FROM beds WHERE id = \$1`).
		WithArgs(bedID).
		WillReturnError(&pq.Error{Code: "23503"})

	err := store.Beds().Delete(context.Background(), bedID)
	assert.ErrorIs(t, err, model.ErrBedReferenced)
}

func TestFindActiveByBedExcludes(t *testing.T) {
	store, mock := setupMockStore(t)
	bedID, self, other, patient, actor := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows(admissionCols).AddRow(
		other.String(), "ADM00007", patient.String(), nil, now, nil, bedID.String(),
		"planned", "", "", "active", actor.String(), actor.String(), now, now,
	)
	mock.ExpectQuery(`FROM admissions WHERE bed_id = \$1 AND state = \$2 AND id != \$3`).
		WithArgs(bedID, "active", self).
		WillReturnRows(rows)

	got, err := store.Admissions().FindActiveByBed(context.Background(), bedID, &self)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ADM00007", got[0].Reference)
	assert.Equal(t, other, got[0].ID)
	require.NotNil(t, got[0].BedID)
	assert.Equal(t, bedID, *got[0].BedID)
	assert.Nil(t, got[0].DoctorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAdmissionNotFound(t *testing.T) {
	store, mock := setupMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(`FROM admissions WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(admissionCols))

	_, err := store.Admissions().Get(context.Background(), id)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLockAdmissionInsideTx(t *testing.T) {
	store, mock := setupMockStore(t)
	id := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM admissions WHERE id = \$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(admissionCols).AddRow(
			id.String(), "ADM00001", uuid.New().String(), nil, now, nil, nil,
			"planned", "", "", "draft", uuid.Nil.String(), uuid.Nil.String(), now, now,
		))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(tx repository.Repositories) error {
		a, err := tx.Admissions().Lock(context.Background(), id)
		if err != nil {
			return err
		}
		assert.Equal(t, model.AdmissionStateDraft, a.State)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByState(t *testing.T) {
	store, mock := setupMockStore(t)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT state, COUNT\(\*\) AS count FROM admissions WHERE 1=1 AND admitted_at >= \$1 GROUP BY state`).
		WithArgs(from).
		WillReturnRows(sqlmock.NewRows([]string{"state", "count"}).
			AddRow("active", 3).
			AddRow("discharged", 5))

	counts, err := store.Admissions().CountByState(context.Background(), &from, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[model.AdmissionStateActive])
	assert.Equal(t, 5, counts[model.AdmissionStateDischarged])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAdmissionsBuildsFilters(t *testing.T) {
	store, mock := setupMockStore(t)
	patient := uuid.New()

	mock.ExpectQuery(`AND state = \$1 AND patient_id = \$2 ORDER BY admitted_at DESC, reference DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("active", patient, 20, 20).
		WillReturnRows(sqlmock.NewRows(admissionCols))

	_, err := store.Admissions().List(context.Background(), &model.AdmissionFilters{
		State:      model.AdmissionStateActive,
		PatientID:  &patient,
		Pagination: model.Pagination{Page: 2, PageSize: 20},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigratorLoadsEmbeddedFiles(t *testing.T) {
	m := NewMigrator(nil)

	migrations, err := m.Load()
	require.NoError(t, err)
	require.Len(t, migrations, 5)
	for i, mig := range migrations {
		assert.Equal(t, i+1, mig.Version)
		assert.NotEmpty(t, mig.SQL)
	}
	assert.Contains(t, migrations[1].SQL, "admissions_one_active_per_bed")
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError(&pq.Error{Code: "40P01"}), model.ErrLockTimeout)
	assert.ErrorIs(t, mapError(&pq.Error{Code: "23503"}), model.ErrNotFound)
	assert.ErrorIs(t, mapError(&pq.Error{Code: "23505", Constraint: "beds_name_unique"}), model.ErrDuplicate)

	activeBed := mapError(&pq.Error{Code: "23505", Constraint: "admissions_one_active_per_bed"})
	assert.ErrorIs(t, activeBed, model.ErrBedUnavailable)
	assert.NotErrorIs(t, activeBed, model.ErrDuplicate)
	assert.Nil(t, mapError(nil))

	other := errors.New("other")
	assert.Equal(t, other, mapError(other))
}

func TestClaimPendingEventsOrdersByCreation(t *testing.T) {
	store, mock := setupMockStore(t)
	lease := time.Now().Add(time.Minute)
	older, newer := uuid.New(), uuid.New()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	cols := []string{"id", "event_type", "aggregate_id", "payload", "status", "error_message",
		"retry_count", "retry_at", "created_at", "updated_at", "processed_at"}
	rows := sqlmock.NewRows(cols).
		AddRow(newer.String(), model.EventAdmissionDischarged, uuid.NewString(), []byte(`{}`), "processing", nil, 0, lease, base.Add(time.Second), base, nil).
		AddRow(older.String(), model.EventAdmissionAdmitted, uuid.NewString(), []byte(`{}`), "processing", nil, 1, lease, base, base, nil)

	mock.ExpectQuery(`UPDATE outbox_events\s+SET status = 'processing'.*FOR UPDATE SKIP LOCKED\s+\)\s+RETURNING`).
		WithArgs(10, lease).
		WillReturnRows(rows)

	events, err := store.Outbox().ClaimPendingEvents(context.Background(), 10, lease)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, older, events[0].ID)
	assert.Equal(t, model.OutboxStatusProcessing, events[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
