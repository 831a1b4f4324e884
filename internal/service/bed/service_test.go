package bed

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository"
	"github.com/jwalitptl/ward-api/internal/repository/memory"
	"github.com/jwalitptl/ward-api/internal/service/audit"
	"github.com/jwalitptl/ward-api/internal/service/conflict"
	"github.com/jwalitptl/ward-api/internal/service/patient"
	"github.com/jwalitptl/ward-api/pkg/logger"
)

var actor = model.Actor{ID: uuid.New(), Name: "admin"}

func setupRegistry(t *testing.T) (*Registry, *memory.Store) {
	t.Helper()
	store := memory.NewStore(time.Second)
	resolver := conflict.NewResolver(patient.NewService(store.Patients()))
	return NewRegistry(store, resolver, audit.NewService(store.Audit()), logger.NewNop()), store
}

func TestCreateBedDefaults(t *testing.T) {
	reg, _ := setupRegistry(t)

	b, err := reg.CreateBed(context.Background(), actor, &model.CreateBedRequest{Name: "B1"})
	require.NoError(t, err)
	assert.Equal(t, model.BedTypeStandard, b.Type)
	assert.Equal(t, model.BedStateFree, b.State)
	assert.NotEqual(t, uuid.Nil, b.ID)

	_, err = reg.CreateBed(context.Background(), actor, &model.CreateBedRequest{Name: "B1"})
	assert.ErrorIs(t, err, model.ErrDuplicate)

	_, err = reg.CreateBed(context.Background(), actor, &model.CreateBedRequest{Name: "B2", State: model.BedStateOccupied})
	assert.ErrorIs(t, err, model.ErrBedUnavailable)
}

func TestClaimAndRelease(t *testing.T) {
	reg, store := setupRegistry(t)
	ctx := context.Background()
	b, err := reg.CreateBed(ctx, actor, &model.CreateBedRequest{Name: "B1"})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(tx repository.Repositories) error {
		if err := reg.Claim(ctx, tx.Beds(), b.ID); err != nil {
			return err
		}
		return reg.Claim(ctx, tx.Beds(), b.ID)
	})
	assert.ErrorIs(t, err, model.ErrBedUnavailable)

	got, err := store.Beds().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BedStateFree, got.State, "failed unit of work rolled back the first claim")

	require.NoError(t, store.WithinTx(ctx, func(tx repository.Repositories) error {
		return reg.Claim(ctx, tx.Beds(), b.ID)
	}))

	for i := 0; i < 2; i++ {
		require.NoError(t, store.WithinTx(ctx, func(tx repository.Repositories) error {
			return reg.Release(ctx, tx.Beds(), b.ID)
		}))
		got, err = store.Beds().Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, model.BedStateFree, got.State)
	}
}

func TestReleaseLeavesMaintenance(t *testing.T) {
	reg, store := setupRegistry(t)
	ctx := context.Background()
	b, err := reg.CreateBed(ctx, actor, &model.CreateBedRequest{Name: "B1", State: model.BedStateMaintenance})
	require.NoError(t, err)

	require.NoError(t, store.WithinTx(ctx, func(tx repository.Repositories) error {
		return reg.Release(ctx, tx.Beds(), b.ID)
	}))

	got, err := store.Beds().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BedStateMaintenance, got.State)
}

func TestGetBedShowsOccupant(t *testing.T) {
	reg, store := setupRegistry(t)
	ctx := context.Background()
	p := model.PatientRef{ID: uuid.New(), Name: "Jane Roe"}
	store.AddPatient(p)

	b, err := reg.CreateBed(ctx, actor, &model.CreateBedRequest{Name: "B1"})
	require.NoError(t, err)

	view, err := reg.GetBed(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, view.CurrentOccupant)

	a := &model.Admission{
		Reference:  "ADM00001",
		PatientID:  p.ID,
		BedID:      &b.ID,
		State:      model.AdmissionStateActive,
		AdmittedAt: time.Now(),
	}
	require.NoError(t, store.WithinTx(ctx, func(tx repository.Repositories) error {
		if err := tx.Admissions().Create(ctx, a); err != nil {
			return err
		}
		return reg.Claim(ctx, tx.Beds(), b.ID)
	}))

	views, err := reg.ListBeds(ctx, nil)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].CurrentOccupant)
	assert.Equal(t, "ADM00001", views[0].CurrentOccupant.Reference)
	assert.Equal(t, "Jane Roe", views[0].CurrentOccupant.PatientName)
	assert.Equal(t, a.ID, views[0].CurrentOccupant.AdmissionID)
}

func TestDeleteBed(t *testing.T) {
	reg, store := setupRegistry(t)
	ctx := context.Background()

	used, err := reg.CreateBed(ctx, actor, &model.CreateBedRequest{Name: "B1"})
	require.NoError(t, err)
	unused, err := reg.CreateBed(ctx, actor, &model.CreateBedRequest{Name: "B2"})
	require.NoError(t, err)

	require.NoError(t, store.Admissions().Create(ctx, &model.Admission{
		Reference: "ADM00001",
		PatientID: uuid.New(),
		BedID:     &used.ID,
		State:     model.AdmissionStateDischarged,
	}))

	err = reg.DeleteBed(ctx, actor, used.ID)
	assert.ErrorIs(t, err, model.ErrBedReferenced)

	require.NoError(t, reg.DeleteBed(ctx, actor, unused.ID))
	_, err = reg.GetBed(ctx, unused.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = reg.DeleteBed(ctx, actor, unused.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSetMaintenance(t *testing.T) {
	reg, store := setupRegistry(t)
	ctx := context.Background()
	b, err := reg.CreateBed(ctx, actor, &model.CreateBedRequest{Name: "B1"})
	require.NoError(t, err)

	got, err := reg.SetMaintenance(ctx, actor, b.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.BedStateMaintenance, got.State)

	got, err = reg.SetMaintenance(ctx, actor, b.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.BedStateMaintenance, got.State)

	got, err = reg.SetMaintenance(ctx, actor, b.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.BedStateFree, got.State)

	require.NoError(t, store.WithinTx(ctx, func(tx repository.Repositories) error {
		return reg.Claim(ctx, tx.Beds(), b.ID)
	}))
	_, err = reg.SetMaintenance(ctx, actor, b.ID, true)
	assert.ErrorIs(t, err, model.ErrBedUnavailable)
}

func TestRooms(t *testing.T) {
	reg, store := setupRegistry(t)
	ctx := context.Background()

	room, err := reg.CreateRoom(ctx, actor, &model.CreateRoomRequest{Name: "Ward A", Floor: 2, DailyRate: 120})
	require.NoError(t, err)
	assert.Equal(t, model.RoomTypeGeneral, room.Type)

	for _, req := range []model.CreateBedRequest{
		{Name: "A1", RoomID: &room.ID},
		{Name: "A2", RoomID: &room.ID},
		{Name: "A3", RoomID: &room.ID, State: model.BedStateMaintenance},
	} {
		req := req
		_, err := reg.CreateBed(ctx, actor, &req)
		require.NoError(t, err)
	}

	beds, err := store.Beds().List(ctx, &model.BedFilters{RoomID: &room.ID, State: model.BedStateFree})
	require.NoError(t, err)
	require.Len(t, beds, 2)
	require.NoError(t, store.WithinTx(ctx, func(tx repository.Repositories) error {
		return reg.Claim(ctx, tx.Beds(), beds[0].ID)
	}))

	occ, err := reg.RoomOccupancy(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, occ.Capacity)
	assert.Equal(t, 1, occ.Occupied)
	assert.Equal(t, 1, occ.Available)

	rooms, err := reg.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "Ward A", rooms[0].Name)

	_, err = reg.RoomOccupancy(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
}
