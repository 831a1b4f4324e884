package bed

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository"
	"github.com/jwalitptl/ward-api/internal/service/audit"
	"github.com/jwalitptl/ward-api/internal/service/conflict"
	"github.com/jwalitptl/ward-api/pkg/logger"
)

type BedServicer interface {
	CreateBed(ctx context.Context, actor model.Actor, req *model.CreateBedRequest) (*model.Bed, error)
	GetBed(ctx context.Context, id uuid.UUID) (*model.BedView, error)
	ListBeds(ctx context.Context, filters *model.BedFilters) ([]*model.BedView, error)
	DeleteBed(ctx context.Context, actor model.Actor, id uuid.UUID) error
	SetMaintenance(ctx context.Context, actor model.Actor, id uuid.UUID, on bool) (*model.Bed, error)
	CreateRoom(ctx context.Context, actor model.Actor, req *model.CreateRoomRequest) (*model.Room, error)
	ListRooms(ctx context.Context) ([]*model.RoomOccupancy, error)
	RoomOccupancy(ctx context.Context, id uuid.UUID) (*model.RoomOccupancy, error)
}

// Registry owns bed state. Claim and Release run inside the caller's unit of
// work; the admin operations open their own.
type Registry struct {
	store    repository.Store
	resolver *conflict.Resolver
	auditor  *audit.Service
	log      *logger.Logger
}

func NewRegistry(store repository.Store, resolver *conflict.Resolver, auditor *audit.Service, log *logger.Logger) *Registry {
	return &Registry{
		store:    store,
		resolver: resolver,
		auditor:  auditor,
		log:      log,
	}
}

// Claim marks a free bed occupied. Any other state is ErrBedUnavailable.
func (r *Registry) Claim(ctx context.Context, beds repository.BedRepository, bedID uuid.UUID) error {
	ok, err := beds.SetState(ctx, bedID, model.BedStateFree, model.BedStateOccupied)
	if err != nil {
		return fmt.Errorf("failed to claim bed: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to claim bed %s: %w", bedID, model.ErrBedUnavailable)
	}
	return nil
}

// Release frees an occupied bed. Free and maintenance beds are left as they
// are, so releasing twice is harmless.
func (r *Registry) Release(ctx context.Context, beds repository.BedRepository, bedID uuid.UUID) error {
	if _, err := beds.SetState(ctx, bedID, model.BedStateOccupied, model.BedStateFree); err != nil {
		return fmt.Errorf("failed to release bed: %w", err)
	}
	return nil
}

func (r *Registry) CreateBed(ctx context.Context, actor model.Actor, req *model.CreateBedRequest) (*model.Bed, error) {
	bed := &model.Bed{
		Name:   req.Name,
		RoomID: req.RoomID,
		Type:   req.Type,
		State:  req.State,
	}
	if bed.Type == "" {
		bed.Type = model.BedTypeStandard
	}
	if bed.State == "" {
		bed.State = model.BedStateFree
	}
	if bed.State == model.BedStateOccupied {
		return nil, fmt.Errorf("invalid bed data: %w", model.ErrBedUnavailable)
	}

	err := r.store.WithinTx(ctx, func(tx repository.Repositories) error {
		if err := tx.Beds().Create(ctx, bed); err != nil {
			return err
		}
		return r.auditor.Log(ctx, tx.Audit(), actor, "create", model.AuditEntityBed, bed.ID, &audit.LogOptions{
			ToState: string(bed.State),
			Changes: bed,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bed: %w", err)
	}

	r.log.Info("bed created", "bed_id", bed.ID.String(), "name", bed.Name, "actor_id", actor.ID.String())
	return bed, nil
}

func (r *Registry) GetBed(ctx context.Context, id uuid.UUID) (*model.BedView, error) {
	bed, err := r.store.Beds().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get bed: %w", err)
	}
	return r.view(ctx, bed)
}

func (r *Registry) ListBeds(ctx context.Context, filters *model.BedFilters) ([]*model.BedView, error) {
	beds, err := r.store.Beds().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list beds: %w", err)
	}

	views := make([]*model.BedView, 0, len(beds))
	for _, b := range beds {
		v, err := r.view(ctx, b)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (r *Registry) view(ctx context.Context, bed *model.Bed) (*model.BedView, error) {
	v := &model.BedView{Bed: *bed}
	if bed.State != model.BedStateOccupied {
		return v, nil
	}
	occupant, err := r.resolver.CurrentOccupant(ctx, r.store.Admissions(), bed.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bed occupant: %w", err)
	}
	v.CurrentOccupant = occupant
	return v, nil
}

// DeleteBed refuses while any admission, active or historical, references
// the bed.
func (r *Registry) DeleteBed(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	err := r.store.WithinTx(ctx, func(tx repository.Repositories) error {
		locked, err := tx.Beds().Lock(ctx, id)
		if err != nil {
			return err
		}
		n, err := tx.Admissions().CountByBed(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d admissions", model.ErrBedReferenced, n)
		}
		if err := tx.Beds().Delete(ctx, id); err != nil {
			return err
		}
		return r.auditor.Log(ctx, tx.Audit(), actor, "delete", model.AuditEntityBed, id, &audit.LogOptions{
			FromState: string(locked[0].State),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to delete bed: %w", err)
	}

	r.log.Info("bed deleted", "bed_id", id.String(), "actor_id", actor.ID.String())
	return nil
}

// SetMaintenance moves a bed between free and maintenance. An occupied bed
// cannot be taken out of service.
func (r *Registry) SetMaintenance(ctx context.Context, actor model.Actor, id uuid.UUID, on bool) (*model.Bed, error) {
	from, to := model.BedStateMaintenance, model.BedStateFree
	if on {
		from, to = model.BedStateFree, model.BedStateMaintenance
	}

	var bed *model.Bed
	err := r.store.WithinTx(ctx, func(tx repository.Repositories) error {
		locked, err := tx.Beds().Lock(ctx, id)
		if err != nil {
			return err
		}
		if locked[0].State == to {
			bed = locked[0]
			return nil
		}
		ok, err := tx.Beds().SetState(ctx, id, from, to)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("bed is %s: %w", locked[0].State, model.ErrBedUnavailable)
		}
		if err := r.auditor.Log(ctx, tx.Audit(), actor, "set_state", model.AuditEntityBed, id, &audit.LogOptions{
			FromState: string(from),
			ToState:   string(to),
		}); err != nil {
			return err
		}
		bed, err = tx.Beds().Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to change bed state: %w", err)
	}
	return bed, nil
}

func (r *Registry) CreateRoom(ctx context.Context, actor model.Actor, req *model.CreateRoomRequest) (*model.Room, error) {
	room := &model.Room{
		Name:      req.Name,
		Type:      req.Type,
		Floor:     req.Floor,
		DailyRate: req.DailyRate,
	}
	if room.Type == "" {
		room.Type = model.RoomTypeGeneral
	}

	err := r.store.WithinTx(ctx, func(tx repository.Repositories) error {
		if err := tx.Rooms().Create(ctx, room); err != nil {
			return err
		}
		return r.auditor.Log(ctx, tx.Audit(), actor, "create", model.AuditEntityRoom, room.ID, &audit.LogOptions{Changes: room})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return room, nil
}

func (r *Registry) ListRooms(ctx context.Context) ([]*model.RoomOccupancy, error) {
	rooms, err := r.store.Rooms().ListOccupancy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

func (r *Registry) RoomOccupancy(ctx context.Context, id uuid.UUID) (*model.RoomOccupancy, error) {
	occ, err := r.store.Rooms().Occupancy(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("room %s: %w", id, err)
		}
		return nil, fmt.Errorf("failed to get room occupancy: %w", err)
	}
	return occ, nil
}
