package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository"
)

type roomRepository struct {
	st         *state
	autocommit *Store
}

func (r *roomRepository) Create(ctx context.Context, room *model.Room) error {
	if r.autocommit != nil {
		return r.autocommit.WithinTx(ctx, func(tx repository.Repositories) error {
			return tx.Rooms().Create(ctx, room)
		})
	}

	for _, existing := range r.st.rooms {
		if existing.Name == room.Name {
			return fmt.Errorf("failed to create room: %w: room name %q", model.ErrDuplicate, room.Name)
		}
	}
	if room.ID == uuid.Nil {
		room.ID = uuid.New()
	}
	now := time.Now()
	room.CreatedAt = now
	room.UpdatedAt = now
	r.st.rooms[room.ID] = *room
	return nil
}

func (r *roomRepository) Get(ctx context.Context, id uuid.UUID) (*model.Room, error) {
	room, ok := r.st.rooms[id]
	if !ok {
		return nil, fmt.Errorf("failed to get room: %w", model.ErrNotFound)
	}
	return &room, nil
}

func (r *roomRepository) List(ctx context.Context) ([]*model.Room, error) {
	rooms := make([]*model.Room, 0, len(r.st.rooms))
	for _, room := range r.st.rooms {
		room := room
		rooms = append(rooms, &room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	return rooms, nil
}

func (r *roomRepository) Occupancy(ctx context.Context, id uuid.UUID) (*model.RoomOccupancy, error) {
	room, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.occupancy(*room), nil
}

func (r *roomRepository) ListOccupancy(ctx context.Context) ([]*model.RoomOccupancy, error) {
	rooms, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.RoomOccupancy, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, r.occupancy(*room))
	}
	return out, nil
}

func (r *roomRepository) occupancy(room model.Room) *model.RoomOccupancy {
	occ := &model.RoomOccupancy{Room: room}
	for _, b := range r.st.beds {
		if b.RoomID == nil || *b.RoomID != room.ID {
			continue
		}
		occ.Capacity++
		switch b.State {
		case model.BedStateOccupied:
			occ.Occupied++
		case model.BedStateFree:
			occ.Available++
		}
	}
	return occ
}
