package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/ward-api/internal/model"
)

const occupancyQuery = `
	SELECT r.id, r.name, r.room_type, r.floor, r.daily_rate, r.created_at, r.updated_at,
		COUNT(b.id) AS capacity,
		COUNT(b.id) FILTER (WHERE b.state = 'occupied') AS occupied,
		COUNT(b.id) FILTER (WHERE b.state = 'free') AS available
	FROM rooms r
	LEFT JOIN beds b ON b.room_id = r.id`

type roomRepository struct {
	q queryer
}

func (r *roomRepository) Create(ctx context.Context, room *model.Room) error {
	query := `
		INSERT INTO rooms (id, name, room_type, floor, daily_rate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if room.ID == uuid.Nil {
		room.ID = uuid.New()
	}
	now := time.Now()
	room.CreatedAt = now
	room.UpdatedAt = now

	_, err := r.q.ExecContext(ctx, query,
		room.ID, room.Name, room.Type, room.Floor, room.DailyRate, room.CreatedAt, room.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", mapError(err))
	}
	return nil
}

func (r *roomRepository) Get(ctx context.Context, id uuid.UUID) (*model.Room, error) {
	var room model.Room
	query := `SELECT id, name, room_type, floor, daily_rate, created_at, updated_at FROM rooms WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.q, &room, query, id); err != nil {
		return nil, fmt.Errorf("failed to get room: %w", mapError(err))
	}
	return &room, nil
}

func (r *roomRepository) List(ctx context.Context) ([]*model.Room, error) {
	var rooms []*model.Room
	query := `SELECT id, name, room_type, floor, daily_rate, created_at, updated_at FROM rooms ORDER BY name`
	if err := sqlx.SelectContext(ctx, r.q, &rooms, query); err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", mapError(err))
	}
	return rooms, nil
}

func (r *roomRepository) Occupancy(ctx context.Context, id uuid.UUID) (*model.RoomOccupancy, error) {
	var occ model.RoomOccupancy
	query := occupancyQuery + ` WHERE r.id = $1 GROUP BY r.id`
	if err := sqlx.GetContext(ctx, r.q, &occ, query, id); err != nil {
		return nil, fmt.Errorf("failed to get room occupancy: %w", mapError(err))
	}
	return &occ, nil
}

func (r *roomRepository) ListOccupancy(ctx context.Context) ([]*model.RoomOccupancy, error) {
	var out []*model.RoomOccupancy
	query := occupancyQuery + ` GROUP BY r.id ORDER BY r.name`
	if err := sqlx.SelectContext(ctx, r.q, &out, query); err != nil {
		return nil, fmt.Errorf("failed to list room occupancy: %w", mapError(err))
	}
	return out, nil
}
