package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/ward-api/internal/model"
)

const bedColumns = `id, name, room_id, bed_type, state, created_at, updated_at`

type bedRepository struct {
	q queryer
}

func (r *bedRepository) Create(ctx context.Context, bed *model.Bed) error {
	query := `
		INSERT INTO beds (id, name, room_id, bed_type, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if bed.ID == uuid.Nil {
		bed.ID = uuid.New()
	}
	now := time.Now()
	bed.CreatedAt = now
	bed.UpdatedAt = now

	_, err := r.q.ExecContext(ctx, query,
		bed.ID, bed.Name, bed.RoomID, bed.Type, bed.State, bed.CreatedAt, bed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bed: %w", mapError(err))
	}
	return nil
}

func (r *bedRepository) Get(ctx context.Context, id uuid.UUID) (*model.Bed, error) {
	var bed model.Bed
	query := `SELECT ` + bedColumns + ` FROM beds WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.q, &bed, query, id); err != nil {
		return nil, fmt.Errorf("failed to get bed: %w", mapError(err))
	}
	return &bed, nil
}

func (r *bedRepository) List(ctx context.Context, filters *model.BedFilters) ([]*model.Bed, error) {
	if filters == nil {
		filters = &model.BedFilters{}
	}

	query := `SELECT ` + bedColumns + ` FROM beds WHERE 1=1`
	var args []interface{}

	if filters.RoomID != nil {
		args = append(args, *filters.RoomID)
		query += fmt.Sprintf(" AND room_id = $%d", len(args))
	}
	if filters.Type != "" {
		args = append(args, filters.Type)
		query += fmt.Sprintf(" AND bed_type = $%d", len(args))
	}
	if filters.State != "" {
		args = append(args, filters.State)
		query += fmt.Sprintf(" AND state = $%d", len(args))
	}

	args = append(args, filters.Limit(), filters.Offset())
	query += fmt.Sprintf(" ORDER BY name LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var beds []*model.Bed
	if err := sqlx.SelectContext(ctx, r.q, &beds, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list beds: %w", mapError(err))
	}
	return beds, nil
}

func (r *bedRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM beds WHERE id = $1`, id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == codeForeignKeyViolation {
			return fmt.Errorf("failed to delete bed: %w", model.ErrBedReferenced)
		}
		return fmt.Errorf("failed to delete bed: %w", mapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("failed to delete bed: %w", model.ErrNotFound)
	}
	return nil
}

// Lock issues SELECT ... FOR UPDATE ordered by id so that concurrent commands
// touching the same pair of beds always lock them in the same order.
func (r *bedRepository) Lock(ctx context.Context, ids ...uuid.UUID) ([]*model.Bed, error) {
	keys := make([]string, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			keys = append(keys, id.String())
		}
	}
	sort.Strings(keys)

	query := `SELECT ` + bedColumns + ` FROM beds WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`

	var beds []*model.Bed
	if err := sqlx.SelectContext(ctx, r.q, &beds, query, pq.Array(keys)); err != nil {
		return nil, fmt.Errorf("failed to lock beds: %w", mapError(err))
	}
	if len(beds) != len(keys) {
		return nil, fmt.Errorf("failed to lock beds: %w", model.ErrNotFound)
	}
	return beds, nil
}

func (r *bedRepository) SetState(ctx context.Context, id uuid.UUID, from, to model.BedState) (bool, error) {
	query := `UPDATE beds SET state = $1, updated_at = $2 WHERE id = $3 AND state = $4`

	result, err := r.q.ExecContext(ctx, query, to, time.Now(), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to set bed state: %w", mapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 1 {
		return true, nil
	}

	var exists bool
	if err := sqlx.GetContext(ctx, r.q, &exists, `SELECT EXISTS(SELECT 1 FROM beds WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("failed to check bed: %w", mapError(err))
	}
	if !exists {
		return false, fmt.Errorf("failed to set bed state: %w", model.ErrNotFound)
	}
	return false, nil
}
