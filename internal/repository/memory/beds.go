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

type bedRepository struct {
	st         *state
	autocommit *Store
}

func copyBed(b model.Bed) *model.Bed {
	b.RoomID = cloneID(b.RoomID)
	return &b
}

func (r *bedRepository) Create(ctx context.Context, bed *model.Bed) error {
	if r.autocommit != nil {
		return r.autocommit.WithinTx(ctx, func(tx repository.Repositories) error {
			return tx.Beds().Create(ctx, bed)
		})
	}

	for _, existing := range r.st.beds {
		if existing.Name == bed.Name {
			return fmt.Errorf("failed to create bed: %w: bed name %q", model.ErrDuplicate, bed.Name)
		}
	}
	if bed.RoomID != nil {
		if _, ok := r.st.rooms[*bed.RoomID]; !ok {
			return fmt.Errorf("failed to create bed: room: %w", model.ErrNotFound)
		}
	}

	if bed.ID == uuid.Nil {
		bed.ID = uuid.New()
	}
	now := time.Now()
	bed.CreatedAt = now
	bed.UpdatedAt = now
	r.st.beds[bed.ID] = *copyBed(*bed)
	return nil
}

func (r *bedRepository) Get(ctx context.Context, id uuid.UUID) (*model.Bed, error) {
	b, ok := r.st.beds[id]
	if !ok {
		return nil, fmt.Errorf("failed to get bed: %w", model.ErrNotFound)
	}
	return copyBed(b), nil
}

func (r *bedRepository) List(ctx context.Context, filters *model.BedFilters) ([]*model.Bed, error) {
	if filters == nil {
		filters = &model.BedFilters{}
	}

	var beds []*model.Bed
	for _, b := range r.st.beds {
		if filters.RoomID != nil && (b.RoomID == nil || *b.RoomID != *filters.RoomID) {
			continue
		}
		if filters.Type != "" && b.Type != filters.Type {
			continue
		}
		if filters.State != "" && b.State != filters.State {
			continue
		}
		beds = append(beds, copyBed(b))
	}
	sort.Slice(beds, func(i, j int) bool { return beds[i].Name < beds[j].Name })

	start, end := page(len(beds), filters.Pagination)
	return beds[start:end], nil
}

func (r *bedRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if r.autocommit != nil {
		return r.autocommit.WithinTx(ctx, func(tx repository.Repositories) error {
			return tx.Beds().Delete(ctx, id)
		})
	}

	if _, ok := r.st.beds[id]; !ok {
		return fmt.Errorf("failed to delete bed: %w", model.ErrNotFound)
	}
	delete(r.st.beds, id)
	return nil
}

// Lock only verifies the beds exist; the store lock already serializes units
// of work.
func (r *bedRepository) Lock(ctx context.Context, ids ...uuid.UUID) ([]*model.Bed, error) {
	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	beds := make([]*model.Bed, 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && sorted[i-1] == id {
			continue
		}
		b, ok := r.st.beds[id]
		if !ok {
			return nil, fmt.Errorf("failed to lock bed %s: %w", id, model.ErrNotFound)
		}
		beds = append(beds, copyBed(b))
	}
	return beds, nil
}

func (r *bedRepository) SetState(ctx context.Context, id uuid.UUID, from, to model.BedState) (bool, error) {
	if r.autocommit != nil {
		var ok bool
		err := r.autocommit.WithinTx(ctx, func(tx repository.Repositories) error {
			var err error
			ok, err = tx.Beds().SetState(ctx, id, from, to)
			return err
		})
		return ok, err
	}

	b, exists := r.st.beds[id]
	if !exists {
		return false, fmt.Errorf("failed to set bed state: %w", model.ErrNotFound)
	}
	if b.State != from {
		return false, nil
	}
	b.State = to
	b.UpdatedAt = time.Now()
	r.st.beds[id] = b
	return true, nil
}
