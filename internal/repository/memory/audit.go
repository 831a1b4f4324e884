package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository"
)

type auditRepository struct {
	st         *state
	autocommit *Store
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	if r.autocommit != nil {
		return r.autocommit.WithinTx(ctx, func(tx repository.Repositories) error {
			return tx.Audit().Create(ctx, log)
		})
	}

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	r.st.audit = append(r.st.audit, *log)
	return nil
}

// List returns matching entries newest first.
func (r *auditRepository) List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, error) {
	if filters == nil {
		filters = &model.AuditFilters{}
	}

	var out []*model.AuditLog
	for i := len(r.st.audit) - 1; i >= 0; i-- {
		l := r.st.audit[i]
		if filters.EntityType != "" && l.EntityType != filters.EntityType {
			continue
		}
		if filters.EntityID != nil && l.EntityID != *filters.EntityID {
			continue
		}
		if filters.ActorID != nil && l.ActorID != *filters.ActorID {
			continue
		}
		out = append(out, &l)
	}

	start, end := page(len(out), filters.Pagination)
	return out[start:end], nil
}

type patientRepository struct {
	store *Store
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.PatientRef, error) {
	r.store.patientsMu.RLock()
	defer r.store.patientsMu.RUnlock()

	p, ok := r.store.patients[id]
	if !ok {
		return nil, fmt.Errorf("failed to get patient: %w", model.ErrNotFound)
	}
	return &p, nil
}
