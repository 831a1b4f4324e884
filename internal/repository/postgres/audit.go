package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/ward-api/internal/model"
)

type auditRepository struct {
	q queryer
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, actor_id, actor_name, action, entity_type, entity_id,
			from_state, to_state, changes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	var changes interface{}
	if len(log.Changes) > 0 {
		changes = []byte(log.Changes)
	}

	_, err := r.q.ExecContext(ctx, query,
		log.ID, log.ActorID, log.ActorName, log.Action, log.EntityType, log.EntityID,
		log.FromState, log.ToState, changes, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", mapError(err))
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, error) {
	if filters == nil {
		filters = &model.AuditFilters{}
	}

	query := `
		SELECT id, actor_id, actor_name, action, entity_type, entity_id,
			from_state, to_state, changes, created_at
		FROM audit_logs WHERE 1=1`
	var args []interface{}

	if filters.EntityType != "" {
		args = append(args, filters.EntityType)
		query += fmt.Sprintf(" AND entity_type = $%d", len(args))
	}
	if filters.EntityID != nil {
		args = append(args, *filters.EntityID)
		query += fmt.Sprintf(" AND entity_id = $%d", len(args))
	}
	if filters.ActorID != nil {
		args = append(args, *filters.ActorID)
		query += fmt.Sprintf(" AND actor_id = $%d", len(args))
	}

	args = append(args, filters.Limit(), filters.Offset())
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var logs []*model.AuditLog
	if err := sqlx.SelectContext(ctx, r.q, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", mapError(err))
	}
	return logs, nil
}
