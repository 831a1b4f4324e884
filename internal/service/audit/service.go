package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository"
)

type Service struct {
	repo repository.AuditRepository
}

// NewService takes the non-transactional audit repository used for reads.
// Writes go through Log with the repository of the caller's unit of work.
func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo}
}

type LogOptions struct {
	FromState string
	ToState   string
	Changes   interface{}
}

// Log appends an audit entry through repo so it commits or rolls back with
// the change it describes.
func (s *Service) Log(ctx context.Context, repo repository.AuditRepository, actor model.Actor, action, entityType string, entityID uuid.UUID, opts *LogOptions) error {
	entry := &model.AuditLog{
		ID:         uuid.New(),
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		CreatedAt:  time.Now(),
	}

	if opts != nil {
		entry.FromState = opts.FromState
		entry.ToState = opts.ToState
		if opts.Changes != nil {
			changes, err := json.Marshal(opts.Changes)
			if err != nil {
				return fmt.Errorf("failed to marshal audit changes: %w", err)
			}
			entry.Changes = changes
		}
	}

	if err := repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, error) {
	logs, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}
