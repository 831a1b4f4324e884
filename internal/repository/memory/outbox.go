package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository"
)

type outboxRepository struct {
	st         *state
	autocommit *Store
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if r.autocommit != nil {
		return r.autocommit.WithinTx(ctx, func(tx repository.Repositories) error {
			return tx.Outbox().Create(ctx, event)
		})
	}

	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	now := time.Now()
	event.Status = model.OutboxStatusPending
	event.CreatedAt = now
	event.UpdatedAt = now
	r.st.outbox = append(r.st.outbox, *event)
	return nil
}

func (r *outboxRepository) ClaimPendingEvents(ctx context.Context, limit int, leaseUntil time.Time) ([]*model.OutboxEvent, error) {
	if r.autocommit != nil {
		var events []*model.OutboxEvent
		err := r.autocommit.WithinTx(ctx, func(tx repository.Repositories) error {
			var err error
			events, err = tx.Outbox().ClaimPendingEvents(ctx, limit, leaseUntil)
			return err
		})
		return events, err
	}

	now := time.Now()
	var events []*model.OutboxEvent
	for i := range r.st.outbox {
		if len(events) >= limit {
			break
		}
		e := &r.st.outbox[i]
		switch e.Status {
		case model.OutboxStatusPending, model.OutboxStatusRetry, model.OutboxStatusProcessing:
		default:
			continue
		}
		if e.RetryAt != nil && e.RetryAt.After(now) {
			continue
		}
		lease := leaseUntil
		e.Status = model.OutboxStatusProcessing
		e.RetryAt = &lease
		e.UpdatedAt = now
		claimed := *e
		events = append(events, &claimed)
	}
	return events, nil
}

func (r *outboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error {
	if r.autocommit != nil {
		return r.autocommit.WithinTx(ctx, func(tx repository.Repositories) error {
			return tx.Outbox().UpdateStatus(ctx, id, status, errorMessage, retryAt)
		})
	}

	for i := range r.st.outbox {
		e := &r.st.outbox[i]
		if e.ID != id {
			continue
		}
		now := time.Now()
		e.Status = status
		e.ErrorMessage = errorMessage
		e.RetryAt = retryAt
		e.UpdatedAt = now
		if status == model.OutboxStatusRetry {
			e.RetryCount++
		}
		if status == model.OutboxStatusProcessed {
			e.ProcessedAt = &now
		}
		return nil
	}
	return fmt.Errorf("failed to update outbox event: %w", model.ErrNotFound)
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	if r.autocommit != nil {
		var n int64
		err := r.autocommit.WithinTx(ctx, func(tx repository.Repositories) error {
			var err error
			n, err = tx.Outbox().DeleteProcessedBefore(ctx, before)
			return err
		})
		return n, err
	}

	kept := r.st.outbox[:0]
	var deleted int64
	for _, e := range r.st.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.st.outbox = kept
	return deleted, nil
}
