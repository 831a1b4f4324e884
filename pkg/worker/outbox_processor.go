package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository"
	"github.com/jwalitptl/ward-api/pkg/logger"
	"github.com/jwalitptl/ward-api/pkg/messaging"
	"github.com/jwalitptl/ward-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	Channel      string
	BatchSize    int
	PollInterval time.Duration
	// RetryAttempts is the number of polls an event may fail before it is
	// marked failed. RetryDelay is the wait before the first re-poll and
	// doubles on every later one.
	RetryAttempts int
	RetryDelay    time.Duration
	// PublishRetries are immediate retries within one poll.
	PublishRetries uint64
	// Lease bounds how long a claimed batch may take to publish before
	// another poll picks it up again. Zero means DefaultLease.
	Lease time.Duration
}

const DefaultLease = time.Minute

// OutboxProcessor publishes committed outbox events to the broker. A claimed
// event is hidden from other processors for the lease, so concurrent
// processors do not publish it twice while it is in flight.
type OutboxProcessor struct {
	store   repository.Store
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	store repository.Store,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if config.BatchSize <= 0 {
		return nil, errors.New("batch size must be greater than 0")
	}
	if config.PollInterval <= 0 {
		return nil, errors.New("poll interval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		return nil, errors.New("retry attempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		return nil, errors.New("retry delay must be greater than 0")
	}
	if config.Channel == "" {
		return nil, errors.New("channel is required")
	}
	if config.Lease <= 0 {
		config.Lease = DefaultLease
	}

	return &OutboxProcessor{
		store:   store,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor", "channel", p.config.Channel)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch handles one batch of due events and reports how many were
// published. The batch is claimed and settled in two short units of work and
// published in between, so the broker is never called while the store is
// locked.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	var events []*model.OutboxEvent
	err := p.store.WithinTx(ctx, func(tx repository.Repositories) error {
		var err error
		events, err = tx.Outbox().ClaimPendingEvents(ctx, p.config.BatchSize, time.Now().Add(p.config.Lease))
		return err
	})
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("claim_pending_events", "error").Inc()
		return 0, fmt.Errorf("failed to claim pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("claim_pending_events", "success").Inc()
	if len(events) == 0 {
		return 0, nil
	}

	results := make([]error, len(events))
	for i, event := range events {
		results[i] = p.publish(ctx, event)
	}

	published := 0
	err = p.store.WithinTx(ctx, func(tx repository.Repositories) error {
		published = 0
		for i, event := range events {
			ok, err := p.settle(ctx, tx.Outbox(), event, results[i])
			if err != nil {
				return err
			}
			if ok {
				published++
			}
		}
		return nil
	})
	if err != nil {
		// Unsettled events stay processing until their lease runs out and are
		// then published again.
		return 0, err
	}
	return published, nil
}

// settle records the outcome of one publish. Only a failure to record the
// outcome is returned as an error.
func (p *OutboxProcessor) settle(ctx context.Context, outbox repository.OutboxRepository, event *model.OutboxEvent, pubErr error) (bool, error) {
	if pubErr == nil {
		if err := outbox.UpdateStatus(ctx, event.ID, model.OutboxStatusProcessed, nil, nil); err != nil {
			p.metrics.DatabaseOperations.WithLabelValues("update_event_status", "error").Inc()
			return false, fmt.Errorf("failed to mark event %s processed: %w", event.ID, err)
		}
		p.metrics.OutboxEventsProcessed.Inc()
		return true, nil
	}

	errMsg := pubErr.Error()
	status := model.OutboxStatusRetry
	var retryAt *time.Time
	if event.RetryCount+1 >= p.config.RetryAttempts {
		status = model.OutboxStatusFailed
		p.metrics.OutboxEventsFailed.Inc()
		p.logger.Error(pubErr, "Giving up on event",
			"event_id", event.ID.String(),
			"event_type", event.EventType,
			"attempts", event.RetryCount+1)
	} else {
		at := time.Now().Add(p.retryDelay(event.RetryCount))
		retryAt = &at
		p.logger.Warn("Failed to publish event, will retry",
			"event_id", event.ID.String(),
			"event_type", event.EventType,
			"retry_at", at.Format(time.RFC3339),
			"error", errMsg)
	}

	if err := outbox.UpdateStatus(ctx, event.ID, status, &errMsg, retryAt); err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("update_event_status", "error").Inc()
		return false, fmt.Errorf("failed to update event %s status: %w", event.ID, err)
	}
	return false, nil
}

func (p *OutboxProcessor) publish(ctx context.Context, event *model.OutboxEvent) error {
	msg := messaging.Message{
		ID:          event.ID,
		Type:        event.EventType,
		AggregateID: event.AggregateID,
		Payload:     event.Payload,
		CreatedAt:   event.CreatedAt,
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	op := func() error {
		err := p.broker.Publish(ctx, p.config.Channel, msg)
		if errors.Is(err, messaging.ErrUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, p.config.PublishRetries), ctx)
	return backoff.RetryNotify(op, policy, notify)
}

// retryDelay doubles RetryDelay per previous failure, capped at one hour.
func (p *OutboxProcessor) retryDelay(failures int) time.Duration {
	d := p.config.RetryDelay
	for i := 0; i < failures && d < time.Hour; i++ {
		d *= 2
	}
	if d > time.Hour {
		d = time.Hour
	}
	return d
}
