package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository/memory"
	"github.com/jwalitptl/ward-api/pkg/logger"
	"github.com/jwalitptl/ward-api/pkg/messaging"
	"github.com/jwalitptl/ward-api/pkg/metrics"
)

type fakeBroker struct {
	mu       sync.Mutex
	err      error
	calls    int
	messages []messaging.Message
}

func (b *fakeBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return b.err
	}
	b.messages = append(b.messages, message.(messaging.Message))
	return nil
}

func (b *fakeBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBroker) Close() error { return nil }

func newProcessor(t *testing.T, store *memory.Store, broker messaging.Broker) *OutboxProcessor {
	t.Helper()
	p, err := NewOutboxProcessor(store, broker, OutboxProcessorConfig{
		Channel:        "ward.events",
		BatchSize:      10,
		PollInterval:   time.Second,
		RetryAttempts:  2,
		RetryDelay:     time.Millisecond,
		PublishRetries: 1,
	}, logger.NewNop(), metrics.NewTestMetrics())
	require.NoError(t, err)
	return p
}

func addEvent(t *testing.T, store *memory.Store, eventType string) *model.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"reference": "ADM00001"})
	require.NoError(t, err)
	e := &model.OutboxEvent{EventType: eventType, AggregateID: uuid.New(), Payload: payload}
	require.NoError(t, store.Outbox().Create(context.Background(), e))
	return e
}

func pending(t *testing.T, store *memory.Store) int {
	t.Helper()
	events, err := store.Outbox().ClaimPendingEvents(context.Background(), 100, time.Now())
	require.NoError(t, err)
	return len(events)
}

func TestProcessBatchPublishes(t *testing.T) {
	store := memory.NewStore(time.Second)
	broker := &fakeBroker{}
	p := newProcessor(t, store, broker)

	first := addEvent(t, store, model.EventAdmissionAdmitted)
	addEvent(t, store, model.EventAdmissionDischarged)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, pending(t, store))

	require.Len(t, broker.messages, 2)
	assert.Equal(t, first.ID, broker.messages[0].ID)
	assert.Equal(t, model.EventAdmissionAdmitted, broker.messages[0].Type)
	assert.JSONEq(t, `{"reference":"ADM00001"}`, string(broker.messages[0].Payload))

	n, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessBatchRetriesThenFails(t *testing.T) {
	store := memory.NewStore(time.Second)
	broker := &fakeBroker{err: errors.New("connection refused")}
	p := newProcessor(t, store, broker)
	addEvent(t, store, model.EventAdmissionCreated)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, broker.calls, "one immediate retry")

	time.Sleep(10 * time.Millisecond)
	_, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, broker.calls)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, pending(t, store), "event marked failed after two polls")
}

func TestProcessBatchStopsOnOpenBreaker(t *testing.T) {
	store := memory.NewStore(time.Second)
	broker := &fakeBroker{err: messaging.ErrUnavailable}
	p := newProcessor(t, store, broker)
	addEvent(t, store, model.EventAdmissionCreated)

	_, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, broker.calls)
}

func TestNewOutboxProcessorValidatesConfig(t *testing.T) {
	_, err := NewOutboxProcessor(memory.NewStore(time.Second), &fakeBroker{}, OutboxProcessorConfig{}, logger.NewNop(), metrics.NewTestMetrics())
	assert.Error(t, err)
}

func TestRetryDelayDoubles(t *testing.T) {
	p := &OutboxProcessor{config: OutboxProcessorConfig{RetryDelay: time.Second}}
	assert.Equal(t, time.Second, p.retryDelay(0))
	assert.Equal(t, 4*time.Second, p.retryDelay(2))
	assert.Equal(t, time.Hour, p.retryDelay(30))
}
