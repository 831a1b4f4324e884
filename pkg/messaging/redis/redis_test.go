package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ward-api/pkg/messaging"
	"github.com/jwalitptl/ward-api/pkg/metrics"
)

func setupBroker(t *testing.T, cfg Config) (*miniredis.Miniredis, *RedisBroker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	b := NewRedisBroker(client, cfg, zerolog.Nop(), metrics.NewTestMetrics())
	t.Cleanup(func() { b.Close() })
	return mr, b
}

func TestPublishSubscribe(t *testing.T) {
	_, b := setupBroker(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := b.Subscribe(ctx, "ward.events")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "ward.events", map[string]string{"type": "admission.admitted"}))

	select {
	case msg := <-msgs:
		assert.JSONEq(t, `{"type":"admission.admitted"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	mr, b := setupBroker(t, Config{ConsecutiveFailures: 2, OpenTimeout: time.Minute})
	ctx := context.Background()
	mr.SetError("ERR broker down")

	for i := 0; i < 2; i++ {
		err := b.Publish(ctx, "ward.events", "x")
		require.Error(t, err)
		assert.NotErrorIs(t, err, messaging.ErrUnavailable)
	}

	err := b.Publish(ctx, "ward.events", "x")
	assert.ErrorIs(t, err, messaging.ErrUnavailable)

	mr.SetError("")
	err = b.Publish(ctx, "ward.events", "x")
	assert.ErrorIs(t, err, messaging.ErrUnavailable, "breaker stays open until the timeout")
}
