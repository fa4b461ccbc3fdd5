package transport

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisTransport(t *testing.T) (*RedisTransport, *miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	tr, err := NewRedisTransport("redis://"+mr.Addr(), "taskq:")
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })

	inspect := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { inspect.Close() })

	return tr, mr, inspect
}

func TestRedisSubmitPushesMessage(t *testing.T) {
	tr, _, inspect := setupRedisTransport(t)
	ctx := context.Background()

	err := tr.Submit(ctx, SubmitRequest{
		EnvelopeID:     "task_abc",
		CorrelationID:  "corr-1",
		IdempotencyKey: "idem-1",
		TaskName:       "send_booking_confirmation",
		Args:           []byte(`["bkg_42"]`),
		Kwargs:         []byte(`{"locale":"hr"}`),
		Queue:          "notification",
	})
	require.NoError(t, err)

	raw, err := inspect.RPop(ctx, "taskq:notification").Result()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, "task_abc", msg["envelope_id"])
	assert.Equal(t, "corr-1", msg["correlation_id"])
	assert.Equal(t, "idem-1", msg["idempotency_key"])
	assert.Equal(t, "send_booking_confirmation", msg["task"])
	assert.Equal(t, "notification", msg["queue"])
	assert.NotEmpty(t, msg["enqueued_at"])
}

func TestRedisSubmitDefaultsEmptyPayloads(t *testing.T) {
	tr, _, inspect := setupRedisTransport(t)
	ctx := context.Background()

	require.NoError(t, tr.Submit(ctx, SubmitRequest{
		EnvelopeID: "task_empty",
		TaskName:   "noop",
		Queue:      "sync",
	}))

	raw, err := inspect.RPop(ctx, "taskq:sync").Result()
	require.NoError(t, err)

	var msg struct {
		Args   json.RawMessage `json:"args"`
		Kwargs json.RawMessage `json:"kwargs"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.JSONEq(t, `[]`, string(msg.Args))
	assert.JSONEq(t, `{}`, string(msg.Kwargs))
}

func TestRedisSubmitFIFOOrder(t *testing.T) {
	tr, _, inspect := setupRedisTransport(t)
	ctx := context.Background()

	for _, id := range []string{"task_1", "task_2", "task_3"} {
		require.NoError(t, tr.Submit(ctx, SubmitRequest{EnvelopeID: id, TaskName: "t", Queue: "sync"}))
	}

	// Consumers BRPOP the right end, so the first submit comes out first.
	for _, want := range []string{"task_1", "task_2", "task_3"} {
		raw, err := inspect.RPop(ctx, "taskq:sync").Result()
		require.NoError(t, err)
		var msg struct {
			EnvelopeID string `json:"envelope_id"`
		}
		require.NoError(t, json.Unmarshal([]byte(raw), &msg))
		assert.Equal(t, want, msg.EnvelopeID)
	}
}

func TestRedisSubmitUnavailable(t *testing.T) {
	tr, mr, _ := setupRedisTransport(t)
	mr.Close()

	err := tr.Submit(context.Background(), SubmitRequest{EnvelopeID: "task_x", TaskName: "t", Queue: "sync"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRedisPing(t *testing.T) {
	tr, mr, _ := setupRedisTransport(t)

	assert.NoError(t, tr.Ping(context.Background()))

	mr.Close()
	err := tr.Ping(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRedisQueueDepth(t *testing.T) {
	tr, _, _ := setupRedisTransport(t)
	ctx := context.Background()

	n, err := tr.QueueDepth(ctx, "notification")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	require.NoError(t, tr.Submit(ctx, SubmitRequest{EnvelopeID: "task_1", TaskName: "t", Queue: "notification"}))
	require.NoError(t, tr.Submit(ctx, SubmitRequest{EnvelopeID: "task_2", TaskName: "t", Queue: "notification"}))

	n, err = tr.QueueDepth(ctx, "notification")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestNewRedisTransportBadURL(t *testing.T) {
	_, err := NewRedisTransport("not-a-url", "taskq:")
	assert.Error(t, err)
}
