package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisTransport publishes tasks onto Redis list queues, one list per queue
// name. Messages are pushed on the left; executors consume with BRPOP so
// each list behaves as a FIFO.
type RedisTransport struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisTransport(redisURL, keyPrefix string) (*RedisTransport, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &RedisTransport{
		client:    redis.NewClient(opts),
		keyPrefix: keyPrefix,
	}, nil
}

func (t *RedisTransport) Submit(ctx context.Context, req SubmitRequest) error {
	payload, err := json.Marshal(newWireMessage(req))
	if err != nil {
		// Encoding failures are a property of the task, not the broker.
		return fmt.Errorf("failed to encode task message: %w", err)
	}

	if err := t.client.LPush(ctx, t.key(req.Queue), payload).Err(); err != nil {
		return fmt.Errorf("%w: lpush %s: %v", ErrUnavailable, t.key(req.Queue), err)
	}
	return nil
}

func (t *RedisTransport) Ping(ctx context.Context) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// QueueDepth reports the number of undelivered messages on one queue.
func (t *RedisTransport) QueueDepth(ctx context.Context, queue string) (int64, error) {
	n, err := t.client.LLen(ctx, t.key(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: llen %s: %v", ErrUnavailable, t.key(queue), err)
	}
	return n, nil
}

func (t *RedisTransport) Close() error {
	return t.client.Close()
}

func (t *RedisTransport) key(queue string) string {
	return t.keyPrefix + queue
}
