package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"dropvault/contexts/drop-distribution/drop-allocation-engine/ports"

	"github.com/redis/go-redis/v9"
)

const moduleName = "internal/platform/messaging"

// streamWriter is the slice of the go-redis client the publisher needs.
type streamWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisPublisher appends envelopes to a Redis stream named after the topic.
// Streams are trimmed approximately to MaxLen entries.
type RedisPublisher struct {
	client  streamWriter
	maxLen  int64
	timeout time.Duration
	logger  *slog.Logger
}

type RedisOption func(*RedisPublisher)

func WithStreamMaxLen(n int64) RedisOption {
	return func(p *RedisPublisher) { p.maxLen = n }
}

func WithPublishTimeout(d time.Duration) RedisOption {
	return func(p *RedisPublisher) { p.timeout = d }
}

// NewRedisClient opens a client and verifies it with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := client.Ping(pingCtx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewRedisPublisher(client streamWriter, logger *slog.Logger, opts ...RedisOption) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &RedisPublisher{
		client:  client,
		maxLen:  100000,
		timeout: 3 * time.Second,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode envelope %s: %w", event.EventID, err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":      event.EventID,
			"event_type":    event.EventType,
			"partition_key": event.PartitionKey,
			"envelope":      string(body),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", topic, err)
	}

	p.logger.Info("event published",
		"event", "redis_publish",
		"module", moduleName,
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"stream_id", id,
	)
	return nil
}
