package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tradecast/internal/core/domain"
	"tradecast/internal/core/ports"
	"tradecast/pkg/circuitbreaker"
	"tradecast/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	chatKeyPrefix      = "tradecast:chat:"
	streamEventsKey    = "tradecast:stream_events"
	viewerCountsKey    = "tradecast:viewer_counts"
	chatHistoryLimit   = 500
	streamEventsLimit  = 10000
)

// NewRedisClient creates a Redis client with connection pooling and pings
// it once before handing it out.
func NewRedisClient(address, password string, db, poolSize int, logger *zap.SugaredLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infow("connected to Redis", "address", address, "db", db, "pool_size", poolSize)
	return client, nil
}

// RedisGateway mirrors chat history, stream lifecycle events and sampled
// viewer counts into Redis. A circuit breaker keeps a dead Redis from
// turning every write into a full timeout; retries stay short because
// every write here is already best-effort.
type RedisGateway struct {
	client  *redis.Client
	breaker *circuitbreaker.CircuitBreaker
	retry   retry.Config
	logger  *zap.SugaredLogger
}

func NewRedisGateway(client *redis.Client, logger *zap.SugaredLogger) *RedisGateway {
	return &RedisGateway{
		client:  client,
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		retry:   retry.DefaultConfig(),
		logger:  logger,
	}
}

var _ ports.PersistenceGateway = (*RedisGateway)(nil)

func (g *RedisGateway) WriteStreamEvent(ctx context.Context, ev domain.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}

	return g.execute(ctx, func() error {
		pipe := g.client.Pipeline()
		pipe.LPush(ctx, streamEventsKey, data)
		pipe.LTrim(ctx, streamEventsKey, 0, streamEventsLimit-1)
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (g *RedisGateway) WriteChatMessage(ctx context.Context, msg domain.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}

	key := chatKeyPrefix + string(msg.StreamID)
	return g.execute(ctx, func() error {
		pipe := g.client.Pipeline()
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, chatHistoryLimit-1)
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (g *RedisGateway) MirrorViewerCount(ctx context.Context, streamID domain.StreamID, count int) error {
	return g.execute(ctx, func() error {
		return g.client.HSet(ctx, viewerCountsKey, string(streamID), count).Err()
	})
}

func (g *RedisGateway) execute(ctx context.Context, fn func() error) error {
	return g.breaker.Execute(func() error {
		return retry.Do(ctx, g.retry, fn)
	})
}
