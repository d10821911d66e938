package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/standard-site/siteindex/pkg/config"
	"github.com/standard-site/siteindex/pkg/logging"
)

const (
	pendingKey    = "resolve:pending"
	processingKey = "resolve:processing"
	popTimeout    = 5 * time.Second
)

// RedisQueue is an at-least-once work queue on a Redis list. Items move from
// the pending list to a processing list on receive; an ack removes them from
// the processing list, a nack pushes them back onto pending for redelivery.
type RedisQueue struct {
	client *redis.Client
	logger *zap.Logger
}

// New creates a new Redis-backed work queue
func New(cfg *config.RedisConfig) (*RedisQueue, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetLogger().Info("Redis connection established")

	return &RedisQueue{
		client: client,
		logger: logging.GetLogger().With(zap.String("component", "queue")),
	}, nil
}

// namespaceKey prefixes a key with the application namespace
func namespaceKey(key string) string {
	return "siteindex:" + key
}

// Enqueue pushes a single work item
func (q *RedisQueue) Enqueue(ctx context.Context, item WorkItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal work item: %w", err)
	}
	return q.client.LPush(ctx, namespaceKey(pendingKey), payload).Err()
}

// EnqueueBatch pushes a batch of work items in one round trip
func (q *RedisQueue) EnqueueBatch(ctx context.Context, items []WorkItem) error {
	if len(items) == 0 {
		return nil
	}
	payloads := make([]interface{}, 0, len(items))
	for _, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal work item: %w", err)
		}
		payloads = append(payloads, payload)
	}
	return q.client.LPush(ctx, namespaceKey(pendingKey), payloads...).Err()
}

// Depth returns the number of pending work items
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, namespaceKey(pendingKey)).Result()
}

// Close closes the Redis connection
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Handler processes one work item. A nil return acknowledges the item; an
// error leaves it for redelivery.
type Handler func(ctx context.Context, item WorkItem) error

// Consumer runs a pool of workers over the queue
type Consumer struct {
	queue   *RedisQueue
	handler Handler
	workers int
	logger  *zap.Logger
}

// NewConsumer creates a consumer pool for the given queue
func NewConsumer(q *RedisQueue, handler Handler, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		queue:   q,
		handler: handler,
		workers: workers,
		logger:  logging.GetLogger().With(zap.String("component", "queue-consumer")),
	}
}

// Run consumes work items until the context is cancelled. Independent items
// are processed concurrently with no ordering between them.
func (c *Consumer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			c.work(ctx, worker)
		}(i)
	}
	wg.Wait()
}

func (c *Consumer) work(ctx context.Context, worker int) {
	logger := c.logger.With(zap.Int("worker", worker))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		payload, err := c.queue.client.BRPopLPush(ctx,
			namespaceKey(pendingKey), namespaceKey(processingKey), popTimeout).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("Failed to receive work item", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		var item WorkItem
		if err := json.Unmarshal([]byte(payload), &item); err != nil {
			// Malformed items are dropped; redelivering them can never help.
			logger.Error("Dropping malformed work item", zap.Error(err))
			c.queue.client.LRem(ctx, namespaceKey(processingKey), 1, payload)
			continue
		}

		if err := c.handler(ctx, item); err != nil {
			logger.Warn("Work item failed, requeueing",
				zap.String("did", item.DID),
				zap.String("rkey", item.Rkey),
				zap.Error(err))
			c.queue.client.LRem(ctx, namespaceKey(processingKey), 1, payload)
			c.queue.client.LPush(ctx, namespaceKey(pendingKey), payload)
			continue
		}

		// Ack only after the pipeline completed successfully.
		c.queue.client.LRem(ctx, namespaceKey(processingKey), 1, payload)
	}
}
