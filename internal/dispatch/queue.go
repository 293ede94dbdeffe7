package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nidhogg/leadflow/internal/workflow"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	stepStream = "leadflow:steps"
	deadStream = "leadflow:steps:dead"
	group      = "executors"
)

// Queue is a durable chain transport on Redis Streams: one message per step
// transition, consumer-group acks for at-least-once delivery, and a
// dead-letter stream for messages that keep failing.
type Queue struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewQueue connects to Redis and ensures the consumer group exists.
func NewQueue(redisURL string, logger *zap.Logger) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	// BUSYGROUP on re-create is fine.
	if err := rdb.XGroupCreateMkStream(context.Background(), stepStream, group, "0").Err(); err != nil {
		if err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return nil, fmt.Errorf("create consumer group: %w", err)
		}
	}
	return &Queue{rdb: rdb, logger: logger}, nil
}

// Dispatch enqueues one step transition.
func (q *Queue) Dispatch(ctx context.Context, msg *workflow.ChainMessage) error {
	return q.enqueue(ctx, msg, 0)
}

func (q *Queue) enqueue(ctx context.Context, msg *workflow.ChainMessage, attempts int) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chain message: %w", err)
	}
	err = q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stepStream,
		Values: map[string]interface{}{
			"data":     string(data),
			"attempts": attempts,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue step: %w", err)
	}
	q.logger.Debug("step enqueued",
		zap.String("workflow", msg.WorkflowID),
		zap.String("step", msg.StepID),
		zap.String("agent", string(msg.Agent)))
	return nil
}

// deadLetter parks a message that exhausted its retries.
func (q *Queue) deadLetter(ctx context.Context, data string, attempts int, lastErr string) {
	err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: deadStream,
		Values: map[string]interface{}{
			"data":     data,
			"attempts": attempts,
			"error":    lastErr,
			"parked":   time.Now().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		q.logger.Error("dead-letter write failed", zap.Error(err))
	}
}

// Close shuts down the Redis connection.
func (q *Queue) Close() error {
	return q.rdb.Close()
}
