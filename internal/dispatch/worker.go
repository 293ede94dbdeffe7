package dispatch

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/leadflow/internal/workflow"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// maxAttempts bounds redelivery before a message is dead-lettered.
const maxAttempts = 3

// Worker consumes the step queue and drives the executor. Concurrency is
// bounded by a semaphore pool; each message is acked after processing, and
// failed messages are re-enqueued with an attempt count until dead-lettered.
type Worker struct {
	queue    *Queue
	exec     Executor
	consumer string
	pool     chan struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	logger   *zap.Logger
}

// NewWorker creates a queue consumer with a bounded pool.
func NewWorker(queue *Queue, exec Executor, poolSize int, logger *zap.Logger) *Worker {
	if poolSize <= 0 {
		poolSize = 10
	}
	return &Worker{
		queue:    queue,
		exec:     exec,
		consumer: "worker-" + uuid.New().String()[:8],
		pool:     make(chan struct{}, poolSize),
		logger:   logger,
	}
}

// Start launches the consume loop. Call Stop to drain and shut down.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx)
	w.logger.Info("step worker started", zap.String("consumer", w.consumer))
}

// Stop cancels the loop and waits for in-flight steps to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		results, err := w.queue.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: w.consumer,
			Streams:  []string{stepStream, ">"},
			Count:    10,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if err != redis.Nil {
				w.logger.Warn("queue read failed", zap.Error(err))
				time.Sleep(time.Second)
			}
			continue
		}

		for _, r := range results {
			for _, m := range r.Messages {
				w.pool <- struct{}{} // acquire slot
				w.wg.Add(1)
				go func(m redis.XMessage) {
					defer w.wg.Done()
					defer func() { <-w.pool }() // release slot
					w.process(ctx, m)
				}(m)
			}
		}
	}
}

// process executes one queued step and acks it. Executor errors trigger a
// bounded re-enqueue; step-level idempotency makes redelivery safe.
func (w *Worker) process(ctx context.Context, m redis.XMessage) {
	defer w.queue.rdb.XAck(ctx, stepStream, group, m.ID)

	data, ok := m.Values["data"].(string)
	if !ok {
		w.logger.Warn("malformed queue message", zap.String("id", m.ID))
		return
	}
	attempts := 0
	if raw, ok := m.Values["attempts"].(string); ok {
		attempts, _ = strconv.Atoi(raw)
	}

	var msg workflow.ChainMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		w.logger.Warn("undecodable queue message", zap.String("id", m.ID), zap.Error(err))
		return
	}

	if _, err := w.exec.ExecuteStep(ctx, &msg); err != nil {
		w.logger.Error("queued step failed",
			zap.String("workflow", msg.WorkflowID),
			zap.String("step", msg.StepID),
			zap.Int("attempts", attempts+1),
			zap.Error(err))
		if attempts+1 >= maxAttempts {
			w.queue.deadLetter(ctx, data, attempts+1, err.Error())
			return
		}
		if err := w.queue.enqueue(ctx, &msg, attempts+1); err != nil {
			w.logger.Error("re-enqueue failed", zap.String("step", msg.StepID), zap.Error(err))
		}
	}
}
