// Package queue implements the shared execution queue: an ordered list
// of execution ids plus a TTL-bounded JSON payload per id, both in Redis.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/flowengine/engine/internal/engine/domain"
	"github.com/flowengine/engine/pkg/logger"
)

const (
	queueKey      = "execution_queue"
	payloadPrefix = "execution_queue:"
	payloadTTL    = time.Hour
)

type Client struct {
	rdb *redis.Client
	log logger.Logger
}

func New(rdb *redis.Client, log logger.Logger) *Client {
	return &Client{rdb: rdb, log: log}
}

func payloadKey(executionID string) string {
	return payloadPrefix + executionID
}

// Enqueue assigns a fresh execution_id if the job doesn't already carry
// one, writes the payload with a fresh TTL, then left-pushes the id. The
// two writes are not transactional; Dequeue tolerates a popped id whose
// payload has already expired.
func (c *Client) Enqueue(ctx context.Context, job domain.Job) (string, error) {
	if job.ExecutionID == "" {
		job.ExecutionID = uuid.New().String()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("queue: marshal job: %w", err)
	}
	if err := c.rdb.Set(ctx, payloadKey(job.ExecutionID), data, payloadTTL).Err(); err != nil {
		return "", fmt.Errorf("queue: set payload: %w", err)
	}
	if err := c.rdb.LPush(ctx, queueKey, job.ExecutionID).Err(); err != nil {
		return "", fmt.Errorf("queue: push id: %w", err)
	}
	return job.ExecutionID, nil
}

// Dequeue blocks up to timeout for an id, then fetches and deletes its
// payload. Returns (nil, nil) on timeout or on an expired/missing payload
// — both are treated as "nothing to do this round", not errors.
func (c *Client) Dequeue(ctx context.Context, timeout time.Duration) (*domain.Job, error) {
	res, err := c.rdb.BRPop(ctx, timeout, queueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: brpop: %w", err)
	}
	// BRPop returns [key, value]; value is the execution id.
	executionID := res[1]

	data, err := c.rdb.Get(ctx, payloadKey(executionID)).Result()
	if err == redis.Nil {
		c.log.Warn("queue: payload expired before dequeue", "execution_id", executionID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: get payload: %w", err)
	}
	c.rdb.Del(ctx, payloadKey(executionID))

	var job domain.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("queue: unmarshal job %s: %w", executionID, err)
	}
	return &job, nil
}

// Requeue increments retry_count and re-enqueues under the same
// execution_id with a fresh TTL.
func (c *Client) Requeue(ctx context.Context, job domain.Job) error {
	job.RetryCount++
	_, err := c.Enqueue(ctx, job)
	return err
}
