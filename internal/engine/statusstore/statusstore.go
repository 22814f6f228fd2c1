// Package statusstore keeps ephemeral, advisory execution-status
// snapshots in Redis for polling clients. The orchestrator's Execution
// Record, updated through the callback reporter, remains authoritative.
package statusstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowengine/engine/internal/engine/domain"
)

const (
	statusPrefix = "execution_status:"
	statusTTL    = time.Hour
)

type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func statusKey(executionID string) string {
	return statusPrefix + executionID
}

func (s *Store) Put(ctx context.Context, executionID string, status domain.Status, result interface{}) error {
	snap := domain.StatusSnapshot{
		ExecutionID: executionID,
		Status:      status,
		Result:      result,
		Timestamp:   time.Now().Unix(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("statusstore: marshal snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, statusKey(executionID), data, statusTTL).Err(); err != nil {
		return fmt.Errorf("statusstore: set: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, executionID string) (domain.StatusSnapshot, error) {
	data, err := s.rdb.Get(ctx, statusKey(executionID)).Result()
	if err == redis.Nil {
		return domain.StatusSnapshot{ExecutionID: executionID, Status: domain.StatusNotFound}, nil
	}
	if err != nil {
		return domain.StatusSnapshot{}, fmt.Errorf("statusstore: get: %w", err)
	}
	var snap domain.StatusSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return domain.StatusSnapshot{}, fmt.Errorf("statusstore: unmarshal: %w", err)
	}
	return snap, nil
}
