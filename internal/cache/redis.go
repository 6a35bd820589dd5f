// Package cache wires the gateway to Redis: the board-action queue the historian drains
// and the beam channel other services use to push events into open sessions.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vicr123/entertaining-server/internal/models"
)

// Connect creates a client and pings it.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// ActionQueue pushes accepted board actions onto a Redis list.
type ActionQueue struct {
	rdb    *redis.Client
	queue  string
	logger *logrus.Logger
}

func NewActionQueue(rdb *redis.Client, queue string, logger *logrus.Logger) *ActionQueue {
	return &ActionQueue{rdb: rdb, queue: queue, logger: logger}
}

// Push serializes the action and appends it to the queue.
func (q *ActionQueue) Push(ctx context.Context, action models.BoardAction) error {
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal board action: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.queue, err)
	}
	return nil
}

// RecordAction pushes in the background so callers holding a room lock never wait on Redis.
func (q *ActionQueue) RecordAction(action models.BoardAction) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := q.Push(ctx, action); err != nil {
			q.logger.Warnf("failed to record board action %s#%d: %v", action.GameID, action.ActionIndex, err)
		}
	}()
}

// Pop blocks up to timeout for the next action. It returns (nil, nil) when the queue stayed empty.
func (q *ActionQueue) Pop(ctx context.Context, timeout time.Duration) (*models.BoardAction, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}

	// res[0] is the queue name and res[1] the payload.
	var action models.BoardAction
	if err := json.Unmarshal([]byte(res[1]), &action); err != nil {
		return nil, fmt.Errorf("invalid board action record: %w", err)
	}
	return &action, nil
}
