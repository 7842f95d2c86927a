package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docparser/models"
)

const (
	snapshotKeyPrefix = "task:snapshot:"
	snapshotTTL       = 10 * time.Minute
)

// SnapshotCache keeps terminal task snapshots in Redis so polling
// clients of finished tasks stop hitting the registry. The registry
// stays authoritative; any cache error is treated as a miss.
type SnapshotCache struct {
	client *redis.Client
}

func NewSnapshotCache(addr string) (*SnapshotCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &SnapshotCache{client: client}, nil
}

func (c *SnapshotCache) Get(ctx context.Context, taskID string) (*models.ParseTask, error) {
	data, err := c.client.Get(ctx, snapshotKeyPrefix+taskID).Bytes()
	if err != nil {
		return nil, err
	}

	var task models.ParseTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *SnapshotCache) Set(ctx context.Context, task *models.ParseTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKeyPrefix+task.ID, data, snapshotTTL).Err()
}

func (c *SnapshotCache) Delete(ctx context.Context, taskID string) error {
	return c.client.Del(ctx, snapshotKeyPrefix+taskID).Err()
}

func (c *SnapshotCache) Close() error {
	return c.client.Close()
}
