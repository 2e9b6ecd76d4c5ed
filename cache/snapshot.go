package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"keyforge/database"
	"keyforge/models"
)

const (
	snapshotKeyPrefix = "task:snapshot:"
	snapshotTTL       = 10 * time.Minute
)

// SnapshotCache keeps whole task snapshots in redis for hot polling reads.
// Only terminal snapshots should be cached: they are immutable, so a stale
// entry can never disagree with the store.
type SnapshotCache struct {
	cache *database.Cache
}

func NewSnapshotCache(cache *database.Cache) *SnapshotCache {
	return &SnapshotCache{cache: cache}
}

func (sc *SnapshotCache) Get(ctx context.Context, taskID string) (*models.Task, error) {
	key := fmt.Sprintf("%s%s", snapshotKeyPrefix, taskID)

	data, err := sc.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, err
	}

	return &task, nil
}

func (sc *SnapshotCache) Set(ctx context.Context, task *models.Task) error {
	key := fmt.Sprintf("%s%s", snapshotKeyPrefix, task.ID)

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return sc.cache.Set(ctx, key, data, snapshotTTL)
}

func (sc *SnapshotCache) Invalidate(ctx context.Context, taskID string) error {
	key := fmt.Sprintf("%s%s", snapshotKeyPrefix, taskID)
	return sc.cache.Del(ctx, key)
}
