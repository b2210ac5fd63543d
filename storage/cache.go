package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

// Cache wraps a BoardStore with Redis-backed caching for list operations.
// Every write for an owner evicts that owner's entries, whether or not the
// write succeeded.
type Cache struct {
	domain.BoardStore
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching BoardStore wrapper using the provided Redis client and TTL.
func NewCache(base domain.BoardStore, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{BoardStore: base, redis: client, ttl: ttl}
}

// Backing returns the uncached store that writes are checked against.
func (c *Cache) Backing() domain.BoardStore {
	return c.BoardStore
}

// cachedColumn and cachedTask keep the fields the domain types hide from
// JSON, so cached entries can still guard writes.
type cachedColumn struct {
	domain.Column
	OwnerID string `json:"ownerId"`
	ETag    string `json:"etag"`
}

type cachedTask struct {
	domain.Task
	OwnerID string `json:"ownerId"`
	ETag    string `json:"etag"`
}

func (c *Cache) ListColumns(ctx context.Context, ownerID string) ([]domain.Column, error) {
	var cached []cachedColumn
	if c.load(ctx, columnsCacheKey(ownerID), &cached) {
		cols := make([]domain.Column, len(cached))
		for i, cc := range cached {
			cols[i] = cc.Column
			cols[i].OwnerID, cols[i].ETag = cc.OwnerID, cc.ETag
		}
		return cols, nil
	}

	cols, err := c.BoardStore.ListColumns(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]cachedColumn, len(cols))
	for i, col := range cols {
		out[i] = cachedColumn{Column: col, OwnerID: col.OwnerID, ETag: col.ETag}
	}
	c.store(ctx, columnsCacheKey(ownerID), out)
	return cols, nil
}

func (c *Cache) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	var cached []cachedTask
	if c.load(ctx, tasksCacheKey(ownerID), &cached) {
		tasks := make([]domain.Task, len(cached))
		for i, ct := range cached {
			tasks[i] = ct.Task
			tasks[i].OwnerID, tasks[i].ETag = ct.OwnerID, ct.ETag
		}
		return tasks, nil
	}

	tasks, err := c.BoardStore.ListTasks(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]cachedTask, len(tasks))
	for i, t := range tasks {
		out[i] = cachedTask{Task: t, OwnerID: t.OwnerID, ETag: t.ETag}
	}
	c.store(ctx, tasksCacheKey(ownerID), out)
	return tasks, nil
}

func (c *Cache) InsertColumn(ctx context.Context, col domain.Column) error {
	defer c.evict(ctx, col.OwnerID)
	return c.BoardStore.InsertColumn(ctx, col)
}

func (c *Cache) SaveColumns(ctx context.Context, ownerID string, cols []domain.Column) error {
	defer c.evict(ctx, ownerID)
	return c.BoardStore.SaveColumns(ctx, ownerID, cols)
}

func (c *Cache) RemoveColumn(ctx context.Context, col domain.Column, migrated []domain.Task) error {
	defer c.evict(ctx, col.OwnerID)
	return c.BoardStore.RemoveColumn(ctx, col, migrated)
}

func (c *Cache) InsertTask(ctx context.Context, task domain.Task) error {
	defer c.evict(ctx, task.OwnerID)
	return c.BoardStore.InsertTask(ctx, task)
}

func (c *Cache) UpdateTask(ctx context.Context, task domain.Task) error {
	defer c.evict(ctx, task.OwnerID)
	return c.BoardStore.UpdateTask(ctx, task)
}

func (c *Cache) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	defer c.evict(ctx, ownerID)
	return c.BoardStore.DeleteTask(ctx, ownerID, taskID)
}

func (c *Cache) load(ctx context.Context, key string, v any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, ownerID string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, columnsCacheKey(ownerID), tasksCacheKey(ownerID)).Err(); err != nil {
		log.WithField("owner", ownerID).WithError(err).Warn("board cache eviction failed")
	}
}

func columnsCacheKey(ownerID string) string {
	return "columns:" + ownerID
}

func tasksCacheKey(ownerID string) string {
	return "tasks:" + ownerID
}
