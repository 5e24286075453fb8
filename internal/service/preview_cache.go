package service

import (
	"academy_backend/internal/util"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// PreviewCache 上传失败时暂存图片，供前端临时预览。尽力而为，不保证持久
type PreviewCache interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	Get(ctx context.Context, handle string) ([]byte, string, error)
}

func NewPreviewCache(rdb *redis.Client, ttl time.Duration) PreviewCache {
	if rdb == nil {
		return NewMemoryPreviewCache(ttl, 64)
	}
	return &RedisPreviewCache{Redis: rdb, TTL: ttl}
}

type RedisPreviewCache struct {
	Redis *redis.Client
	TTL   time.Duration
}

func (c *RedisPreviewCache) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	handle := uuid.NewString()
	pipe := c.Redis.TxPipeline()
	pipe.Set(ctx, "academy:preview:"+handle, data, c.TTL)
	pipe.Set(ctx, "academy:preview:"+handle+":type", contentType, c.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return handle, nil
}

func (c *RedisPreviewCache) Get(ctx context.Context, handle string) ([]byte, string, error) {
	data, err := c.Redis.Get(ctx, "academy:preview:"+handle).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, "", util.ErrPreviewNotFound
	}
	if err != nil {
		return nil, "", err
	}
	contentType, err := c.Redis.Get(ctx, "academy:preview:"+handle+":type").Result()
	if err != nil {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

type previewItem struct {
	data        []byte
	contentType string
	expires     time.Time
}

// MemoryPreviewCache 进程内实现，超过容量时淘汰最早过期的条目
type MemoryPreviewCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	limit int
	items map[string]previewItem
	now   func() time.Time
}

func NewMemoryPreviewCache(ttl time.Duration, limit int) *MemoryPreviewCache {
	return &MemoryPreviewCache{ttl: ttl, limit: limit, items: make(map[string]previewItem), now: time.Now}
}

func (c *MemoryPreviewCache) Put(_ context.Context, data []byte, contentType string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for h, it := range c.items {
		if now.After(it.expires) {
			delete(c.items, h)
		}
	}
	for len(c.items) >= c.limit && c.limit > 0 {
		var oldest string
		for h, it := range c.items {
			if oldest == "" || it.expires.Before(c.items[oldest].expires) {
				oldest = h
			}
		}
		delete(c.items, oldest)
	}

	handle := uuid.NewString()
	c.items[handle] = previewItem{data: data, contentType: contentType, expires: now.Add(c.ttl)}
	return handle, nil
}

func (c *MemoryPreviewCache) Get(_ context.Context, handle string) ([]byte, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[handle]
	if !ok || c.now().After(it.expires) {
		delete(c.items, handle)
		return nil, "", util.ErrPreviewNotFound
	}
	return it.data, it.contentType, nil
}
