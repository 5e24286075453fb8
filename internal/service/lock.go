package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// FieldLock 防止同一字段的改写并发执行
type FieldLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string)
}

// NewFieldLock rdb 为空时使用进程内实现
func NewFieldLock(rdb *redis.Client) FieldLock {
	if rdb == nil {
		return NewLocalFieldLock()
	}
	return &RedisFieldLock{Redis: rdb}
}

type RedisFieldLock struct {
	Redis *redis.Client
}

func (l *RedisFieldLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.Redis.SetNX(ctx, "academy:rewrite:"+key, "1", ttl).Result()
}

func (l *RedisFieldLock) Release(ctx context.Context, key string) {
	l.Redis.Del(ctx, "academy:rewrite:"+key)
}

type LocalFieldLock struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func NewLocalFieldLock() *LocalFieldLock {
	return &LocalFieldLock{held: make(map[string]time.Time)}
}

func (l *LocalFieldLock) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if exp, ok := l.held[key]; ok && time.Now().Before(exp) {
		return false, nil
	}
	l.held[key] = time.Now().Add(ttl)
	return true, nil
}

func (l *LocalFieldLock) Release(_ context.Context, key string) {
	l.mu.Lock()
	delete(l.held, key)
	l.mu.Unlock()
}
