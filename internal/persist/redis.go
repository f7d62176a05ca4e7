package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tempmail/web/internal/domain"
	"tempmail/web/internal/storage/redis"
)

// kv 是 Redis 存储用到的最小命令集
type kv interface {
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) error
}

// Redis 基于 Redis 的存储，键的 TTL 等于地址剩余有效期
type Redis struct {
	client kv
	now    func() time.Time
}

var _ kv = (*redis.Client)(nil)

// NewRedis 创建 Redis 存储
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, now: time.Now}
}

// Load 读取浏览器保存的临时邮箱
func (r *Redis) Load(ctx context.Context, browserID string) (*domain.TemporaryAddress, error) {
	data, err := r.client.Get(ctx, Key(browserID))
	if errors.Is(err, redis.ErrNil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load address: %w", err)
	}
	return decode(data)
}

// Save 保存临时邮箱
func (r *Redis) Save(ctx context.Context, browserID string, addr *domain.TemporaryAddress) error {
	data, err := encode(addr)
	if err != nil {
		return err
	}
	ttl := ttlFor(addr, r.now())
	if ttl <= 0 {
		return r.Remove(ctx, browserID)
	}
	if err := r.client.Set(ctx, Key(browserID), data, ttl); err != nil {
		return fmt.Errorf("failed to save address: %w", err)
	}
	return nil
}

// Remove 删除保存的临时邮箱
func (r *Redis) Remove(ctx context.Context, browserID string) error {
	if err := r.client.Del(ctx, Key(browserID)); err != nil {
		return fmt.Errorf("failed to remove address: %w", err)
	}
	return nil
}
