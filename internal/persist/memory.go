package persist

import (
	"context"
	"time"

	"tempmail/web/internal/cache"
	"tempmail/web/internal/domain"
)

// Memory 基于本地缓存的存储，进程重启后丢失
type Memory struct {
	cache *cache.LocalCache
	now   func() time.Time
}

// NewMemory 创建内存存储
func NewMemory(c *cache.LocalCache) *Memory {
	return &Memory{cache: c, now: time.Now}
}

// Load 读取浏览器保存的临时邮箱
func (m *Memory) Load(ctx context.Context, browserID string) (*domain.TemporaryAddress, error) {
	v, ok := m.cache.Get(Key(browserID))
	if !ok {
		return nil, ErrNotFound
	}
	return decode(v.([]byte))
}

// Save 保存临时邮箱，有效期与地址一致
func (m *Memory) Save(ctx context.Context, browserID string, addr *domain.TemporaryAddress) error {
	data, err := encode(addr)
	if err != nil {
		return err
	}
	ttl := ttlFor(addr, m.now())
	if ttl <= 0 {
		m.cache.Delete(Key(browserID))
		return nil
	}
	m.cache.Set(Key(browserID), data, ttl)
	return nil
}

// Remove 删除保存的临时邮箱
func (m *Memory) Remove(ctx context.Context, browserID string) error {
	m.cache.Delete(Key(browserID))
	return nil
}
