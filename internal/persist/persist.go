// Package persist 保存每个浏览器当前的临时邮箱，相当于前端的 localStorage。
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tempmail/web/internal/domain"
)

// KeyName 持久化记录的固定键名
const KeyName = "tempEmail"

// ErrNotFound 浏览器没有保存的临时邮箱
var ErrNotFound = errors.New("persisted address not found")

// Store 临时邮箱持久化存储
//
// 只由会话引擎的地址生命周期操作写入。
type Store interface {
	Load(ctx context.Context, browserID string) (*domain.TemporaryAddress, error)
	Save(ctx context.Context, browserID string, addr *domain.TemporaryAddress) error
	Remove(ctx context.Context, browserID string) error
}

// Key 返回浏览器对应的存储键
func Key(browserID string) string {
	return KeyName + ":" + browserID
}

// ttlFor 计算记录的保存时长，已过期的地址返回 <= 0
func ttlFor(addr *domain.TemporaryAddress, now time.Time) time.Duration {
	return addr.ExpiresAt.Sub(now)
}

func encode(addr *domain.TemporaryAddress) ([]byte, error) {
	if err := addr.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to persist address: %w", err)
	}
	data, err := json.Marshal(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to encode address: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*domain.TemporaryAddress, error) {
	var addr domain.TemporaryAddress
	if err := json.Unmarshal(data, &addr); err != nil {
		return nil, fmt.Errorf("failed to decode persisted address: %w", err)
	}
	if err := addr.Validate(); err != nil {
		return nil, fmt.Errorf("persisted address is corrupt: %w", err)
	}
	return &addr, nil
}
