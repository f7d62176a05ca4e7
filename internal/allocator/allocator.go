// Package allocator 向外部分配服务申请临时邮箱地址。
package allocator

import (
	"context"
	"errors"

	"tempmail/web/internal/domain"
)

// ErrAllocation 分配服务不可用或返回了无法使用的结果
var ErrAllocation = errors.New("allocation failed")

// Allocator 临时邮箱分配器
type Allocator interface {
	// Allocate 申请一个新的临时邮箱，失败时返回的错误满足 errors.Is(err, ErrAllocation)
	Allocate(ctx context.Context) (*domain.TemporaryAddress, error)
}
