// Package inbox 读取临时邮箱收到的邮件并订阅新邮件推送。
//
// Source 负责按地址拉取全部邮件，Feed 负责推送新插入的邮件。两者由不同实现组合：
// sqlstore 提供 Source，pgnotify、redisfeed、poll 提供 Feed，memory 两者都提供。
package inbox

import (
	"context"
	"errors"

	"tempmail/web/internal/domain"
)

// ErrMessageNotFound 邮件不存在
var ErrMessageNotFound = errors.New("message not found")

// Source 邮件查询后端
type Source interface {
	// ListByAddress 返回地址下的全部邮件，按 received_at 倒序
	ListByAddress(ctx context.Context, addressID string) ([]domain.Message, error)
	// Get 按 id 读取单封邮件，不存在时返回 ErrMessageNotFound
	Get(ctx context.Context, id string) (*domain.Message, error)
	// Ping 检查后端连接
	Ping(ctx context.Context) error
}

// Handler 接收推送的新邮件，必须快速返回
type Handler func(domain.Message)

// Subscription 一个已建立的推送订阅
type Subscription interface {
	// Close 取消订阅，返回后不再调用 Handler
	Close() error
}

// Feed 新邮件推送通道
type Feed interface {
	// Subscribe 订阅指定地址的新邮件，只推送 temp_email_id 等于 addressID 的邮件
	Subscribe(ctx context.Context, addressID string, h Handler) (Subscription, error)
}

// SubscriptionFunc 把函数适配为 Subscription
type SubscriptionFunc func() error

// Close 调用函数本身
func (f SubscriptionFunc) Close() error {
	return f()
}
