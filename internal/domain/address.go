package domain

import (
	"errors"
	"time"
)

// ErrInvalidAddress 表示临时邮箱记录缺少必要字段。
var ErrInvalidAddress = errors.New("invalid temporary address")

// TemporaryAddress 表示由外部分配服务签发的临时邮箱。
//
// 创建后不可变；过期或用户重新生成时在本地销毁。
type TemporaryAddress struct {
	ID           string    `json:"id"`
	EmailAddress string    `json:"email_address"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid 判断在 now 时刻邮箱是否仍然有效（now < expires_at）。
//
// 每个生命周期决策点都应重新调用，不要缓存结果。
func (a *TemporaryAddress) Valid(now time.Time) bool {
	if a == nil {
		return false
	}
	return now.Before(a.ExpiresAt)
}

// Remaining 返回距离过期的剩余时长，已过期时返回 0。
func (a *TemporaryAddress) Remaining(now time.Time) time.Duration {
	if !a.Valid(now) {
		return 0
	}
	return a.ExpiresAt.Sub(now)
}

// Validate 检查分配服务返回的记录是否完整。
func (a *TemporaryAddress) Validate() error {
	switch {
	case a == nil:
		return ErrInvalidAddress
	case a.ID == "":
		return errors.Join(ErrInvalidAddress, errors.New("missing id"))
	case a.EmailAddress == "":
		return errors.Join(ErrInvalidAddress, errors.New("missing email_address"))
	case a.ExpiresAt.IsZero():
		return errors.Join(ErrInvalidAddress, errors.New("missing expires_at"))
	}
	return nil
}
