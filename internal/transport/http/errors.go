package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"tempmail/web/internal/allocator"
	"tempmail/web/internal/session"
)

// errorMapping 业务错误到 HTTP 状态码和中文消息的映射
type errorMapping struct {
	err    error
	status int
	msg    string
}

// 按顺序匹配：ErrRateLimited 包装了 ErrAllocation，必须排在前面
var errorMappings = []errorMapping{
	{session.ErrGenerateInProgress, CodeConflict, "正在生成临时邮箱，请稍候"},
	{session.ErrRateLimited, CodeTooManyRequests, "操作过于频繁，请稍后再试"},
	{allocator.ErrAllocation, CodeBadGateway, "生成临时邮箱失败，请确认后端服务已启动"},
	{session.ErrEngineStopped, CodeServiceUnavailable, "会话已关闭，请刷新页面"},
	{session.ErrManagerClosed, CodeServiceUnavailable, "服务正在关闭，请稍后重试"},
}

// classify 返回错误对应的 HTTP 状态码和中文消息
func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.msg
		}
	}
	return CodeInternalError, MsgInternalError
}

// respondError 以统一响应结构返回错误，未识别的错误使用 fallback 消息
func respondError(c *gin.Context, err error, fallback string) {
	status, msg := classify(err)
	if status == CodeInternalError {
		InternalError(c, fallback)
		return
	}
	Error(c, status, msg)
}

// 通用错误消息
const (
	MsgSessionFailed = "读取会话失败"
	MsgInternalError = "服务器内部错误，请稍后重试"
	MsgNotConfigured = "后端服务未配置"
)
