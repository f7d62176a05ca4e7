package httptransport

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempmail/web/internal/domain"
	"tempmail/web/internal/middleware"
	"tempmail/web/internal/session"
)

// Handler 聚合页面与 API 处理逻辑。
type Handler struct {
	sessions *session.Manager
	log      *zap.Logger
}

// asyncHeader 页面脚本发起的表单请求带有该头，处理完成后不重定向
const asyncHeader = "X-Requested-With"

func (h *Handler) snapshot(ctx context.Context, browserID string) (session.View, error) {
	var view session.View
	err := h.sessions.Do(ctx, browserID, func(e *session.Engine) error {
		var err error
		view, err = e.Snapshot(ctx)
		return err
	})
	return view, err
}

func (h *Handler) generateFor(ctx context.Context, browserID string) (*domain.TemporaryAddress, error) {
	var addr *domain.TemporaryAddress
	err := h.sessions.Do(ctx, browserID, func(e *session.Engine) error {
		var err error
		addr, err = e.Generate(ctx)
		return err
	})
	return addr, err
}

// render 渲染页面或片段
func (h *Handler) render(c *gin.Context, name string) {
	view, err := h.snapshot(c.Request.Context(), middleware.BrowserID(c))
	if err != nil {
		h.log.Error("failed to read session", zap.Error(err))
		status, msg := classify(err)
		c.String(status, msg)
		return
	}
	c.HTML(http.StatusOK, name, view)
}

// afterForm 表单请求完成后回到首页，脚本请求直接返回 204
func afterForm(c *gin.Context) {
	if c.GetHeader(asyncHeader) != "" {
		c.Status(http.StatusNoContent)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) index(c *gin.Context) {
	h.render(c, "index.html")
}

func (h *Handler) inboxPartial(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	h.render(c, "inbox.html")
}

// generate 处理页面上的 "Generate New" 按钮
//
// 失败时会话已产生错误通知，页面刷新后展示。
func (h *Handler) generate(c *gin.Context) {
	if _, err := h.generateFor(c.Request.Context(), middleware.BrowserID(c)); err != nil {
		h.logGenerateError(err)
	}
	afterForm(c)
}

func (h *Handler) showMessage(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	err := h.sessions.Do(ctx, middleware.BrowserID(c), func(e *session.Engine) error {
		return e.Select(ctx, id)
	})
	if err != nil {
		status, msg := classify(err)
		c.String(status, msg)
		return
	}
	h.render(c, "index.html")
}

func (h *Handler) backToInbox(c *gin.Context) {
	ctx := c.Request.Context()
	err := h.sessions.Do(ctx, middleware.BrowserID(c), func(e *session.Engine) error {
		return e.ClearSelection(ctx)
	})
	if err != nil {
		status, msg := classify(err)
		c.String(status, msg)
		return
	}
	afterForm(c)
}

// getSession 处理 GET /api/session
//
// 返回当前临时邮箱、邮件列表、选中邮件以及未送达的通知。
func (h *Handler) getSession(c *gin.Context) {
	view, err := h.snapshot(c.Request.Context(), middleware.BrowserID(c))
	if err != nil {
		h.log.Error("failed to read session", zap.Error(err))
		respondError(c, err, MsgSessionFailed)
		return
	}
	Success(c, view)
}

// generateJSON 处理 POST /api/generate
//
// 申请新的临时邮箱，替换当前地址并清空邮件列表。
// 生成中返回 409，限流返回 429，分配服务失败返回 502。
func (h *Handler) generateJSON(c *gin.Context) {
	addr, err := h.generateFor(c.Request.Context(), middleware.BrowserID(c))
	if err != nil {
		h.logGenerateError(err)
		respondError(c, err, MsgInternalError)
		return
	}
	SuccessWithMsg(c, "临时邮箱已生成", addr)
}

func (h *Handler) logGenerateError(err error) {
	if errors.Is(err, session.ErrGenerateInProgress) || errors.Is(err, session.ErrRateLimited) {
		h.log.Debug("generate rejected", zap.Error(err))
		return
	}
	h.log.Warn("generate failed", zap.Error(err))
}
