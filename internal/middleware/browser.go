package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempmail/web/internal/auth"
)

// BrowserIDKey gin 上下文中保存浏览器标识的键
const BrowserIDKey = "browserID"

// CookieOptions 浏览器标识 Cookie 的属性
type CookieOptions struct {
	Name   string
	Secure bool
}

// BrowserIdentity 为每个浏览器分配稳定标识
//
// Cookie 缺失或校验失败时签发新标识并写回 Cookie。
func BrowserIdentity(m *auth.BrowserManager, opts CookieOptions, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, err := c.Cookie(opts.Name); err == nil {
			browserID, err := m.Validate(token)
			if err == nil {
				c.Set(BrowserIDKey, browserID)
				c.Next()
				return
			}
			log.Debug("browser cookie rejected", zap.Error(err), zap.String("ip", c.ClientIP()))
		}

		browserID, token, err := m.Issue()
		if err != nil {
			log.Error("failed to issue browser id", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "internal server error",
			})
			return
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(opts.Name, token, int(m.MaxAge().Seconds()), "/", "", opts.Secure, true)
		c.Set(BrowserIDKey, browserID)
		c.Next()
	}
}

// BrowserID 返回当前请求的浏览器标识，未设置时为空
func BrowserID(c *gin.Context) string {
	return c.GetString(BrowserIDKey)
}

// CookieAuthenticator 从请求 Cookie 中解析浏览器标识，供 WebSocket 握手使用
func CookieAuthenticator(m *auth.BrowserManager, name string) func(*http.Request) (string, error) {
	return func(r *http.Request) (string, error) {
		ck, err := r.Cookie(name)
		if err != nil {
			if errors.Is(err, http.ErrNoCookie) {
				return "", auth.ErrInvalidToken
			}
			return "", err
		}
		return m.Validate(ck.Value)
	}
}
