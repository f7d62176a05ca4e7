package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempmail/web/internal/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordedRequest struct {
	method   string
	endpoint string
	status   int
}

type fakeRecorder struct {
	requests []recordedRequest
}

func (f *fakeRecorder) RecordHTTPRequest(method, endpoint string, status int, _ time.Duration) {
	f.requests = append(f.requests, recordedRequest{method, endpoint, status})
}

func newBrowserManager(t *testing.T) *auth.BrowserManager {
	t.Helper()
	m, err := auth.NewBrowserManager(strings.Repeat("k", 32), time.Hour)
	require.NoError(t, err)
	return m
}

func TestBrowserIdentity(t *testing.T) {
	m := newBrowserManager(t)
	opts := CookieOptions{Name: "tm_browser"}

	r := gin.New()
	r.Use(BrowserIdentity(m, opts, zap.NewNop()))
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, BrowserID(c))
	})

	t.Run("缺少 Cookie 时签发新标识", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusOK, w.Code)
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "tm_browser", cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)

		id, err := m.Validate(cookies[0].Value)
		require.NoError(t, err)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("有效 Cookie 保持原标识", func(t *testing.T) {
		id, token, err := m.Issue()
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "tm_browser", Value: token})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, id, w.Body.String())
		assert.Empty(t, w.Result().Cookies())
	})

	t.Run("无效 Cookie 被替换", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "tm_browser", Value: "garbage"})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Len(t, w.Result().Cookies(), 1)
		assert.NotEmpty(t, w.Body.String())
	})
}

func TestCookieAuthenticator(t *testing.T) {
	m := newBrowserManager(t)
	authenticate := CookieAuthenticator(m, "tm_browser")

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	_, err := authenticate(req)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	id, token, err := m.Issue()
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "tm_browser", Value: token})
	got, err := authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestRecoveryHandler(t *testing.T) {
	panics := 0
	r := gin.New()
	r.Use(RecoveryHandler(zap.NewNop(), func() { panics++ }))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, panics)
}

func TestHTTPMetrics(t *testing.T) {
	rec := &fakeRecorder{}
	r := gin.New()
	r.Use(HTTPMetrics(rec))
	r.GET("/messages/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/messages/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Len(t, rec.requests, 2)
	assert.Equal(t, recordedRequest{"GET", "/messages/:id", http.StatusOK}, rec.requests[0])
	assert.Equal(t, recordedRequest{"GET", "unmatched", http.StatusNotFound}, rec.requests[1])
}

func TestSecurityHeadersAndBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders(), BodySizeLimit(8))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ok")))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'self'")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("this body is too long")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	var resp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Code, "超限响应使用统一响应结构")
	assert.Equal(t, "请求体过大，上限 8 B", resp.Msg)
}

func TestBodySizeLimit_UndeclaredLength(t *testing.T) {
	r := gin.New()
	r.Use(BodySizeLimit(8))
	r.POST("/", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("this body is too long"))
	req.ContentLength = -1
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, "未声明长度时读取到上限即报错")
}
