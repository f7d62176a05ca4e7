package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthChecker_Ready(t *testing.T) {
	t.Run("依赖可用", func(t *testing.T) {
		hc := NewHealthChecker(nil)
		hc.AddReadinessCheck("query", PingerFunc(func(ctx context.Context) error { return nil }))

		rec := httptest.NewRecorder()
		hc.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("依赖不可用", func(t *testing.T) {
		hc := NewHealthChecker(nil)
		hc.AddReadinessCheck("redis", PingerFunc(func(ctx context.Context) error {
			return errors.New("connection refused")
		}))

		rec := httptest.NewRecorder()
		hc.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		live := httptest.NewRecorder()
		hc.LiveEndpoint(live, httptest.NewRequest(http.MethodGet, "/live", nil))
		assert.Equal(t, http.StatusOK, live.Code, "外部依赖故障不影响存活检查")
	})
}
