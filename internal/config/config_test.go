package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv 清空测试涉及的环境变量（测试结束后自动恢复）
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TEMPMAIL_SERVER_HOST",
		"TEMPMAIL_SERVER_PORT",
		"TEMPMAIL_API_URL",
		"TEMPMAIL_QUERY_URL",
		"TEMPMAIL_QUERY_KEY",
		"TEMPMAIL_QUERY_FEED",
		"TEMPMAIL_QUERY_POLL_INTERVAL",
		"TEMPMAIL_SESSION_STORE",
		"TEMPMAIL_SESSION_SECRET",
		"TEMPMAIL_SESSION_EXPIRY_CHECK_INTERVAL",
		"TEMPMAIL_SESSION_IDLE_TIMEOUT",
		"TEMPMAIL_CORS_ALLOWED_ORIGINS",
		"TEMPMAIL_LOG_LEVEL",
		"TEMPMAIL_LOG_DEVELOPMENT",
		"TEMPMAIL_REDIS_ADDRESS",
		"TEMPMAIL_REDIS_DB",
		"TEMPMAIL_DEVSINK_BIND_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("加载默认配置成功", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "http://localhost:3001", cfg.API.URL)
		assert.Empty(t, cfg.Query.URL, "查询后端默认未配置，由 gate 决定是否可用")
		assert.Empty(t, cfg.Query.Key)
		assert.Equal(t, "auto", cfg.Query.Feed)
		assert.Equal(t, 5*time.Second, cfg.Query.PollInterval)
		assert.Equal(t, time.Hour, cfg.Allocator.TTL)
		assert.Equal(t, "memory", cfg.Session.Store)
		assert.Equal(t, "tm_browser", cfg.Session.CookieName)
		assert.Equal(t, 10*time.Second, cfg.Session.ExpiryCheckInterval)
		assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
		assert.Equal(t, 3, cfg.Session.GenerateBurst)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.False(t, cfg.Log.Development)
		assert.Equal(t, "localhost:6379", cfg.Redis.Address)
		assert.Equal(t, "temp.mail", cfg.DevSink.Domain)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TEMPMAIL_SERVER_PORT", "9090")
		t.Setenv("TEMPMAIL_API_URL", "https://api.example.com/")
		t.Setenv("TEMPMAIL_QUERY_URL", "postgres://app@db.example.com:5432/mail")
		t.Setenv("TEMPMAIL_QUERY_KEY", "secret")
		t.Setenv("TEMPMAIL_QUERY_FEED", "Redis")
		t.Setenv("TEMPMAIL_SESSION_STORE", "redis")
		t.Setenv("TEMPMAIL_SESSION_SECRET", "custom-session-secret-32-chars-long-minimum")
		t.Setenv("TEMPMAIL_SESSION_EXPIRY_CHECK_INTERVAL", "5s")
		t.Setenv("TEMPMAIL_CORS_ALLOWED_ORIGINS", "http://localhost:3000, http://localhost:5173")
		t.Setenv("TEMPMAIL_LOG_DEVELOPMENT", "true")
		t.Setenv("TEMPMAIL_REDIS_DB", "2")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "https://api.example.com", cfg.API.URL, "末尾斜杠应被去除")
		assert.Equal(t, "postgres://app@db.example.com:5432/mail", cfg.Query.URL)
		assert.Equal(t, "secret", cfg.Query.Key)
		assert.Equal(t, "redis", cfg.Query.Feed)
		assert.Equal(t, "redis", cfg.Session.Store)
		assert.Equal(t, 5*time.Second, cfg.Session.ExpiryCheckInterval)
		assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORS.AllowedOrigins)
		assert.True(t, cfg.Log.Development)
		assert.Equal(t, 2, cfg.Redis.DB)
	})

	t.Run("会话密钥太短失败", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TEMPMAIL_SESSION_SECRET", "short-key")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "session secret must be at least 32 characters long")
	})

	t.Run("无效的检查间隔失败", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TEMPMAIL_SESSION_EXPIRY_CHECK_INTERVAL", "soon")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid session.expiry_check_interval")
	})

	t.Run("不支持的存储类型失败", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TEMPMAIL_SESSION_STORE", "localstorage")

		_, err := Load()

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported session.store")
	})

	t.Run("不支持的推送方式失败", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TEMPMAIL_QUERY_FEED", "carrier-pigeon")

		_, err := Load()

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported query.feed")
	})
}

func TestParseList(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "单个项目",
			input:    "item1",
			expected: []string{"item1"},
		},
		{
			name:     "带空格的项目",
			input:    " item1 , item2 , item3 ",
			expected: []string{"item1", "item2", "item3"},
		},
		{
			name:     "空字符串",
			input:    "",
			expected: []string{},
		},
		{
			name:     "混合空值",
			input:    "item1,,item2,",
			expected: []string{"item1", "item2"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseList(tc.input))
		})
	}
}
