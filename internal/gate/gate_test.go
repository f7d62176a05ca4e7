package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tempmail/web/internal/config"
)

func newConfig(apiURL, queryURL, queryKey string) *config.Config {
	return &config.Config{
		API:   config.APIConfig{URL: apiURL},
		Query: config.QueryConfig{URL: queryURL, Key: queryKey},
	}
}

func TestCheck(t *testing.T) {
	testCases := []struct {
		name       string
		cfg        *config.Config
		configured bool
	}{
		{"全部为空", newConfig("", "", ""), false},
		{"查询后端为空", newConfig("http://localhost:3001", "", ""), false},
		{"缺少访问凭证", newConfig("http://localhost:3001", "postgres://app@db:5432/mail", ""), false},
		{"占位值", newConfig("http://localhost:3001", "YOUR_SUPABASE_URL", "YOUR_SUPABASE_ANON_KEY"), false},
		{"不支持的 scheme", newConfig("http://localhost:3001", "mongodb://db/mail", "k"), false},
		{"缺少主机", newConfig("http://localhost:3001", "postgres:///mail", "k"), false},
		{"API 地址无主机", newConfig("http://", "postgres://db/mail", "k"), false},
		{"API 地址 scheme 错误", newConfig("ftp://api", "postgres://db/mail", "k"), false},
		{"postgres 配置完整", newConfig("http://localhost:3001", "postgres://app@db:5432/mail", "k"), true},
		{"postgresql 别名", newConfig("https://api.example.com", "postgresql://db/mail", "k"), true},
		{"mysql 配置完整", newConfig("http://localhost:3001", "mysql://app@db:3306/mail", "k"), true},
		{"内存模式", newConfig("memory://", "memory://", "dev"), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := Check(tc.cfg)
			assert.Equal(t, tc.configured, result.Configured, "problems: %v", result.Problems)
			if !tc.configured {
				assert.NotEmpty(t, result.Problems)
			}
		})
	}
}

func TestCheck_ReportsEveryProblem(t *testing.T) {
	result := Check(newConfig("", "", ""))

	assert.False(t, result.Configured)
	assert.Len(t, result.Problems, 3)
}

func TestQueryScheme(t *testing.T) {
	assert.Equal(t, "postgres", QueryScheme("postgresql://db/mail"))
	assert.Equal(t, "postgres", QueryScheme("Postgres://db/mail"))
	assert.Equal(t, "mysql", QueryScheme("mysql://db/mail"))
	assert.Equal(t, "memory", QueryScheme("memory://"))
	assert.Equal(t, "", QueryScheme("no-scheme"))
}
