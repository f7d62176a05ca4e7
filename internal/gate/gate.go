// Package gate 实现启动时的配置闸门：后端服务未配置时整个邮箱功能不启用。
package gate

import (
	"fmt"
	"net/url"
	"strings"

	"tempmail/web/internal/config"
)

// 未替换的占位值视为未配置
var placeholders = map[string]bool{
	"YOUR_SUPABASE_URL":      true,
	"YOUR_SUPABASE_ANON_KEY": true,
	"YOUR_API_URL":           true,
}

// Result 是闸门检查结果
type Result struct {
	Configured bool     // 所有后端配置均有效
	Problems   []string // 无效配置项说明
}

// Check 检查查询后端与分配服务配置是否完整且格式正确。
//
// 纯函数，不发起任何网络请求。
func Check(cfg *config.Config) Result {
	var problems []string

	if err := checkQueryURL(cfg.Query.URL); err != nil {
		problems = append(problems, err.Error())
	}
	if isUnset(cfg.Query.Key) {
		problems = append(problems, "TEMPMAIL_QUERY_KEY is not set")
	}
	if err := checkAPIURL(cfg.API.URL); err != nil {
		problems = append(problems, err.Error())
	}

	return Result{
		Configured: len(problems) == 0,
		Problems:   problems,
	}
}

// QueryScheme 返回查询后端地址的规范化 scheme（postgresql 归一为 postgres）
func QueryScheme(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "postgresql" {
		return "postgres"
	}
	return scheme
}

func checkQueryURL(raw string) error {
	if isUnset(raw) {
		return fmt.Errorf("TEMPMAIL_QUERY_URL is not set")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("TEMPMAIL_QUERY_URL is malformed: %v", err)
	}
	switch QueryScheme(raw) {
	case "memory":
		return nil
	case "postgres", "mysql":
		if u.Hostname() == "" {
			return fmt.Errorf("TEMPMAIL_QUERY_URL must include a host")
		}
		return nil
	default:
		return fmt.Errorf("TEMPMAIL_QUERY_URL has unsupported scheme %q", u.Scheme)
	}
}

func checkAPIURL(raw string) error {
	if isUnset(raw) {
		return fmt.Errorf("TEMPMAIL_API_URL is not set")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("TEMPMAIL_API_URL is malformed: %v", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "memory":
		return nil
	case "http", "https":
		if u.Hostname() == "" {
			return fmt.Errorf("TEMPMAIL_API_URL must include a host")
		}
		return nil
	default:
		return fmt.Errorf("TEMPMAIL_API_URL has unsupported scheme %q", u.Scheme)
	}
}

func isUnset(value string) bool {
	value = strings.TrimSpace(value)
	return value == "" || placeholders[value]
}
