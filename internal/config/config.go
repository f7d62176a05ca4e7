package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// APIConfig 定义外部邮箱分配服务的地址
type APIConfig struct {
	URL string // 后端基础地址，如 "http://localhost:3001"；"memory://" 表示进程内分配器
}

// QueryConfig 定义邮件查询后端（received_emails 表）及推送通道
type QueryConfig struct {
	URL          string        // 查询后端地址: postgres://、mysql://、memory://
	Key          string        // 访问凭证（数据库密码或访问密钥）
	Feed         string        // 推送方式: auto, notify, redis, poll, memory
	PollInterval time.Duration // poll 推送方式的轮询间隔
	MaxOpenConns int           // 最大打开连接数
	MaxIdleConns int           // 最大空闲连接数
}

// AllocatorConfig 定义进程内分配器（开发模式）的参数
type AllocatorConfig struct {
	TTL time.Duration // 临时邮箱有效期，默认 1 小时
}

// SessionConfig 定义浏览器会话相关配置
type SessionConfig struct {
	Store               string        // 持久化存储: memory 或 redis
	CookieName          string        // 浏览器标识 Cookie 名称
	Secret              string        // Cookie 签名密钥，至少 32 字符；为空时启动时随机生成
	CookieMaxAge        time.Duration // 浏览器标识有效期
	CookieSecure        bool          // 仅通过 HTTPS 发送 Cookie
	ExpiryCheckInterval time.Duration // 过期检查间隔，默认 10 秒
	IdleTimeout         time.Duration // 空闲会话回收时间
	GenerateRate        float64       // 每个浏览器每秒允许的生成次数
	GenerateBurst       int           // 生成突发上限
	Workers             int           // 邮件拉取协程数
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到控制台
}

// RedisConfig 定义 Redis 服务配置
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// DevSinkConfig 定义开发用 SMTP 收信端（仅在 memory 查询后端下启用）
type DevSinkConfig struct {
	BindAddr string // 监听地址，留空表示不启用
	Domain   string // 进程内分配器使用的邮箱域名
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig
	API       APIConfig
	Query     QueryConfig
	Allocator AllocatorConfig
	Session   SessionConfig
	CORS      CORSConfig
	Log       LogConfig
	Redis     RedisConfig
	DevSink   DevSinkConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: TEMPMAIL_
// 例如: TEMPMAIL_API_URL, TEMPMAIL_QUERY_URL, TEMPMAIL_QUERY_KEY
//
// 查询后端与分配服务的地址即使为空也不会报错，是否可用由 gate 包在启动时判断。
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("tempmail")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("api.url", "http://localhost:3001")
	v.SetDefault("query.url", "")
	v.SetDefault("query.key", "")
	v.SetDefault("query.feed", "auto")
	v.SetDefault("query.poll_interval", "5s")
	v.SetDefault("query.max_open_conns", 10)
	v.SetDefault("query.max_idle_conns", 2)
	v.SetDefault("allocator.ttl", "1h")
	v.SetDefault("session.store", "memory")
	v.SetDefault("session.cookie_name", "tm_browser")
	v.SetDefault("session.secret", "")
	v.SetDefault("session.cookie_max_age", "720h")
	v.SetDefault("session.cookie_secure", false)
	v.SetDefault("session.expiry_check_interval", "10s")
	v.SetDefault("session.idle_timeout", "30m")
	v.SetDefault("session.generate_rate", 0.2)
	v.SetDefault("session.generate_burst", 3)
	v.SetDefault("session.workers", 8)
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("devsink.bind_addr", "")
	v.SetDefault("devsink.domain", "temp.mail")

	pollInterval, err := parseDuration(v, "query.poll_interval")
	if err != nil {
		return nil, err
	}
	allocatorTTL, err := parseDuration(v, "allocator.ttl")
	if err != nil {
		return nil, err
	}
	cookieMaxAge, err := parseDuration(v, "session.cookie_max_age")
	if err != nil {
		return nil, err
	}
	expiryCheck, err := parseDuration(v, "session.expiry_check_interval")
	if err != nil {
		return nil, err
	}
	if expiryCheck <= 0 {
		return nil, fmt.Errorf("session.expiry_check_interval must be positive")
	}
	idleTimeout, err := parseDuration(v, "session.idle_timeout")
	if err != nil {
		return nil, err
	}

	store := strings.ToLower(strings.TrimSpace(v.GetString("session.store")))
	if store != "memory" && store != "redis" {
		return nil, fmt.Errorf("unsupported session.store %q (supported: memory, redis)", store)
	}

	feed := strings.ToLower(strings.TrimSpace(v.GetString("query.feed")))
	switch feed {
	case "auto", "notify", "redis", "poll", "memory":
	default:
		return nil, fmt.Errorf("unsupported query.feed %q (supported: auto, notify, redis, poll, memory)", feed)
	}

	secret := v.GetString("session.secret")
	// 安全检查：显式配置的密钥必须至少 32 字符
	if secret != "" && len(secret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: session secret must be at least 32 characters long")
	}

	workers := v.GetInt("session.workers")
	if workers <= 0 {
		workers = 8
	}

	generateBurst := v.GetInt("session.generate_burst")
	if generateBurst <= 0 {
		generateBurst = 1
	}

	corsOrigins := parseList(v.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		API: APIConfig{
			URL: strings.TrimRight(strings.TrimSpace(v.GetString("api.url")), "/"),
		},
		Query: QueryConfig{
			URL:          strings.TrimSpace(v.GetString("query.url")),
			Key:          strings.TrimSpace(v.GetString("query.key")),
			Feed:         feed,
			PollInterval: pollInterval,
			MaxOpenConns: v.GetInt("query.max_open_conns"),
			MaxIdleConns: v.GetInt("query.max_idle_conns"),
		},
		Allocator: AllocatorConfig{
			TTL: allocatorTTL,
		},
		Session: SessionConfig{
			Store:               store,
			CookieName:          v.GetString("session.cookie_name"),
			Secret:              secret,
			CookieMaxAge:        cookieMaxAge,
			CookieSecure:        v.GetBool("session.cookie_secure"),
			ExpiryCheckInterval: expiryCheck,
			IdleTimeout:         idleTimeout,
			GenerateRate:        v.GetFloat64("session.generate_rate"),
			GenerateBurst:       generateBurst,
			Workers:             workers,
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		DevSink: DevSinkConfig{
			BindAddr: v.GetString("devsink.bind_addr"),
			Domain:   strings.ToLower(v.GetString("devsink.domain")),
		},
	}

	return cfg, nil
}

// parseDuration 读取并解析时长配置，格式错误时返回带键名的错误
func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
//
// 参数:
//   - value: 逗号分隔的字符串，如 "item1,item2,item3"
//
// 返回值:
//   - []string: 解析后的字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env
//
// 文件不存在时静默跳过，已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
