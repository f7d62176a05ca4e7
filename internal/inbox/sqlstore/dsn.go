package sqlstore

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
)

// Driver 查询后端数据库类型
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// BuildDSN 将 query.url 与 query.key 组合成驱动可用的 DSN
//
// query.key 作为数据库密码注入，覆盖 URL 中可能存在的密码。
func BuildDSN(rawURL, key string) (Driver, string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", "", fmt.Errorf("invalid query url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return DriverPostgres, postgresDSN(u, key), nil
	case "mysql":
		return DriverMySQL, mysqlDSN(u, key), nil
	default:
		return "", "", fmt.Errorf("unsupported query url scheme %q", u.Scheme)
	}
}

func postgresDSN(u *url.URL, key string) string {
	out := *u
	out.Scheme = "postgres"
	user := "postgres"
	if u.User != nil && u.User.Username() != "" {
		user = u.User.Username()
	}
	if key != "" {
		out.User = url.UserPassword(user, key)
	} else {
		out.User = url.User(user)
	}
	return out.String()
}

func mysqlDSN(u *url.URL, key string) string {
	cfg := mysqldriver.NewConfig()
	if u.User != nil {
		cfg.User = u.User.Username()
	}
	cfg.Passwd = key
	cfg.Net = "tcp"
	host, port := u.Hostname(), u.Port()
	if port == "" {
		port = "3306"
	}
	cfg.Addr = net.JoinHostPort(host, port)
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	params := u.Query()
	if len(params) > 0 {
		cfg.Params = make(map[string]string, len(params))
		for k := range params {
			cfg.Params[k] = params.Get(k)
		}
	}
	return cfg.FormatDSN()
}
