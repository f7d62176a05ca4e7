// migrate 创建或删除 received_emails 表（PostgreSQL 还包括新邮件通知触发器）。
package main

import (
	"context"
	"database/sql"
	"embed"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tempmail/web/internal/config"
	"tempmail/web/internal/inbox/sqlstore"
)

//go:embed sql
var migrations embed.FS

func main() {
	// 默认使用与服务相同的环境变量
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("错误: 无法加载配置: %v\n", err)
		os.Exit(1)
	}

	queryURL := flag.String("url", cfg.Query.URL, "查询后端地址: postgres://... 或 mysql://...")
	queryKey := flag.String("key", cfg.Query.Key, "数据库密码")
	action := flag.String("action", "up", "操作: up (升级) 或 down (回滚)")
	flag.Parse()

	if *queryURL == "" {
		fmt.Println("用法:")
		fmt.Println("  migrate -url='postgres://user@host:5432/tempmail' -key='password' -action=up")
		fmt.Println("  migrate -url='mysql://user@host:3306/tempmail' -key='password' -action=up")
		fmt.Println("未指定 -url 时读取 TEMPMAIL_QUERY_URL / TEMPMAIL_QUERY_KEY")
		os.Exit(1)
	}
	if *action != "up" && *action != "down" {
		fmt.Printf("错误: 不支持的操作 '%s'\n", *action)
		os.Exit(1)
	}

	driver, dsn, err := sqlstore.BuildDSN(*queryURL, *queryKey)
	if err != nil {
		fmt.Printf("错误: %v\n", err)
		os.Exit(1)
	}

	driverName := "mysql"
	if driver == sqlstore.DriverPostgres {
		driverName = "pgx"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		fmt.Printf("错误: 无法连接数据库: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		fmt.Printf("错误: 数据库连接失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ 成功连接到 %s 数据库\n", driver)

	files, err := migrationFiles(string(driver), *action)
	if err != nil {
		fmt.Printf("错误: %v\n", err)
		os.Exit(1)
	}

	for _, name := range files {
		content, err := migrations.ReadFile(name)
		if err != nil {
			fmt.Printf("错误: 读取迁移文件失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ 读取迁移文件: %s\n", name)

		stmts := splitStatements(string(content))
		fmt.Printf("找到 %d 条SQL语句\n\n", len(stmts))

		for i, stmt := range stmts {
			// 获取SQL首行用于显示
			firstLine := strings.Split(stmt, "\n")[0]
			if len(firstLine) > 60 {
				firstLine = firstLine[:60] + "..."
			}
			fmt.Printf("[%d/%d] %s\n", i+1, len(stmts), firstLine)

			if _, err := db.ExecContext(ctx, stmt); err != nil {
				fmt.Printf("\n错误: 执行迁移失败: %v\n", err)
				fmt.Printf("SQL: %s\n", stmt)
				os.Exit(1)
			}
		}
	}

	fmt.Printf("\n✓ 迁移成功完成!\n")
}

// migrationFiles 返回某个数据库某个方向的迁移文件，up 升序、down 降序
func migrationFiles(driver, action string) ([]string, error) {
	dir := "sql/" + driver
	entries, err := migrations.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("没有 %s 的迁移文件: %w", driver, err)
	}

	suffix := "." + action + ".sql"
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), suffix) {
			files = append(files, dir+"/"+e.Name())
		}
	}
	sort.Strings(files)
	if action == "down" {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}
	return files, nil
}
