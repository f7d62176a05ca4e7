// Package sqlstore 通过 GORM 查询 received_emails 表，支持 PostgreSQL 和 MySQL。
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tempmail/web/internal/domain"
	"tempmail/web/internal/inbox"
)

// Options 连接参数
type Options struct {
	URL          string
	Key          string
	MaxOpenConns int
	MaxIdleConns int
}

// Store 基于 SQL 数据库的邮件查询
type Store struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	driver Driver
	log    *zap.Logger
}

var _ inbox.Source = (*Store)(nil)

// Open 连接查询后端
func Open(ctx context.Context, opts Options, log *zap.Logger) (*Store, error) {
	driver, dsn, err := BuildDSN(opts.URL, opts.Key)
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	}

	s, err := newStore(dialector, driver, log)
	if err != nil {
		return nil, err
	}

	if opts.MaxOpenConns > 0 {
		s.sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		s.sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	s.sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to ping query backend: %w", err)
	}

	s.log.Info("connected to query backend", zap.String("driver", string(driver)))
	return s, nil
}

func newStore(dialector gorm.Dialector, driver Driver, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	return &Store{
		db:     db,
		sqlDB:  sqlDB,
		driver: driver,
		log:    log,
	}, nil
}

// Driver 返回数据库类型
func (s *Store) Driver() Driver {
	return s.driver
}

// ListByAddress 返回地址下的全部邮件，按 received_at 倒序
func (s *Store) ListByAddress(ctx context.Context, addressID string) ([]domain.Message, error) {
	var list []domain.Message
	err := s.db.WithContext(ctx).
		Where("temp_email_id = ?", addressID).
		Order("received_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return list, nil
}

// Get 按 id 读取单封邮件
func (s *Store) Get(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, inbox.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

// Ping 检查数据库连接
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	return s.sqlDB.Close()
}
