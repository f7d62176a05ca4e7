package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tempmail/web/internal/allocator"
	"tempmail/web/internal/cache"
	"tempmail/web/internal/config"
	"tempmail/web/internal/gate"
	"tempmail/web/internal/health"
	"tempmail/web/internal/inbox"
	inboxmem "tempmail/web/internal/inbox/memory"
	"tempmail/web/internal/inbox/pgnotify"
	"tempmail/web/internal/inbox/poll"
	"tempmail/web/internal/inbox/redisfeed"
	"tempmail/web/internal/inbox/sqlstore"
	"tempmail/web/internal/persist"
	"tempmail/web/internal/storage/postgres"
	"tempmail/web/internal/storage/redis"
)

// backends 闸门打开后才建立的外部依赖
type backends struct {
	alloc    allocator.Allocator
	memAlloc *allocator.Memory // 仅进程内分配器
	store    persist.Store
	source   inbox.Source
	memInbox *inboxmem.Store // 仅内存查询后端
	feed     inbox.Feed

	checks  map[string]health.Pinger
	tasks   []func(ctx context.Context) error // 随服务运行的后台任务
	closers []func()
}

// Close 按建立的相反顺序释放连接
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// connectFunc 建立外部依赖
type connectFunc func(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backends, error)

// connectBackends 按配置连接持久化存储、分配服务、查询后端和推送通道
func connectBackends(ctx context.Context, cfg *config.Config, log *zap.Logger) (b *backends, err error) {
	b = &backends{checks: make(map[string]health.Pinger)}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	// Redis 客户端按需创建：会话持久化或 redis 推送方式需要
	kind := feedKind(cfg)
	var redisClient *redis.Client
	if cfg.Session.Store == "redis" || kind == "redis" {
		redisClient, err = redis.New(ctx, cfg.Redis, log.Named("redis"))
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
		b.checks["redis"] = redisClient
	}

	// 会话持久化存储
	if cfg.Session.Store == "redis" {
		b.store = persist.NewRedis(redisClient)
		log.Info("using redis session store", zap.String("address", cfg.Redis.Address))
	} else {
		local := cache.NewLocalCache(cfg.Allocator.TTL, time.Minute)
		b.closers = append(b.closers, local.Close)
		b.store = persist.NewMemory(local)
		log.Info("using memory session store (development mode)")
	}

	// 分配服务
	if gate.QueryScheme(cfg.API.URL) == "memory" {
		b.memAlloc = allocator.NewMemory(cfg.DevSink.Domain, cfg.Allocator.TTL)
		b.alloc = b.memAlloc
		log.Info("using in-process allocator",
			zap.String("domain", cfg.DevSink.Domain),
			zap.Duration("ttl", cfg.Allocator.TTL),
		)
	} else {
		b.alloc = allocator.NewHTTPClient(cfg.API.URL, allocator.WithLogger(log.Named("allocator")))
		log.Info("using allocation service", zap.String("url", cfg.API.URL))
	}

	// 查询后端
	scheme := gate.QueryScheme(cfg.Query.URL)
	if scheme == "memory" {
		b.memInbox = inboxmem.New()
		b.source = b.memInbox
		log.Info("using memory inbox (development mode)")
	} else {
		sqlStore, err := sqlstore.Open(ctx, sqlstore.Options{
			URL:          cfg.Query.URL,
			Key:          cfg.Query.Key,
			MaxOpenConns: cfg.Query.MaxOpenConns,
			MaxIdleConns: cfg.Query.MaxIdleConns,
		}, log.Named("query"))
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = sqlStore.Close() })
		b.source = sqlStore
	}
	b.checks["query"] = b.source

	// 推送通道
	switch kind {
	case "memory":
		if b.memInbox == nil {
			return nil, fmt.Errorf("query.feed memory requires a memory query backend")
		}
		b.feed = b.memInbox
	case "notify":
		if scheme != "postgres" {
			return nil, fmt.Errorf("query.feed notify requires a postgres query backend")
		}
		_, dsn, err := sqlstore.BuildDSN(cfg.Query.URL, cfg.Query.Key)
		if err != nil {
			return nil, err
		}
		pg, err := postgres.New(ctx, postgres.Options{
			DSN:          dsn,
			MaxOpenConns: 2,
			MaxIdleConns: 1,
		}, log.Named("postgres"))
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pg.Close)
		notifier := pgnotify.New(pg.Pool(), b.source, log.Named("pgnotify"))
		b.tasks = append(b.tasks, func(ctx context.Context) error {
			log.Info("starting notification listener")
			return notifier.Run(ctx)
		})
		b.feed = notifier
	case "redis":
		b.feed = redisfeed.New(redisClient, log.Named("redisfeed"))
	case "poll":
		b.feed = poll.New(b.source, cfg.Query.PollInterval, log.Named("poll"))
	}
	log.Info("push feed selected", zap.String("feed", kind))

	return b, nil
}

// feedKind 解析 auto 推送方式：postgres 用 LISTEN/NOTIFY，mysql 轮询，memory 直接订阅
func feedKind(cfg *config.Config) string {
	if cfg.Query.Feed != "auto" {
		return cfg.Query.Feed
	}
	switch gate.QueryScheme(cfg.Query.URL) {
	case "postgres":
		return "notify"
	case "mysql":
		return "poll"
	default:
		return "memory"
	}
}

// pruneExpired 清理过期的进程内地址及其邮件，返回清理的地址数和邮件数
func pruneExpired(alloc *allocator.Memory, mail *inboxmem.Store) (addresses, messages int) {
	ids := alloc.Prune()
	if mail != nil {
		for _, id := range ids {
			messages += mail.DeleteByAddress(id)
		}
	}
	return len(ids), messages
}
