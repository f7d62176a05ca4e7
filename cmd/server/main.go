package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempmail/web/internal/auth"
	"tempmail/web/internal/config"
	"tempmail/web/internal/devsink"
	"tempmail/web/internal/gate"
	"tempmail/web/internal/health"
	"tempmail/web/internal/logger"
	"tempmail/web/internal/middleware"
	"tempmail/web/internal/monitoring"
	"tempmail/web/internal/pool"
	"tempmail/web/internal/session"
	httptransport "tempmail/web/internal/transport/http"
	"tempmail/web/internal/websocket"
)

const (
	shutdownTimeout = 10 * time.Second
	pruneInterval   = time.Minute
	sinkMaxConns    = 100
	sinkMaxRate     = 10
)

// main 启动临时邮箱 Web 服务
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.NewLogger(logger.FromConfig(cfg.Log))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting tempmail web",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, log, connectBackends); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// serve 根据配置闸门选择运行模式
//
// 闸门关闭时只提供配置提示页，不调用 connect，不建立任何外部连接。
func serve(ctx context.Context, cfg *config.Config, log *zap.Logger, connect connectFunc) error {
	result := gate.Check(cfg)
	if !result.Configured {
		log.Warn("backend not configured, serving setup page",
			zap.Strings("problems", result.Problems),
		)
		return runSetup(ctx, cfg, result.Problems, log)
	}

	b, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()
	return run(ctx, cfg, b, log)
}

// runSetup 只提供配置提示页与健康检查
func runSetup(ctx context.Context, cfg *config.Config, problems []string, log *zap.Logger) error {
	router := httptransport.NewSetupRouter(httptransport.SetupDependencies{
		Config:   cfg,
		Problems: problems,
		Health:   health.NewHealthChecker(log),
		Logger:   log,
	})
	httpServer := newHTTPServer(cfg, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return serveHTTP(httpServer, log) })
	group.Go(func() error {
		<-groupCtx.Done()
		return shutdownHTTP(httpServer, log)
	})
	return group.Wait()
}

// run 组装会话引擎、WebSocket 和 HTTP 服务并运行到收到退出信号
func run(ctx context.Context, cfg *config.Config, b *backends, log *zap.Logger) error {
	browsers, err := auth.NewBrowserManager(cfg.Session.Secret, cfg.Session.CookieMaxAge)
	if err != nil {
		return fmt.Errorf("failed to initialize browser identity: %w", err)
	}
	if cfg.Session.Secret == "" {
		log.Warn("session secret not configured, using a random one; cookies will not survive restart")
	}

	healthChecker := health.NewHealthChecker(log)
	for name, p := range b.checks {
		healthChecker.AddReadinessCheck(name, p)
	}
	metrics := monitoring.NewMetrics()

	group, groupCtx := errgroup.WithContext(ctx)
	for _, task := range b.tasks {
		task := task
		group.Go(func() error { return task(groupCtx) })
	}

	// 邮件拉取协程池
	workers := pool.NewWorkerPool(cfg.Session.Workers, cfg.Session.Workers*16, log.Named("pool"))
	workers.Start()
	defer workers.Stop()

	// WebSocket Hub 在会话管理器之前创建，活跃回调延迟绑定
	var sessions *session.Manager
	wsHub := websocket.NewHub(websocket.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Authenticate:   middleware.CookieAuthenticator(browsers, cfg.Session.CookieName),
		OnActivity:     func(browserID string) { sessions.Touch(browserID) },
		Recorder:       metrics,
		Log:            log.Named("websocket"),
	})

	sessions = session.NewManager(session.Deps{
		Allocator: b.alloc,
		Store:     b.store,
		Source:    b.source,
		Feed:      b.feed,
		Runner:    workers,
		Observer:  wsHub,
		Recorder:  metrics,
		Log:       log.Named("session"),
	}, session.ManagerConfig{
		Engine: session.Options{
			ExpiryCheckInterval: cfg.Session.ExpiryCheckInterval,
			GenerateRate:        cfg.Session.GenerateRate,
			GenerateBurst:       cfg.Session.GenerateBurst,
		},
		IdleTimeout: cfg.Session.IdleTimeout,
	})

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:       cfg,
		Sessions:     sessions,
		Browsers:     browsers,
		WebSocketHub: wsHub,
		Health:       healthChecker,
		Metrics:      metrics,
		Logger:       log,
	})
	httpServer := newHTTPServer(cfg, router)

	group.Go(func() error { return serveHTTP(httpServer, log) })

	group.Go(func() error {
		log.Info("starting WebSocket hub")
		return wsHub.Run(groupCtx)
	})

	group.Go(func() error {
		log.Info("starting session manager", zap.Duration("idle_timeout", cfg.Session.IdleTimeout))
		return sessions.Run(groupCtx)
	})

	// 开发用 SMTP 收信端：需要进程内分配器和内存收件箱
	if cfg.DevSink.BindAddr != "" {
		if b.memAlloc == nil || b.memInbox == nil {
			log.Warn("dev SMTP sink requires memory allocator and memory query backend, not starting",
				zap.String("address", cfg.DevSink.BindAddr),
			)
		} else {
			limiter := devsink.NewConnectionLimiter(sinkMaxConns, sinkMaxRate)
			backend := devsink.NewBackend(cfg.DevSink.Domain, b.memAlloc, b.memInbox, limiter, log.Named("devsink"))
			smtpServer := devsink.NewServer(cfg.DevSink.BindAddr, backend)

			group.Go(func() error {
				log.Info("starting dev SMTP sink",
					zap.String("address", cfg.DevSink.BindAddr),
					zap.String("domain", cfg.DevSink.Domain),
				)
				if err := smtpServer.ListenAndServe(); err != nil && groupCtx.Err() == nil {
					log.Error("SMTP server error", zap.Error(err))
					return err
				}
				return nil
			})
			group.Go(func() error {
				<-groupCtx.Done()
				if err := smtpServer.Close(); err != nil {
					log.Warn("SMTP server close warning", zap.Error(err))
				}
				return nil
			})
		}
	}

	// 定时清理过期的进程内地址及其邮件
	if b.memAlloc != nil {
		group.Go(func() error {
			ticker := time.NewTicker(pruneInterval)
			defer ticker.Stop()

			for {
				select {
				case <-groupCtx.Done():
					return nil
				case <-ticker.C:
					if addrs, msgs := pruneExpired(b.memAlloc, b.memInbox); addrs > 0 {
						log.Debug("expired addresses pruned",
							zap.Int("addresses", addrs),
							zap.Int("messages", msgs),
						)
					}
				}
			}
		})
	}

	// 优雅关闭
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")
		return shutdownHTTP(httpServer, log)
	})

	return group.Wait()
}

func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func serveHTTP(srv *http.Server, log *zap.Logger) error {
	log.Info("starting HTTP server", zap.String("address", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("HTTP server error", zap.Error(err))
		return err
	}
	return nil
}

func shutdownHTTP(srv *http.Server, log *zap.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("HTTP server stopped")
	return nil
}
