package httptransport

import (
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempmail/web/internal/auth"
	"tempmail/web/internal/config"
	"tempmail/web/internal/health"
	"tempmail/web/internal/middleware"
	"tempmail/web/internal/monitoring"
	"tempmail/web/internal/session"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config       *config.Config
	Sessions     *session.Manager
	Browsers     *auth.BrowserManager
	WebSocketHub http.Handler // WebSocket Hub，自行完成浏览器认证
	Health       *health.HealthChecker
	Metrics      *monitoring.Metrics // 可选
	Logger       *zap.Logger
}

// SetupDependencies 配置闸门关闭时的路由依赖
type SetupDependencies struct {
	Config   *config.Config
	Problems []string
	Health   *health.HealthChecker
	Logger   *zap.Logger
}

// 闸门关闭时提示的环境变量
var requiredVariables = []string{
	"TEMPMAIL_QUERY_URL=postgres://user@your-database-host:5432/tempmail",
	"TEMPMAIL_QUERY_KEY=your_database_password",
	"TEMPMAIL_API_URL=https://your-backend-url.com",
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := newBaseRouter(deps.Config, deps.Metrics, deps.Logger)
	registerHealth(router, deps.Health)

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	handler := &Handler{
		sessions: deps.Sessions,
		log:      deps.Logger,
	}

	// WebSocket 握手由 Hub 从 Cookie 中认证浏览器
	router.GET("/ws", gin.WrapH(deps.WebSocketHub))

	browser := router.Group("/")
	browser.Use(middleware.BrowserIdentity(deps.Browsers, middleware.CookieOptions{
		Name:   deps.Config.Session.CookieName,
		Secure: deps.Config.Session.CookieSecure,
	}, deps.Logger))
	{
		// 页面
		browser.GET("/", handler.index)
		browser.POST("/generate", handler.generate)
		browser.GET("/messages/:id", handler.showMessage)
		browser.POST("/inbox", handler.backToInbox)
		browser.GET("/partials/inbox", handler.inboxPartial)

		// JSON API
		api := browser.Group("/api")
		api.GET("/session", handler.getSession)
		api.POST("/generate", handler.generateJSON)
	}

	return router
}

// NewSetupRouter 创建配置闸门关闭时的路由：除健康检查外所有路径都返回配置说明页
func NewSetupRouter(deps SetupDependencies) *gin.Engine {
	router := newBaseRouter(deps.Config, nil, deps.Logger)
	registerHealth(router, deps.Health)

	page := gin.H{
		"Variables": requiredVariables,
		"Problems":  deps.Problems,
	}
	router.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "setup.html", page)
	})
	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			Error(c, CodeServiceUnavailable, MsgNotConfigured)
			return
		}
		c.HTML(http.StatusServiceUnavailable, "setup.html", page)
	})

	return router
}

// newBaseRouter 创建带公共中间件、模板和静态资源的路由
func newBaseRouter(cfg *config.Config, metrics *monitoring.Metrics, log *zap.Logger) *gin.Engine {
	router := gin.New()

	var onPanic func()
	if metrics != nil {
		onPanic = metrics.RecordPanic
	}
	router.Use(middleware.RecoveryHandler(log, onPanic))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.SmallBodyLimit))
	if metrics != nil {
		router.Use(middleware.HTTPMetrics(metrics))
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	router.SetHTMLTemplate(template.Must(parseTemplates()))

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	router.StaticFS("/static", http.FS(static))

	return router
}

func registerHealth(router *gin.Engine, hc *health.HealthChecker) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if hc != nil {
		router.GET("/health/live", gin.WrapF(hc.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(hc.ReadyEndpoint))
	}
}
