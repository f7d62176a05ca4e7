package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// checkTimeout 单项检查的超时时间
const checkTimeout = 3 * time.Second

// Pinger 可以探测连通性的后端
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc 把函数适配为 Pinger
type PingerFunc func(ctx context.Context) error

// Ping 调用函数本身
func (f PingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// HealthChecker 健康检查器
//
// 存活检查只反映进程本身；就绪检查包含查询后端、Redis 等外部依赖。
type HealthChecker struct {
	health healthcheck.Handler
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		logger: logger,
	}

	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))

	return hc
}

// AddReadinessCheck 添加外部依赖的就绪检查
func (hc *HealthChecker) AddReadinessCheck(name string, p Pinger) {
	hc.health.AddReadinessCheck(name, hc.pingCheck(name, p))
}

func (hc *HealthChecker) pingCheck(name string, p Pinger) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()

		if err := p.Ping(ctx); err != nil {
			hc.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			return err
		}
		return nil
	}
}

// Handler 返回健康检查处理器（/live 与 /ready）
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// LiveEndpoint 存活检查
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}
