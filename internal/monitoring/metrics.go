package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tempmail/web/internal/session"
)

// Metrics 监控指标
//
// 使用独立的 Registry，同一进程内可以创建多份（测试中常见）而不冲突。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	PanicsTotal         prometheus.Counter

	// 会话指标
	Generations    *prometheus.CounterVec
	Expirations    prometheus.Counter
	Pushes         *prometheus.CounterVec
	Loads          *prometheus.CounterVec
	SessionsActive prometheus.Gauge

	// WebSocket 指标
	WebSocketConnections prometheus.Gauge
}

var _ session.Recorder = (*Metrics)(nil)

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	register := func(c prometheus.Collector) {
		reg.MustRegister(c)
	}

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tempmail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		PanicsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tempmail_panics_total",
				Help: "Total number of recovered panics",
			},
		),

		Generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_generations_total",
				Help: "Temporary address generation attempts by result",
			},
			[]string{"result"},
		),
		Expirations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tempmail_expirations_total",
				Help: "Temporary addresses cleared after expiry",
			},
		),
		Pushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_pushes_total",
				Help: "Pushed messages by outcome (accepted, stale, duplicate)",
			},
			[]string{"outcome"},
		),
		Loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_loads_total",
				Help: "Inbox loads by result",
			},
			[]string{"result"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tempmail_sessions_active",
				Help: "Number of running browser sessions",
			},
		),

		WebSocketConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tempmail_websocket_connections",
				Help: "Number of open WebSocket connections",
			},
		),
	}

	register(m.HTTPRequestsTotal)
	register(m.HTTPRequestDuration)
	register(m.PanicsTotal)
	register(m.Generations)
	register(m.Expirations)
	register(m.Pushes)
	register(m.Loads)
	register(m.SessionsActive)
	register(m.WebSocketConnections)
	register(collectors.NewGoCollector())
	register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if endpoint == "" {
		endpoint = "unmatched"
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// Generation 记录一次地址生成
func (m *Metrics) Generation(ok bool) {
	m.Generations.WithLabelValues(result(ok)).Inc()
}

// Expiration 记录一次地址过期
func (m *Metrics) Expiration() {
	m.Expirations.Inc()
}

// Push 记录一次推送处理结果
func (m *Metrics) Push(outcome string) {
	m.Pushes.WithLabelValues(outcome).Inc()
}

// Load 记录一次邮件拉取
func (m *Metrics) Load(ok bool) {
	m.Loads.WithLabelValues(result(ok)).Inc()
}

// SessionOpened 会话引擎启动
func (m *Metrics) SessionOpened() {
	m.SessionsActive.Inc()
}

// SessionClosed 会话引擎停止
func (m *Metrics) SessionClosed() {
	m.SessionsActive.Dec()
}

// WebSocketOpened WebSocket 连接建立
func (m *Metrics) WebSocketOpened() {
	m.WebSocketConnections.Inc()
}

// WebSocketClosed WebSocket 连接关闭
func (m *Metrics) WebSocketClosed() {
	m.WebSocketConnections.Dec()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
