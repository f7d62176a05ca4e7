package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ManagerConfig 会话管理参数
type ManagerConfig struct {
	Engine      Options
	IdleTimeout time.Duration // 超过该时长未被访问的引擎会被停止，<= 0 表示不回收
}

// Manager 按浏览器标识管理会话引擎
//
// 引擎在第一次访问时创建并从持久化存储恢复地址；空闲超时后停止，下次访问重新创建。
type Manager struct {
	deps Deps
	cfg  ManagerConfig
	log  *zap.Logger

	mu      sync.Mutex
	engines map[string]*Engine
	closed  bool
}

// ErrManagerClosed 管理器已关闭
var ErrManagerClosed = errors.New("session manager closed")

// NewManager 创建会话管理器
func NewManager(deps Deps, cfg ManagerConfig) *Manager {
	deps = deps.withDefaults()
	return &Manager{
		deps:    deps,
		cfg:     cfg,
		log:     deps.Log,
		engines: make(map[string]*Engine),
	}
}

// Get 返回浏览器的引擎，不存在时创建并启动
func (m *Manager) Get(ctx context.Context, browserID string) (*Engine, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if e, ok := m.engines[browserID]; ok {
		m.mu.Unlock()
		return e, nil
	}
	e := NewEngine(browserID, m.deps, m.cfg.Engine)
	m.engines[browserID] = e
	m.mu.Unlock()

	// 恢复在锁外进行；启动前投递的事件会在循环开始后按顺序处理
	e.Start(context.WithoutCancel(ctx))
	m.log.Debug("session started", zap.String("browser_id", browserID))
	return e, nil
}

// Lookup 返回已存在的引擎，不创建新引擎
func (m *Manager) Lookup(browserID string) (*Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engines[browserID]
	return e, ok
}

// Do 在浏览器的引擎上执行 fn，引擎恰好被回收时重建一次再执行
func (m *Manager) Do(ctx context.Context, browserID string, fn func(*Engine) error) error {
	for attempt := 0; attempt < 2; attempt++ {
		e, err := m.Get(ctx, browserID)
		if err != nil {
			return err
		}
		err = fn(e)
		if !errors.Is(err, ErrEngineStopped) {
			return err
		}
		m.forget(e)
	}
	return ErrEngineStopped
}

// Touch 标记引擎仍在使用，例如浏览器保持着 WebSocket 连接
func (m *Manager) Touch(browserID string) {
	if e, ok := m.Lookup(browserID); ok {
		e.touch()
	}
}

// Len 返回当前引擎数量
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.engines)
}

// Run 定期回收空闲引擎，ctx 取消后停止所有引擎
func (m *Manager) Run(ctx context.Context) error {
	defer m.Close()

	if m.cfg.IdleTimeout <= 0 {
		<-ctx.Done()
		return nil
	}

	interval := m.cfg.IdleTimeout / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.EvictIdle(); n > 0 {
				m.log.Debug("evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}

// EvictIdle 停止空闲超时的引擎，返回停止数量
func (m *Manager) EvictIdle() int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := m.deps.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var idle []*Engine
	for id, e := range m.engines {
		if e.IdleSince().Before(cutoff) {
			idle = append(idle, e)
			delete(m.engines, id)
		}
	}
	m.mu.Unlock()

	stopAll(idle)
	return len(idle)
}

// Close 停止所有引擎，之后 Get 返回 ErrManagerClosed
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	all := make([]*Engine, 0, len(m.engines))
	for _, e := range m.engines {
		all = append(all, e)
	}
	m.engines = make(map[string]*Engine)
	m.mu.Unlock()

	stopAll(all)
}

func (m *Manager) forget(e *Engine) {
	m.mu.Lock()
	if cur, ok := m.engines[e.browserID]; ok && cur == e {
		delete(m.engines, e.browserID)
	}
	m.mu.Unlock()
}

func stopAll(engines []*Engine) {
	var wg sync.WaitGroup
	for _, e := range engines {
		wg.Add(1)
		go func(e *Engine) {
			defer wg.Done()
			e.Stop()
		}(e)
	}
	wg.Wait()
}
