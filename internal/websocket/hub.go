// Package websocket 把会话事件推送到浏览器。
//
// 一个浏览器可以同时打开多个标签页，每个标签页是一个 Client，按浏览器标识分组。
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tempmail/web/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 32
)

// Authenticator 从请求中解析浏览器标识
type Authenticator func(r *http.Request) (string, error)

// Recorder 记录连接数
type Recorder interface {
	WebSocketOpened()
	WebSocketClosed()
}

// Options Hub 配置
type Options struct {
	AllowedOrigins []string
	Authenticate   Authenticator
	// OnActivity 在收到客户端心跳时调用，用于保持会话不被回收
	OnActivity func(browserID string)
	Recorder   Recorder
	Log        *zap.Logger
}

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				return true
			}

			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

// envelope 发送给浏览器的消息
type envelope struct {
	session.Event
	Timestamp time.Time `json:"timestamp"`
}

// Client 代表一个WebSocket客户端连接
type Client struct {
	ID        string
	BrowserID string

	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	log  *zap.Logger
}

// Hub 管理所有WebSocket连接
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu       sync.RWMutex
	browsers map[string]map[string]*Client // browserID -> clientID -> Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	nextID     atomic.Uint64
}

var _ session.Observer = (*Hub)(nil)

// NewHub 创建WebSocket Hub
func NewHub(opts Options) *Hub {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	return &Hub{
		opts:       opts,
		upgrader:   upgraderFactory(opts.AllowedOrigins),
		log:        opts.Log,
		browsers:   make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run 启动Hub，ctx 取消后关闭所有连接
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.browsers[client.BrowserID]
			if !ok {
				set = make(map[string]*Client)
				h.browsers[client.BrowserID] = set
			}
			set[client.ID] = client
			h.mu.Unlock()
			if h.opts.Recorder != nil {
				h.opts.Recorder.WebSocketOpened()
			}
			h.log.Debug("client registered",
				zap.String("id", client.ID),
				zap.String("browser_id", client.BrowserID))

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.browsers[client.BrowserID]
	if !ok {
		return
	}
	if _, ok := set[client.ID]; !ok {
		return
	}
	delete(set, client.ID)
	if len(set) == 0 {
		delete(h.browsers, client.BrowserID)
	}
	close(client.send)
	if h.opts.Recorder != nil {
		h.opts.Recorder.WebSocketClosed()
	}
	h.log.Debug("client unregistered", zap.String("id", client.ID))
}

// Notify 把事件发给浏览器的所有连接，不阻塞
//
// 返回 false 表示浏览器没有在线连接或所有连接的发送队列都已满。
func (h *Hub) Notify(browserID string, ev session.Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.browsers[browserID]
	if len(clients) == 0 {
		return false
	}

	data, err := json.Marshal(envelope{Event: ev, Timestamp: time.Now()})
	if err != nil {
		h.log.Error("failed to marshal event", zap.Error(err))
		return false
	}

	delivered := false
	for _, client := range clients {
		select {
		case client.send <- data:
			delivered = true
		default:
			h.log.Warn("client channel blocked, skipping", zap.String("clientID", client.ID))
		}
	}
	return delivered
}

// Connections 返回浏览器当前的连接数
func (h *Hub) Connections(browserID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.browsers[browserID])
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, set := range h.browsers {
		for _, client := range set {
			close(client.send)
			if h.opts.Recorder != nil {
				h.opts.Recorder.WebSocketClosed()
			}
		}
	}
	h.browsers = make(map[string]map[string]*Client)
}

// ServeHTTP 认证浏览器并升级为 WebSocket 连接
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	browserID, err := h.opts.Authenticate(r)
	if err != nil {
		h.log.Warn("websocket authentication failed", zap.Error(err))
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("failed to upgrade connection",
			zap.Error(err),
			zap.String("origin", r.Header.Get("Origin")))
		return
	}

	client := &Client{
		ID:        browserID + "-" + formatUint(h.nextID.Add(1)),
		BrowserID: browserID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		hub:       h,
		log:       h.log,
	}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump 读取客户端消息，只用于处理心跳和检测断开
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.hub.activity(c.BrowserID)
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket error", zap.Error(err))
			}
			return
		}

		if msg.Type == "ping" {
			c.hub.activity(c.BrowserID)
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			c.enqueue([]byte(`{"type":"pong"}`))
		}
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) enqueue(data []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	// send 只在持有写锁时关闭，已注销的客户端不再投递
	if set, ok := c.hub.browsers[c.BrowserID]; !ok || set[c.ID] != c {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) activity(browserID string) {
	if h.opts.OnActivity != nil {
		h.opts.OnActivity(browserID)
	}
}
