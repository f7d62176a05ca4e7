// Package pgnotify 通过 PostgreSQL LISTEN/NOTIFY 推送新邮件。
//
// received_emails 的插入触发器在 Channel 上发送 {"id": ..., "temp_email_id": ...}，
// 监听协程按 temp_email_id 分发给订阅者，邮件正文通过 Source 读回。
package pgnotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"tempmail/web/internal/domain"
	"tempmail/web/internal/inbox"
)

// Channel 触发器使用的通知频道
const Channel = "received_emails"

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	fetchTimeout   = 5 * time.Second
)

// notification 触发器发送的载荷
type notification struct {
	ID          string `json:"id"`
	TempEmailID string `json:"temp_email_id"`
}

// Feed LISTEN/NOTIFY 推送
type Feed struct {
	pool   *pgxpool.Pool
	source inbox.Source
	log    *zap.Logger

	mu   sync.RWMutex
	subs map[string]map[*subscription]struct{}
}

type subscription struct {
	feed      *Feed
	addressID string
	handler   inbox.Handler

	mu     sync.Mutex
	closed bool
}

var _ inbox.Feed = (*Feed)(nil)

// New 创建推送，需要调用 Run 开始监听
func New(pool *pgxpool.Pool, source inbox.Source, log *zap.Logger) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{
		pool:   pool,
		source: source,
		log:    log,
		subs:   make(map[string]map[*subscription]struct{}),
	}
}

// Subscribe 订阅地址的新邮件
func (f *Feed) Subscribe(ctx context.Context, addressID string, h inbox.Handler) (inbox.Subscription, error) {
	sub := &subscription{feed: f, addressID: addressID, handler: h}

	f.mu.Lock()
	set, ok := f.subs[addressID]
	if !ok {
		set = make(map[*subscription]struct{})
		f.subs[addressID] = set
	}
	set[sub] = struct{}{}
	f.mu.Unlock()

	return sub, nil
}

// Close 取消订阅
func (s *subscription) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	f := s.feed
	f.mu.Lock()
	if set, ok := f.subs[s.addressID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(f.subs, s.addressID)
		}
	}
	f.mu.Unlock()
	return nil
}

func (s *subscription) deliver(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.handler(msg)
	}
}

// Run 占用一个连接执行 LISTEN，断线后按指数退避重连，直到 ctx 取消
func (f *Feed) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		err := f.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}

		f.log.Warn("notification listener disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (f *Feed) listen(ctx context.Context) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, _ = conn.Exec(cleanupCtx, "UNLISTEN *")
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	f.log.Info("listening for new mail notifications", zap.String("channel", Channel))

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		f.handleNotification(ctx, n.Payload)
	}
}

// handleNotification 解析载荷并把邮件分发给订阅者
func (f *Feed) handleNotification(ctx context.Context, payload string) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil || n.ID == "" || n.TempEmailID == "" {
		f.log.Warn("malformed notification payload", zap.String("payload", payload))
		return
	}

	subs := f.subscribers(n.TempEmailID)
	if len(subs) == 0 {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	msg, err := f.source.Get(fetchCtx, n.ID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			f.log.Warn("failed to read notified message",
				zap.String("message_id", n.ID),
				zap.Error(err),
			)
		}
		return
	}
	if msg.TempEmailID != n.TempEmailID {
		return
	}

	for _, s := range subs {
		s.deliver(*msg)
	}
}

func (f *Feed) subscribers(addressID string) []*subscription {
	f.mu.RLock()
	defer f.mu.RUnlock()

	set := f.subs[addressID]
	out := make([]*subscription, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}
