// Package redisfeed 通过 Redis 发布订阅推送新邮件。
//
// 收信管道在频道 received_emails:{temp_email_id} 上发布完整的邮件 JSON。
package redisfeed

import (
	"context"
	"encoding/json"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tempmail/web/internal/domain"
	"tempmail/web/internal/inbox"
	"tempmail/web/internal/storage/redis"
)

// ChannelPrefix 频道名前缀
const ChannelPrefix = "received_emails:"

// ChannelName 返回地址对应的频道
func ChannelName(addressID string) string {
	return ChannelPrefix + addressID
}

// Feed Redis 推送
type Feed struct {
	client *redis.Client
	log    *zap.Logger
}

var _ inbox.Feed = (*Feed)(nil)

// New 创建 Redis 推送
func New(client *redis.Client, log *zap.Logger) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{client: client, log: log}
}

type subscription struct {
	ps        *goredis.PubSub
	done      chan struct{}
	closeOnce sync.Once
}

// Subscribe 订阅地址频道
func (f *Feed) Subscribe(ctx context.Context, addressID string, h inbox.Handler) (inbox.Subscription, error) {
	ps, err := f.client.Subscribe(ctx, ChannelName(addressID))
	if err != nil {
		return nil, err
	}

	sub := &subscription{ps: ps, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for m := range ps.Channel() {
			msg, ok := decode(m.Payload, addressID)
			if !ok {
				f.log.Warn("dropping malformed mail event", zap.String("channel", m.Channel))
				continue
			}
			h(msg)
		}
	}()
	return sub, nil
}

// Close 取消订阅并等待分发协程退出
func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.ps.Close()
	})
	<-s.done
	return err
}

// decode 解析事件载荷，地址不匹配的事件视为无效
func decode(payload, addressID string) (domain.Message, bool) {
	var msg domain.Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return domain.Message{}, false
	}
	if msg.ID == "" || msg.TempEmailID != addressID {
		return domain.Message{}, false
	}
	return msg, true
}
